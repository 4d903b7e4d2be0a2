package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbforge/pkg/stores"
)

func newStatusCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored resource handles and recent operations",
		Long: `Print the resource identifiers persisted by the last successful
provision run along with the most recent recorded operations.`,
		Example: `  # Show current handles and the last 10 operations
  kbforge status

  # Show more history
  kbforge status --limit 25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			handles, err := a.store.LoadHandles(ctx)
			switch {
			case errors.Is(err, stores.ErrNoHandles):
				fmt.Println("No provisioned resources recorded. Run 'kbforge provision' first.")
			case err != nil:
				return fmt.Errorf("failed to load handles: %w", err)
			default:
				fmt.Println("Provisioned resources:")
				fmt.Printf("  knowledge base id: %s\n", handles.KnowledgeBaseID)
				fmt.Printf("  data source id:    %s\n", handles.DataSourceID)
				fmt.Printf("  document bucket:   %s\n", handles.DocumentBucket)
				fmt.Printf("  vector bucket:     %s\n", handles.VectorBucketARN)
				fmt.Printf("  vector index:      %s\n", handles.VectorIndexARN)
				fmt.Printf("  role:              %s\n", handles.RoleARN)
				fmt.Printf("  provisioned at:    %s\n", handles.ProvisionedAt.Format("2006-01-02 15:04:05"))
			}

			operations, err := a.store.ListOperations(ctx, nil, limit, 0)
			if err != nil {
				return fmt.Errorf("failed to list operations: %w", err)
			}
			if len(operations) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}

			fmt.Println("Recent operations:")
			for _, op := range operations {
				line := fmt.Sprintf("  %s  %-9s %-9s started %s",
					op.ID, op.Kind, op.Status, op.StartedAt.Format("2006-01-02 15:04:05"))
				if op.CompletedAt != nil {
					line += fmt.Sprintf(", finished %s", op.CompletedAt.Format("2006-01-02 15:04:05"))
				}
				fmt.Println(line)
				if op.Error != nil && *op.Error != "" {
					fmt.Printf("      error: %s\n", *op.Error)
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of operations to show")

	return cmd
}
