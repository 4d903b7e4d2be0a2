package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbforge/pkg/engine"
	"github.com/kbforge/kbforge/pkg/stores"
)

func newCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every provisioned resource",
		Long: `Tear down the data source, knowledge base, vector index, vector
bucket, document bucket, and IAM role in dependency order.

Every step runs even when earlier ones fail, so repeated invocations
converge on a clean account. Resources that are already gone count as
success. The command exits non-zero when any deletion fails.`,
		Example: `  # Remove everything the provision command created
  kbforge cleanup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			opID := a.beginOperation(ctx, stores.OperationCleanup, map[string]string{
				"knowledge_base_id": a.settings.KnowledgeBaseID,
				"document_bucket":   a.settings.DocumentBucket,
			})

			teardown, err := engine.NewTeardown(engine.TeardownDeps{
				Objects:        a.aws.S3,
				Vectors:        a.aws.Vectors,
				Identity:       a.aws.IAM,
				KnowledgeBases: a.aws.BedrockAgent,
				Settings:       a.settings,
				Logger:         a.log,
				Telemetry:      a.tel,
			})
			if err != nil {
				a.finishOperation(ctx, opID, err)
				return err
			}

			summary := teardown.CleanupAll(ctx)

			order := []engine.ResourceKind{
				engine.KindDataSource,
				engine.KindKnowledgeBase,
				engine.KindVectorIndex,
				engine.KindVectorBucket,
				engine.KindDocumentBucket,
				engine.KindRole,
			}
			for _, kind := range order {
				outcome := summary.Outcome(kind)
				if outcome == engine.OutcomePending {
					outcome = "skipped"
				}
				fmt.Printf("%-18s %s\n", kind, outcome)
			}
			fmt.Printf("Documents deleted: %d\n", summary.DocumentsDeleted)

			failures := summary.Failures()
			if len(failures) > 0 {
				names := make([]string, 0, len(failures))
				for _, kind := range failures {
					names = append(names, string(kind))
				}
				err := fmt.Errorf("cleanup failed for: %s", strings.Join(names, ", "))
				a.finishOperation(ctx, opID, err)
				return err
			}

			if err := a.store.ClearHandles(ctx); err != nil {
				a.log.Warn().Err(err).Msg("failed to clear stored resource handles")
			}

			a.finishOperation(ctx, opID, nil)
			fmt.Println("Cleanup complete.")

			return nil
		},
	}

	return cmd
}
