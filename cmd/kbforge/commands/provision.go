package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kbforge/kbforge/pkg/engine"
	"github.com/kbforge/kbforge/pkg/stores"
)

func newProvisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision the full knowledge base stack",
		Long: `Provision every resource the knowledge base needs, reusing anything
that already exists.

This command:
  - Creates the document S3 bucket and uploads the local documents
  - Creates the S3 vector bucket and vector index
  - Creates the IAM service role and rewrites its inline policies
  - Creates or reuses the knowledge base and its S3 data source
  - Persists the resulting resource identifiers for sync and cleanup`,
		Example: `  # Provision with configured or derived names
  kbforge provision

  # Provision with verbose step logging
  kbforge provision -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			opID := a.beginOperation(ctx, stores.OperationProvision, map[string]string{
				"knowledge_base_name": a.settings.KnowledgeBaseName,
				"document_bucket":     a.settings.DocumentBucket,
			})

			provisioner, err := engine.NewProvisioner(engine.ProvisionerDeps{
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

			result, err := provisioner.ProvisionAll(ctx)
			a.finishOperation(ctx, opID, err)
			if err != nil {
				return err
			}

			handles := &stores.Handles{
				KnowledgeBaseID: result.KnowledgeBaseID,
				DataSourceID:    result.DataSourceID,
				DocumentBucket:  a.settings.DocumentBucket,
				VectorBucketARN: result.VectorBucketARN,
				VectorIndexARN:  result.VectorIndexARN,
				ProvisionedAt:   time.Now().UTC(),
			}
			if err := a.store.SaveHandles(ctx, handles); err != nil {
				log.Warn().Err(err).Msg("could not persist resource handles")
			}

			fmt.Println("Provisioning complete.")
			fmt.Printf("KNOWLEDGE_BASE_ID=%s\n", result.KnowledgeBaseID)
			fmt.Printf("DATA_SOURCE_ID=%s\n", result.DataSourceID)

			return nil
		},
	}

	return cmd
}
