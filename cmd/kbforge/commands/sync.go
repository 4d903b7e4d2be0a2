package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbforge/pkg/engine"
	"github.com/kbforge/kbforge/pkg/stores"
)

func newSyncCommand() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Start an ingestion job and wait for it to finish",
		Long: `Start an ingestion job for the configured data source and poll it
until it reaches a terminal state.

The command succeeds only when the job completes with no failure
reasons. A timeout, cancellation, or a failed job all exit non-zero.`,
		Example: `  # Sync with configured polling defaults
  kbforge sync

  # Poll every 10 seconds with a 30 minute limit
  kbforge sync --interval 10s --timeout 30m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if interval > 0 {
				a.settings.PollInterval = interval
			}
			if timeout > 0 {
				a.settings.SyncTimeout = timeout
			}

			opID := a.beginOperation(ctx, stores.OperationSync, map[string]string{
				"knowledge_base_id": a.settings.KnowledgeBaseID,
				"data_source_id":    a.settings.DataSourceID,
			})

			syncer, err := engine.NewSyncer(engine.SyncerDeps{
				KnowledgeBases: a.aws.BedrockAgent,
				Settings:       a.settings,
				Logger:         a.log,
				Telemetry:      a.tel,
			})
			if err != nil {
				a.finishOperation(ctx, opID, err)
				return err
			}

			job, err := syncer.SyncDataSource(ctx, func(job *engine.IngestionJob) {
				fmt.Printf("status=%s scanned=%d indexed_new=%d indexed_modified=%d failed=%d\n",
					job.Status,
					job.Statistics.Scanned,
					job.Statistics.IndexedNew,
					job.Statistics.IndexedModified,
					job.Statistics.Failed,
				)
			})
			if err != nil {
				a.finishOperation(ctx, opID, err)
				return err
			}

			a.tel.Metrics.RecordIngestionJob(string(job.Status))
			if !job.Succeeded() {
				err := fmt.Errorf("ingestion job %s finished with status %s (%d failure reasons)",
					job.ID, job.Status, len(job.FailureReasons))
				for _, reason := range job.FailureReasons {
					a.log.Error().Str("job_id", job.ID).Msg(reason)
				}
				a.finishOperation(ctx, opID, err)
				return err
			}

			a.finishOperation(ctx, opID, nil)
			fmt.Printf("Ingestion job %s completed: %d documents scanned, %d newly indexed.\n",
				job.ID, job.Statistics.Scanned, job.Statistics.IndexedNew)

			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall sync timeout (default from config)")

	return cmd
}
