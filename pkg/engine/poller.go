package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	batypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kbforge/kbforge/pkg/config"
	"github.com/kbforge/kbforge/pkg/telemetry"
)

// Syncer starts ingestion jobs and waits for them to reach a terminal
// state. Polling runs at a fixed interval; the wait honors both the
// configured timeout and context cancellation, checked between polls.
type Syncer struct {
	kb       KnowledgeBaseAPI
	settings *config.Settings
	log      zerolog.Logger
	tel      *telemetry.Telemetry

	// newClientToken produces the idempotency token for StartIngestionJob.
	// A fresh token per call means retrying a sync starts a new job rather
	// than resuming a previous attempt.
	newClientToken func() string
}

// SyncerDeps bundles the collaborators a Syncer needs.
type SyncerDeps struct {
	KnowledgeBases KnowledgeBaseAPI
	Settings       *config.Settings
	Logger         zerolog.Logger
	Telemetry      *telemetry.Telemetry
}

// NewSyncer creates a new ingestion syncer.
func NewSyncer(deps SyncerDeps) (*Syncer, error) {
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if deps.KnowledgeBases == nil {
		return nil, fmt.Errorf("knowledge base client is required")
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop()
	}
	return &Syncer{
		kb:             deps.KnowledgeBases,
		settings:       deps.Settings,
		log:            deps.Logger,
		tel:            deps.Telemetry,
		newClientToken: uuid.NewString,
	}, nil
}

// StartSync starts an ingestion job for the configured knowledge base and
// data source and returns its initial snapshot.
func (s *Syncer) StartSync(ctx context.Context) (*IngestionJob, error) {
	kbID := s.settings.KnowledgeBaseID
	dsID := s.settings.DataSourceID
	if kbID == "" || dsID == "" {
		return nil, NewMisconfiguredError("knowledge_base_id and data_source_id must be configured before syncing")
	}

	s.log.Info().
		Str("knowledge_base_id", kbID).
		Str("data_source_id", dsID).
		Msg("starting ingestion job")

	out, err := s.kb.StartIngestionJob(ctx, &bedrockagent.StartIngestionJobInput{
		KnowledgeBaseId: aws.String(kbID),
		DataSourceId:    aws.String(dsID),
		ClientToken:     aws.String(s.newClientToken()),
	})
	if err != nil {
		return nil, Classify(err).WithOp("start ingestion job")
	}

	job := jobFromSDK(out.IngestionJob)
	s.log.Info().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Msg("ingestion job started")
	s.tel.Events.Publish(telemetry.NewStepEvent(telemetry.EventTypeIngestionStarted, job.ID, string(job.Status)))
	return job, nil
}

// WaitForSync polls the job until it reaches a terminal status or the
// configured timeout elapses. onUpdate fires once per status transition,
// including the first observed status; it may be nil. The returned job is
// the last snapshot fetched, also on timeout and cancellation.
func (s *Syncer) WaitForSync(ctx context.Context, jobID string, onUpdate func(*IngestionJob)) (*IngestionJob, error) {
	interval := s.settings.PollInterval
	timeout := s.settings.SyncTimeout
	deadline := time.Now().Add(timeout)

	s.log.Info().
		Str("job_id", jobID).
		Dur("interval", interval).
		Dur("timeout", timeout).
		Msg("waiting for ingestion job")

	var last *IngestionJob
	var lastStatus IngestionStatus
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		job, err := s.getJob(ctx, jobID)
		if err != nil {
			return last, err
		}
		last = job
		s.tel.Metrics.IncPolls()

		if job.Status != lastStatus {
			lastStatus = job.Status
			s.tel.Metrics.IncStatusTransitions()
			s.log.Info().
				Str("job_id", jobID).
				Str("status", string(job.Status)).
				Int64("scanned", job.Statistics.Scanned).
				Int64("indexed_new", job.Statistics.IndexedNew).
				Msg("ingestion status changed")
			if onUpdate != nil {
				onUpdate(job)
			}
		}

		if job.Status.IsTerminal() {
			eventType := telemetry.EventTypeIngestionCompleted
			if !job.Succeeded() {
				eventType = telemetry.EventTypeIngestionFailed
			}
			s.tel.Events.Publish(telemetry.NewStepEvent(eventType, job.ID, string(job.Status)))
			return job, nil
		}

		// Time out when the next poll would land past the deadline instead
		// of sleeping through it first.
		if time.Now().Add(interval).After(deadline) {
			return last, NewTimeoutError(fmt.Sprintf("ingestion job %s did not finish within %s", jobID, timeout))
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// SyncDataSource starts an ingestion job and waits for it to finish.
func (s *Syncer) SyncDataSource(ctx context.Context, onUpdate func(*IngestionJob)) (*IngestionJob, error) {
	job, err := s.StartSync(ctx)
	if err != nil {
		return nil, err
	}
	return s.WaitForSync(ctx, job.ID, onUpdate)
}

func (s *Syncer) getJob(ctx context.Context, jobID string) (*IngestionJob, error) {
	out, err := s.kb.GetIngestionJob(ctx, &bedrockagent.GetIngestionJobInput{
		KnowledgeBaseId: aws.String(s.settings.KnowledgeBaseID),
		DataSourceId:    aws.String(s.settings.DataSourceID),
		IngestionJobId:  aws.String(jobID),
	})
	if err != nil {
		return nil, Classify(err).WithOp("get ingestion job")
	}
	return jobFromSDK(out.IngestionJob), nil
}

// jobFromSDK converts the service's ingestion job representation into the
// engine's snapshot type.
func jobFromSDK(job *batypes.IngestionJob) *IngestionJob {
	converted := &IngestionJob{
		ID:             aws.ToString(job.IngestionJobId),
		Status:         IngestionStatus(job.Status),
		FailureReasons: job.FailureReasons,
	}
	if stats := job.Statistics; stats != nil {
		converted.Statistics = IngestionStatistics{
			Scanned:         stats.NumberOfDocumentsScanned,
			IndexedNew:      stats.NumberOfNewDocumentsIndexed,
			IndexedModified: stats.NumberOfModifiedDocumentsIndexed,
			Failed:          stats.NumberOfDocumentsFailed,
		}
	}
	return converted
}
