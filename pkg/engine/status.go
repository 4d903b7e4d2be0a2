package engine

import "fmt"

// IngestionStatus represents the status of an asynchronous ingestion job.
type IngestionStatus string

const (
	// IngestionStatusStarting indicates the job has been accepted but has
	// not begun scanning documents.
	IngestionStatusStarting IngestionStatus = "STARTING"

	// IngestionStatusInProgress indicates the job is indexing documents.
	IngestionStatusInProgress IngestionStatus = "IN_PROGRESS"

	// IngestionStatusComplete indicates the job finished.
	IngestionStatusComplete IngestionStatus = "COMPLETE"

	// IngestionStatusFailed indicates the job failed.
	IngestionStatusFailed IngestionStatus = "FAILED"

	// IngestionStatusStopping indicates a stop was requested; assumed to
	// transition to STOPPED.
	IngestionStatusStopping IngestionStatus = "STOPPING"

	// IngestionStatusStopped indicates the job was stopped.
	IngestionStatusStopped IngestionStatus = "STOPPED"
)

// IsTerminal returns true if no further status transition occurs.
func (s IngestionStatus) IsTerminal() bool {
	return s == IngestionStatusComplete || s == IngestionStatusFailed ||
		s == IngestionStatusStopped
}

// Validate checks if the ingestion status is valid.
func (s IngestionStatus) Validate() error {
	switch s {
	case IngestionStatusStarting, IngestionStatusInProgress,
		IngestionStatusComplete, IngestionStatusFailed,
		IngestionStatusStopping, IngestionStatusStopped:
		return nil
	default:
		return fmt.Errorf("invalid ingestion status: %s", s)
	}
}

// IngestionStatistics is the job service's statistics snapshot. The poller
// never computes these itself; they are re-fetched on every poll.
type IngestionStatistics struct {
	Scanned         int64 `json:"scanned"`
	IndexedNew      int64 `json:"indexed_new"`
	IndexedModified int64 `json:"indexed_modified"`
	Failed          int64 `json:"failed"`
}

// IngestionJob is the observed state of one ingestion job.
type IngestionJob struct {
	// ID is the job identifier returned by the start call.
	ID string `json:"id"`

	// Status is the last observed status.
	Status IngestionStatus `json:"status"`

	// Statistics is the last fetched statistics snapshot.
	Statistics IngestionStatistics `json:"statistics"`

	// FailureReasons lists the service-reported failure reasons, if any.
	FailureReasons []string `json:"failure_reasons,omitempty"`
}

// Succeeded reports whether the terminal job counts as a clean success:
// COMPLETE status and an empty failure-reasons list. Any other terminal
// combination is unsuccessful for exit-code purposes even though the
// underlying calls returned no error.
func (j *IngestionJob) Succeeded() bool {
	return j.Status == IngestionStatusComplete && len(j.FailureReasons) == 0
}
