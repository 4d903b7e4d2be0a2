package stores

import (
	"context"
	"fmt"
	"time"
)

// OperationKind identifies which lifecycle command an operation record
// belongs to.
type OperationKind string

const (
	OperationProvision OperationKind = "provision"
	OperationSync      OperationKind = "sync"
	OperationCleanup   OperationKind = "cleanup"
)

// Validate checks that the kind is one of the known values.
func (k OperationKind) Validate() error {
	switch k {
	case OperationProvision, OperationSync, OperationCleanup:
		return nil
	default:
		return fmt.Errorf("invalid operation kind: %s", k)
	}
}

// OperationStatus represents the status of a recorded operation.
type OperationStatus string

const (
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusSucceeded OperationStatus = "succeeded"
	OperationStatusFailed    OperationStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusSucceeded || s == OperationStatusFailed
}

// Validate checks that the status is one of the known values.
func (s OperationStatus) Validate() error {
	switch s {
	case OperationStatusRunning, OperationStatusSucceeded, OperationStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid operation status: %s", s)
	}
}

// Handles is the persisted record of provisioned resource identifiers. A
// single row survives between runs so sync and cleanup can find the
// resources a previous provision created without re-listing the service.
type Handles struct {
	KnowledgeBaseID  string    `json:"knowledge_base_id"`
	DataSourceID     string    `json:"data_source_id"`
	DocumentBucket   string    `json:"document_bucket"`
	VectorBucketARN  string    `json:"vector_bucket_arn"`
	VectorIndexARN   string    `json:"vector_index_arn"`
	RoleARN          string    `json:"role_arn"`
	ProvisionedAt    time.Time `json:"provisioned_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Operation represents one recorded lifecycle command execution.
type Operation struct {
	ID          string          `json:"id"`
	Kind        OperationKind   `json:"kind"`
	Status      OperationStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Details     string          `json:"details"` // JSON blob
}

// Store defines the interface for the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Handle operations
	SaveHandles(ctx context.Context, handles *Handles) error
	LoadHandles(ctx context.Context) (*Handles, error)
	ClearHandles(ctx context.Context) error

	// Operation history
	CreateOperation(ctx context.Context, op *Operation) error
	CompleteOperation(ctx context.Context, id string, status OperationStatus, errMsg *string) error
	ListOperations(ctx context.Context, kind *OperationKind, limit, offset int) ([]*Operation, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
