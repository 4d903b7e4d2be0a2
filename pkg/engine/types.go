package engine

import (
	"fmt"
	"sort"
)

// ResourceKind identifies one managed resource in the knowledge base graph.
type ResourceKind string

const (
	// KindDocumentBucket is the S3 bucket holding source documents.
	KindDocumentBucket ResourceKind = "document_bucket"

	// KindVectorBucket is the S3 Vectors bucket.
	KindVectorBucket ResourceKind = "vector_bucket"

	// KindVectorIndex is the vector index inside the vector bucket.
	KindVectorIndex ResourceKind = "vector_index"

	// KindRole is the IAM role the knowledge base assumes.
	KindRole ResourceKind = "role"

	// KindKnowledgeBase is the Bedrock knowledge base.
	KindKnowledgeBase ResourceKind = "knowledge_base"

	// KindDataSource is the S3 data source bound to the knowledge base.
	KindDataSource ResourceKind = "data_source"
)

// Validate checks if the resource kind is known.
func (k ResourceKind) Validate() error {
	switch k {
	case KindDocumentBucket, KindVectorBucket, KindVectorIndex,
		KindRole, KindKnowledgeBase, KindDataSource:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

// DocumentBucketHandle identifies the provisioned document bucket.
type DocumentBucketHandle struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

// VectorStoreHandles identifies the provisioned vector bucket and index.
type VectorStoreHandles struct {
	BucketARN string `json:"bucket_arn"`
	IndexARN  string `json:"index_arn"`
}

// RoleHandle identifies the provisioned IAM role.
type RoleHandle struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

// KnowledgeBaseHandle identifies the provisioned knowledge base.
type KnowledgeBaseHandle struct {
	ID string `json:"id"`
}

// DataSourceHandle identifies the provisioned data source.
type DataSourceHandle struct {
	ID string `json:"id"`
}

// ProvisioningResult aggregates the terminal handles of a successful
// provisioning run. The role ARN is consumed internally by the knowledge
// base step and is deliberately not part of the result.
type ProvisioningResult struct {
	KnowledgeBaseID   string `json:"knowledge_base_id"`
	DataSourceID      string `json:"data_source_id"`
	VectorBucketARN   string `json:"vector_bucket_arn"`
	VectorIndexARN    string `json:"vector_index_arn"`
	DocumentBucketARN string `json:"document_bucket_arn"`
}

// Outcome is the tri-state result of one teardown step. The zero value
// OutcomePending means the step never ran because a prerequisite was absent
// or unresolvable.
type Outcome string

const (
	// OutcomePending indicates the step was skipped or never attempted.
	OutcomePending Outcome = ""

	// OutcomeDeleted indicates the resource was deleted, or its deletion
	// was accepted and will complete asynchronously.
	OutcomeDeleted Outcome = "deleted"

	// OutcomeAbsent indicates the resource was already gone. Idempotent
	// no-op, not a failure.
	OutcomeAbsent Outcome = "absent"

	// OutcomeFailed indicates the deletion was attempted and failed.
	OutcomeFailed Outcome = "failed"
)

// TeardownSummary collects per-resource outcomes for the final report and
// the process exit code.
type TeardownSummary struct {
	// Outcomes maps each resource kind to its teardown outcome. Kinds
	// that were skipped stay at OutcomePending.
	Outcomes map[ResourceKind]Outcome `json:"outcomes"`

	// DocumentsDeleted counts the objects purged from the document bucket,
	// regardless of whether the bucket deletion itself succeeded.
	DocumentsDeleted int `json:"documents_deleted"`
}

// NewTeardownSummary returns an empty summary covering every resource kind.
func NewTeardownSummary() *TeardownSummary {
	return &TeardownSummary{Outcomes: map[ResourceKind]Outcome{
		KindDataSource:     OutcomePending,
		KindKnowledgeBase:  OutcomePending,
		KindVectorIndex:    OutcomePending,
		KindVectorBucket:   OutcomePending,
		KindDocumentBucket: OutcomePending,
		KindRole:           OutcomePending,
	}}
}

// Record stores the outcome for a resource kind.
func (s *TeardownSummary) Record(kind ResourceKind, outcome Outcome) {
	s.Outcomes[kind] = outcome
}

// Outcome returns the recorded outcome for a resource kind.
func (s *TeardownSummary) Outcome(kind ResourceKind) Outcome {
	return s.Outcomes[kind]
}

// Failures returns the sorted resource kinds whose outcome is exactly
// OutcomeFailed. The document count does not participate.
func (s *TeardownSummary) Failures() []ResourceKind {
	var failed []ResourceKind
	for kind, outcome := range s.Outcomes {
		if outcome == OutcomeFailed {
			failed = append(failed, kind)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return failed
}
