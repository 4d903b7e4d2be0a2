// Package engine implements the lifecycle of a Bedrock knowledge base
// backed by S3 Vectors: provisioning the resource graph, syncing documents
// through ingestion jobs, and tearing everything back down.
//
// # Resource Graph
//
// Six resources make up the graph, created in dependency order and deleted
// in reverse:
//
//   - document bucket (S3, holds the source corpus)
//   - vector bucket and vector index (S3 Vectors)
//   - IAM role trusted by the Bedrock service
//   - knowledge base (Bedrock agent)
//   - data source binding the document bucket to the knowledge base
//
// # Orchestrators
//
// Provisioner resolves each resource by its stable configured name before
// creating it, so repeated runs converge on the same identifiers. The first
// failed step aborts the run.
//
// Syncer starts ingestion jobs with a fresh idempotency token per attempt
// and polls them to a terminal state, reporting status transitions
// edge-triggered.
//
// Teardown never aborts: every deletion step runs and records an Outcome
// (deleted, absent, or failed) in a TeardownSummary, so one stuck resource
// does not block cleanup of the others and reruns converge on an empty
// account.
//
// # Errors
//
// Service errors are mapped into OpError by Classify, which folds the
// fleet of AWS error codes into a small set of classes (not found,
// conflict, precondition, timeout, misconfigured). Lifecycle decisions
// branch on the class, never on raw service codes.
//
// All service access goes through the narrow interfaces in interfaces.go;
// the AWS SDK clients satisfy them structurally and tests substitute
// function-field fakes.
package engine
