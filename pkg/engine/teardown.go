package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	batypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors"
	"github.com/rs/zerolog"

	"github.com/kbforge/kbforge/pkg/config"
	"github.com/kbforge/kbforge/pkg/telemetry"
)

// Teardown deletes the knowledge base resource graph in reverse dependency
// order. Unlike provisioning it never aborts: every step's outcome is
// captured in the summary so one failing resource does not block attempts
// on the others. Resource identity is re-resolved from configuration before
// each deletion because teardown may run in a separate process from the one
// that provisioned.
type Teardown struct {
	objects  ObjectStoreAPI
	vectors  VectorStoreAPI
	identity IdentityAPI
	kb       KnowledgeBaseAPI
	settings *config.Settings
	log      zerolog.Logger
	tel      *telemetry.Telemetry
}

// TeardownDeps bundles the collaborators a Teardown needs.
type TeardownDeps struct {
	Objects        ObjectStoreAPI
	Vectors        VectorStoreAPI
	Identity       IdentityAPI
	KnowledgeBases KnowledgeBaseAPI
	Settings       *config.Settings
	Logger         zerolog.Logger
	Telemetry      *telemetry.Telemetry
}

// NewTeardown creates a new teardown orchestrator.
func NewTeardown(deps TeardownDeps) (*Teardown, error) {
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if deps.Objects == nil || deps.Vectors == nil || deps.Identity == nil || deps.KnowledgeBases == nil {
		return nil, fmt.Errorf("all service clients are required")
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop()
	}
	return &Teardown{
		objects:  deps.Objects,
		vectors:  deps.Vectors,
		identity: deps.Identity,
		kb:       deps.KnowledgeBases,
		settings: deps.Settings,
		log:      deps.Logger,
		tel:      deps.Telemetry,
	}, nil
}

// dataSourceInfo carries the fields the RETAIN-policy update call needs.
type dataSourceInfo struct {
	knowledgeBaseID string
	dataSourceID    string
	name            *string
	configuration   *batypes.DataSourceConfiguration
	description     *string
}

// CleanupAll tears down every resource and returns the complete summary.
// It never returns an error; failures are embedded in the summary.
func (t *Teardown) CleanupAll(ctx context.Context) *TeardownSummary {
	t.log.Info().Msg("starting cleanup (all resources, documents included)")
	summary := NewTeardownSummary()

	kbID, ok := t.resolveKnowledgeBase(ctx, summary)
	if ok {
		info, dsOK := t.resolveDataSource(ctx, kbID, summary)
		if dsOK {
			summary.Record(KindDataSource, t.runStep(ctx, KindDataSource, func(ctx context.Context) Outcome {
				return t.deleteDataSource(ctx, info)
			}))
		}
		summary.Record(KindKnowledgeBase, t.runStep(ctx, KindKnowledgeBase, func(ctx context.Context) Outcome {
			return t.deleteKnowledgeBase(ctx, kbID)
		}))
	}

	summary.Record(KindVectorIndex, t.runStep(ctx, KindVectorIndex, t.deleteVectorIndex))
	summary.Record(KindVectorBucket, t.runStep(ctx, KindVectorBucket, t.deleteVectorBucket))
	summary.DocumentsDeleted = t.emptyDocumentBucket(ctx)
	t.tel.Metrics.AddDocumentsDeleted(summary.DocumentsDeleted)
	summary.Record(KindDocumentBucket, t.runStep(ctx, KindDocumentBucket, t.deleteDocumentBucket))
	summary.Record(KindRole, t.runStep(ctx, KindRole, t.deleteRole))

	t.report(summary)
	return summary
}

// runStep wraps one deletion step with a trace span, metrics, and a
// lifecycle event keyed by the outcome.
func (t *Teardown) runStep(ctx context.Context, kind ResourceKind, fn func(context.Context) Outcome) Outcome {
	ctx, span := t.tel.Tracer.StartSpan(ctx, "teardown."+string(kind))
	defer span.End()

	start := time.Now()
	outcome := fn(ctx)
	t.tel.Metrics.RecordStep("teardown", string(kind), string(outcomeOrSkipped(outcome)), time.Since(start))

	eventType := telemetry.EventTypeTeardownStepCompleted
	if outcome == OutcomeFailed {
		eventType = telemetry.EventTypeTeardownStepFailed
	}
	t.tel.Events.Publish(telemetry.NewStepEvent(eventType, string(kind), string(outcome)))
	return outcome
}

func outcomeOrSkipped(o Outcome) Outcome {
	if o == OutcomePending {
		return "skipped"
	}
	return o
}

// resolveKnowledgeBase returns the configured knowledge base ID when it
// still resolves against the service. A missing setting is a
// misconfiguration failure; an already-deleted knowledge base short-circuits
// the data source and knowledge base steps as no-ops.
func (t *Teardown) resolveKnowledgeBase(ctx context.Context, summary *TeardownSummary) (string, bool) {
	kbID := t.settings.KnowledgeBaseID
	if kbID == "" {
		t.log.Error().Msg("knowledge_base_id is not configured; set it in the config or provision first")
		summary.Record(KindKnowledgeBase, OutcomeFailed)
		return "", false
	}

	_, err := t.kb.GetKnowledgeBase(ctx, &bedrockagent.GetKnowledgeBaseInput{
		KnowledgeBaseId: aws.String(kbID),
	})
	if err != nil {
		if IsNotFound(Classify(err)) {
			t.log.Warn().Str("knowledge_base_id", kbID).Msg("[WARN] configured knowledge base appears to be already deleted")
			summary.Record(KindKnowledgeBase, OutcomeAbsent)
			return "", false
		}
		t.logFailure(KindKnowledgeBase, "resolve", err)
		summary.Record(KindKnowledgeBase, OutcomeFailed)
		return "", false
	}

	t.log.Info().Str("knowledge_base_id", kbID).Msg("using configured knowledge base")
	return kbID, true
}

// resolveDataSource fetches the data source metadata needed by the
// RETAIN-policy update. An unresolvable data source skips the deletion step
// rather than attempting it with an unknown identity.
func (t *Teardown) resolveDataSource(ctx context.Context, kbID string, summary *TeardownSummary) (dataSourceInfo, bool) {
	dsID := t.settings.DataSourceID
	if dsID == "" {
		t.log.Error().Msg("data_source_id is not configured; set it in the config or provision first")
		summary.Record(KindDataSource, OutcomeFailed)
		return dataSourceInfo{}, false
	}

	out, err := t.kb.GetDataSource(ctx, &bedrockagent.GetDataSourceInput{
		KnowledgeBaseId: aws.String(kbID),
		DataSourceId:    aws.String(dsID),
	})
	if err != nil {
		if IsNotFound(Classify(err)) {
			t.log.Warn().Str("data_source_id", dsID).Msg("[WARN] configured data source appears to be already deleted")
			summary.Record(KindDataSource, OutcomeAbsent)
			return dataSourceInfo{}, false
		}
		t.logFailure(KindDataSource, "resolve", err)
		summary.Record(KindDataSource, OutcomeFailed)
		return dataSourceInfo{}, false
	}

	ds := out.DataSource
	info := dataSourceInfo{
		knowledgeBaseID: kbID,
		dataSourceID:    dsID,
		name:            ds.Name,
		configuration:   ds.DataSourceConfiguration,
		description:     ds.Description,
	}
	t.log.Info().Str("data_source_id", dsID).Str("name", aws.ToString(ds.Name)).Msg("resolved data source")
	return info, true
}

// deleteDataSource deletes the data source after overwriting its deletion
// policy to RETAIN. The service's default is to purge vector data as a side
// effect of deletion; retaining keeps the explicit vector-index step the
// sole owner of vector-data destruction and lets deletion succeed even when
// the vector store is already gone. A failed policy update is a warning,
// not fatal: deletion is still attempted.
func (t *Teardown) deleteDataSource(ctx context.Context, info dataSourceInfo) Outcome {
	t.log.Info().
		Str("knowledge_base_id", info.knowledgeBaseID).
		Str("data_source_id", info.dataSourceID).
		Msg("deleting data source")

	_, err := t.kb.UpdateDataSource(ctx, &bedrockagent.UpdateDataSourceInput{
		KnowledgeBaseId:         aws.String(info.knowledgeBaseID),
		DataSourceId:            aws.String(info.dataSourceID),
		Name:                    info.name,
		Description:             info.description,
		DataSourceConfiguration: info.configuration,
		DataDeletionPolicy:      batypes.DataDeletionPolicyRetain,
	})
	switch {
	case err == nil:
		t.log.Info().Msg("data deletion policy set to RETAIN")
	case IsNotFound(Classify(err)):
		t.log.Warn().Msg("[WARN] data source not found, skipping policy update")
	default:
		t.log.Warn().Err(err).Str("code", Classify(err).Code).
			Msg("[WARN] failed to update data deletion policy, attempting deletion anyway")
	}

	_, err = t.kb.DeleteDataSource(ctx, &bedrockagent.DeleteDataSourceInput{
		KnowledgeBaseId: aws.String(info.knowledgeBaseID),
		DataSourceId:    aws.String(info.dataSourceID),
	})
	switch {
	case err == nil:
		t.log.Info().Msg("data source deleted")
		return OutcomeDeleted
	case IsNotFound(Classify(err)):
		t.log.Warn().Msg("[WARN] data source was already deleted")
		return OutcomeAbsent
	case IsConflict(Classify(err)):
		// Deletion already in progress; counts as accepted.
		t.log.Warn().Msg("[WARN] data source deletion already in progress")
		return OutcomeDeleted
	default:
		t.logFailure(KindDataSource, "delete", err)
		return OutcomeFailed
	}
}

func (t *Teardown) deleteKnowledgeBase(ctx context.Context, kbID string) Outcome {
	t.log.Info().Str("knowledge_base_id", kbID).Msg("deleting knowledge base")
	_, err := t.kb.DeleteKnowledgeBase(ctx, &bedrockagent.DeleteKnowledgeBaseInput{
		KnowledgeBaseId: aws.String(kbID),
	})
	switch {
	case err == nil:
		t.log.Info().Msg("knowledge base deleted")
		return OutcomeDeleted
	case IsNotFound(Classify(err)):
		t.log.Warn().Msg("[WARN] knowledge base was already deleted")
		return OutcomeAbsent
	case IsConflict(Classify(err)):
		t.log.Warn().Msg("[WARN] knowledge base deletion already in progress")
		return OutcomeDeleted
	default:
		t.logFailure(KindKnowledgeBase, "delete", err)
		return OutcomeFailed
	}
}

// deleteVectorIndex deletes the vector index. A conflict here is a failure,
// not an optimistic success: the service gives no guarantee the conflicting
// operation completes the deletion.
func (t *Teardown) deleteVectorIndex(ctx context.Context) Outcome {
	t.log.Info().
		Str("vector_bucket", t.settings.VectorBucketName).
		Str("vector_index", t.settings.VectorIndexName).
		Msg("deleting vector index")
	_, err := t.vectors.DeleteIndex(ctx, &s3vectors.DeleteIndexInput{
		VectorBucketName: aws.String(t.settings.VectorBucketName),
		IndexName:        aws.String(t.settings.VectorIndexName),
	})
	switch {
	case err == nil:
		t.log.Info().Msg("vector index deleted")
		return OutcomeDeleted
	case IsNotFound(Classify(err)):
		t.log.Warn().Msg("[WARN] vector index did not exist")
		return OutcomeAbsent
	case IsConflict(Classify(err)):
		t.log.Warn().Msg("[WARN] vector index deletion conflicted, retrying later may resolve it")
		return OutcomeFailed
	default:
		t.logFailure(KindVectorIndex, "delete", err)
		return OutcomeFailed
	}
}

func (t *Teardown) deleteVectorBucket(ctx context.Context) Outcome {
	t.log.Info().Str("vector_bucket", t.settings.VectorBucketName).Msg("deleting vector bucket")
	_, err := t.vectors.DeleteVectorBucket(ctx, &s3vectors.DeleteVectorBucketInput{
		VectorBucketName: aws.String(t.settings.VectorBucketName),
	})
	switch {
	case err == nil:
		t.log.Info().Msg("vector bucket deleted")
		return OutcomeDeleted
	case IsNotFound(Classify(err)):
		t.log.Warn().Msg("[WARN] vector bucket did not exist")
		return OutcomeAbsent
	case IsConflict(Classify(err)):
		t.log.Warn().Msg("[WARN] vector bucket deletion conflicted, check for remaining indexes")
		return OutcomeFailed
	default:
		t.logFailure(KindVectorBucket, "delete", err)
		return OutcomeFailed
	}
}

// emptyDocumentBucket purges every object from the document bucket through
// the paginated listing, deleting in batches. The count feeds the summary
// regardless of whether the subsequent bucket deletion succeeds.
func (t *Teardown) emptyDocumentBucket(ctx context.Context) int {
	bucket := t.settings.DocumentBucket
	t.log.Info().Str("document_bucket", bucket).Msg("deleting objects from document bucket")

	deleted := 0
	paginator := s3.NewListObjectsV2Paginator(t.objects, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if Classify(err).Code == "NoSuchBucket" {
				t.log.Warn().Msg("[WARN] document bucket did not exist")
				return 0
			}
			t.logFailure(KindDocumentBucket, "purge", err)
			return deleted
		}
		if len(page.Contents) == 0 {
			continue
		}
		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = t.objects.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: objects},
		})
		if err != nil {
			t.logFailure(KindDocumentBucket, "purge", err)
			return deleted
		}
		deleted += len(objects)
	}

	if deleted == 0 {
		t.log.Info().Msg("no objects to delete")
	} else {
		t.log.Info().Int("deleted", deleted).Msg("deleted objects from document bucket")
	}
	return deleted
}

func (t *Teardown) deleteDocumentBucket(ctx context.Context) Outcome {
	bucket := t.settings.DocumentBucket
	t.log.Info().Str("document_bucket", bucket).Msg("deleting document bucket")
	_, err := t.objects.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	switch {
	case err == nil:
		t.log.Info().Msg("document bucket deleted")
		return OutcomeDeleted
	case Classify(err).Code == "NoSuchBucket":
		t.log.Warn().Msg("[WARN] document bucket did not exist")
		return OutcomeAbsent
	case IsPrecondition(Classify(err)):
		t.log.Warn().Msg("[WARN] document bucket still contains objects, purge must run first")
		return OutcomeFailed
	default:
		t.logFailure(KindDocumentBucket, "delete", err)
		return OutcomeFailed
	}
}

// deleteRole removes every inline policy and detaches every managed policy
// before deleting the role itself; the role cannot be deleted while it
// still holds policies.
func (t *Teardown) deleteRole(ctx context.Context) Outcome {
	roleName := t.settings.RoleName
	t.log.Info().Str("role", roleName).Msg("deleting IAM role")

	inline, err := t.identity.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		if IsNotFound(Classify(err)) {
			t.log.Warn().Msg("[WARN] IAM role was already deleted")
			return OutcomeAbsent
		}
		t.logFailure(KindRole, "list inline policies", err)
		return OutcomeFailed
	}
	for _, policyName := range inline.PolicyNames {
		if _, err := t.identity.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   aws.String(roleName),
			PolicyName: aws.String(policyName),
		}); err != nil {
			t.logFailure(KindRole, "delete inline policy", err)
			return OutcomeFailed
		}
		t.log.Info().Str("policy", policyName).Msg("deleted inline policy")
	}

	attached, err := t.identity.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		if IsNotFound(Classify(err)) {
			t.log.Warn().Msg("[WARN] IAM role was already deleted")
			return OutcomeAbsent
		}
		t.logFailure(KindRole, "list attached policies", err)
		return OutcomeFailed
	}
	for _, policy := range attached.AttachedPolicies {
		if _, err := t.identity.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(roleName),
			PolicyArn: policy.PolicyArn,
		}); err != nil {
			t.logFailure(KindRole, "detach managed policy", err)
			return OutcomeFailed
		}
		t.log.Info().Str("policy", aws.ToString(policy.PolicyName)).Msg("detached managed policy")
	}

	_, err = t.identity.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(roleName)})
	switch {
	case err == nil:
		t.log.Info().Msg("IAM role deleted")
		return OutcomeDeleted
	case IsNotFound(Classify(err)):
		t.log.Warn().Msg("[WARN] IAM role was already deleted")
		return OutcomeAbsent
	default:
		t.logFailure(KindRole, "delete", err)
		return OutcomeFailed
	}
}

func (t *Teardown) logFailure(kind ResourceKind, op string, err error) {
	classified := Classify(err)
	t.log.Error().
		Str("kind", string(kind)).
		Str("op", op).
		Str("code", classified.Code).
		Err(err).
		Msgf("[FAIL] %s %s", kind, op)
}

// report logs the per-resource outcomes and the document count in the order
// resources were torn down.
func (t *Teardown) report(summary *TeardownSummary) {
	order := []ResourceKind{
		KindDataSource, KindKnowledgeBase, KindVectorIndex,
		KindVectorBucket, KindDocumentBucket, KindRole,
	}
	for _, kind := range order {
		switch summary.Outcome(kind) {
		case OutcomeDeleted:
			t.log.Info().Str("kind", string(kind)).Msg("deleted")
		case OutcomeFailed:
			t.log.Warn().Str("kind", string(kind)).Msg("[WARN] deletion failed")
		default:
			t.log.Info().Str("kind", string(kind)).Msg("skipped or not needed")
		}
	}
	t.log.Info().Int("documents_deleted", summary.DocumentsDeleted).Msg("cleanup finished")
}
