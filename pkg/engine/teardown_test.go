package engine

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	batypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors"
)

func newTestTeardown(t *testing.T, deps TeardownDeps) *Teardown {
	t.Helper()
	if deps.Objects == nil {
		deps.Objects = &fakeObjectStore{}
	}
	if deps.Vectors == nil {
		deps.Vectors = &fakeVectorStore{}
	}
	if deps.Identity == nil {
		deps.Identity = &fakeIdentity{}
	}
	if deps.KnowledgeBases == nil {
		deps.KnowledgeBases = &fakeKnowledgeBases{}
	}
	if deps.Settings == nil {
		deps.Settings = testSettings()
	}
	deps.Logger = testLogger()
	td, err := NewTeardown(deps)
	if err != nil {
		t.Fatalf("NewTeardown: %v", err)
	}
	return td
}

func TestTeardown_CleanupAll_DeletesEverything(t *testing.T) {
	var retainSet bool
	kb := &fakeKnowledgeBases{
		getDataSource: func(*bedrockagent.GetDataSourceInput) (*bedrockagent.GetDataSourceOutput, error) {
			return &bedrockagent.GetDataSourceOutput{
				DataSource: &batypes.DataSource{
					Name:        aws.String("s3-sample-documents"),
					Description: aws.String("sample docs"),
					DataSourceConfiguration: &batypes.DataSourceConfiguration{
						Type: batypes.DataSourceTypeS3,
					},
				},
			}, nil
		},
		updateDataSource: func(params *bedrockagent.UpdateDataSourceInput) (*bedrockagent.UpdateDataSourceOutput, error) {
			if params.DataDeletionPolicy != batypes.DataDeletionPolicyRetain {
				t.Errorf("deletion policy = %s, want RETAIN", params.DataDeletionPolicy)
			}
			if aws.ToString(params.Name) == "" {
				t.Error("update must carry the resolved data source name")
			}
			retainSet = true
			return &bedrockagent.UpdateDataSourceOutput{}, nil
		},
	}

	objects := &fakeObjectStore{
		listObjectsV2: func(*s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{
				Contents: []s3types.Object{
					{Key: aws.String("knowledge-base/documents/a.md")},
					{Key: aws.String("knowledge-base/documents/b.md")},
				},
			}, nil
		},
	}

	td := newTestTeardown(t, TeardownDeps{Objects: objects, KnowledgeBases: kb})
	summary := td.CleanupAll(context.Background())

	if !retainSet {
		t.Error("deletion policy was not set to RETAIN before delete")
	}
	for _, kind := range []ResourceKind{
		KindDataSource, KindKnowledgeBase, KindVectorIndex,
		KindVectorBucket, KindDocumentBucket, KindRole,
	} {
		if got := summary.Outcome(kind); got != OutcomeDeleted {
			t.Errorf("%s outcome = %s, want deleted", kind, got)
		}
	}
	if summary.DocumentsDeleted != 2 {
		t.Errorf("DocumentsDeleted = %d, want 2", summary.DocumentsDeleted)
	}
	if len(summary.Failures()) != 0 {
		t.Errorf("Failures() = %v, want none", summary.Failures())
	}
}

func TestTeardown_CleanupAll_KnowledgeBaseAlreadyGone(t *testing.T) {
	dsCalled := false
	kb := &fakeKnowledgeBases{
		getKnowledgeBase: func(*bedrockagent.GetKnowledgeBaseInput) (*bedrockagent.GetKnowledgeBaseOutput, error) {
			return nil, serviceError("ResourceNotFoundException")
		},
		deleteDataSource: func(*bedrockagent.DeleteDataSourceInput) (*bedrockagent.DeleteDataSourceOutput, error) {
			dsCalled = true
			return &bedrockagent.DeleteDataSourceOutput{}, nil
		},
	}

	td := newTestTeardown(t, TeardownDeps{KnowledgeBases: kb})
	summary := td.CleanupAll(context.Background())

	if dsCalled {
		t.Error("data source deletion ran for an absent knowledge base")
	}
	if got := summary.Outcome(KindKnowledgeBase); got != OutcomeAbsent {
		t.Errorf("knowledge base outcome = %s, want absent", got)
	}
	if got := summary.Outcome(KindDataSource); got != OutcomePending {
		t.Errorf("data source outcome = %s, want pending (skipped)", got)
	}
	// Remaining resources are still deleted.
	if got := summary.Outcome(KindRole); got != OutcomeDeleted {
		t.Errorf("role outcome = %s, want deleted", got)
	}
}

func TestTeardown_CleanupAll_EmptyEnvironment(t *testing.T) {
	kb := &fakeKnowledgeBases{
		getKnowledgeBase: func(*bedrockagent.GetKnowledgeBaseInput) (*bedrockagent.GetKnowledgeBaseOutput, error) {
			return nil, serviceError("ResourceNotFoundException")
		},
	}
	vectors := &fakeVectorStore{
		deleteIndex: func(*s3vectors.DeleteIndexInput) (*s3vectors.DeleteIndexOutput, error) {
			return nil, serviceError("NotFoundException")
		},
		deleteVectorBucket: func(*s3vectors.DeleteVectorBucketInput) (*s3vectors.DeleteVectorBucketOutput, error) {
			return nil, serviceError("NotFoundException")
		},
	}
	objects := &fakeObjectStore{
		listObjectsV2: func(*s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return nil, serviceError("NoSuchBucket")
		},
		deleteBucket: func(*s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error) {
			return nil, serviceError("NoSuchBucket")
		},
	}
	identity := &fakeIdentity{
		listRolePolicies: func(*iam.ListRolePoliciesInput) (*iam.ListRolePoliciesOutput, error) {
			return nil, serviceError("NoSuchEntity")
		},
	}

	td := newTestTeardown(t, TeardownDeps{
		Objects:        objects,
		Vectors:        vectors,
		Identity:       identity,
		KnowledgeBases: kb,
	})
	summary := td.CleanupAll(context.Background())

	for _, kind := range []ResourceKind{
		KindKnowledgeBase, KindVectorIndex, KindVectorBucket,
		KindDocumentBucket, KindRole,
	} {
		if got := summary.Outcome(kind); got != OutcomeAbsent {
			t.Errorf("%s outcome = %s, want absent", kind, got)
		}
	}
	// The data source step never runs without a knowledge base to hold it.
	if got := summary.Outcome(KindDataSource); got != OutcomePending {
		t.Errorf("data source outcome = %s, want pending (skipped)", got)
	}
	if summary.DocumentsDeleted != 0 {
		t.Errorf("DocumentsDeleted = %d, want 0", summary.DocumentsDeleted)
	}
	if len(summary.Failures()) != 0 {
		t.Errorf("Failures() = %v, want none", summary.Failures())
	}
}

func TestTeardown_CleanupAll_MissingKnowledgeBaseIDFails(t *testing.T) {
	settings := testSettings()
	settings.KnowledgeBaseID = ""

	td := newTestTeardown(t, TeardownDeps{Settings: settings})
	summary := td.CleanupAll(context.Background())

	if got := summary.Outcome(KindKnowledgeBase); got != OutcomeFailed {
		t.Errorf("knowledge base outcome = %s, want failed", got)
	}
	failures := summary.Failures()
	if len(failures) != 1 || failures[0] != KindKnowledgeBase {
		t.Errorf("Failures() = %v, want [knowledge_base]", failures)
	}
}

func TestTeardown_DeleteDataSource_ConflictCountsAsDeleted(t *testing.T) {
	kb := &fakeKnowledgeBases{
		getDataSource: func(*bedrockagent.GetDataSourceInput) (*bedrockagent.GetDataSourceOutput, error) {
			return &bedrockagent.GetDataSourceOutput{
				DataSource: &batypes.DataSource{Name: aws.String("ds")},
			}, nil
		},
		deleteDataSource: func(*bedrockagent.DeleteDataSourceInput) (*bedrockagent.DeleteDataSourceOutput, error) {
			return nil, serviceError("ConflictException")
		},
	}

	td := newTestTeardown(t, TeardownDeps{KnowledgeBases: kb})
	summary := td.CleanupAll(context.Background())

	if got := summary.Outcome(KindDataSource); got != OutcomeDeleted {
		t.Errorf("data source outcome = %s, want deleted on conflict", got)
	}
}

func TestTeardown_DeleteVectorIndex_ConflictIsFailure(t *testing.T) {
	vectors := &fakeVectorStore{
		deleteIndex: func(*s3vectors.DeleteIndexInput) (*s3vectors.DeleteIndexOutput, error) {
			return nil, serviceError("ConflictException")
		},
	}

	td := newTestTeardown(t, TeardownDeps{Vectors: vectors})
	summary := td.CleanupAll(context.Background())

	if got := summary.Outcome(KindVectorIndex); got != OutcomeFailed {
		t.Errorf("vector index outcome = %s, want failed on conflict", got)
	}
}

func TestTeardown_RetainUpdateFailureStillDeletes(t *testing.T) {
	deleted := false
	kb := &fakeKnowledgeBases{
		getDataSource: func(*bedrockagent.GetDataSourceInput) (*bedrockagent.GetDataSourceOutput, error) {
			return &bedrockagent.GetDataSourceOutput{
				DataSource: &batypes.DataSource{Name: aws.String("ds")},
			}, nil
		},
		updateDataSource: func(*bedrockagent.UpdateDataSourceInput) (*bedrockagent.UpdateDataSourceOutput, error) {
			return nil, serviceError("ValidationException")
		},
		deleteDataSource: func(*bedrockagent.DeleteDataSourceInput) (*bedrockagent.DeleteDataSourceOutput, error) {
			deleted = true
			return &bedrockagent.DeleteDataSourceOutput{}, nil
		},
	}

	td := newTestTeardown(t, TeardownDeps{KnowledgeBases: kb})
	summary := td.CleanupAll(context.Background())

	if !deleted {
		t.Error("data source deletion skipped after a failed policy update")
	}
	if got := summary.Outcome(KindDataSource); got != OutcomeDeleted {
		t.Errorf("data source outcome = %s, want deleted", got)
	}
}

func TestTeardown_EmptyDocumentBucket_MissingBucket(t *testing.T) {
	objects := &fakeObjectStore{
		listObjectsV2: func(*s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
			return nil, serviceError("NoSuchBucket")
		},
		deleteBucket: func(*s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error) {
			return nil, serviceError("NoSuchBucket")
		},
	}

	td := newTestTeardown(t, TeardownDeps{Objects: objects})
	summary := td.CleanupAll(context.Background())

	if summary.DocumentsDeleted != 0 {
		t.Errorf("DocumentsDeleted = %d, want 0", summary.DocumentsDeleted)
	}
	if got := summary.Outcome(KindDocumentBucket); got != OutcomeAbsent {
		t.Errorf("document bucket outcome = %s, want absent", got)
	}
}

func TestTeardown_DeleteDocumentBucket_NotEmptyIsFailure(t *testing.T) {
	objects := &fakeObjectStore{
		deleteBucket: func(*s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error) {
			return nil, serviceError("BucketNotEmpty")
		},
	}

	td := newTestTeardown(t, TeardownDeps{Objects: objects})
	summary := td.CleanupAll(context.Background())

	if got := summary.Outcome(KindDocumentBucket); got != OutcomeFailed {
		t.Errorf("document bucket outcome = %s, want failed", got)
	}
}

func TestTeardown_DeleteRole_StripsPoliciesFirst(t *testing.T) {
	var order []string
	identity := &fakeIdentity{
		listRolePolicies: func(*iam.ListRolePoliciesInput) (*iam.ListRolePoliciesOutput, error) {
			return &iam.ListRolePoliciesOutput{
				PolicyNames: []string{"S3Access", "BedrockModelAccess"},
			}, nil
		},
		deleteRolePolicy: func(params *iam.DeleteRolePolicyInput) (*iam.DeleteRolePolicyOutput, error) {
			order = append(order, "inline:"+aws.ToString(params.PolicyName))
			return &iam.DeleteRolePolicyOutput{}, nil
		},
		listAttachedRolePolicies: func(*iam.ListAttachedRolePoliciesInput) (*iam.ListAttachedRolePoliciesOutput, error) {
			return &iam.ListAttachedRolePoliciesOutput{
				AttachedPolicies: []iamtypes.AttachedPolicy{
					{PolicyArn: aws.String("arn:managed"), PolicyName: aws.String("Managed")},
				},
			}, nil
		},
		detachRolePolicy: func(*iam.DetachRolePolicyInput) (*iam.DetachRolePolicyOutput, error) {
			order = append(order, "detach")
			return &iam.DetachRolePolicyOutput{}, nil
		},
		deleteRole: func(*iam.DeleteRoleInput) (*iam.DeleteRoleOutput, error) {
			order = append(order, "delete-role")
			return &iam.DeleteRoleOutput{}, nil
		},
	}

	td := newTestTeardown(t, TeardownDeps{Identity: identity})
	summary := td.CleanupAll(context.Background())

	if got := summary.Outcome(KindRole); got != OutcomeDeleted {
		t.Errorf("role outcome = %s, want deleted", got)
	}
	want := []string{"inline:S3Access", "inline:BedrockModelAccess", "detach", "delete-role"}
	if len(order) != len(want) {
		t.Fatalf("calls = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("calls = %v, want %v", order, want)
		}
	}
}

func TestTeardown_DeleteRole_AlreadyGone(t *testing.T) {
	identity := &fakeIdentity{
		listRolePolicies: func(*iam.ListRolePoliciesInput) (*iam.ListRolePoliciesOutput, error) {
			return nil, serviceError("NoSuchEntity")
		},
	}

	td := newTestTeardown(t, TeardownDeps{Identity: identity})
	summary := td.CleanupAll(context.Background())

	if got := summary.Outcome(KindRole); got != OutcomeAbsent {
		t.Errorf("role outcome = %s, want absent", got)
	}
}
