package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/kbforge/kbforge/pkg/config"
)

// apiError is a minimal smithy.APIError for driving Classify in tests.
type apiError struct {
	code    string
	message string
}

func (e *apiError) Error() string                 { return fmt.Sprintf("%s: %s", e.code, e.message) }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.message }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func serviceError(code string) error {
	return &apiError{code: code, message: code + " raised by fake"}
}

func testSettings() *config.Settings {
	return &config.Settings{
		Region:             "us-west-2",
		DocumentBucket:     "docs-bucket",
		DocumentPrefix:     config.DefaultDocumentPrefix,
		LocalDataDir:       "data/input",
		VectorBucketName:   "vectors-bucket",
		VectorIndexName:    "vectors-index",
		EmbeddingModelARN:  config.DefaultEmbeddingModelARN,
		EmbeddingDimension: config.DefaultEmbeddingDimension,
		ResponseModelARN:   config.DefaultResponseModelARN,
		KnowledgeBaseName:  config.DefaultKnowledgeBaseName,
		DataSourceName:     config.DefaultDataSourceName,
		RoleName:           config.DefaultRoleName,
		KnowledgeBaseID:    "KB123456",
		DataSourceID:       "DS123456",
		PollInterval:       time.Millisecond,
		SyncTimeout:        time.Second,
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fakeObjectStore implements ObjectStoreAPI with per-call function fields.
// Unset fields return empty successful responses.
type fakeObjectStore struct {
	headBucket    func(*s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
	createBucket  func(*s3.CreateBucketInput) (*s3.CreateBucketOutput, error)
	putObject     func(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
	listObjectsV2 func(*s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	deleteObjects func(*s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error)
	deleteBucket  func(*s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error)
}

func (f *fakeObjectStore) HeadBucket(_ context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headBucket != nil {
		return f.headBucket(params)
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeObjectStore) CreateBucket(_ context.Context, params *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.createBucket != nil {
		return f.createBucket(params)
	}
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeObjectStore) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putObject != nil {
		return f.putObject(params)
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectStore) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listObjectsV2 != nil {
		return f.listObjectsV2(params)
	}
	return &s3.ListObjectsV2Output{}, nil
}

func (f *fakeObjectStore) DeleteObjects(_ context.Context, params *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if f.deleteObjects != nil {
		return f.deleteObjects(params)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeObjectStore) DeleteBucket(_ context.Context, params *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	if f.deleteBucket != nil {
		return f.deleteBucket(params)
	}
	return &s3.DeleteBucketOutput{}, nil
}

// fakeVectorStore implements VectorStoreAPI.
type fakeVectorStore struct {
	getVectorBucket    func(*s3vectors.GetVectorBucketInput) (*s3vectors.GetVectorBucketOutput, error)
	createVectorBucket func(*s3vectors.CreateVectorBucketInput) (*s3vectors.CreateVectorBucketOutput, error)
	getIndex           func(*s3vectors.GetIndexInput) (*s3vectors.GetIndexOutput, error)
	createIndex        func(*s3vectors.CreateIndexInput) (*s3vectors.CreateIndexOutput, error)
	deleteIndex        func(*s3vectors.DeleteIndexInput) (*s3vectors.DeleteIndexOutput, error)
	deleteVectorBucket func(*s3vectors.DeleteVectorBucketInput) (*s3vectors.DeleteVectorBucketOutput, error)
}

func (f *fakeVectorStore) GetVectorBucket(_ context.Context, params *s3vectors.GetVectorBucketInput, _ ...func(*s3vectors.Options)) (*s3vectors.GetVectorBucketOutput, error) {
	if f.getVectorBucket != nil {
		return f.getVectorBucket(params)
	}
	return &s3vectors.GetVectorBucketOutput{}, nil
}

func (f *fakeVectorStore) CreateVectorBucket(_ context.Context, params *s3vectors.CreateVectorBucketInput, _ ...func(*s3vectors.Options)) (*s3vectors.CreateVectorBucketOutput, error) {
	if f.createVectorBucket != nil {
		return f.createVectorBucket(params)
	}
	return &s3vectors.CreateVectorBucketOutput{}, nil
}

func (f *fakeVectorStore) GetIndex(_ context.Context, params *s3vectors.GetIndexInput, _ ...func(*s3vectors.Options)) (*s3vectors.GetIndexOutput, error) {
	if f.getIndex != nil {
		return f.getIndex(params)
	}
	return &s3vectors.GetIndexOutput{}, nil
}

func (f *fakeVectorStore) CreateIndex(_ context.Context, params *s3vectors.CreateIndexInput, _ ...func(*s3vectors.Options)) (*s3vectors.CreateIndexOutput, error) {
	if f.createIndex != nil {
		return f.createIndex(params)
	}
	return &s3vectors.CreateIndexOutput{}, nil
}

func (f *fakeVectorStore) DeleteIndex(_ context.Context, params *s3vectors.DeleteIndexInput, _ ...func(*s3vectors.Options)) (*s3vectors.DeleteIndexOutput, error) {
	if f.deleteIndex != nil {
		return f.deleteIndex(params)
	}
	return &s3vectors.DeleteIndexOutput{}, nil
}

func (f *fakeVectorStore) DeleteVectorBucket(_ context.Context, params *s3vectors.DeleteVectorBucketInput, _ ...func(*s3vectors.Options)) (*s3vectors.DeleteVectorBucketOutput, error) {
	if f.deleteVectorBucket != nil {
		return f.deleteVectorBucket(params)
	}
	return &s3vectors.DeleteVectorBucketOutput{}, nil
}

// fakeIdentity implements IdentityAPI.
type fakeIdentity struct {
	getRole                  func(*iam.GetRoleInput) (*iam.GetRoleOutput, error)
	createRole               func(*iam.CreateRoleInput) (*iam.CreateRoleOutput, error)
	putRolePolicy            func(*iam.PutRolePolicyInput) (*iam.PutRolePolicyOutput, error)
	listRolePolicies         func(*iam.ListRolePoliciesInput) (*iam.ListRolePoliciesOutput, error)
	deleteRolePolicy         func(*iam.DeleteRolePolicyInput) (*iam.DeleteRolePolicyOutput, error)
	listAttachedRolePolicies func(*iam.ListAttachedRolePoliciesInput) (*iam.ListAttachedRolePoliciesOutput, error)
	detachRolePolicy         func(*iam.DetachRolePolicyInput) (*iam.DetachRolePolicyOutput, error)
	deleteRole               func(*iam.DeleteRoleInput) (*iam.DeleteRoleOutput, error)
}

func (f *fakeIdentity) GetRole(_ context.Context, params *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	if f.getRole != nil {
		return f.getRole(params)
	}
	return &iam.GetRoleOutput{}, nil
}

func (f *fakeIdentity) CreateRole(_ context.Context, params *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	if f.createRole != nil {
		return f.createRole(params)
	}
	return &iam.CreateRoleOutput{}, nil
}

func (f *fakeIdentity) PutRolePolicy(_ context.Context, params *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	if f.putRolePolicy != nil {
		return f.putRolePolicy(params)
	}
	return &iam.PutRolePolicyOutput{}, nil
}

func (f *fakeIdentity) ListRolePolicies(_ context.Context, params *iam.ListRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error) {
	if f.listRolePolicies != nil {
		return f.listRolePolicies(params)
	}
	return &iam.ListRolePoliciesOutput{}, nil
}

func (f *fakeIdentity) DeleteRolePolicy(_ context.Context, params *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	if f.deleteRolePolicy != nil {
		return f.deleteRolePolicy(params)
	}
	return &iam.DeleteRolePolicyOutput{}, nil
}

func (f *fakeIdentity) ListAttachedRolePolicies(_ context.Context, params *iam.ListAttachedRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	if f.listAttachedRolePolicies != nil {
		return f.listAttachedRolePolicies(params)
	}
	return &iam.ListAttachedRolePoliciesOutput{}, nil
}

func (f *fakeIdentity) DetachRolePolicy(_ context.Context, params *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	if f.detachRolePolicy != nil {
		return f.detachRolePolicy(params)
	}
	return &iam.DetachRolePolicyOutput{}, nil
}

func (f *fakeIdentity) DeleteRole(_ context.Context, params *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	if f.deleteRole != nil {
		return f.deleteRole(params)
	}
	return &iam.DeleteRoleOutput{}, nil
}

// fakeKnowledgeBases implements KnowledgeBaseAPI.
type fakeKnowledgeBases struct {
	listKnowledgeBases  func(*bedrockagent.ListKnowledgeBasesInput) (*bedrockagent.ListKnowledgeBasesOutput, error)
	createKnowledgeBase func(*bedrockagent.CreateKnowledgeBaseInput) (*bedrockagent.CreateKnowledgeBaseOutput, error)
	getKnowledgeBase    func(*bedrockagent.GetKnowledgeBaseInput) (*bedrockagent.GetKnowledgeBaseOutput, error)
	deleteKnowledgeBase func(*bedrockagent.DeleteKnowledgeBaseInput) (*bedrockagent.DeleteKnowledgeBaseOutput, error)

	listDataSources  func(*bedrockagent.ListDataSourcesInput) (*bedrockagent.ListDataSourcesOutput, error)
	createDataSource func(*bedrockagent.CreateDataSourceInput) (*bedrockagent.CreateDataSourceOutput, error)
	getDataSource    func(*bedrockagent.GetDataSourceInput) (*bedrockagent.GetDataSourceOutput, error)
	updateDataSource func(*bedrockagent.UpdateDataSourceInput) (*bedrockagent.UpdateDataSourceOutput, error)
	deleteDataSource func(*bedrockagent.DeleteDataSourceInput) (*bedrockagent.DeleteDataSourceOutput, error)

	startIngestionJob func(*bedrockagent.StartIngestionJobInput) (*bedrockagent.StartIngestionJobOutput, error)
	getIngestionJob   func(*bedrockagent.GetIngestionJobInput) (*bedrockagent.GetIngestionJobOutput, error)
}

func (f *fakeKnowledgeBases) ListKnowledgeBases(_ context.Context, params *bedrockagent.ListKnowledgeBasesInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.ListKnowledgeBasesOutput, error) {
	if f.listKnowledgeBases != nil {
		return f.listKnowledgeBases(params)
	}
	return &bedrockagent.ListKnowledgeBasesOutput{}, nil
}

func (f *fakeKnowledgeBases) CreateKnowledgeBase(_ context.Context, params *bedrockagent.CreateKnowledgeBaseInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateKnowledgeBaseOutput, error) {
	if f.createKnowledgeBase != nil {
		return f.createKnowledgeBase(params)
	}
	return &bedrockagent.CreateKnowledgeBaseOutput{}, nil
}

func (f *fakeKnowledgeBases) GetKnowledgeBase(_ context.Context, params *bedrockagent.GetKnowledgeBaseInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.GetKnowledgeBaseOutput, error) {
	if f.getKnowledgeBase != nil {
		return f.getKnowledgeBase(params)
	}
	return &bedrockagent.GetKnowledgeBaseOutput{}, nil
}

func (f *fakeKnowledgeBases) DeleteKnowledgeBase(_ context.Context, params *bedrockagent.DeleteKnowledgeBaseInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.DeleteKnowledgeBaseOutput, error) {
	if f.deleteKnowledgeBase != nil {
		return f.deleteKnowledgeBase(params)
	}
	return &bedrockagent.DeleteKnowledgeBaseOutput{}, nil
}

func (f *fakeKnowledgeBases) ListDataSources(_ context.Context, params *bedrockagent.ListDataSourcesInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.ListDataSourcesOutput, error) {
	if f.listDataSources != nil {
		return f.listDataSources(params)
	}
	return &bedrockagent.ListDataSourcesOutput{}, nil
}

func (f *fakeKnowledgeBases) CreateDataSource(_ context.Context, params *bedrockagent.CreateDataSourceInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateDataSourceOutput, error) {
	if f.createDataSource != nil {
		return f.createDataSource(params)
	}
	return &bedrockagent.CreateDataSourceOutput{}, nil
}

func (f *fakeKnowledgeBases) GetDataSource(_ context.Context, params *bedrockagent.GetDataSourceInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.GetDataSourceOutput, error) {
	if f.getDataSource != nil {
		return f.getDataSource(params)
	}
	return &bedrockagent.GetDataSourceOutput{}, nil
}

func (f *fakeKnowledgeBases) UpdateDataSource(_ context.Context, params *bedrockagent.UpdateDataSourceInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.UpdateDataSourceOutput, error) {
	if f.updateDataSource != nil {
		return f.updateDataSource(params)
	}
	return &bedrockagent.UpdateDataSourceOutput{}, nil
}

func (f *fakeKnowledgeBases) DeleteDataSource(_ context.Context, params *bedrockagent.DeleteDataSourceInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.DeleteDataSourceOutput, error) {
	if f.deleteDataSource != nil {
		return f.deleteDataSource(params)
	}
	return &bedrockagent.DeleteDataSourceOutput{}, nil
}

func (f *fakeKnowledgeBases) StartIngestionJob(_ context.Context, params *bedrockagent.StartIngestionJobInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.StartIngestionJobOutput, error) {
	if f.startIngestionJob != nil {
		return f.startIngestionJob(params)
	}
	return &bedrockagent.StartIngestionJobOutput{}, nil
}

func (f *fakeKnowledgeBases) GetIngestionJob(_ context.Context, params *bedrockagent.GetIngestionJobInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.GetIngestionJobOutput, error) {
	if f.getIngestionJob != nil {
		return f.getIngestionJob(params)
	}
	return &bedrockagent.GetIngestionJobOutput{}, nil
}
