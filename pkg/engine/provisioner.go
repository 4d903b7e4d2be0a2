package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	batypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors"
	s3vtypes "github.com/aws/aws-sdk-go-v2/service/s3vectors/types"
	"github.com/rs/zerolog"

	"github.com/kbforge/kbforge/pkg/config"
	"github.com/kbforge/kbforge/pkg/telemetry"
)

// Provisioner drives the dependency-ordered resolve-or-create chain for the
// knowledge base resource graph. Each step resolves its resource by stable
// name before creating it, so repeated runs converge on the same
// identifiers without duplicating resources.
type Provisioner struct {
	objects  ObjectStoreAPI
	vectors  VectorStoreAPI
	identity IdentityAPI
	kb       KnowledgeBaseAPI
	settings *config.Settings
	log      zerolog.Logger
	tel      *telemetry.Telemetry
}

// ProvisionerDeps bundles the collaborators a Provisioner needs.
type ProvisionerDeps struct {
	Objects        ObjectStoreAPI
	Vectors        VectorStoreAPI
	Identity       IdentityAPI
	KnowledgeBases KnowledgeBaseAPI
	Settings       *config.Settings
	Logger         zerolog.Logger
	Telemetry      *telemetry.Telemetry
}

// NewProvisioner creates a new provisioner.
func NewProvisioner(deps ProvisionerDeps) (*Provisioner, error) {
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if deps.Objects == nil || deps.Vectors == nil || deps.Identity == nil || deps.KnowledgeBases == nil {
		return nil, fmt.Errorf("all service clients are required")
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop()
	}
	return &Provisioner{
		objects:  deps.Objects,
		vectors:  deps.Vectors,
		identity: deps.Identity,
		kb:       deps.KnowledgeBases,
		settings: deps.Settings,
		log:      deps.Logger,
		tel:      deps.Telemetry,
	}, nil
}

// ProvisionAll executes every provisioning step in dependency order and
// returns the aggregated result. The first failing step aborts the run; no
// partial result is returned and earlier steps are not rolled back.
func (p *Provisioner) ProvisionAll(ctx context.Context) (*ProvisioningResult, error) {
	doc, err := p.runDocumentBucket(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.runDocumentUpload(ctx); err != nil {
		return nil, err
	}
	vs, err := p.runVectorStore(ctx)
	if err != nil {
		return nil, err
	}
	role, err := p.runRole(ctx, doc, vs)
	if err != nil {
		return nil, err
	}
	kb, err := p.runKnowledgeBase(ctx, vs, role)
	if err != nil {
		return nil, err
	}
	ds, err := p.runDataSource(ctx, kb, doc)
	if err != nil {
		return nil, err
	}
	return &ProvisioningResult{
		KnowledgeBaseID:   kb.ID,
		DataSourceID:      ds.ID,
		VectorBucketARN:   vs.BucketARN,
		VectorIndexARN:    vs.IndexARN,
		DocumentBucketARN: doc.ARN,
	}, nil
}

// step wraps one provisioning step with the success/failure marker, a trace
// span, metrics, and a lifecycle event.
func (p *Provisioner) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tel.Tracer.StartSpan(ctx, "provision."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		p.log.Error().Err(err).Str("step", name).Msgf("[FAIL] %s", name)
		p.tel.Metrics.RecordStep("provision", name, "failed", elapsed)
		p.tel.Events.Publish(telemetry.NewStepEvent(telemetry.EventTypeProvisionStepFailed, name, err.Error()))
		telemetry.RecordError(span, err)
		return err
	}
	p.log.Info().Str("step", name).Msgf("[SUCCESS] %s", name)
	p.tel.Metrics.RecordStep("provision", name, "succeeded", elapsed)
	p.tel.Events.Publish(telemetry.NewStepEvent(telemetry.EventTypeProvisionStepCompleted, name, ""))
	return nil
}

func (p *Provisioner) runDocumentBucket(ctx context.Context) (DocumentBucketHandle, error) {
	var handle DocumentBucketHandle
	err := p.step(ctx, "document bucket", func(ctx context.Context) error {
		var err error
		handle, err = p.ensureDocumentBucket(ctx)
		return err
	})
	return handle, err
}

func (p *Provisioner) runDocumentUpload(ctx context.Context) error {
	return p.step(ctx, "sample document upload", func(ctx context.Context) error {
		n, err := p.uploadDocuments(ctx)
		if err != nil {
			return err
		}
		p.tel.Metrics.AddDocumentsUploaded(n)
		p.log.Debug().Int("documents", n).Msg("uploaded sample corpus")
		return nil
	})
}

func (p *Provisioner) runVectorStore(ctx context.Context) (VectorStoreHandles, error) {
	var handles VectorStoreHandles
	err := p.step(ctx, "vector bucket and index", func(ctx context.Context) error {
		var err error
		handles, err = p.ensureVectorStore(ctx)
		return err
	})
	return handles, err
}

func (p *Provisioner) runRole(ctx context.Context, doc DocumentBucketHandle, vs VectorStoreHandles) (RoleHandle, error) {
	var handle RoleHandle
	err := p.step(ctx, "knowledge base role", func(ctx context.Context) error {
		var err error
		handle, err = p.ensureRole(ctx, doc, vs)
		return err
	})
	return handle, err
}

func (p *Provisioner) runKnowledgeBase(ctx context.Context, vs VectorStoreHandles, role RoleHandle) (KnowledgeBaseHandle, error) {
	var handle KnowledgeBaseHandle
	err := p.step(ctx, "knowledge base", func(ctx context.Context) error {
		var err error
		handle, err = p.ensureKnowledgeBase(ctx, vs, role)
		return err
	})
	return handle, err
}

func (p *Provisioner) runDataSource(ctx context.Context, kb KnowledgeBaseHandle, doc DocumentBucketHandle) (DataSourceHandle, error) {
	var handle DataSourceHandle
	err := p.step(ctx, "data source", func(ctx context.Context) error {
		var err error
		handle, err = p.ensureDataSource(ctx, kb, doc)
		return err
	})
	return handle, err
}

// ensureDocumentBucket resolves the document bucket by name and creates it
// when absent. Regions other than us-east-1 require an explicit location
// constraint on create.
func (p *Provisioner) ensureDocumentBucket(ctx context.Context) (DocumentBucketHandle, error) {
	bucket := p.settings.DocumentBucket
	_, err := p.objects.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if !IsNotFound(Classify(err)) {
			return DocumentBucketHandle{}, fmt.Errorf("failed to head document bucket %s: %w", bucket, err)
		}
		input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
		if p.settings.Region != "us-east-1" {
			input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
				LocationConstraint: s3types.BucketLocationConstraint(p.settings.Region),
			}
		}
		if _, err := p.objects.CreateBucket(ctx, input); err != nil {
			return DocumentBucketHandle{}, fmt.Errorf("failed to create document bucket %s: %w", bucket, err)
		}
	}
	return DocumentBucketHandle{Name: bucket, ARN: "arn:aws:s3:::" + bucket}, nil
}

// uploadDocuments walks the local corpus and uploads every regular file,
// preserving relative paths as object keys under the configured prefix.
// Re-running overwrites objects in place. Returns the number of files
// uploaded.
func (p *Provisioner) uploadDocuments(ctx context.Context) (int, error) {
	root := p.settings.LocalDataDir
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return 0, NewMisconfiguredError(fmt.Sprintf("local data directory not found: %s", root)).
			WithKind(KindDocumentBucket).WithOp("upload")
	}

	uploaded := 0
	walkErr := fs.WalkDir(os.DirFS(root), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		key := objectKey(p.settings.DocumentPrefix, rel)
		f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", rel, err)
		}
		defer f.Close()

		_, err = p.objects.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.settings.DocumentBucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploaded++
		return nil
	})
	if walkErr != nil {
		return uploaded, walkErr
	}
	return uploaded, nil
}

// objectKey joins the configured prefix with a slash-relative path,
// collapsing the doubled separator a trailing-slash prefix would produce.
func objectKey(prefix, rel string) string {
	return strings.ReplaceAll(prefix+path.Clean(rel), "//", "/")
}

// ensureVectorStore resolves the vector bucket and index by name, creating
// either when absent, and re-fetches after create so the returned ARNs
// always come from the service.
func (p *Provisioner) ensureVectorStore(ctx context.Context) (VectorStoreHandles, error) {
	bucketName := p.settings.VectorBucketName
	bucketOut, err := p.vectors.GetVectorBucket(ctx, &s3vectors.GetVectorBucketInput{
		VectorBucketName: aws.String(bucketName),
	})
	if err != nil {
		if !IsNotFound(Classify(err)) {
			return VectorStoreHandles{}, fmt.Errorf("failed to get vector bucket %s: %w", bucketName, err)
		}
		if _, err := p.vectors.CreateVectorBucket(ctx, &s3vectors.CreateVectorBucketInput{
			VectorBucketName: aws.String(bucketName),
		}); err != nil {
			return VectorStoreHandles{}, fmt.Errorf("failed to create vector bucket %s: %w", bucketName, err)
		}
		bucketOut, err = p.vectors.GetVectorBucket(ctx, &s3vectors.GetVectorBucketInput{
			VectorBucketName: aws.String(bucketName),
		})
		if err != nil {
			return VectorStoreHandles{}, fmt.Errorf("failed to get vector bucket %s after create: %w", bucketName, err)
		}
	}

	indexName := p.settings.VectorIndexName
	indexOut, err := p.vectors.GetIndex(ctx, &s3vectors.GetIndexInput{
		VectorBucketName: aws.String(bucketName),
		IndexName:        aws.String(indexName),
	})
	if err != nil {
		if !IsNotFound(Classify(err)) {
			return VectorStoreHandles{}, fmt.Errorf("failed to get vector index %s: %w", indexName, err)
		}
		if _, err := p.vectors.CreateIndex(ctx, &s3vectors.CreateIndexInput{
			VectorBucketName: aws.String(bucketName),
			IndexName:        aws.String(indexName),
			DataType:         s3vtypes.DataTypeFloat32,
			Dimension:        aws.Int32(p.settings.EmbeddingDimension),
			DistanceMetric:   s3vtypes.DistanceMetricCosine,
		}); err != nil {
			return VectorStoreHandles{}, fmt.Errorf("failed to create vector index %s: %w", indexName, err)
		}
		indexOut, err = p.vectors.GetIndex(ctx, &s3vectors.GetIndexInput{
			VectorBucketName: aws.String(bucketName),
			IndexName:        aws.String(indexName),
		})
		if err != nil {
			return VectorStoreHandles{}, fmt.Errorf("failed to get vector index %s after create: %w", indexName, err)
		}
	}

	return VectorStoreHandles{
		BucketARN: aws.ToString(bucketOut.VectorBucket.VectorBucketArn),
		IndexARN:  aws.ToString(indexOut.Index.IndexArn),
	}, nil
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal,omitempty"`
	Action    any               `json:"Action"`
	Resource  any               `json:"Resource,omitempty"`
}

const policyVersion = "2012-10-17"

// Inline policy names written onto the role on every run.
const (
	policyNameS3       = "S3Access"
	policyNameVectors  = "S3VectorsAccess"
	policyNameModel    = "BedrockModelAccess"
	servicePrincipal   = "bedrock.amazonaws.com"
	roleDescription    = "Role for Bedrock Knowledge Base to access S3 and models"
	dataSourceDescribe = "Sample documents uploaded from the local corpus"
)

// ensureRole resolves the access role by name, creating it with the
// knowledge-base trust policy when absent. The three inline policies are
// rewritten unconditionally so policy drift is corrected on every run.
func (p *Provisioner) ensureRole(ctx context.Context, doc DocumentBucketHandle, vs VectorStoreHandles) (RoleHandle, error) {
	roleName := p.settings.RoleName

	var roleARN string
	getOut, err := p.identity.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName)})
	switch {
	case err == nil:
		roleARN = aws.ToString(getOut.Role.Arn)
	case IsNotFound(Classify(err)):
		trust, err := json.Marshal(policyDocument{
			Version: policyVersion,
			Statement: []policyStatement{{
				Effect:    "Allow",
				Principal: map[string]string{"Service": servicePrincipal},
				Action:    "sts:AssumeRole",
			}},
		})
		if err != nil {
			return RoleHandle{}, fmt.Errorf("failed to marshal trust policy: %w", err)
		}
		createOut, err := p.identity.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(roleName),
			AssumeRolePolicyDocument: aws.String(string(trust)),
			Description:              aws.String(roleDescription),
		})
		if err != nil {
			return RoleHandle{}, fmt.Errorf("failed to create role %s: %w", roleName, err)
		}
		roleARN = aws.ToString(createOut.Role.Arn)
	default:
		return RoleHandle{}, fmt.Errorf("failed to get role %s: %w", roleName, err)
	}

	s3Policy := policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{{
			Effect:   "Allow",
			Action:   []string{"s3:GetObject", "s3:ListBucket"},
			Resource: []string{doc.ARN, doc.ARN + "/*"},
		}},
	}

	vectorResources := []string{vs.BucketARN, vs.BucketARN + "/*"}
	if vs.IndexARN != "" {
		vectorResources = append(vectorResources, vs.IndexARN, vs.BucketARN+"/index/*")
	}
	vectorsPolicy := policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{{
			Effect:   "Allow",
			Action:   []string{"s3vectors:*"},
			Resource: vectorResources,
		}},
	}

	modelPolicy := policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{{
			Effect:   "Allow",
			Action:   []string{"bedrock:InvokeModel"},
			Resource: "*",
		}},
	}

	inline := []struct {
		name string
		doc  policyDocument
	}{
		{policyNameS3, s3Policy},
		{policyNameVectors, vectorsPolicy},
		{policyNameModel, modelPolicy},
	}
	for _, pol := range inline {
		name := pol.name
		body, err := json.Marshal(pol.doc)
		if err != nil {
			return RoleHandle{}, fmt.Errorf("failed to marshal policy %s: %w", name, err)
		}
		_, err = p.identity.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(roleName),
			PolicyName:     aws.String(name),
			PolicyDocument: aws.String(string(body)),
		})
		if err != nil {
			return RoleHandle{}, fmt.Errorf("failed to put role policy %s: %w", name, err)
		}
	}

	return RoleHandle{Name: roleName, ARN: roleARN}, nil
}

// ensureKnowledgeBase searches existing knowledge bases by configured name
// through the paged listing and reuses a match; otherwise it creates one
// bound to the embedding model, the vector store, and the role.
func (p *Provisioner) ensureKnowledgeBase(ctx context.Context, vs VectorStoreHandles, role RoleHandle) (KnowledgeBaseHandle, error) {
	name := p.settings.KnowledgeBaseName

	paginator := bedrockagent.NewListKnowledgeBasesPaginator(p.kb, &bedrockagent.ListKnowledgeBasesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return KnowledgeBaseHandle{}, fmt.Errorf("failed to list knowledge bases: %w", err)
		}
		for _, summary := range page.KnowledgeBaseSummaries {
			if aws.ToString(summary.Name) == name {
				return KnowledgeBaseHandle{ID: aws.ToString(summary.KnowledgeBaseId)}, nil
			}
		}
	}

	out, err := p.kb.CreateKnowledgeBase(ctx, &bedrockagent.CreateKnowledgeBaseInput{
		Name:    aws.String(name),
		RoleArn: aws.String(role.ARN),
		KnowledgeBaseConfiguration: &batypes.KnowledgeBaseConfiguration{
			Type: batypes.KnowledgeBaseTypeVector,
			VectorKnowledgeBaseConfiguration: &batypes.VectorKnowledgeBaseConfiguration{
				EmbeddingModelArn: aws.String(p.settings.EmbeddingModelARN),
			},
		},
		StorageConfiguration: &batypes.StorageConfiguration{
			Type: batypes.KnowledgeBaseStorageTypeS3Vectors,
			S3VectorsConfiguration: &batypes.S3VectorsConfiguration{
				VectorBucketArn: aws.String(vs.BucketARN),
				IndexArn:        aws.String(vs.IndexARN),
			},
		},
	})
	if err != nil {
		return KnowledgeBaseHandle{}, fmt.Errorf("failed to create knowledge base %s: %w", name, err)
	}
	return KnowledgeBaseHandle{ID: aws.ToString(out.KnowledgeBase.KnowledgeBaseId)}, nil
}

// ensureDataSource searches the knowledge base's data sources by the fixed
// configured name and reuses a match; otherwise it creates one pointing at
// the document bucket with the configured inclusion prefix.
func (p *Provisioner) ensureDataSource(ctx context.Context, kb KnowledgeBaseHandle, doc DocumentBucketHandle) (DataSourceHandle, error) {
	name := p.settings.DataSourceName

	paginator := bedrockagent.NewListDataSourcesPaginator(p.kb, &bedrockagent.ListDataSourcesInput{
		KnowledgeBaseId: aws.String(kb.ID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return DataSourceHandle{}, fmt.Errorf("failed to list data sources: %w", err)
		}
		for _, summary := range page.DataSourceSummaries {
			if aws.ToString(summary.Name) == name {
				return DataSourceHandle{ID: aws.ToString(summary.DataSourceId)}, nil
			}
		}
	}

	out, err := p.kb.CreateDataSource(ctx, &bedrockagent.CreateDataSourceInput{
		KnowledgeBaseId: aws.String(kb.ID),
		Name:            aws.String(name),
		Description:     aws.String(dataSourceDescribe),
		DataSourceConfiguration: &batypes.DataSourceConfiguration{
			Type: batypes.DataSourceTypeS3,
			S3Configuration: &batypes.S3DataSourceConfiguration{
				BucketArn:         aws.String(doc.ARN),
				InclusionPrefixes: []string{p.settings.DocumentPrefix},
			},
		},
	})
	if err != nil {
		return DataSourceHandle{}, fmt.Errorf("failed to create data source %s: %w", name, err)
	}
	return DataSourceHandle{ID: aws.ToString(out.DataSource.DataSourceId)}, nil
}
