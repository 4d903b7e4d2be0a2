// Package clients constructs the AWS service clients the tool talks to,
// sharing a single resolved SDK configuration across all of them.
package clients

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/kbforge/kbforge/pkg/config"
)

// Bundle holds one client per AWS service the tool uses. Each field
// satisfies the corresponding narrow interface in pkg/engine, so the
// orchestrators never see the concrete clients.
type Bundle struct {
	S3             *s3.Client
	Vectors        *s3vectors.Client
	IAM            *iam.Client
	BedrockAgent   *bedrockagent.Client
	BedrockRuntime *bedrockagentruntime.Client
	STS            *sts.Client
}

// New resolves the default AWS configuration chain for the configured
// region and optional named profile, then builds every service client
// from it.
func New(ctx context.Context, settings *config.Settings) (*Bundle, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(settings.Region),
	}
	if settings.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(settings.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	return &Bundle{
		S3:             s3.NewFromConfig(cfg),
		Vectors:        s3vectors.NewFromConfig(cfg),
		IAM:            iam.NewFromConfig(cfg),
		BedrockAgent:   bedrockagent.NewFromConfig(cfg),
		BedrockRuntime: bedrockagentruntime.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
	}, nil
}

// AccountID returns the caller's AWS account ID. It backs the derived
// default names for the document and vector buckets.
func (b *Bundle) AccountID(ctx context.Context) (string, error) {
	out, err := b.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("resolving caller identity: %w", err)
	}
	return aws.ToString(out.Account), nil
}
