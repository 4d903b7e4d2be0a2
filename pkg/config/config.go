// Package config loads application settings with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables (KBFORGE_* plus the standard AWS_REGION and
//     AWS_PROFILE)
//  2. Config file (~/.kbforge/config.yaml or ./kbforge.yaml)
//  3. Defaults
//
// Resource names that embed the AWS account ID (document bucket, vector
// bucket, vector index) cannot be defaulted without a network call, so Load
// leaves them empty and callers fill them in with ApplyDerivedDefaults once
// the account ID is known.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// DefaultDocumentPrefix is the S3 key prefix documents are uploaded
	// under and the inclusion prefix of the data source.
	DefaultDocumentPrefix = "knowledge-base/documents/"

	// DefaultEmbeddingModelARN is the embedding model used to vectorize
	// documents during ingestion.
	DefaultEmbeddingModelARN = "arn:aws:bedrock:us-east-1::foundation-model/amazon.titan-embed-text-v2:0"

	// DefaultEmbeddingDimension matches the default output dimension of
	// the Titan v2 embedding model.
	DefaultEmbeddingDimension int32 = 1024

	// DefaultResponseModelARN is the model used to generate answers from
	// retrieved passages.
	DefaultResponseModelARN = "arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude-3-5-sonnet-20240620-v1:0"

	// DefaultKnowledgeBaseName is the name new knowledge bases are created
	// under and looked up by.
	DefaultKnowledgeBaseName = "s3-vectors-rag-hands-on"

	// DefaultDataSourceName is the fixed name of the S3 data source
	// attached to the knowledge base.
	DefaultDataSourceName = "s3-sample-documents"

	// DefaultRoleName is the IAM role assumed by the Bedrock service.
	DefaultRoleName = "BedrockKnowledgeBaseRole"

	// DefaultPollInterval is how often ingestion job status is fetched.
	DefaultPollInterval = 20 * time.Second

	// DefaultSyncTimeout bounds how long a sync waits for ingestion to
	// reach a terminal state.
	DefaultSyncTimeout = time.Hour
)

// namePrefix seeds the account-derived resource names.
const namePrefix = "s3-vectors-rag-hands-on"

// Settings stores the full application configuration.
type Settings struct {
	// AWS session configuration.
	Region  string `mapstructure:"aws_region" validate:"required"`
	Profile string `mapstructure:"aws_profile"`

	// Document storage.
	DocumentBucket string `mapstructure:"document_bucket"`
	DocumentPrefix string `mapstructure:"document_prefix" validate:"required"`
	LocalDataDir   string `mapstructure:"local_data_dir" validate:"required"`

	// Vector storage.
	VectorBucketName string `mapstructure:"vector_bucket_name"`
	VectorIndexName  string `mapstructure:"vector_index_name"`

	// Bedrock models.
	EmbeddingModelARN  string `mapstructure:"embedding_model_arn" validate:"required"`
	EmbeddingDimension int32  `mapstructure:"embedding_dimension" validate:"gt=0"`
	ResponseModelARN   string `mapstructure:"response_model_arn" validate:"required"`

	// Knowledge base identity. The names drive create-or-reuse lookups;
	// the IDs point at already-provisioned resources and are filled in by
	// the provision command (directly or via the handle store).
	KnowledgeBaseName string `mapstructure:"knowledge_base_name" validate:"required"`
	DataSourceName    string `mapstructure:"data_source_name" validate:"required"`
	RoleName          string `mapstructure:"role_name" validate:"required"`
	KnowledgeBaseID   string `mapstructure:"knowledge_base_id"`
	DataSourceID      string `mapstructure:"data_source_id"`

	// Sync polling.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	SyncTimeout  time.Duration `mapstructure:"sync_timeout" validate:"gt=0"`

	// StatePath is the SQLite database holding provisioned resource
	// handles between runs.
	StatePath string `mapstructure:"state_path" validate:"required"`

	// Observability.
	LogLevel       string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	TraceExporter  string `mapstructure:"trace_exporter" validate:"oneof=stdout otlp"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// Load reads settings from the environment, an optional config file, and
// defaults, then validates them.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("kbforge")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".kbforge"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("document_prefix", DefaultDocumentPrefix)
	v.SetDefault("local_data_dir", "data/input")
	v.SetDefault("embedding_model_arn", DefaultEmbeddingModelARN)
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	v.SetDefault("response_model_arn", DefaultResponseModelARN)
	v.SetDefault("knowledge_base_name", DefaultKnowledgeBaseName)
	v.SetDefault("data_source_name", DefaultDataSourceName)
	v.SetDefault("role_name", DefaultRoleName)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("sync_timeout", DefaultSyncTimeout)
	v.SetDefault("state_path", defaultStatePath())
	v.SetDefault("log_level", "info")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("trace_exporter", "stdout")
	v.SetDefault("metrics_enabled", false)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("KBFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key string, envVars ...string) {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	// The standard AWS variables take effect without the prefix so the
	// tool composes with existing shell environments.
	mustBind("aws_region", "AWS_REGION", "KBFORGE_AWS_REGION")
	mustBind("aws_profile", "AWS_PROFILE", "KBFORGE_AWS_PROFILE")
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "kbforge-state.db"
	}
	return filepath.Join(home, ".kbforge", "state.db")
}

// ApplyDerivedDefaults fills in the account-scoped resource names that were
// left unset, using the caller's AWS account ID to keep bucket names
// globally unique.
func (s *Settings) ApplyDerivedDefaults(accountID string) {
	if s.DocumentBucket == "" {
		s.DocumentBucket = fmt.Sprintf("%s-documents-%s", namePrefix, accountID)
	}
	if s.VectorBucketName == "" {
		s.VectorBucketName = fmt.Sprintf("%s-vectors-%s", namePrefix, accountID)
	}
	if s.VectorIndexName == "" {
		s.VectorIndexName = fmt.Sprintf("%s-index-%s", namePrefix, accountID)
	}
}

// Validate checks the struct-level constraints. It does not require the
// account-derived names; those are checked by the operations that use them.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}
	return nil
}
