package config

import (
	"strings"
	"testing"
	"time"
)

func validSettings() *Settings {
	return &Settings{
		Region:             "us-west-2",
		DocumentPrefix:     DefaultDocumentPrefix,
		LocalDataDir:       "data/input",
		EmbeddingModelARN:  DefaultEmbeddingModelARN,
		EmbeddingDimension: DefaultEmbeddingDimension,
		ResponseModelARN:   DefaultResponseModelARN,
		KnowledgeBaseName:  DefaultKnowledgeBaseName,
		DataSourceName:     DefaultDataSourceName,
		RoleName:           DefaultRoleName,
		PollInterval:       DefaultPollInterval,
		SyncTimeout:        DefaultSyncTimeout,
		StatePath:          "state.db",
		LogLevel:           "info",
		TraceExporter:      "stdout",
	}
}

func TestSettings_Validate(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
}

func TestSettings_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"missing region", func(s *Settings) { s.Region = "" }},
		{"missing document prefix", func(s *Settings) { s.DocumentPrefix = "" }},
		{"zero embedding dimension", func(s *Settings) { s.EmbeddingDimension = 0 }},
		{"negative poll interval", func(s *Settings) { s.PollInterval = -time.Second }},
		{"zero sync timeout", func(s *Settings) { s.SyncTimeout = 0 }},
		{"missing role name", func(s *Settings) { s.RoleName = "" }},
		{"bad log level", func(s *Settings) { s.LogLevel = "loud" }},
		{"bad trace exporter", func(s *Settings) { s.TraceExporter = "jaeger" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			if err := s.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	// A clean environment with only the required region set exercises every
	// default.
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("AWS_PROFILE", "")

	// Run from an empty directory so a developer's kbforge.yaml is not
	// picked up.
	t.Chdir(t.TempDir())

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if settings.Region != "eu-central-1" {
		t.Errorf("Region = %s, want eu-central-1", settings.Region)
	}
	if settings.DocumentPrefix != DefaultDocumentPrefix {
		t.Errorf("DocumentPrefix = %s", settings.DocumentPrefix)
	}
	if settings.EmbeddingDimension != DefaultEmbeddingDimension {
		t.Errorf("EmbeddingDimension = %d", settings.EmbeddingDimension)
	}
	if settings.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %s", settings.PollInterval)
	}
	if settings.SyncTimeout != DefaultSyncTimeout {
		t.Errorf("SyncTimeout = %s", settings.SyncTimeout)
	}
	if settings.LogLevel != "info" {
		t.Errorf("LogLevel = %s", settings.LogLevel)
	}
	if settings.KnowledgeBaseName != DefaultKnowledgeBaseName {
		t.Errorf("KnowledgeBaseName = %s", settings.KnowledgeBaseName)
	}

	// Account-derived names stay empty until ApplyDerivedDefaults runs.
	if settings.DocumentBucket != "" || settings.VectorBucketName != "" || settings.VectorIndexName != "" {
		t.Errorf("derived names set at load time: %q %q %q",
			settings.DocumentBucket, settings.VectorBucketName, settings.VectorIndexName)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("KBFORGE_KNOWLEDGE_BASE_ID", "KB999")
	t.Setenv("KBFORGE_POLL_INTERVAL", "5s")
	t.Setenv("KBFORGE_LOG_LEVEL", "debug")
	t.Chdir(t.TempDir())

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.KnowledgeBaseID != "KB999" {
		t.Errorf("KnowledgeBaseID = %s, want KB999", settings.KnowledgeBaseID)
	}
	if settings.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", settings.PollInterval)
	}
	if settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", settings.LogLevel)
	}
}

func TestLoad_MissingRegionFails(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("KBFORGE_AWS_REGION", "")
	t.Chdir(t.TempDir())

	if _, err := Load(); err == nil {
		t.Error("expected a validation error without a region")
	}
}

func TestApplyDerivedDefaults(t *testing.T) {
	s := validSettings()
	s.ApplyDerivedDefaults("123456789012")

	if s.DocumentBucket != "s3-vectors-rag-hands-on-documents-123456789012" {
		t.Errorf("DocumentBucket = %s", s.DocumentBucket)
	}
	if s.VectorBucketName != "s3-vectors-rag-hands-on-vectors-123456789012" {
		t.Errorf("VectorBucketName = %s", s.VectorBucketName)
	}
	if s.VectorIndexName != "s3-vectors-rag-hands-on-index-123456789012" {
		t.Errorf("VectorIndexName = %s", s.VectorIndexName)
	}
}

func TestApplyDerivedDefaults_KeepsExplicitNames(t *testing.T) {
	s := validSettings()
	s.DocumentBucket = "my-docs"
	s.ApplyDerivedDefaults("unknown")

	if s.DocumentBucket != "my-docs" {
		t.Errorf("DocumentBucket = %s, want the explicit name kept", s.DocumentBucket)
	}
	if !strings.HasSuffix(s.VectorBucketName, "-unknown") {
		t.Errorf("VectorBucketName = %s, want the unknown-account fallback", s.VectorBucketName)
	}
}
