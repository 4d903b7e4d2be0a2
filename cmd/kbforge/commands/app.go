package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kbforge/kbforge/pkg/clients"
	"github.com/kbforge/kbforge/pkg/config"
	"github.com/kbforge/kbforge/pkg/stores"
	"github.com/kbforge/kbforge/pkg/telemetry"
)

// app bundles the wired collaborators every command needs: validated
// settings, telemetry, AWS clients, and the local state store.
type app struct {
	settings *config.Settings
	tel      *telemetry.Telemetry
	aws      *clients.Bundle
	store    *stores.SQLiteStore
	log      zerolog.Logger
}

// newApp loads configuration and constructs the shared runtime. Resource
// identifiers missing from the configuration are filled in from the state
// store left by a previous provision run.
func newApp(ctx context.Context) (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.LogLevel = "debug"
	}
	applyLogLevel(settings.LogLevel)

	telCfg := telemetry.DefaultConfig()
	telCfg.Logging.Level = settings.LogLevel
	telCfg.Tracing.Enabled = settings.TracingEnabled
	telCfg.Tracing.Exporter = settings.TraceExporter
	telCfg.Tracing.Endpoint = settings.OTLPEndpoint
	telCfg.Metrics.Enabled = settings.MetricsEnabled

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, err
	}

	bundle, err := clients.New(ctx, settings)
	if err != nil {
		return nil, err
	}

	// Bucket names embed the account ID for global uniqueness. When the
	// identity call fails the placeholder keeps name derivation stable and
	// the real AWS calls will surface the credential problem themselves.
	accountID, err := bundle.AccountID(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not resolve AWS account ID, using placeholder for derived names")
		accountID = "unknown"
	}
	settings.ApplyDerivedDefaults(accountID)

	store, err := stores.NewSQLiteStore(stores.Config{Path: settings.StatePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	if settings.KnowledgeBaseID == "" || settings.DataSourceID == "" {
		if handles, err := store.LoadHandles(ctx); err == nil {
			if settings.KnowledgeBaseID == "" {
				settings.KnowledgeBaseID = handles.KnowledgeBaseID
			}
			if settings.DataSourceID == "" {
				settings.DataSourceID = handles.DataSourceID
			}
		}
	}

	if settings.MetricsEnabled {
		if err := tel.StartMetricsServer(); err != nil {
			log.Warn().Err(err).Msg("could not start metrics server")
		}
	}

	return &app{
		settings: settings,
		tel:      tel,
		aws:      bundle,
		store:    store,
		log:      log.Logger,
	}, nil
}

// applyLogLevel sets the process-wide zerolog level once the configured
// level is known. Startup output emitted before configuration loads stays
// at the info default.
func applyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("log_level", level).Msg("unknown log level, keeping current level")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

// close flushes telemetry and releases the state store.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing state store")
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("shutting down telemetry")
	}
}

// beginOperation records the start of a lifecycle command in the history
// table. Recording is best effort; a storage failure never blocks the
// command itself.
func (a *app) beginOperation(ctx context.Context, kind stores.OperationKind, details interface{}) string {
	id := uuid.NewString()
	payload := "{}"
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			payload = string(data)
		}
	}
	op := &stores.Operation{
		ID:        id,
		Kind:      kind,
		Status:    stores.OperationStatusRunning,
		StartedAt: time.Now().UTC(),
		Details:   payload,
	}
	if err := a.store.CreateOperation(ctx, op); err != nil {
		a.log.Warn().Err(err).Msg("could not record operation start")
	}
	return id
}

// finishOperation completes the history record for a command.
func (a *app) finishOperation(ctx context.Context, id string, runErr error) {
	status := stores.OperationStatusSucceeded
	var errMsg *string
	if runErr != nil {
		status = stores.OperationStatusFailed
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := a.store.CompleteOperation(ctx, id, status, errMsg); err != nil {
		a.log.Warn().Err(err).Msg("could not record operation completion")
	}
}
