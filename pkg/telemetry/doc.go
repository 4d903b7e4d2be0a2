// Package telemetry provides observability instrumentation for kbforge.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring knowledge base lifecycle operations.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Components that receive no telemetry fall back to telemetry.Nop(), whose
// methods are all safe no-ops, so instrumentation never needs nil checks.
//
// # Structured Logging
//
// The logger provides component-specific logging with field helpers:
//
//	logger := tel.Logger.NewComponentLogger("provision")
//	logger.WithStep("vector_store").Info("creating vector index")
//	logger.WithError(err).Error("step failed")
//
// # Distributed Tracing
//
// Each lifecycle step runs inside its own span:
//
//	ctx, span := tel.Tracer.StartSpan(ctx, "provision.role")
//	defer span.End()
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP/gRPC (production), stdout (development), none.
//
// # Metrics
//
// Key metrics exposed at /metrics when enabled:
//
//   - kbforge_steps_executed_total{component,step,status}
//   - kbforge_step_duration_seconds{component,step}
//   - kbforge_documents_uploaded_total
//   - kbforge_documents_deleted_total
//   - kbforge_ingestion_polls_total
//   - kbforge_ingestion_status_transitions_total
//   - kbforge_ingestion_jobs_total{status}
//   - kbforge_errors_by_class_total{class}
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.Publish(telemetry.NewStepEvent(
//	    telemetry.EventTypeProvisionStepCompleted, "role", ""))
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// # Graceful Shutdown
//
// Always shut down telemetry to flush pending events and spans:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("telemetry shutdown error: %v", err)
//	}
package telemetry
