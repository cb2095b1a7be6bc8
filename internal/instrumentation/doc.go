// Package instrumentation provides OpenTelemetry metrics, tracing and the
// sent-mail audit trail for inboxreply.
//
// # Metrics
//
// Auto-reply engine:
//   - autoreply_poll_iterations_total / autoreply_poll_duration_seconds by status
//   - autoreply_replies_total by composition (static, generated, fallback)
//   - autoreply_messages_skipped_total by reason
//
// Google API:
//   - google_api_operations_total / google_api_operation_duration_seconds by service, operation, status
//   - oauth_token_refresh_total by result
//
// LLM and scheduler:
//   - llm_requests_total / llm_request_duration_seconds by provider, kind, status
//   - scheduled_sends_total by status
//
// *Metrics satisfies autoreply.Recorder, and its zero value records nothing.
//
// # Tracing
//
// Spans are created for each poll iteration (autoreply.poll), each processed
// message (autoreply.message), Google API calls (google.<service>.<operation>)
// and completion requests (llm.<provider>.<kind>).
//
// # Configuration
//
// Config is filled from the telemetry and audit sections of the inboxreply
// configuration file. The Prometheus exporter collects into a registry owned
// by the Provider and is served by MetricsHandler; otlp and stdout push on
// MetricInterval. Every export carries the service name, version, host and
// configured account as resource attributes.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, cfg.Instrumentation(version))
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	engine := autoreply.NewEngine(mail, assistant, autoreply.Options{
//		Metrics: provider.Metrics(),
//		Tracer:  provider.Tracer(""),
//	})
package instrumentation
