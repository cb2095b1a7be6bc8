package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	attrStatus      = "status"
	attrOperation   = "operation"
	attrService     = "service"
	attrResult      = "result"
	attrReason      = "reason"
	attrComposition = "composition"
	attrProvider    = "provider"
	attrKind        = "kind"
	attrAccount     = "account"
)

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// OAuth result values
	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"
	OAuthResultExpired = "expired"

	// Google service names
	ServiceGmail  = "gmail"
	ServicePeople = "people"

	// LLM provider names
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Metrics provides methods for recording observability metrics.
// The zero value is a valid no-op recorder.
type Metrics struct {
	// Auto-reply engine metrics
	pollIterationsTotal metric.Int64Counter
	pollDuration        metric.Float64Histogram
	repliesTotal        metric.Int64Counter
	skippedTotal        metric.Int64Counter

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthTokenRefreshTotal metric.Int64Counter

	// LLM metrics
	llmRequestsTotal   metric.Int64Counter
	llmRequestDuration metric.Float64Histogram

	// Scheduler metrics
	scheduledSendsTotal metric.Int64Counter

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// Auto-reply Metrics
	m.pollIterationsTotal, err = meter.Int64Counter(
		"autoreply_poll_iterations_total",
		metric.WithDescription("Total number of auto-reply poll iterations by outcome"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create autoreply_poll_iterations_total counter: %w", err)
	}

	m.pollDuration, err = meter.Float64Histogram(
		"autoreply_poll_duration_seconds",
		metric.WithDescription("Auto-reply poll iteration duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create autoreply_poll_duration_seconds histogram: %w", err)
	}

	m.repliesTotal, err = meter.Int64Counter(
		"autoreply_replies_total",
		metric.WithDescription("Total number of auto-replies sent by composition"),
		metric.WithUnit("{reply}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create autoreply_replies_total counter: %w", err)
	}

	m.skippedTotal, err = meter.Int64Counter(
		"autoreply_messages_skipped_total",
		metric.WithDescription("Total number of unread messages not answered, by reason"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create autoreply_messages_skipped_total counter: %w", err)
	}

	// Google API Metrics
	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	// OAuth Metrics
	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	// LLM Metrics
	m.llmRequestsTotal, err = meter.Int64Counter(
		"llm_requests_total",
		metric.WithDescription("Total number of LLM completion requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_requests_total counter: %w", err)
	}

	m.llmRequestDuration, err = meter.Float64Histogram(
		"llm_request_duration_seconds",
		metric.WithDescription("LLM completion request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_request_duration_seconds histogram: %w", err)
	}

	// Scheduler Metrics
	m.scheduledSendsTotal, err = meter.Int64Counter(
		"scheduled_sends_total",
		metric.WithDescription("Total number of scheduled email dispatch attempts by status"),
		metric.WithUnit("{send}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduled_sends_total counter: %w", err)
	}

	return m, nil
}

// RecordPoll records one auto-reply poll iteration.
// Status is one of the autoreply Poll* values (inactive, no_active_rules, success, error).
func (m *Metrics) RecordPoll(ctx context.Context, status string, duration time.Duration) {
	if m.pollIterationsTotal == nil || m.pollDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.pollIterationsTotal.Add(ctx, 1, attrs)
	m.pollDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordReply records a sent auto-reply.
// Composition is one of "static", "generated" or "fallback".
func (m *Metrics) RecordReply(ctx context.Context, composition string) {
	if m.repliesTotal == nil {
		return // Instrumentation not initialized
	}

	m.repliesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrComposition, composition)))
}

// RecordSkip records an unread message the engine decided not to answer.
func (m *Metrics) RecordSkip(ctx context.Context, reason string) {
	if m.skippedTotal == nil {
		return // Instrumentation not initialized
	}

	m.skippedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (gmail, people)
//   - operation: Operation type (list, get, modify, send, search)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperationWithAccount is RecordGoogleAPIOperation with the
// account label added when detailed labels are enabled.
func (m *Metrics) RecordGoogleAPIOperationWithAccount(ctx context.Context, service, operation, status, account string, duration time.Duration) {
	if m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure", "expired"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordLLMRequest records a completion request.
//
// Parameters:
//   - provider: "openai" or "anthropic"
//   - kind: what the completion was for (reply, command, draft)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the request
func (m *Metrics) RecordLLMRequest(ctx context.Context, provider, kind, status string, duration time.Duration) {
	if m.llmRequestsTotal == nil || m.llmRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrKind, kind),
		attribute.String(attrStatus, status),
	}

	m.llmRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordScheduledSend records a scheduled email dispatch attempt.
// Status is "sent", "retry" or "failed".
func (m *Metrics) RecordScheduledSend(ctx context.Context, status string) {
	if m.scheduledSendsTotal == nil {
		return // Instrumentation not initialized
	}

	m.scheduledSendsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}
