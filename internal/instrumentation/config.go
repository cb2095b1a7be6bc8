package instrumentation

import (
	"errors"
	"fmt"
	"time"
)

// ServiceName is the OpenTelemetry service name of the daemon.
const ServiceName = "inboxreply"

// Exporter names accepted in Config.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// DefaultMetricInterval is the export period of the push exporters.
const DefaultMetricInterval = 10 * time.Second

// ResourceAccountKey is the resource attribute naming the Gmail account a
// process serves.
const ResourceAccountKey = "inboxreply.account"

// Config selects where telemetry goes. The config package builds it from the
// telemetry and audit sections of the configuration file.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Account is recorded on the resource so two daemons serving different
	// accounts can be told apart.
	Account string

	// Enabled false yields a provider that records nothing.
	Enabled bool

	// MetricsExporter is prometheus, otlp or stdout.
	MetricsExporter string
	// TracingExporter is otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is the collector's host:port. Export uses TLS unless
	// OTLPInsecure is set.
	OTLPEndpoint string
	OTLPInsecure bool

	// TraceSampleRate is the fraction of poll traces kept, 0 to 1.
	TraceSampleRate float64
	// MetricInterval is the export period for otlp and stdout metrics.
	MetricInterval time.Duration

	// DetailedLabels adds the account to Google API metrics.
	DetailedLabels bool

	Audit AuditLoggingConfig
}

// AuditLoggingConfig controls the sent-mail audit trail.
type AuditLoggingConfig struct {
	// Enabled logs one record per outgoing email.
	Enabled bool

	// IncludePII logs full recipient addresses and subjects. Otherwise
	// recipients are anonymized and subjects omitted.
	IncludePII bool
}

// DefaultConfig returns the settings used when the configuration file has no
// telemetry section: Prometheus metrics, no tracing, anonymized audit log.
func DefaultConfig() Config {
	return Config{
		ServiceName:     ServiceName,
		ServiceVersion:  "dev",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
		TraceSampleRate: 0.1,
		MetricInterval:  DefaultMetricInterval,
		Audit:           AuditLoggingConfig{Enabled: true},
	}
}

// Validate reports every setting NewProvider cannot work with.
func (c Config) Validate() error {
	var errs []error

	switch c.MetricsExporter {
	case ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter))
	}
	switch c.TracingExporter {
	case ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter))
	}
	if c.usesOTLP() && c.OTLPEndpoint == "" {
		errs = append(errs, errors.New("OTLP endpoint is required when exporting with otlp"))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, fmt.Errorf("trace sample rate must be between 0 and 1, got %g", c.TraceSampleRate))
	}
	if c.MetricInterval < 0 {
		errs = append(errs, fmt.Errorf("metric interval must not be negative, got %s", c.MetricInterval))
	}

	return errors.Join(errs...)
}

func (c Config) usesOTLP() bool {
	return c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP
}
