package observability

import (
	"fmt"

	"atsbeaters/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusConfig holds Prometheus-specific configuration
type PrometheusConfig struct {
	Enabled      bool
	TextfilePath string
}

// SetupPrometheusExporter creates a Prometheus exporter bound to a private
// registry. The registry is gathered by WriteTextfile when the command exits.
func SetupPrometheusExporter(cfg PrometheusConfig) (metric.Reader, *prometheus.Registry, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	if cfg.TextfilePath == "" {
		return nil, nil, fmt.Errorf("prometheus textfile path is required when prometheus is enabled")
	}

	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	return exporter, reg, nil
}

// WriteTextfile writes everything gathered by reg in the text exposition
// format, atomically replacing path.
func WriteTextfile(reg *prometheus.Registry, path string) error {
	if reg == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write Prometheus textfile %s: %w", path, err)
	}
	return nil
}

// GetPrometheusConfig creates Prometheus configuration from provided config
func GetPrometheusConfig(cfg *config.Config) PrometheusConfig {
	if cfg == nil {
		return PrometheusConfig{}
	}
	return PrometheusConfig{
		Enabled:      cfg.Observability.Prometheus.Enabled,
		TextfilePath: cfg.Observability.Prometheus.TextfilePath,
	}
}
