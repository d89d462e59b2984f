package observability

import (
	"time"

	"atsbeaters/internal/config"
)

// ObservabilityConfig holds configuration for observability
type ObservabilityConfig struct {
	ServiceName        string
	ServiceVersion     string
	ServiceInstance    string
	Enabled            bool
	ConsoleOutput      bool
	PrettyPrint        bool
	SampleRate         float64
	CollectionInterval time.Duration
	Prometheus         PrometheusConfig
	OTLP               config.OTLPConfig
	CustomMetrics      config.CustomMetricsConfig
}

// GetObservabilityConfig creates observability config from provided config
func GetObservabilityConfig(cfg *config.Config, version string) ObservabilityConfig {
	if cfg == nil {
		return ObservabilityConfig{
			ServiceName:        "atsbeaters",
			ServiceVersion:     version,
			SampleRate:         1.0,
			CollectionInterval: 15 * time.Second,
			CustomMetrics:      allCustomMetrics(),
		}
	}

	obsConfig := cfg.Observability

	// Use app version if service version not specified
	serviceVersion := obsConfig.ServiceVersion
	if serviceVersion == "" {
		serviceVersion = version
	}
	serviceName := obsConfig.ServiceName
	if serviceName == "" {
		serviceName = "atsbeaters"
	}
	interval := obsConfig.Metrics.CollectionInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	return ObservabilityConfig{
		ServiceName:        serviceName,
		ServiceVersion:     serviceVersion,
		ServiceInstance:    obsConfig.ServiceInstance,
		Enabled:            obsConfig.Enabled,
		ConsoleOutput:      obsConfig.ConsoleOutput,
		PrettyPrint:        obsConfig.Console.PrettyPrint,
		SampleRate:         obsConfig.SampleRate,
		CollectionInterval: interval,
		Prometheus:         GetPrometheusConfig(cfg),
		OTLP:               obsConfig.OTLP,
		CustomMetrics:      obsConfig.CustomMetrics,
	}
}

func allCustomMetrics() config.CustomMetricsConfig {
	return config.CustomMetricsConfig{
		AIOperations: config.AIOperationsMetricsConfig{
			Enabled:         true,
			TrackDuration:   true,
			TrackTokenUsage: true,
			TrackRateLimits: true,
		},
		BusinessMetrics: config.BusinessMetricsConfig{Enabled: true},
	}
}
