package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/journeys/internal/observability/logger"
	"github.com/smallbiznis/journeys/internal/observability/metrics"
	"github.com/smallbiznis/journeys/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		splitConfig,
		logger.New,
		newGormLogger,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		func() prometheus.Gatherer { return prometheus.DefaultGatherer },
		metrics.NewSchedulerMetrics,
		metrics.NewOutboxMetrics,
	),
	// Nothing asks for the tracer provider directly; it only has to exist.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

type componentConfigs struct {
	fx.Out

	Logger  logger.Config
	Tracing tracing.Config
	Metrics metrics.Config
}

// splitConfig hands each telemetry component its own view of Config.
func splitConfig(cfg Config) componentConfigs {
	return componentConfigs{
		Logger: logger.Config{
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
			Version:          cfg.Version,
			Level:            cfg.LogLevel,
			Format:           cfg.LogFormat,
			Debug:            cfg.Debug(),
			SampleInitial:    cfg.LogSampleInitial,
			SampleThereafter: cfg.LogSampleThereafter,
		},
		Tracing: tracing.Config{
			Enabled:          cfg.OtelEnabled,
			ServiceName:      cfg.ServiceName,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			SamplingRatio:    cfg.OtelSamplingRatio,
		},
		Metrics: metrics.Config{
			Enabled:          cfg.OtelEnabled,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		},
	}
}

func newGormLogger(cfg Config, log *zap.Logger) *logger.GormLogger {
	return logger.NewGormLogger(log, logger.GormLoggerConfig{
		Level:         cfg.DBLogLevel,
		SlowThreshold: cfg.DBSlowQuery,
	})
}
