package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the OTel counters for journey side effects. A nil *Metrics
// records nothing.
type Metrics struct {
	eventsPublished metric.Int64Counter
	badgesAwarded   metric.Int64Counter
	realtimePushes  metric.Int64Counter
	fallbacks       metric.Int64Counter
}

// NewProvider installs the global meter provider. Disabled telemetry gets a
// noop provider so instruments can still be created.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Info("otel metrics exporting",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))
	m := &Metrics{}
	for _, inst := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.eventsPublished, "journeys_events_published_total", "Domain events published in-process and to the outbox."},
		{&m.badgesAwarded, "journeys_daily_badges_awarded_total", "Daily distance badges awarded."},
		{&m.realtimePushes, "journeys_realtime_pushes_total", "Realtime pushes to favoriters by outcome."},
		{&m.fallbacks, "journeys_fallback_notifications_total", "Notifications stored for offline users."},
	} {
		c, err := meter.Int64Counter(inst.name, metric.WithDescription(inst.desc), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", inst.name, err)
		}
		*inst.dst = c
	}
	return m, nil
}

func (m *Metrics) RecordEventPublished(ctx context.Context, eventType string) {
	if m != nil {
		m.eventsPublished.Add(ctx, 1, withLabels(attribute.String("event_type", eventType)))
	}
}

func (m *Metrics) RecordBadgeAwarded(ctx context.Context) {
	if m != nil {
		m.badgesAwarded.Add(ctx, 1)
	}
}

// RecordRealtimePush counts one push attempt; method is the client method
// name, outcome one of sent, failed or duplicate.
func (m *Metrics) RecordRealtimePush(ctx context.Context, method, outcome string) {
	if m != nil {
		m.realtimePushes.Add(ctx, 1, withLabels(
			attribute.String("method", method),
			attribute.String("outcome", outcome),
		))
	}
}

func (m *Metrics) RecordFallbackNotification(ctx context.Context, method string) {
	if m != nil {
		m.fallbacks.Add(ctx, 1, withLabels(attribute.String("method", method)))
	}
}

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return "journeys"
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

// Only these keys may become metric attributes. User and journey ids never do.
var allowedLabelKeys = map[attribute.Key]bool{
	"event_type":  true,
	"method":      true,
	"outcome":     true,
	"status_code": true,
	"route":       true,
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			out = append(out, attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.Emit())))
		}
	}
	return out
}

func withLabels(attrs ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}
