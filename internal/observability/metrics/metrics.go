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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	eventsIngested    metric.Int64Counter
	duplicatesSkipped metric.Int64Counter
	pollRuns          metric.Int64Counter
	pollErrors        metric.Int64Counter
	alertsEmitted     metric.Int64Counter
	notifications     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
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

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "apicompass"
	}
	meter := provider.Meter(name)

	eventsIngested, err := meter.Int64Counter("apicompass_usage_events_ingested_total")
	if err != nil {
		return nil, err
	}
	duplicatesSkipped, err := meter.Int64Counter("apicompass_usage_events_duplicate_total")
	if err != nil {
		return nil, err
	}
	pollRuns, err := meter.Int64Counter("apicompass_poll_runs_total")
	if err != nil {
		return nil, err
	}
	pollErrors, err := meter.Int64Counter("apicompass_poll_errors_total")
	if err != nil {
		return nil, err
	}
	alertsEmitted, err := meter.Int64Counter("apicompass_alerts_emitted_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("apicompass_notifications_sent_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsIngested:    eventsIngested,
		duplicatesSkipped: duplicatesSkipped,
		pollRuns:          pollRuns,
		pollErrors:        pollErrors,
		alertsEmitted:     alertsEmitted,
		notifications:     notifications,
	}, nil
}

// RecordIngest increments ingested and duplicate event counts.
func (m *Metrics) RecordIngest(ctx context.Context, provider string, created, duplicates int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	if created > 0 {
		m.eventsIngested.Add(ctx, created, metric.WithAttributes(attrs...))
	}
	if duplicates > 0 {
		m.duplicatesSkipped.Add(ctx, duplicates, metric.WithAttributes(attrs...))
	}
}

// RecordPollRun increments poll run counts.
func (m *Metrics) RecordPollRun(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.pollRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPollError increments poll error counts.
func (m *Metrics) RecordPollError(ctx context.Context, provider, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.pollErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAlert increments emitted alert counts.
func (m *Metrics) RecordAlert(ctx context.Context, alertType, severity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("alert_type", strings.TrimSpace(alertType)),
		attribute.String("severity", strings.TrimSpace(severity)),
	)
	m.alertsEmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotification increments sent notification counts.
func (m *Metrics) RecordNotification(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("backend", strings.TrimSpace(backend)))
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":   {},
	"alert_type": {},
	"severity":   {},
	"reason":     {},
	"backend":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
