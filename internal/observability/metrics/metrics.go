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
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
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
	resolutions     metric.Int64Counter
	handoffIssued   metric.Int64Counter
	handoffRedeemed metric.Int64Counter
	handoffFailed   metric.Int64Counter
	tokensPurged    metric.Int64Counter
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

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "domainlink"
	}
	meter := provider.Meter(name)

	resolutions, err := meter.Int64Counter("domainlink_resolutions_total")
	if err != nil {
		return nil, err
	}
	handoffIssued, err := meter.Int64Counter("domainlink_handoff_issued_total")
	if err != nil {
		return nil, err
	}
	handoffRedeemed, err := meter.Int64Counter("domainlink_handoff_redeemed_total")
	if err != nil {
		return nil, err
	}
	handoffFailed, err := meter.Int64Counter("domainlink_handoff_failed_total")
	if err != nil {
		return nil, err
	}
	tokensPurged, err := meter.Int64Counter("domainlink_tokens_purged_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		resolutions:     resolutions,
		handoffIssued:   handoffIssued,
		handoffRedeemed: handoffRedeemed,
		handoffFailed:   handoffFailed,
		tokensPurged:    tokensPurged,
	}, nil
}

// RecordResolution counts resolver decisions by action.
func (m *Metrics) RecordResolution(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.resolutions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordHandoffIssued counts minted handoff tokens by intent.
func (m *Metrics) RecordHandoffIssued(ctx context.Context, intent string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("intent", strings.TrimSpace(intent)))
	m.handoffIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordHandoffRedeemed counts successful redemptions by intent.
func (m *Metrics) RecordHandoffRedeemed(ctx context.Context, intent string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("intent", strings.TrimSpace(intent)))
	m.handoffRedeemed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordHandoffFailed counts redemption failures by internal reason.
func (m *Metrics) RecordHandoffFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.handoffFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTokensPurged counts tokens removed by sweeps.
func (m *Metrics) RecordTokensPurged(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensPurged.Add(ctx, count)
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
	"action": {},
	"intent": {},
	"reason": {},
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
