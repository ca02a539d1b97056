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
	movements         metric.Int64Counter
	movementUnits     metric.Int64Counter
	decrementFailures metric.Int64Counter
	stockRetries      metric.Int64Counter
	alertsRaised      metric.Int64Counter
	alertTransitions  metric.Int64Counter
	requirementRuns   metric.Int64Counter
	notifications     metric.Int64Counter
	rateLimited       metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
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
		name = "mrpledger"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.movements, "mrpledger_inventory_movements_total", "Inventory movements appended to the ledger."},
		{&m.movementUnits, "mrpledger_inventory_movement_units_total", "Units moved through the ledger."},
		{&m.decrementFailures, "mrpledger_production_decrement_failures_total", "Production decrements rejected."},
		{&m.stockRetries, "mrpledger_stock_write_retries_total", "Stock writes replayed after a version conflict."},
		{&m.alertsRaised, "mrpledger_alerts_raised_total", "Alerts created or refreshed."},
		{&m.alertTransitions, "mrpledger_alert_transitions_total", "Alert state transitions."},
		{&m.requirementRuns, "mrpledger_requirement_runs_total", "Requirement calculations by outcome."},
		{&m.notifications, "mrpledger_alert_notifications_total", "Critical alert notifications by channel and outcome."},
		{&m.rateLimited, "mrpledger_http_rate_limit_decisions_total", "Mutation rate limit decisions by route and outcome."},
	}
	for _, c := range counters {
		counter, cerr := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if cerr != nil {
			err = cerr
			break
		}
		*c.target = counter
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordMovement counts one ledger movement and its absolute unit volume.
func (m *Metrics) RecordMovement(ctx context.Context, movementType string, quantity int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("movement_type", strings.TrimSpace(movementType)))...)
	m.movements.Add(ctx, 1, attrs)
	if quantity < 0 {
		quantity = -quantity
	}
	m.movementUnits.Add(ctx, quantity, attrs)
}

// RecordDecrementFailure counts a rejected production decrement by reason.
func (m *Metrics) RecordDecrementFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.decrementFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))...))
}

// RecordStockRetry counts a replayed stock transaction.
func (m *Metrics) RecordStockRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.stockRetries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))...))
}

// RecordAlertRaised counts a created (or deduplicated) alert.
func (m *Metrics) RecordAlertRaised(ctx context.Context, alertType, severity string, created bool) {
	if m == nil {
		return
	}
	outcome := "updated"
	if created {
		outcome = "created"
	}
	attrs := FilterAttributes(
		attribute.String("alert_type", strings.TrimSpace(alertType)),
		attribute.String("severity", strings.TrimSpace(severity)),
		attribute.String("outcome", outcome),
	)
	m.alertsRaised.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAlertTransition counts alert state changes.
func (m *Metrics) RecordAlertTransition(ctx context.Context, alertType, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("alert_type", strings.TrimSpace(alertType)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.alertTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRequirementRun counts a requirement calculation by overall status.
func (m *Metrics) RecordRequirementRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.requirementRuns.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("status", strings.TrimSpace(status)))...))
}

// RecordNotification counts a notification attempt.
func (m *Metrics) RecordNotification(ctx context.Context, channel string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("outcome", outcome),
	)
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
	"movement_type": {},
	"alert_type":    {},
	"severity":      {},
	"status":        {},
	"outcome":       {},
	"operation":     {},
	"channel":       {},
	"reason":        {},
	"route":         {},
	"status_code":   {},
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

// RecordRateLimit counts a mutation rate limit decision for a route.
func (m *Metrics) RecordRateLimit(ctx context.Context, route string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	attrs := FilterAttributes(
		attribute.String("route", strings.TrimSpace(route)),
		attribute.String("outcome", outcome),
	)
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}
