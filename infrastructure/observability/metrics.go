package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ledgerbot/config"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"google.golang.org/grpc"
)

// MetricsProvider manages OpenTelemetry metrics for the ledger service
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	ledgerOperationsCounter  metric.Int64Counter
	lockRejectionsCounter    metric.Int64Counter
	depositsCounter          metric.Int64Counter
	gatewayFailuresCounter   metric.Int64Counter
	reconciliationRunCounter metric.Int64Counter
	eventsPublishedCounter   metric.Int64Counter
	reconciliationDriftGauge metric.Int64Gauge
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}

	exporter, err := newExporter(ctx, mp.config)
	if err != nil {
		return err
	}
	if exporter == nil {
		log.WithFields(log.Fields{
			"enabled":  mp.config.OTelEnabled,
			"exporter": mp.config.OTelExporterType,
		}).Info("Ledger metrics are not exported")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(mp.config.OTelServiceName),
		attribute.String("environment", mp.config.Environment),
	))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	interval := time.Duration(mp.config.OTelExportIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = 10 * time.Second
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	meter := provider.Meter(MetricPrefix)

	if err := mp.createInstruments(meter); err != nil {
		_ = provider.Shutdown(ctx)
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	otel.SetMeterProvider(provider)
	mp.meterProvider = provider
	mp.meter = meter
	mp.initialized = true

	log.WithFields(log.Fields{
		"exporter": mp.config.OTelExporterType,
		"interval": interval,
	}).Info("Ledger metrics initialized")
	return nil
}

// newExporter builds the configured exporter. A nil exporter means metrics stay off.
func newExporter(ctx context.Context, cfg *config.Config) (sdkmetric.Exporter, error) {
	if !cfg.OTelEnabled {
		return nil, nil
	}

	switch cfg.OTelExporterType {
	case "none":
		return nil, nil
	case "console":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		return exporter, nil
	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithDialOption(grpc.WithUserAgent(cfg.OTelServiceName)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter for %s: %w", cfg.OTelOTLPEndpoint, err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.OTelExporterType)
	}
}

// createInstruments registers every ledger instrument on meter
func (mp *MetricsProvider) createInstruments(meter metric.Meter) error {
	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&mp.ledgerOperationsCounter, LedgerOperationsTotal, "Ledger operations by outcome"},
		{&mp.lockRejectionsCounter, LockRejectionsTotal, "Operations rejected because an account lock was held"},
		{&mp.depositsCounter, DepositsTotal, "Deposit deliveries by outcome"},
		{&mp.gatewayFailuresCounter, GatewayFailuresTotal, "Failed chain gateway submissions"},
		{&mp.reconciliationRunCounter, ReconciliationRunsTotal, "Reconciliation runs"},
		{&mp.eventsPublishedCounter, EventsPublishedTotal, "Ledger events published to the bus"},
	}

	var errs []error
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit("1"))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		*c.target = counter
	}

	gauge, err := meter.Int64Gauge(
		ReconciliationDrift,
		metric.WithDescription("Treasury holdings minus user liabilities in minor units"),
		metric.WithUnit("1"),
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", ReconciliationDrift, err))
	}
	mp.reconciliationDriftGauge = gauge

	return errors.Join(errs...)
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordLedgerOperation records a completed or rejected ledger operation
func (mp *MetricsProvider) RecordLedgerOperation(operation string, outcome string) {
	if !mp.isEnabled() {
		return
	}

	mp.ledgerOperationsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelOperation, operation),
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// RecordLockRejected records an operation turned away by a held account lock
func (mp *MetricsProvider) RecordLockRejected(operation string) {
	if !mp.isEnabled() {
		return
	}

	mp.lockRejectionsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelOperation, operation),
		),
	)
}

// RecordDeposit records a deposit delivery
func (mp *MetricsProvider) RecordDeposit(outcome string) {
	if !mp.isEnabled() {
		return
	}

	mp.depositsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// RecordGatewayFailure records a failed withdrawal submission
func (mp *MetricsProvider) RecordGatewayFailure(outcomeUnknown bool) {
	if !mp.isEnabled() {
		return
	}

	mp.gatewayFailuresCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.Bool(LabelOutcomeUnknown, outcomeUnknown),
		),
	)
}

// RecordReconciliation records a reconciliation run and its drift
func (mp *MetricsProvider) RecordReconciliation(difference int64, matched bool) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool(LabelMatched, matched))
	mp.reconciliationRunCounter.Add(context.Background(), 1, attrs)
	mp.reconciliationDriftGauge.Record(context.Background(), difference)
}

// RecordEventPublished records a ledger event accepted by the bus
func (mp *MetricsProvider) RecordEventPublished(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.eventsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEventType, eventType)),
	)
}

// isEnabled checks if metrics are enabled and instruments exist
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.config.OTelEnabled && mp.meter != nil
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
