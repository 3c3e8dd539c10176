package observability

import (
	"context"
	"testing"

	"ledgerbot/application"
	"ledgerbot/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ application.Metrics = (*MetricsProvider)(nil)

func TestMetricsProvider_Disabled(t *testing.T) {
	t.Parallel()

	cfg := config.NewTestConfig()
	cfg.OTelEnabled = false

	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))
	assert.False(t, mp.isEnabled())

	assert.NotPanics(t, func() {
		mp.RecordLedgerOperation("transfer", "ok")
		mp.RecordReconciliation(5, false)
	})
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProvider_NoneExporter(t *testing.T) {
	t.Parallel()

	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true
	cfg.OTelExporterType = "none"

	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))
	assert.False(t, mp.isEnabled())
	assert.NotPanics(t, func() {
		mp.RecordDeposit("credited")
		mp.RecordGatewayFailure(true)
	})
}

func TestMetricsProvider_ConsoleExporter(t *testing.T) {
	t.Parallel()

	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true
	cfg.OTelExporterType = "console"
	cfg.OTelExportIntervalMillis = 60000

	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))
	assert.True(t, mp.isEnabled())

	assert.NotPanics(t, func() {
		mp.RecordLedgerOperation("withdraw", "ok")
		mp.RecordLockRejected("transfer")
		mp.RecordDeposit("duplicate")
		mp.RecordGatewayFailure(false)
		mp.RecordReconciliation(0, true)
		mp.RecordEventPublished("balance_change")
	})
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProvider_UnknownExporter(t *testing.T) {
	t.Parallel()

	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true
	cfg.OTelExporterType = "carrier-pigeon"

	err := NewMetricsProvider(cfg).Initialize(context.Background())
	assert.Error(t, err)
}

func TestMetricsProvider_NilSafe(t *testing.T) {
	t.Parallel()

	var mp *MetricsProvider
	assert.NotPanics(t, func() { mp.RecordLockRejected("transfer") })
}
