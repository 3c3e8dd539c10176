package observability

// Metric name prefixes
const (
	MetricPrefix = "ledgerbot"
)

// Metric names
const (
	// Ledger metrics
	LedgerOperationsTotal = MetricPrefix + ".ledger.operations_total"
	LockRejectionsTotal   = MetricPrefix + ".ledger.lock_rejections_total"

	// Deposit metrics
	DepositsTotal = MetricPrefix + ".deposits.total"

	// Gateway metrics
	GatewayFailuresTotal = MetricPrefix + ".gateway.failures_total"

	// Event metrics
	EventsPublishedTotal = MetricPrefix + ".events.published_total"

	// Reconciliation metrics
	ReconciliationRunsTotal = MetricPrefix + ".reconciliation.runs_total"
	ReconciliationDrift     = MetricPrefix + ".reconciliation.drift"
)

// Label keys
const (
	LabelOperation      = "operation"
	LabelOutcome        = "outcome"
	LabelOutcomeUnknown = "outcome_unknown"
	LabelMatched        = "matched"
	LabelEventType      = "event_type"
)
