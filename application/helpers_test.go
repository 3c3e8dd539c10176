package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ledgerbot/application"
	"ledgerbot/application/dto"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/testhelpers"
	"ledgerbot/infrastructure"
	"ledgerbot/repository/memstore"

	"github.com/stretchr/testify/require"
)

const (
	userA entities.AccountID = 555
	userB entities.AccountID = 556
	userC entities.AccountID = 600
)

func tokens(n int64) entities.Amount {
	return entities.TokensToAmount(n)
}

// ledgerHarness wires a ledger engine to the in-memory store and lock manager
type ledgerHarness struct {
	engine      *application.LedgerEngine
	store       *memstore.Store
	repoFactory *memstore.UnitOfWorkFactory
	uowFactory  *infrastructure.UnitOfWorkFactory
	locks       *infrastructure.MemoryLockManager
	gateway     *testhelpers.MockChainGateway
	publisher   *testhelpers.RecordingPublisher
	alerter     *testhelpers.RecordingAlerter
	metrics     *recordingMetrics
	accounts    entities.SystemAccounts
}

func newLedgerHarness(t *testing.T, configure ...func(*application.LedgerConfig)) *ledgerHarness {
	t.Helper()

	cfg := application.DefaultLedgerConfig()
	cfg.HolderID = "test"
	for _, fn := range configure {
		fn(&cfg)
	}

	store := memstore.NewStore(cfg.Accounts)
	repoFactory := memstore.NewUnitOfWorkFactory(store)
	publisher := &testhelpers.RecordingPublisher{}
	locks := infrastructure.NewMemoryLockManager()
	gateway := &testhelpers.MockChainGateway{}
	alerter := &testhelpers.RecordingAlerter{}
	metrics := &recordingMetrics{}

	uowFactory := infrastructure.NewUnitOfWorkFactory(repoFactory, publisher)
	engine := application.NewLedgerEngine(
		uowFactory,
		locks,
		gateway,
		alerter,
		cfg,
	)
	engine.SetMetrics(metrics)

	return &ledgerHarness{
		engine:      engine,
		store:       store,
		repoFactory: repoFactory,
		uowFactory:  uowFactory,
		locks:       locks,
		gateway:     gateway,
		publisher:   publisher,
		alerter:     alerter,
		metrics:     metrics,
		accounts:    cfg.Accounts,
	}
}

// engineFactory returns the unit of work factory shared by the harness engine
func (h *ledgerHarness) engineFactory() application.UnitOfWorkFactory {
	return h.uowFactory
}

func depositOf(user entities.AccountID, amount entities.Amount, txHash string) dto.DepositRequest {
	return dto.DepositRequest{User: user, Amount: amount, TxHash: txHash}
}

// fund credits user through an on-chain deposit
func (h *ledgerHarness) fund(t *testing.T, user entities.AccountID, amount entities.Amount, txHash string) {
	t.Helper()
	_, err := h.engine.ProcessDeposit(context.Background(), depositOf(user, amount, txHash))
	require.NoError(t, err)
}

func (h *ledgerHarness) balance(t *testing.T, account entities.AccountID) entities.Amount {
	t.Helper()
	balance, err := h.engine.GetBalance(context.Background(), account)
	require.NoError(t, err)
	return balance
}

// requireConsistent asserts that cached balances equal the fold of the ledger
func (h *ledgerHarness) requireConsistent(t *testing.T) {
	t.Helper()
	mismatches, err := h.engine.AuditBalances(context.Background())
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

// withUnitOfWork runs fn against the store directly, bypassing the engine
func (h *ledgerHarness) withUnitOfWork(t *testing.T, fn func(uow application.UnitOfWork)) {
	t.Helper()
	uow := h.repoFactory.CreateWithPublisher(infrastructure.NewTransactionalPublisher(infrastructure.NewNoopEventPublisher()))
	require.NoError(t, uow.Begin(context.Background()))
	fn(uow)
	require.NoError(t, uow.Commit())
}

// recordingMetrics counts metric calls for assertions
type recordingMetrics struct {
	mu              sync.Mutex
	operations      map[string]int
	lockRejections  map[string]int
	deposits        map[string]int
	gatewayFailures int
	reconciliations int
	lastDrift       int64
}

func (m *recordingMetrics) RecordLedgerOperation(operation string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.operations == nil {
		m.operations = make(map[string]int)
	}
	m.operations[operation+"/"+outcome]++
}

func (m *recordingMetrics) RecordLockRejected(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockRejections == nil {
		m.lockRejections = make(map[string]int)
	}
	m.lockRejections[operation]++
}

func (m *recordingMetrics) RecordDeposit(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deposits == nil {
		m.deposits = make(map[string]int)
	}
	m.deposits[outcome]++
}

func (m *recordingMetrics) RecordGatewayFailure(bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gatewayFailures++
}

func (m *recordingMetrics) RecordReconciliation(difference int64, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciliations++
	m.lastDrift = difference
}

func (m *recordingMetrics) operation(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operations[key]
}

func (m *recordingMetrics) deposit(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deposits[outcome]
}

func (m *recordingMetrics) lockRejected(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockRejections[operation]
}

// fixedClock returns a settable time source
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(start time.Time) *fixedClock {
	return &fixedClock{now: start}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
