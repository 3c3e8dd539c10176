package testhelpers

import (
	"context"
	"time"

	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockChainGateway is a mock implementation of ChainGateway
type MockChainGateway struct {
	mock.Mock
}

func (m *MockChainGateway) GetTreasuryBalance(ctx context.Context) (entities.Amount, error) {
	args := m.Called(ctx)
	return args.Get(0).(entities.Amount), args.Error(1)
}

func (m *MockChainGateway) SubmitTransfer(ctx context.Context, toAddress string, amount entities.Amount) (string, error) {
	args := m.Called(ctx, toAddress, amount)
	return args.String(0), args.Error(1)
}

func (m *MockChainGateway) VerifyIncomingTransfer(ctx context.Context, txHash string) (entities.VerificationResult, error) {
	args := m.Called(ctx, txHash)
	return args.Get(0).(entities.VerificationResult), args.Error(1)
}

// MockRateProvider is a mock implementation of RateProvider
type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) GetRate(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockAlerter is a mock implementation of Alerter
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, title string, message string) error {
	args := m.Called(ctx, title, message)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockLockManager is a mock implementation of LockManager
type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) Acquire(ctx context.Context, key string, holder string, ttl time.Duration) (*entities.Lock, error) {
	args := m.Called(ctx, key, holder, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Lock), args.Error(1)
}

func (m *MockLockManager) Release(ctx context.Context, lock *entities.Lock) error {
	args := m.Called(ctx, lock)
	return args.Error(0)
}

func (m *MockLockManager) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
