package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/liqwatch/liqwatch/internal/domain"
)

// MockRepo records persistence calls for store tests.
type MockRepo struct {
	mu        sync.Mutex
	Stored    []*domain.PortfolioPosition
	Upserts   int
	Deleted   []string
	ListErr   error
	UpsertErr error
}

func (m *MockRepo) ListPositions(ctx context.Context) ([]*domain.PortfolioPosition, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Stored, nil
}

func (m *MockRepo) UpsertPosition(ctx context.Context, pos *domain.PortfolioPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.Upserts++
	return nil
}

func (m *MockRepo) UpsertPositions(ctx context.Context, positions []*domain.PortfolioPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.Upserts += len(positions)
	return nil
}

func (m *MockRepo) DeletePosition(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, id)
	return nil
}

// MockFeed serves prices from a fixed map. Symbols in Failing error
// out; Block, when set, stalls every fetch until the channel closes,
// signalling Started first so tests can synchronize on the stall.
type MockFeed struct {
	mu      sync.Mutex
	Prices  map[string]float64
	Failing map[string]bool
	Block   chan struct{}
	Started chan struct{}
	Calls   int
}

func (m *MockFeed) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if m.Block != nil {
		if m.Started != nil {
			select {
			case m.Started <- struct{}{}:
			default:
			}
		}
		select {
		case <-m.Block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Failing[symbol] {
		return 0, errors.New("feed unavailable")
	}
	price, ok := m.Prices[symbol]
	if !ok {
		return 0, errors.New("symbol not found")
	}
	return price, nil
}

func (m *MockFeed) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockNotifier records emitted alerts.
type MockNotifier struct {
	mu     sync.Mutex
	Alerts []MockAlert
}

type MockAlert struct {
	Severity domain.Severity
	Title    string
	Message  string
}

func (m *MockNotifier) Notify(severity domain.Severity, title, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, MockAlert{Severity: severity, Title: title, Message: message})
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}
