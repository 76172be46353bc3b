package tests

import (
	"context"
	"errors"
	"sync"

	"github.com/liqwatch/liqwatch/internal/domain"
)

// MockFeed serves prices from an in-memory map that tests mutate to
// simulate market moves.
type MockFeed struct {
	mu     sync.Mutex
	prices map[string]float64
}

func NewMockFeed() *MockFeed {
	return &MockFeed{prices: make(map[string]float64)}
}

func (m *MockFeed) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

func (m *MockFeed) Drop(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prices, symbol)
}

func (m *MockFeed) GetPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	if !ok {
		return 0, errors.New("symbol not found")
	}
	return price, nil
}

// MockNotifier records alerts raised during a scenario.
type MockNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (m *MockNotifier) Notify(severity domain.Severity, title, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, string(severity)+": "+title)
}

func (m *MockNotifier) Alerts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.alerts...)
}
