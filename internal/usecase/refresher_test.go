package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/liqwatch/liqwatch/internal/domain"
	"go.uber.org/zap"
)

func newTestRefresher(feed *MockFeed, notifier *MockNotifier) (*Refresher, *PortfolioService) {
	svc := newTestService(&MockRepo{})
	r := NewRefresher(feed, svc, notifier, zap.NewNop(), time.Minute, time.Second)
	return r, svc
}

func TestRefreshNowMergesPrices(t *testing.T) {
	feed := &MockFeed{Prices: map[string]float64{
		"BTCUSDT": 51000,
		"ETHUSDT": 2950,
	}}
	notifier := &MockNotifier{}
	r, svc := newTestRefresher(feed, notifier)
	ctx := context.Background()

	btc, _ := svc.Add(ctx, mustPosition(t, "BTCUSDT", 50000, 10, domain.TypeLong, 1000))
	eth, _ := svc.Add(ctx, mustPosition(t, "ETHUSDT", 3000, 4, domain.TypeShort, 2000))

	if err := r.RefreshNow(ctx); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}

	got, _ := svc.Get(btc.ID)
	if got.CurrentPrice != 51000 {
		t.Errorf("btc price = %f, want 51000", got.CurrentPrice)
	}
	got, _ = svc.Get(eth.ID)
	if got.CurrentPrice != 2950 {
		t.Errorf("eth price = %f, want 2950", got.CurrentPrice)
	}
	if r.LastRefresh().IsZero() {
		t.Errorf("expected last refresh timestamp to be set")
	}
}

func TestRefreshNowPartialFailure(t *testing.T) {
	feed := &MockFeed{
		Prices:  map[string]float64{"BTCUSDT": 51000},
		Failing: map[string]bool{"ETHUSDT": true},
	}
	notifier := &MockNotifier{}
	r, svc := newTestRefresher(feed, notifier)
	ctx := context.Background()

	btc, _ := svc.Add(ctx, mustPosition(t, "BTCUSDT", 50000, 10, domain.TypeLong, 1000))
	eth, _ := svc.Add(ctx, mustPosition(t, "ETHUSDT", 3000, 4, domain.TypeShort, 2000))

	if err := r.RefreshNow(ctx); err != nil {
		t.Fatalf("partial failure must not abort the batch: %v", err)
	}

	got, _ := svc.Get(btc.ID)
	if got.CurrentPrice != 51000 {
		t.Errorf("fetched symbol should be updated")
	}
	got, _ = svc.Get(eth.ID)
	if got.CurrentPrice != 3000 {
		t.Errorf("failed symbol should keep its last known price")
	}
	// Per-symbol failures are silent; no user-facing alert.
	if notifier.Count() != 0 {
		t.Errorf("expected no alerts, got %d", notifier.Count())
	}
}

func TestRefreshNowBatchFailure(t *testing.T) {
	feed := &MockFeed{
		Failing: map[string]bool{"BTCUSDT": true, "ETHUSDT": true},
	}
	notifier := &MockNotifier{}
	r, svc := newTestRefresher(feed, notifier)
	ctx := context.Background()

	svc.Add(ctx, mustPosition(t, "BTCUSDT", 50000, 10, domain.TypeLong, 1000))
	svc.Add(ctx, mustPosition(t, "ETHUSDT", 3000, 4, domain.TypeShort, 2000))

	err := r.RefreshNow(ctx)
	if !errors.Is(err, ErrAllFetchesFailed) {
		t.Fatalf("expected ErrAllFetchesFailed, got %v", err)
	}
	if notifier.Count() != 1 {
		t.Fatalf("expected a single batch failure alert, got %d", notifier.Count())
	}
	if notifier.Alerts[0].Severity != domain.SeverityWarning {
		t.Errorf("expected WARNING severity, got %s", notifier.Alerts[0].Severity)
	}

	// Store state is untouched.
	for _, p := range svc.List() {
		if p.CurrentPrice != p.EntryPrice {
			t.Errorf("store mutated on batch failure: %+v", p)
		}
	}
}

func TestRefreshNowNoOpenPositions(t *testing.T) {
	feed := &MockFeed{}
	r, _ := newTestRefresher(feed, &MockNotifier{})

	if err := r.RefreshNow(context.Background()); err != nil {
		t.Fatalf("empty portfolio refresh should succeed: %v", err)
	}
	if feed.Calls != 0 {
		t.Errorf("expected no fetches, got %d", feed.Calls)
	}
}

func TestRefreshNowReentrancyGuard(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	feed := &MockFeed{
		Prices:  map[string]float64{"BTCUSDT": 51000},
		Block:   block,
		Started: started,
	}
	r, svc := newTestRefresher(feed, &MockNotifier{})
	ctx := context.Background()

	svc.Add(ctx, mustPosition(t, "BTCUSDT", 50000, 10, domain.TypeLong, 1000))

	done := make(chan error, 1)
	go func() {
		done <- r.RefreshNow(ctx)
	}()

	// Wait until the first refresh is stalled inside its fetch.
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first refresh never reached the feed")
	}

	// A request while one is in flight is dropped, not queued.
	if err := r.RefreshNow(ctx); !errors.Is(err, ErrRefreshInFlight) {
		t.Fatalf("expected ErrRefreshInFlight, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	// Guard is released after the batch settles.
	if err := r.RefreshNow(ctx); err != nil {
		t.Errorf("refresh after settle should succeed, got %v", err)
	}
}

func TestRefreshNowCriticalAlert(t *testing.T) {
	// Long 10x from 50000 liquidates at 45000; at 45500 the distance
	// is ~1.1%, deep in the Critical tier.
	feed := &MockFeed{Prices: map[string]float64{
		"BTCUSDT": 45500,
		"ETHUSDT": 3000,
	}}
	notifier := &MockNotifier{}
	r, svc := newTestRefresher(feed, notifier)
	ctx := context.Background()

	svc.Add(ctx, mustPosition(t, "BTCUSDT", 50000, 10, domain.TypeLong, 1000))
	svc.Add(ctx, mustPosition(t, "BTCUSDT", 50000, 20, domain.TypeLong, 1000))
	svc.Add(ctx, mustPosition(t, "ETHUSDT", 3000, 4, domain.TypeShort, 2000))

	if err := r.RefreshNow(ctx); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}

	// One alert carrying the count, not one alert per position.
	if notifier.Count() != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", notifier.Count())
	}
	alert := notifier.Alerts[0]
	if alert.Severity != domain.SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %s", alert.Severity)
	}
	if want := "2 position(s) within 5% of liquidation"; alert.Message != want {
		t.Errorf("alert message = %q, want %q", alert.Message, want)
	}
}

func TestScheduledRefreshStops(t *testing.T) {
	feed := &MockFeed{Prices: map[string]float64{"BTCUSDT": 51000}}
	svc := newTestService(&MockRepo{})
	r := NewRefresher(feed, svc, &MockNotifier{}, zap.NewNop(), 5*time.Millisecond, time.Second)
	ctx := context.Background()

	svc.Add(ctx, mustPosition(t, "BTCUSDT", 50000, 10, domain.TypeLong, 1000))

	r.Start(ctx)
	deadline := time.After(time.Second)
	for feed.CallCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled refresh never ran")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	r.Stop()

	time.Sleep(20 * time.Millisecond)
	settled := feed.CallCount()
	time.Sleep(30 * time.Millisecond)
	if feed.CallCount() != settled {
		t.Errorf("refresh loop kept running after Stop")
	}
}
