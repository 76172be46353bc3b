package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/liqwatch/liqwatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRefreshInFlight is returned when a refresh is requested while a
// previous one has not settled yet. The new request is dropped, not
// queued.
var ErrRefreshInFlight = errors.New("price refresh already in flight")

// ErrAllFetchesFailed is returned when no symbol in a refresh batch
// could be priced. Store state is left unchanged.
var ErrAllFetchesFailed = errors.New("all price fetches failed")

// Refresher periodically gathers the distinct symbols across open
// positions, fetches their prices concurrently and merges the results
// into the portfolio. Per-symbol failures are absorbed into stale-data
// semantics; only a fully failed batch is surfaced.
type Refresher struct {
	feed      domain.PriceFeed
	portfolio *PortfolioService
	alerts    *AlertEvaluator
	notifier  domain.Notifier
	logger    *zap.Logger

	interval     time.Duration
	fetchTimeout time.Duration

	mu          sync.Mutex
	inFlight    bool
	lastRefresh time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewRefresher(
	feed domain.PriceFeed,
	portfolio *PortfolioService,
	notifier domain.Notifier,
	logger *zap.Logger,
	interval time.Duration,
	fetchTimeout time.Duration,
) *Refresher {
	return &Refresher{
		feed:         feed,
		portfolio:    portfolio,
		alerts:       NewAlertEvaluator(),
		notifier:     notifier,
		logger:       logger,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		stop:         make(chan struct{}),
	}
}

// Start runs the refresh loop until ctx is cancelled or Stop is
// called. Ticks with no open positions are skipped.
func (r *Refresher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if len(r.portfolio.OpenSymbols()) == 0 {
					continue
				}
				if err := r.RefreshNow(ctx); err != nil && !errors.Is(err, ErrRefreshInFlight) {
					r.logger.Warn("scheduled refresh failed", zap.Error(err))
				}
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// LastRefresh reports when the last batch was applied.
func (r *Refresher) LastRefresh() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefresh
}

// RefreshNow performs one refresh batch. It is a no-op (returning
// ErrRefreshInFlight) while another refresh is still running, so
// overlapping network responses never interleave writes to the same
// records.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return ErrRefreshInFlight
	}
	r.inFlight = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.mu.Unlock()
	}()

	symbols := r.portfolio.OpenSymbols()
	if len(symbols) == 0 {
		return nil
	}

	prices := r.fetchPrices(ctx, symbols)
	if len(prices) == 0 {
		r.logger.Warn("price refresh batch failed for all symbols", zap.Strings("symbols", symbols))
		r.notifier.Notify(domain.SeverityWarning, "Price refresh failed",
			fmt.Sprintf("Could not fetch prices for any of %d symbols; data is stale", len(symbols)))
		return ErrAllFetchesFailed
	}

	updated, err := r.portfolio.UpdatePrices(ctx, prices)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.lastRefresh = time.Now()
	r.mu.Unlock()

	r.logger.Debug("price refresh applied",
		zap.Int("symbols_fetched", len(prices)),
		zap.Int("positions_updated", updated))

	if critical := r.alerts.CriticalCount(r.portfolio.List()); critical > 0 {
		r.notifier.Notify(domain.SeverityCritical, "Critical risk detected",
			fmt.Sprintf("%d position(s) within 5%% of liquidation", critical))
	}
	return nil
}

// fetchPrices requests all symbols concurrently so batch latency is
// bounded by the slowest fetch, not the sum. Each fetch gets its own
// timeout; a failed symbol is logged and skipped.
func (r *Refresher) fetchPrices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, r.fetchTimeout)
			defer cancel()

			price, err := r.feed.GetPrice(fctx, symbol)
			if err != nil {
				r.logger.Debug("price fetch failed", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}

			mu.Lock()
			prices[symbol] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return prices
}
