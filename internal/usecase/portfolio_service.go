package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/liqwatch/liqwatch/internal/domain"
	"go.uber.org/zap"
)

// entryPriceTolerance is the band within which two entry prices are
// considered the same for duplicate detection.
const entryPriceTolerance = 0.01

// PortfolioService owns the ordered collection of portfolio positions
// (most-recent-first) and applies the create/update/close/remove
// transitions. Every mutation is persisted through the repository.
type PortfolioService struct {
	repo   domain.PositionRepository
	logger *zap.Logger

	mu        sync.RWMutex
	positions []*domain.PortfolioPosition

	timeNow func() time.Time // For testing
}

func NewPortfolioService(repo domain.PositionRepository, logger *zap.Logger) *PortfolioService {
	return &PortfolioService{
		repo:    repo,
		logger:  logger,
		timeNow: time.Now,
	}
}

// Load restores the collection from storage. Missing or corrupt
// storage yields an empty portfolio, not a failure.
func (s *PortfolioService) Load(ctx context.Context) error {
	positions, err := s.repo.ListPositions(ctx)
	if err != nil {
		s.logger.Warn("failed to load positions, starting empty", zap.Error(err))
		positions = nil
	}

	s.mu.Lock()
	s.positions = positions
	s.mu.Unlock()
	return nil
}

// List returns a snapshot of all positions, most recent first.
func (s *PortfolioService) List() []*domain.PortfolioPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.PortfolioPosition, len(s.positions))
	for i, p := range s.positions {
		cp := *p
		out[i] = &cp
	}
	return out
}

// Get returns a copy of the position with the given id.
func (s *PortfolioService) Get(id string) (*domain.PortfolioPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPositionNotFound
}

// Add promotes a validated position into the portfolio. A candidate
// matching an existing open position on symbol, side and leverage with
// an entry price within the tolerance is rejected, not merged.
func (s *PortfolioService) Add(ctx context.Context, pos *domain.Position) (*domain.PortfolioPosition, error) {
	calc := Calculate(pos)

	s.mu.Lock()
	for _, existing := range s.positions {
		if !existing.IsOpen() {
			continue
		}
		if existing.Symbol == pos.Symbol &&
			existing.PositionType == pos.PositionType &&
			existing.Leverage == pos.Leverage &&
			math.Abs(existing.EntryPrice-pos.EntryPrice) < entryPriceTolerance {
			s.mu.Unlock()
			return nil, domain.ErrDuplicatePosition
		}
	}

	tracked := Promote(pos, calc, s.timeNow())
	s.positions = append([]*domain.PortfolioPosition{tracked}, s.positions...)
	s.mu.Unlock()

	if err := s.repo.UpsertPosition(ctx, tracked); err != nil {
		// Roll back so a failed add leaves no phantom in memory.
		s.mu.Lock()
		for i, p := range s.positions {
			if p.ID == tracked.ID {
				s.positions = append(s.positions[:i], s.positions[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to persist position: %w", err)
	}

	cp := *tracked
	return &cp, nil
}

// UpdatePrices applies a batch of fresh prices. Open positions whose
// symbol appears in the map get their derived fields recomputed;
// closed positions and symbols absent from the map pass through
// unchanged. Applying the same map twice yields identical records.
func (s *PortfolioService) UpdatePrices(ctx context.Context, prices map[string]float64) (int, error) {
	now := s.timeNow()
	var changed []*domain.PortfolioPosition

	s.mu.Lock()
	for _, p := range s.positions {
		if !p.IsOpen() {
			continue
		}
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}

		pnl, pnlPct := UnrealizedPnL(&p.Position, price)
		level, distance := RiskLevelAt(p.PositionType, p.LiquidationPrice, price)

		p.CurrentPrice = price
		p.UnrealizedPnL = Round8(pnl)
		p.UnrealizedPnLPct = Round8(pnlPct)
		p.RiskLevel = level
		p.DistanceToLiq = Round8(distance)
		p.LastUpdated = now

		changed = append(changed, p)
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return 0, nil
	}

	if err := s.repo.UpsertPositions(ctx, changed); err != nil {
		return len(changed), fmt.Errorf("failed to persist refreshed positions: %w", err)
	}
	return len(changed), nil
}

// Close transitions an open position to closed, freezing the exit
// fields. Realized P&L is the unrealized P&L at the exit price.
func (s *PortfolioService) Close(ctx context.Context, id string, exitPrice float64, reason domain.CloseReason, notes string) (*domain.PortfolioPosition, error) {
	if exitPrice <= 0 {
		return nil, domain.NewValidationError("exit_price", "must be positive")
	}

	s.mu.Lock()
	var target *domain.PortfolioPosition
	for _, p := range s.positions {
		if p.ID == id {
			target = p
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return nil, domain.ErrPositionNotFound
	}
	if !target.IsOpen() {
		s.mu.Unlock()
		return nil, domain.ErrPositionClosed
	}

	pnl, _ := UnrealizedPnL(&target.Position, exitPrice)
	realized := Round8(pnl)
	exitDate := s.timeNow()

	target.Status = domain.StatusClosed
	target.ExitPrice = &exitPrice
	target.ExitDate = &exitDate
	target.RealizedPnL = &realized
	target.CloseReason = &reason
	target.Notes = notes
	s.mu.Unlock()

	if err := s.repo.UpsertPosition(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to persist closed position: %w", err)
	}

	cp := *target
	return &cp, nil
}

// Remove deletes a position regardless of status.
func (s *PortfolioService) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := -1
	for i, p := range s.positions {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return domain.ErrPositionNotFound
	}
	s.positions = append(s.positions[:idx], s.positions[idx+1:]...)
	s.mu.Unlock()

	if err := s.repo.DeletePosition(ctx, id); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// OpenSymbols returns the distinct symbols across open positions.
func (s *PortfolioService) OpenSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var symbols []string
	for _, p := range s.positions {
		if p.IsOpen() && !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	return symbols
}

// Counts returns the number of open and closed positions.
func (s *PortfolioService) Counts() (open, closed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions {
		if p.IsOpen() {
			open++
		} else {
			closed++
		}
	}
	return open, closed
}
