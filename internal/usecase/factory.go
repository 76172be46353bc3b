package usecase

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liqwatch/liqwatch/internal/domain"
)

// NewPosition validates raw input and builds the immutable entry
// parameters of a trade. MarginUsed is derived, never accepted from
// the caller.
func NewPosition(symbol string, entryPrice, leverage float64, positionType domain.PositionType, positionSize float64) (*domain.Position, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, domain.NewValidationError("symbol", "must not be empty")
	}
	if entryPrice <= 0 {
		return nil, domain.NewValidationError("entry_price", "must be positive")
	}
	if leverage <= 1 {
		return nil, domain.NewValidationError("leverage", "must be greater than 1")
	}
	if positionSize <= 0 {
		return nil, domain.NewValidationError("position_size", "must be positive")
	}
	if positionType != domain.TypeLong && positionType != domain.TypeShort {
		return nil, domain.NewValidationError("position_type", "must be LONG or SHORT")
	}

	return &domain.Position{
		Symbol:       symbol,
		EntryPrice:   entryPrice,
		Leverage:     leverage,
		PositionType: positionType,
		PositionSize: positionSize,
		MarginUsed:   positionSize / leverage,
	}, nil
}

// Promote turns a validated Position and its entry-time calculation
// into a tracked portfolio entity. The id is unique per store; the
// current price starts at the entry price and the risk level comes
// from the leverage-only creation-time rule.
func Promote(pos *domain.Position, calc *domain.CalculationResult, now time.Time) *domain.PortfolioPosition {
	return &domain.PortfolioPosition{
		ID:               uuid.NewString(),
		Position:         *pos,
		Status:           domain.StatusOpen,
		CurrentPrice:     pos.EntryPrice,
		LiquidationPrice: calc.LiquidationPrice,
		RiskLevel:        InitialRiskLevel(pos.Leverage),
		DistanceToLiq:    Round8(DistanceToLiquidation(pos.PositionType, calc.LiquidationPrice, pos.EntryPrice)),
		LastUpdated:      now,
		AddedAt:          now,
	}
}
