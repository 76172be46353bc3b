package usecase

import (
	"github.com/liqwatch/liqwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// Valuation is pure math over position parameters and a price. Every
// function here is deterministic and side-effect free.

// Round8 rounds to 8 decimal places for storage and display. Chained
// calculations should use the unrounded value.
func Round8(v float64) float64 {
	return decimal.NewFromFloat(v).Round(8).InexactFloat64()
}

// LiquidationPrice computes the price at which the position's margin is
// fully consumed. Callers must validate leverage > 1 first; the formula
// degenerates below that.
func LiquidationPrice(entryPrice, leverage float64, positionType domain.PositionType) float64 {
	if positionType == domain.TypeShort {
		return Round8(entryPrice * (1 + 1/leverage))
	}
	return Round8(entryPrice * (1 - 1/leverage))
}

// UnrealizedPnL returns the paper profit/loss and the leveraged return
// percentage for a position at the given price. The result is linear in
// leverage and is NOT clamped at the liquidation boundary, so a loss
// can mathematically exceed the committed margin.
func UnrealizedPnL(pos *domain.Position, currentPrice float64) (pnl, pnlPct float64) {
	priceChangePct := (currentPrice - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.PositionType == domain.TypeShort {
		priceChangePct = -priceChangePct
	}
	pnlPct = priceChangePct * pos.Leverage
	pnl = pos.PositionSize * pnlPct / 100
	return pnl, pnlPct
}

// DistanceToLiquidation returns the adverse price movement remaining
// before liquidation, as a percentage of the current price. Negative
// distance (price already past liquidation) is possible.
func DistanceToLiquidation(positionType domain.PositionType, liquidationPrice, currentPrice float64) float64 {
	if positionType == domain.TypeShort {
		return (liquidationPrice - currentPrice) / currentPrice * 100
	}
	return (currentPrice - liquidationPrice) / currentPrice * 100
}

// RiskLevelAt classifies a live position by its distance to
// liquidation. Classification uses the unclamped distance; the
// distance returned to callers is clamped to zero for display.
func RiskLevelAt(positionType domain.PositionType, liquidationPrice, currentPrice float64) (domain.RiskLevel, float64) {
	distance := DistanceToLiquidation(positionType, liquidationPrice, currentPrice)

	var level domain.RiskLevel
	switch {
	case distance <= 5:
		level = domain.RiskCritical
	case distance <= 15:
		level = domain.RiskHigh
	case distance <= 30:
		level = domain.RiskMedium
	default:
		level = domain.RiskLow
	}

	if distance < 0 {
		distance = 0
	}
	return level, distance
}

// InitialRiskLevel classifies a position at creation time, before any
// live price is known, from leverage alone. This deliberately uses a
// coarser scale than RiskLevelAt: a freshly opened position is never
// Critical.
func InitialRiskLevel(leverage float64) domain.RiskLevel {
	switch {
	case leverage <= 5:
		return domain.RiskLow
	case leverage <= 15:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// Calculate derives the entry-time metrics for a validated position.
func Calculate(pos *domain.Position) *domain.CalculationResult {
	return &domain.CalculationResult{
		LiquidationPrice: LiquidationPrice(pos.EntryPrice, pos.Leverage, pos.PositionType),
		MarginRequired:   pos.MarginUsed,
		RiskPercentage:   100 / pos.Leverage,
		ProfitLossRatio:  pos.Leverage,
	}
}
