package domain

import "time"

type PositionType string

const (
	TypeLong  PositionType = "LONG"
	TypeShort PositionType = "SHORT"
)

type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

type CloseReason string

const (
	CloseManual     CloseReason = "MANUAL"
	CloseTakeProfit CloseReason = "TAKE_PROFIT"
	CloseStopLoss   CloseReason = "STOP_LOSS"
	CloseLiquidated CloseReason = "LIQUIDATED"
)

// Position holds the immutable entry parameters of a leveraged trade.
type Position struct {
	Symbol       string       `json:"symbol"`
	EntryPrice   float64      `json:"entry_price"`
	Leverage     float64      `json:"leverage"`
	PositionType PositionType `json:"position_type"`
	PositionSize float64      `json:"position_size"` // USD notional
	MarginUsed   float64      `json:"margin_used"`   // PositionSize / Leverage
}

// CalculationResult is derived from a Position at entry time.
type CalculationResult struct {
	LiquidationPrice float64 `json:"liquidation_price"`
	MarginRequired   float64 `json:"margin_required"`
	RiskPercentage   float64 `json:"risk_percentage"`   // 100 / leverage
	ProfitLossRatio  float64 `json:"profit_loss_ratio"` // leverage multiplier on price change
}

// PortfolioPosition is the tracked lifecycle entity: a Position plus
// the fields mutated by price refreshes and the close transition.
// LiquidationPrice depends only on entry parameters and never changes
// after creation. Exit fields are nil until the position is closed.
type PortfolioPosition struct {
	ID string `json:"id"`
	Position

	Status           PositionStatus `json:"status"`
	CurrentPrice     float64        `json:"current_price"`
	LiquidationPrice float64        `json:"liquidation_price"`

	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	UnrealizedPnLPct float64   `json:"unrealized_pnl_pct"`
	RiskLevel        RiskLevel `json:"risk_level"`
	DistanceToLiq    float64   `json:"distance_to_liquidation"` // pct, clamped >= 0
	LastUpdated      time.Time `json:"last_updated"`
	AddedAt          time.Time `json:"added_at"`

	ExitPrice   *float64     `json:"exit_price,omitempty"`
	ExitDate    *time.Time   `json:"exit_date,omitempty"`
	RealizedPnL *float64     `json:"realized_pnl,omitempty"`
	CloseReason *CloseReason `json:"close_reason,omitempty"`
	Notes       string       `json:"notes,omitempty"`
}

// IsOpen reports whether the position is still subject to price refresh.
func (p *PortfolioPosition) IsOpen() bool {
	return p.Status == StatusOpen
}
