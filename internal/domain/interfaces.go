package domain

import "context"

// PriceFeed returns the current USD price for a symbol. Unknown
// symbols and transport errors are both surfaced as an error; callers
// treat every failure the same way (the position keeps its last known
// price).
type PriceFeed interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// PositionRepository defines storage operations for portfolio positions.
type PositionRepository interface {
	ListPositions(ctx context.Context) ([]*PortfolioPosition, error)
	UpsertPosition(ctx context.Context, pos *PortfolioPosition) error
	UpsertPositions(ctx context.Context, positions []*PortfolioPosition) error
	DeletePosition(ctx context.Context, id string) error
}

// Notifier delivers alerts to the boundary layer. Fire-and-forget:
// the core never consumes a return value.
type Notifier interface {
	Notify(severity Severity, title, message string)
}

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)
