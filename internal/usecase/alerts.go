package usecase

import "github.com/liqwatch/liqwatch/internal/domain"

// AlertEvaluator scans refreshed positions for risk threshold breaches.
type AlertEvaluator struct{}

func NewAlertEvaluator() *AlertEvaluator {
	return &AlertEvaluator{}
}

// CriticalCount returns how many open positions sit in the Critical
// tier. The refresher raises a single alert carrying this count rather
// than one alert per position, so a market-wide move does not produce
// an alert storm.
func (e *AlertEvaluator) CriticalCount(positions []*domain.PortfolioPosition) int {
	count := 0
	for _, p := range positions {
		if p.IsOpen() && p.RiskLevel == domain.RiskCritical {
			count++
		}
	}
	return count
}
