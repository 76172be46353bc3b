// Package notify delivers risk alerts raised by the core to whatever
// boundary the operator wires in. The core only calls Notify and never
// consumes a result, so senders are free to log, toast or forward.
package notify

import (
	"github.com/liqwatch/liqwatch/internal/domain"
	"go.uber.org/zap"
)

// ZapNotifier writes alerts to the structured log.
type ZapNotifier struct {
	logger *zap.Logger
}

func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	return &ZapNotifier{logger: logger}
}

func (n *ZapNotifier) Notify(severity domain.Severity, title, message string) {
	fields := []zap.Field{
		zap.String("severity", string(severity)),
		zap.String("title", title),
	}
	switch severity {
	case domain.SeverityCritical:
		n.logger.Error(message, fields...)
	case domain.SeverityWarning:
		n.logger.Warn(message, fields...)
	default:
		n.logger.Info(message, fields...)
	}
}

// Multi fans an alert out to several sinks. A slow or failing sink
// does not block the others; delivery is fire-and-forget.
type Multi struct {
	sinks []domain.Notifier
}

func NewMulti(sinks ...domain.Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(severity domain.Severity, title, message string) {
	for _, sink := range m.sinks {
		sink.Notify(severity, title, message)
	}
}
