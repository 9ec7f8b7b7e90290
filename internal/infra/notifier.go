package infra

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// NotifierFunc adapts a function to domain.Notifier.
type NotifierFunc func(alert domain.Alert)

// Notify calls f.
func (f NotifierFunc) Notify(alert domain.Alert) { f(alert) }

// LogNotifier writes every alert to the daemon log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert at warn level.
func (n *LogNotifier) Notify(alert domain.Alert) {
	n.logger.Warn(alert.Title,
		zap.String("alert_id", alert.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("message", alert.Message),
		zap.String("url", alert.URL))
}

// MultiNotifier delivers each alert to every sink in order.
type MultiNotifier []domain.Notifier

// Notify fans the alert out. A panicking sink does not stop the others.
func (m MultiNotifier) Notify(alert domain.Alert) {
	for _, n := range m {
		func() {
			defer func() { _ = recover() }()
			n.Notify(alert)
		}()
	}
}

// Ensure notifiers implement domain.Notifier.
var (
	_ domain.Notifier = NotifierFunc(nil)
	_ domain.Notifier = (*LogNotifier)(nil)
	_ domain.Notifier = MultiNotifier(nil)
)
