package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// ReportHandler turns page probe reports received by the monitor into alerts.
type ReportHandler struct {
	notifier domain.Notifier
	logger   *zap.Logger
}

// NewReportHandler creates a report handler.
func NewReportHandler(notifier domain.Notifier, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{notifier: notifier, logger: logger}
}

// Handle processes one probe message. Query messages addressed to the page
// and unknown types return domain.ErrUnknownMessage.
func (h *ReportHandler) Handle(ctx context.Context, msg domain.Message) (*domain.Response, error) {
	h.logger.Debug("probe report received",
		zap.String("type", string(msg.Type)),
		zap.String("url", msg.URL))

	switch msg.Type {
	case domain.MsgSuspiciousFormWarning, domain.MsgHTTPFormWarning:
		h.notifier.Notify(sensitiveFormAlert(msg.URL, len(msg.Elements)))
	case domain.MsgPhishingWarning:
		h.notifier.Notify(phishingAlert(msg.URL, ""))
	case domain.MsgCookieScriptDetected:
		h.notifier.Notify(trackingCookiesAlert(msg.URL))
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMessage, msg.Type)
	}
	return &domain.Response{OK: true}, nil
}
