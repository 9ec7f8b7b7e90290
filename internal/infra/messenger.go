package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// MessagesPath is the monitor endpoint that receives probe messages.
const MessagesPath = "/v1/messages"

// HTTPMessenger implements domain.Messenger by posting to the monitor's
// control API.
type HTTPMessenger struct {
	client *resty.Client
}

// NewHTTPMessenger creates a messenger targeting the monitor at addr.
func NewHTTPMessenger(addr string, timeout time.Duration) *HTTPMessenger {
	return &HTTPMessenger{
		client: resty.New().
			SetBaseURL(normalizeBaseURL(addr)).
			SetTimeout(timeout),
	}
}

// Send posts msg and decodes the monitor's reply.
func (m *HTTPMessenger) Send(ctx context.Context, msg domain.Message) (*domain.Response, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(MessagesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}

	var out domain.Response
	if len(resp.Body()) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Ensure HTTPMessenger implements domain.Messenger.
var _ domain.Messenger = (*HTTPMessenger)(nil)
