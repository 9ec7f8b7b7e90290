package infra

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// Control API paths served by the monitor.
const (
	StatusPath      = "/v1/status"
	NavigationsPath = "/v1/navigations"
	RequestsPath    = "/v1/requests"
	AlertsPath      = "/v1/alerts"
)

// MonitorClient talks to a running monitor's control API.
type MonitorClient struct {
	client *resty.Client
	// stream has no timeout; alert streams stay open until canceled.
	stream *resty.Client
}

// NewMonitorClient creates a client for the monitor listening on addr.
func NewMonitorClient(addr string, timeout time.Duration) *MonitorClient {
	base := normalizeBaseURL(addr)
	return &MonitorClient{
		client: resty.New().
			SetBaseURL(base).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		stream: resty.New().
			SetBaseURL(base).
			SetHeader("Accept", "text/event-stream"),
	}
}

// Status fetches the monitor's self-report.
func (c *MonitorClient) Status(ctx context.Context) (*domain.MonitorStatus, error) {
	var out domain.MonitorStatus
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(StatusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitor status: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportNavigation hands a completed navigation to the monitor's pipeline.
// It reports whether the monitor accepted it for processing.
func (c *MonitorClient) ReportNavigation(ctx context.Context, nav domain.Navigation) (bool, error) {
	var out struct {
		Accepted bool `json:"accepted"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(nav).
		SetResult(&out).
		Post(NavigationsPath)
	if err != nil {
		return false, fmt.Errorf("failed to report navigation: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return false, err
	}
	return out.Accepted, nil
}

// Decide asks the monitor whether an outbound request may proceed.
func (c *MonitorClient) Decide(ctx context.Context, req domain.RequestDetails) (domain.Decision, error) {
	var out struct {
		Decision domain.Decision `json:"decision"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(RequestsPath)
	if err != nil {
		return "", fmt.Errorf("failed to request decision: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return "", err
	}
	return out.Decision, nil
}

// StreamAlerts calls fn for every alert the monitor publishes until ctx is
// canceled or the monitor closes the stream.
func (c *MonitorClient) StreamAlerts(ctx context.Context, fn func(domain.Alert)) error {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(AlertsPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to open alert stream: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return fmt.Errorf("alert stream: http %d", resp.StatusCode())
	}

	scanner := bufio.NewScanner(body)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				var alert domain.Alert
				if err := json.Unmarshal([]byte(data.String()), &alert); err == nil {
					fn(alert)
				}
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("alert stream interrupted: %w", err)
	}
	return nil
}
