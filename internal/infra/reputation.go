package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

const (
	// DefaultSafeBrowsingURL is the Google Safe Browsing v4 endpoint host.
	DefaultSafeBrowsingURL = "https://safebrowsing.googleapis.com"

	threatMatchesPath = "/v4/threatMatches:find"
	reputationClient  = "focusguard"
)

var threatTypes = []string{
	"MALWARE",
	"SOCIAL_ENGINEERING",
	"UNWANTED_SOFTWARE",
	"POTENTIALLY_HARMFUL_APPLICATION",
}

type threatMatchesRequest struct {
	Client     clientInfo `json:"client"`
	ThreatInfo threatInfo `json:"threatInfo"`
}

type clientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

type threatInfo struct {
	ThreatTypes      []string      `json:"threatTypes"`
	PlatformTypes    []string      `json:"platformTypes"`
	ThreatEntryTypes []string      `json:"threatEntryTypes"`
	ThreatEntries    []threatEntry `json:"threatEntries"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type threatMatchesResponse struct {
	Matches []json.RawMessage `json:"matches"`
}

// SafeBrowsingClient implements domain.ReputationChecker against the
// Safe Browsing threatMatches API.
type SafeBrowsingClient struct {
	client  *resty.Client
	version string
}

// NewSafeBrowsingClient creates a client for baseURL with a request timeout.
func NewSafeBrowsingClient(baseURL string, timeout time.Duration, version string) *SafeBrowsingClient {
	if baseURL == "" {
		baseURL = DefaultSafeBrowsingURL
	}
	client := resty.New().
		SetBaseURL(normalizeBaseURL(baseURL)).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &SafeBrowsingClient{client: client, version: version}
}

// Check posts url for lookup; any entry in matches means unsafe.
func (c *SafeBrowsingClient) Check(ctx context.Context, apiKey, url string) (bool, error) {
	body := threatMatchesRequest{
		Client: clientInfo{ClientID: reputationClient, ClientVersion: c.version},
		ThreatInfo: threatInfo{
			ThreatTypes:      threatTypes,
			PlatformTypes:    []string{"ANY_PLATFORM"},
			ThreatEntryTypes: []string{"URL"},
			ThreatEntries:    []threatEntry{{URL: url}},
		},
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", apiKey).
		SetBody(body).
		Post(threatMatchesPath)
	if err != nil {
		return false, fmt.Errorf("reputation request failed: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return false, err
	}

	var out threatMatchesResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return false, fmt.Errorf("failed to decode reputation response: %w", err)
	}
	return len(out.Matches) > 0, nil
}

// Ensure SafeBrowsingClient implements domain.ReputationChecker.
var _ domain.ReputationChecker = (*SafeBrowsingClient)(nil)
