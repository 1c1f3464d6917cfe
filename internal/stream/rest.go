package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pitchside/commentary-engine/internal/events"
	"github.com/pitchside/commentary-engine/internal/state"
	"github.com/rs/zerolog"
)

// APIClient talks to the upstream REST surface: the missed-events
// endpoint used for catch-up and the current-match endpoint used for
// match discovery.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewAPIClient creates a REST client for the upstream API.
func NewAPIClient(baseURL string, log zerolog.Logger) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// FetchMissedEvents returns the events delivered after afterID for the
// match, in chronological order. 404 or an empty array means no missed
// events. Malformed entries are logged and skipped.
func (c *APIClient) FetchMissedEvents(ctx context.Context, matchID, afterID string) ([]*events.Event, error) {
	endpoint := c.baseURL + "/commentary/missed-events"
	params := url.Values{}
	params.Set("match_id", matchID)
	if afterID != "" {
		params.Set("after_id", afterID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create missed-events request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("missed-events request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("missed-events endpoint returned status %d", resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode missed-events response: %w", err)
	}

	evs := make([]*events.Event, 0, len(raw))
	for _, r := range raw {
		ev, err := events.Parse(r)
		if err != nil {
			c.log.Warn().Err(err).Msg("Skipping malformed missed event")
			continue
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

// currentMatchResponse wraps the current-match payload.
type currentMatchResponse struct {
	Message string           `json:"message"`
	Match   *state.MatchInfo `json:"match"`
}

// FetchCurrentMatch returns the active match, or nil when none is
// scheduled.
func (c *APIClient) FetchCurrentMatch(ctx context.Context) (*state.MatchInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/matches/current", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create current-match request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("current-match request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("current-match endpoint returned status %d", resp.StatusCode)
	}

	var body currentMatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode current-match response: %w", err)
	}
	return body.Match, nil
}
