package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pitchside/commentary-engine/internal/events"
	"github.com/pitchside/commentary-engine/internal/observability"
	"github.com/pitchside/commentary-engine/internal/resilience"
	"github.com/rs/zerolog"
)

// Connection status, exposed for observability.
const (
	StatusReconnecting = "reconnecting"
	StatusConnected    = "connected"
	StatusClosed       = "closed"
)

const pingInterval = 30 * time.Second

// Client owns the long-lived push connection for one match. On every
// (re)connect it first replays missed events from the REST endpoint,
// then opens the websocket and admits each inbound frame; on disconnect
// it backs off exponentially (1s doubling to 30s, ±20% jitter) and
// starts over. Admission order is preserved because catch-up and the
// read loop run on the same goroutine.
type Client struct {
	apiBase   string
	authToken string
	matchID   string

	queue   *events.Queue
	api     *APIClient
	backoff *resilience.Backoff
	log     zerolog.Logger

	status atomic.Value // string
}

// NewClient creates a stream client for the given match.
func NewClient(apiBase, authToken, matchID string, queue *events.Queue, api *APIClient, backoff *resilience.Backoff, log zerolog.Logger) *Client {
	c := &Client{
		apiBase:   strings.TrimRight(apiBase, "/"),
		authToken: authToken,
		matchID:   matchID,
		queue:     queue,
		api:       api,
		backoff:   backoff,
		log:       log.With().Str("match_id", matchID).Logger(),
	}
	c.status.Store(StatusReconnecting)
	return c
}

// Status returns the coarse connection state.
func (c *Client) Status() string {
	return c.status.Load().(string)
}

// MatchID returns the match this client is subscribed to.
func (c *Client) MatchID() string {
	return c.matchID
}

// Run drives the connect / read / backoff loop until the context is
// cancelled. Cancellation unwinds the backoff sleep, in-flight HTTP
// calls, and the websocket read.
func (c *Client) Run(ctx context.Context) {
	defer c.status.Store(StatusClosed)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.catchUp(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Catch-up failed, retrying after backoff")
		} else if err := c.connectAndRead(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Push connection lost")
		}

		if ctx.Err() != nil {
			return
		}

		c.status.Store(StatusReconnecting)
		observability.RecordReconnect()
		if err := resilience.Sleep(ctx, c.backoff.Next()); err != nil {
			return
		}
	}
}

// catchUp fetches events missed since the checkpoint and feeds them to
// the queue in received order. Entries at or before the checkpoint in
// the response (the publisher may resend the last-spoken event) only
// seed the dedup set; everything after is admitted for playback.
func (c *Client) catchUp(ctx context.Context) error {
	after := c.queue.Checkpoint()
	evs, err := c.api.FetchMissedEvents(ctx, c.matchID, after)
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		return nil
	}

	cut := -1
	if after != "" {
		for i, ev := range evs {
			if ev.EventID == after {
				cut = i
			}
		}
	}

	admitted := 0
	for i, ev := range evs {
		if i <= cut {
			c.queue.Seed(ev.EventID)
			continue
		}
		if err := c.queue.Admit(ev); err != nil {
			if !errors.Is(err, events.ErrDuplicate) {
				return err
			}
			continue
		}
		admitted++
	}

	observability.RecordCatchupEvents(admitted)
	c.log.Info().Int("fetched", len(evs)).Int("admitted", admitted).Msg("Catch-up complete")
	return nil
}

// wsURL derives the push endpoint from the API base URL.
func (c *Client) wsURL() string {
	base := strings.Replace(c.apiBase, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/ws/live-commentary/" + c.matchID
}

// connectAndRead dials the push endpoint and admits inbound frames until
// the connection drops or the context is cancelled.
func (c *Client) connectAndRead(ctx context.Context) error {
	header := http.Header{}
	if c.authToken != "" {
		header.Set("Authorization", "Bearer "+c.authToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), header)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.status.Store(StatusConnected)
	c.backoff.Reset()
	c.log.Info().Str("url", c.wsURL()).Msg("Push connection established")

	// Unwind the blocking read when the context is cancelled, and keep
	// the connection alive with periodic pings.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		ev, err := events.Parse(message)
		if err != nil {
			observability.RecordAdmission("malformed")
			c.log.Warn().Err(err).Msg("Dropping malformed push frame")
			continue
		}

		if err := c.queue.Admit(ev); err != nil {
			if errors.Is(err, events.ErrDuplicate) {
				c.log.Debug().Str("event_id", ev.EventID).Msg("Duplicate event rejected")
				continue
			}
			return err
		}
		c.log.Debug().Str("event_id", ev.EventID).Int("priority", ev.Priority).Msg("Event admitted")
	}
}
