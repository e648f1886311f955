package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// EventMessage is one call lifecycle event from the WebSocket stream.
//
// Event discriminates the payload (packet_received, state_changed,
// ai_completed, ai_failed); only the fields belonging to that kind are set.
// Raw preserves the original JSON document for pass-through output.
type EventMessage struct {
	Event  string `json:"event"`
	CallID string `json:"call_id"`

	// packet_received
	Sequence         int64   `json:"sequence,omitempty"`
	TotalReceived    int64   `json:"total_received,omitempty"`
	MissingSequences []int64 `json:"missing_sequences,omitempty"`

	// state_changed
	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`

	// ai_completed
	Transcription string `json:"transcription,omitempty"`
	Sentiment     string `json:"sentiment,omitempty"`

	// ai_failed
	Reason string `json:"reason,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// WatchEvents opens the WebSocket event stream and delivers events until the
// context is cancelled or the server closes the connection. The returned
// channel is closed when the stream ends.
func (c *Client) WatchEvents(ctx context.Context) (<-chan EventMessage, error) {
	wsURL, err := c.eventsURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to event stream (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	events := make(chan EventMessage, 16)
	done := make(chan struct{})

	// Unblock the read loop when the caller gives up.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer func() { _ = conn.Close() }()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg EventMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				// Skip frames that are not event documents.
				continue
			}
			msg.Raw = append(json.RawMessage(nil), payload...)

			select {
			case events <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// eventsURL derives the WebSocket endpoint from the client base URL.
func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", c.baseURL, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// Already a WebSocket URL.
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/events"
	return u.String(), nil
}
