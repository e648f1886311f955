package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/bus"
	"github.com/marmos91/voicegate/pkg/call"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send control
	// frames on this stream.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Supervisor dashboards connect from arbitrary origins; the API
		// carries no browser credentials, so origin checks buy nothing here.
		return true
	},
}

// EventsHandler streams call lifecycle events over WebSocket.
//
// Each connection registers one bus subscriber. The server pushes event JSON
// and pings; client messages are read and discarded to service pong frames.
// A subscriber that stops reading falls behind on its bus buffer and is
// dropped, which closes the connection.
type EventsHandler struct {
	bus *bus.Bus
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(bus *bus.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// Subscribe handles GET /api/v1/events.
func (h *EventsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		logger.WarnCtx(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	id, events := h.bus.Subscribe()
	logger.InfoCtx(r.Context(), "event stream opened",
		"subscriber_id", id,
		"remote_addr", r.RemoteAddr)

	go h.writePump(conn, events)
	go h.readPump(conn, id)
}

// writePump pushes bus events and pings to the peer. It exits when the
// subscription channel closes (unsubscribed, dropped, or bus shutdown) or a
// write fails, closing the connection either way.
func (h *EventsHandler) writePump(conn *websocket.Conn, events <-chan call.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}

			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Error("failed to encode event", "event", string(ev.Kind()), "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the peer so pong frames are processed and disconnects are
// noticed. Data messages carry no meaning on this stream and are discarded.
func (h *EventsHandler) readPump(conn *websocket.Conn, id string) {
	defer func() {
		h.bus.Unsubscribe(id)
		conn.Close()
		logger.Debug("event stream closed", "subscriber_id", id)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				logger.Debug("event stream read error", "subscriber_id", id, "error", err)
			}
			return
		}
	}
}
