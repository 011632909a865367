package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/events"
)

const wsWriteTimeout = 5 * time.Second

// handleEventsWS streams events over one websocket instead of a long-poll
// per event. Heartbeats become ping frames.
func (h *handlers) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	// Admission is checked again by every Wait; this only spares the
	// upgrade when the cap is already reached.
	if h.dispatcher.Waiters() >= h.inst.cfg.Events.MaxWaiters {
		http.Error(w, "Too many event listeners", http.StatusTooManyRequests)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return r.Header.Get("Origin") == h.localURL
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("event stream connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The read loop only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ctx.Err() == nil {
		d, err := h.dispatcher.Wait(ctx)
		if errors.Is(err, events.ErrTooManyWaiters) {
			h.closeWS(conn, websocket.CloseTryAgainLater, "too many event listeners")
			return
		}
		if err != nil {
			return
		}

		deadline := time.Now().Add(wsWriteTimeout)
		switch d.Outcome {
		case events.Delivered:
			conn.SetWriteDeadline(deadline)
			err = conn.WriteMessage(websocket.TextMessage, d.Payload)
		case events.Heartbeat:
			err = conn.WriteControl(websocket.PingMessage, nil, deadline)
		case events.Closed:
			h.closeWS(conn, websocket.CloseGoingAway, "server stopping")
			return
		}
		if err != nil {
			return
		}
	}
}

func (h *handlers) closeWS(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
