package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamHandler pushes session snapshots over a websocket. The first frame is
// the current state; later frames follow every store change. Slow clients
// only receive the most recent state.
type StreamHandler struct {
	store    session.Reader
	upgrader websocket.Upgrader
	logger   logging.Logger
	clients  prometheus.Gauge
}

// NewStreamHandler creates a StreamHandler. originAllowed decides the
// websocket origin check; clients may be nil.
func NewStreamHandler(store session.Reader, originAllowed func(origin string) bool, logger logging.Logger, clients prometheus.Gauge) *StreamHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &StreamHandler{store: store, logger: logger, clients: clients}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	if originAllowed != nil {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"))
		}
	}
	return h
}

// Stream handles GET /api/v1/session/stream.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("stream upgrade rejected", logging.Err(err))
		return
	}
	defer conn.Close()

	if h.clients != nil {
		h.clients.Inc()
		defer h.clients.Dec()
	}

	states, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	// The read loop only exists to observe pongs and the close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(st); err != nil {
				h.logger.Debug("stream write failed", logging.Err(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
