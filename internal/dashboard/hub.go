package dashboard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rektflow/internal/chart"
	"rektflow/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins in deployments
	// behind a load balancer.
	CheckOrigin: func(*http.Request) bool { return true },
}

// hub fans chart state updates out to connected websocket clients. Updates
// are coalesced per push interval so a burst of merges becomes one frame.
type hub struct {
	state        *chart.State
	pushInterval time.Duration
	log          *logger.Log

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub(state *chart.State, pushInterval time.Duration) *hub {
	if pushInterval <= 0 {
		pushInterval = time.Second
	}
	return &hub{
		state:        state,
		pushInterval: pushInterval,
		log:          logger.GetLogger(),
		clients:      make(map[*websocket.Conn]struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	updates, cancel := h.state.Subscribe()
	defer cancel()

	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()

	pending := make(map[chart.Update]struct{})
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case upd, ok := <-updates:
			if !ok {
				h.closeAll()
				return
			}
			pending[upd] = struct{}{}
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			frame := make([]chart.Update, 0, len(pending))
			for upd := range pending {
				frame = append(frame, upd)
			}
			pending = make(map[chart.Update]struct{})
			h.broadcast(frame)
		}
	}
}

func (h *hub) broadcast(frame []chart.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			h.log.WithComponent("dashboard_hub").WithError(err).Debug("dropping websocket client")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithComponent("dashboard_hub").WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.log.WithComponent("dashboard_hub").WithFields(logger.Fields{"clients": count}).Info("websocket client connected")

	// Reader loop only detects closure; the dashboard protocol is one-way.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				delete(h.clients, conn)
				h.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
