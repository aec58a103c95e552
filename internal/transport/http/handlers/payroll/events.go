package payrollhandler

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"detailpay/internal/domain/payroll"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventBuffer       = 16
)

// newUpgrader accepts same-origin and non-browser clients, and browsers whose Origin is in
// the CORS allow list.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAny := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		if origin == "*" {
			allowAny = true
		}
		if origin != "" {
			allowed[origin] = true
		}
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAny {
				return true
			}
			return allowed[strings.ToLower(strings.TrimRight(origin, "/"))]
		},
	}
}

type eventClient struct {
	conn *websocket.Conn
	send chan payroll.HistoryEvent
}

// eventHub fans committed history changes out to connected websocket clients. Each client
// has its own buffered queue drained by a writer goroutine; a client whose queue is full is
// dropped.
type eventHub struct {
	mu      sync.Mutex
	clients map[*eventClient]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*eventClient]struct{})}
}

func (h *eventHub) add(conn *websocket.Conn) *eventClient {
	client := &eventClient{conn: conn, send: make(chan payroll.HistoryEvent, eventBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	return client
}

// remove closes the client's queue once; its writer then closes the socket.
func (h *eventHub) remove(client *eventClient) {
	h.mu.Lock()
	h.dropLocked(client)
	h.mu.Unlock()
}

func (h *eventHub) dropLocked(client *eventClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *eventHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *eventHub) broadcast(evt payroll.HistoryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- evt:
		default:
			slog.Warn("history stream client too slow, dropping")
			h.dropLocked(client)
		}
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.dropLocked(client)
	}
}

func (h *eventHub) write(client *eventClient) {
	defer client.conn.Close()
	for evt := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := client.conn.WriteJSON(evt); err != nil {
			slog.Debug("history event write failed", "err", err)
			h.remove(client)
			return
		}
	}
	_ = client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("history stream upgrade failed", "err", err)
		return
	}
	client := h.events.add(conn)
	go h.events.write(client)
	defer h.events.remove(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
