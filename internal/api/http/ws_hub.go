package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voicescribe/internal/domain"
	"voicescribe/internal/metrics"
)

// Outbound wire messages. file_status events are flat objects, matching the
// browser client's expectations.
type wsHello struct {
	Type string `json:"type"`
}

type wsSubscribed struct {
	Type   string        `json:"type"`
	FileID domain.FileID `json:"file_id"`
}

type wsFileStatus struct {
	Type     string            `json:"type"`
	FileID   domain.FileID     `json:"file_id"`
	Status   domain.FileStatus `json:"status"`
	Progress int               `json:"progress"`
	Message  string            `json:"message"`
}

// wsControl is the only inbound message shape we honour. Anything else is
// ignored silently.
type wsControl struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
}

type lastSeen struct {
	progress int
	status   domain.FileStatus
}

type wsClient struct {
	hub  *wsHub
	conn *websocket.Conn
	send chan []byte

	// Owned by the hub goroutine.
	subs map[domain.FileID]struct{}
	seen map[domain.FileID]lastSeen
}

type subRequest struct {
	client *wsClient
	fileID domain.FileID
	add    bool
}

type wsHub struct {
	clients    map[*wsClient]bool
	events     chan domain.ProgressEvent
	register   chan *wsClient
	unregister chan *wsClient
	control    chan subRequest
	done       chan struct{}
	logger     *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		events:     make(chan domain.ProgressEvent, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		control:    make(chan subRequest),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				close(client.send)
				delete(h.clients, client)
			}
			metrics.WSClientsConnected.Set(0)
			h.logger.Debug("ws hub stopped, all clients disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			metrics.WSClientsConnected.Set(float64(len(h.clients)))
			h.enqueue(client, mustMarshal(wsHello{Type: "connected"}))
			h.logger.Debug("ws client connected", slog.Int("total", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WSClientsConnected.Set(float64(len(h.clients)))
				h.logger.Debug("ws client disconnected", slog.Int("total", len(h.clients)))
			}
		case req := <-h.control:
			if !h.clients[req.client] {
				continue
			}
			if req.add {
				req.client.subs[req.fileID] = struct{}{}
				h.enqueue(req.client, mustMarshal(wsSubscribed{Type: "subscribed", FileID: req.fileID}))
			} else {
				delete(req.client.subs, req.fileID)
			}
		case event := <-h.events:
			h.fanOut(event)
		}
	}
}

// fanOut delivers one event to every attached client, applying per-client
// de-duplication: a client only sees an event when the progress strictly
// increases, the status changed, or the status is terminal.
func (h *wsHub) fanOut(event domain.ProgressEvent) {
	if len(h.clients) == 0 {
		return
	}
	payload := mustMarshal(wsFileStatus{
		Type:     "file_status",
		FileID:   event.FileID,
		Status:   event.Status,
		Progress: event.Progress,
		Message:  event.Message,
	})
	if payload == nil {
		return
	}
	for client := range h.clients {
		prev, known := client.seen[event.FileID]
		if known && !event.Terminal() &&
			event.Status == prev.status && event.Progress <= prev.progress {
			continue
		}
		if !h.enqueue(client, payload) {
			// Dropped for this slow client; do not advance its last-seen
			// state so the next accepted event re-synchronises it.
			continue
		}
		if event.Terminal() {
			delete(client.seen, event.FileID)
			delete(client.subs, event.FileID)
		} else {
			client.seen[event.FileID] = lastSeen{progress: event.Progress, status: event.Status}
		}
	}
}

func (h *wsHub) enqueue(client *wsClient, payload []byte) bool {
	if payload == nil {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		metrics.WSEventsDroppedTotal.Inc()
		return false
	}
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Publish enqueues one status event for fan-out. It never blocks the caller;
// under extreme load the event is dropped and counted.
func (h *wsHub) Publish(event domain.ProgressEvent) {
	select {
	case <-h.done:
	case h.events <- event:
	default:
		metrics.WSEventsDroppedTotal.Inc()
	}
}

// Close signals the hub to stop and disconnect all clients.
func (h *wsHub) Close() {
	close(h.done)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var ctrl wsControl
		if err := json.Unmarshal(raw, &ctrl); err != nil {
			continue
		}
		switch ctrl.Type {
		case "subscribe":
			if ctrl.FileID == "" {
				continue
			}
			select {
			case c.hub.control <- subRequest{client: c, fileID: domain.FileID(ctrl.FileID), add: true}:
			case <-c.hub.done:
				return
			}
		case "unsubscribe":
			if ctrl.FileID == "" {
				continue
			}
			select {
			case c.hub.control <- subRequest{client: c, fileID: domain.FileID(ctrl.FileID), add: false}:
			case <-c.hub.done:
				return
			}
		}
	}
}
