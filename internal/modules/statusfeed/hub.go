package statusfeed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"notestream/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // configure in prod
}

// Event is one status transition pushed to subscribers. It is a convenience
// mirror of the File/Task rows — the rows remain authoritative and a client
// that misses an event falls back to polling.
type Event struct {
	FileID       string    `json:"file_id"`
	Status       string    `json:"status"`
	TaskStatus   string    `json:"task_status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	At           time.Time `json:"at"`
}

// connection is a single subscriber, pinned to one file ID.
type connection struct {
	fileID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans status transitions out to WebSocket subscribers per file ID.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*connection]bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*connection]bool)}
}

// PublishStatus implements the processing.Notifier contract.
func (h *Hub) PublishStatus(fileID string, status domain.FileStatus, taskStatus domain.TaskStatus, errorMessage string) {
	h.publish(Event{
		FileID:       fileID,
		Status:       string(status),
		TaskStatus:   string(taskStatus),
		ErrorMessage: errorMessage,
		At:           time.Now().UTC(),
	})
}

func (h *Hub) publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[evt.FileID] {
		select {
		case c.send <- data:
		default:
			// Slow consumer; it will catch up by polling.
		}
	}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[c.fileID] == nil {
		h.subs[c.fileID] = make(map[*connection]bool)
	}
	h.subs[c.fileID][c] = true
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[c.fileID]; ok && set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, c.fileID)
		}
		close(c.send)
	}
}

// SubscriberCount reports how many clients watch a file, used by tests.
func (h *Hub) SubscriberCount(fileID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[fileID])
}

func (c *connection) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("statusfeed_read file_id=%s error=%q", c.fileID, err)
			}
			return
		}
	}
}
