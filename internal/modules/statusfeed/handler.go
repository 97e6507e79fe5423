package statusfeed

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"notestream/internal/domain"
	"notestream/internal/modules/status"
	"notestream/internal/pkg/response"
	"notestream/internal/repository"

	"github.com/gin-gonic/gin"
)

// Handler upgrades status subscribers to WebSocket. The same visibility rule
// as the polling endpoint applies before the upgrade.
type Handler struct {
	hub   *Hub
	files *repository.FileRepository
}

func NewHandler(hub *Hub, files *repository.FileRepository) *Handler {
	return &Handler{hub: hub, files: files}
}

// Subscribe streams status transitions for one file until the client
// disconnects. The first frame is a snapshot of the current state so a
// subscriber arriving after the terminal transition still learns it.
func (h *Handler) Subscribe(c *gin.Context) {
	fileID := c.Param("fileId")

	file, err := h.files.GetByID(c.Request.Context(), fileID)
	if errors.Is(err, repository.ErrFileNotFound) {
		response.Error(c, http.StatusNotFound, "UNKNOWN_FILE", "no file with that id")
		return
	}
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load file")
		return
	}
	if err := status.Authorize(file, status.RequesterFrom(c)); err != nil {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "you may not watch this file")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := &connection{
		fileID: fileID,
		conn:   ws,
		send:   make(chan []byte, 8),
	}
	h.hub.register(conn)

	snapshot, _ := json.Marshal(Event{
		FileID:     fileID,
		Status:     string(file.Status),
		TaskStatus: string(domain.TaskStatusFor(file.Status)),
		At:         time.Now().UTC(),
	})
	conn.send <- snapshot

	go conn.writePump(h.hub)
	go conn.readPump(h.hub)
}

// RegisterRoutes mounts the WebSocket feed next to the polling endpoint.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	uploads := r.Group("/uploads")
	{
		uploads.GET("/status/:fileId/ws", h.Subscribe)
	}
}
