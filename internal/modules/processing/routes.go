package processing

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the callback endpoint used by the external worker.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	proc := r.Group("/processing")
	{
		proc.POST("/webhook", h.Webhook)
	}
}
