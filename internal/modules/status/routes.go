package status

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the status read path next to the upload endpoints.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	uploads := r.Group("/uploads")
	{
		uploads.GET("/status/:fileId", h.GetStatus)
	}
}
