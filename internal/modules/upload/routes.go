package upload

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the upload endpoints. All of them accept anonymous
// requests; ownership is attached when the requester is authenticated.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	uploads := r.Group("/uploads")
	{
		uploads.PUT("", h.Upload)
		uploads.POST("/chunks", h.SaveChunk)
		uploads.POST("/finalize", h.Finalize)
	}
}
