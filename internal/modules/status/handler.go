package status

import (
	"errors"
	"net/http"

	"notestream/internal/middleware"
	"notestream/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetStatus returns the processing snapshot for one file. Safe for anonymous
// callers: they only ever see ownerless files.
func (h *Handler) GetStatus(c *gin.Context) {
	fileID := c.Param("fileId")

	view, err := h.service.GetStatus(c.Request.Context(), fileID, RequesterFrom(c))
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "UNKNOWN_FILE", "no file with that id")
		return
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "you may not view this file")
		return
	case err != nil:
		c.Error(err) //nolint:errcheck
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load status")
		return
	}

	response.Success(c, http.StatusOK, view)
}

// RequesterFrom derives the requester identity set by the optional auth
// middleware.
func RequesterFrom(c *gin.Context) Requester {
	return Requester{
		UserID:     middleware.RequesterID(c),
		Privileged: middleware.Privileged(c),
	}
}
