package processing

import (
	"errors"
	"log"
	"net/http"
	"time"

	"notestream/internal/pkg/response"
	validatorpkg "notestream/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the worker callback endpoint. The callback arrives from a
// network peer and is treated as untrusted input: it is revalidated against
// the referenced file before any state is touched. There is no signature
// verification beyond network-level trust — a known limitation of the
// integration, not an invitation.
type Handler struct {
	reconciler *Reconciler
}

func NewHandler(reconciler *Reconciler) *Handler {
	return &Handler{reconciler: reconciler}
}

// Webhook consumes the external worker's completion callback.
func (h *Handler) Webhook(c *gin.Context) {
	start := time.Now()

	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid callback body", validatorpkg.Details(err))
		return
	}

	outcome, fieldErrors := req.Outcome()
	if outcome == nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid callback shape", map[string]any{
			"field_errors": fieldErrors,
		})
		return
	}

	err := h.reconciler.ApplyCallback(c.Request.Context(), req.FileID, outcome)
	switch {
	case errors.Is(err, ErrUnknownFile):
		response.Error(c, http.StatusNotFound, "UNKNOWN_FILE", "no file with that id")
		return
	case errors.Is(err, ErrInvalidCallbackState):
		response.Error(c, http.StatusConflict, "INVALID_CALLBACK_STATE", err.Error())
		return
	case err != nil:
		c.Error(err) //nolint:errcheck
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to apply callback")
		return
	}

	log.Printf("webhook file_id=%s status=%s latency_ms=%d", req.FileID, req.Status, time.Since(start).Milliseconds())
	response.Success(c, http.StatusOK, gin.H{"fileId": req.FileID, "applied": true})
}
