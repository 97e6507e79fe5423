package upload

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"notestream/internal/chunkstore"
	"notestream/internal/domain"
	"notestream/internal/middleware"
	"notestream/internal/pkg/response"
	validatorpkg "notestream/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Upload handles the single-shot path: one multipart file in, an accepted
// (or, in the synchronous deployment, already processed) file out.
func (h *Handler) Upload(c *gin.Context) {
	start := time.Now()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "NO_FILE", "no file provided")
		return
	}

	ownerID := middleware.RequesterID(c)
	file, result, err := h.service.Upload(c.Request.Context(), ownerID, fileHeader)
	if err != nil {
		h.writeUploadError(c, err)
		return
	}

	log.Printf("upload_single file_id=%s status=%s size=%d latency_ms=%d",
		file.ID, result.Status, file.SizeBytes, time.Since(start).Milliseconds())
	response.Success(c, http.StatusCreated, uploadResponse(file, result))
}

// SaveChunk stages one chunk of a chunked upload.
func (h *Handler) SaveChunk(c *gin.Context) {
	var req ChunkRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid chunk request", validatorpkg.Details(err))
		return
	}

	chunkHeader, err := c.FormFile("chunk")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "NO_CHUNK", "no chunk bytes provided")
		return
	}
	src, err := chunkHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "STORAGE_FAILURE", "failed to read chunk")
		return
	}
	defer src.Close()

	if err := h.service.SaveChunk(c.Request.Context(), requesterScope(c), req, src); err != nil {
		h.writeChunkError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"chunkIndex": *req.ChunkIndex,
		"accepted":   true,
	})
}

// Finalize reassembles the staged chunks, commits the File/Task pair and
// dispatches processing.
func (h *Handler) Finalize(c *gin.Context) {
	start := time.Now()

	var req FinalizeRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid finalize request", validatorpkg.Details(err))
		return
	}

	ownerID := middleware.RequesterID(c)
	file, result, err := h.service.Finalize(c.Request.Context(), requesterScope(c), ownerID, req)
	if err != nil {
		h.writeFinalizeError(c, err)
		return
	}

	log.Printf("upload_finalize upload_id=%s file_id=%s status=%s latency_ms=%d",
		req.FileID, file.ID, result.Status, time.Since(start).Milliseconds())
	response.Success(c, http.StatusCreated, uploadResponse(file, result))
}

func uploadResponse(file *domain.File, result *domain.ProcessingResult) UploadResponse {
	return UploadResponse{
		FileID:       file.ID,
		Status:       string(result.Status),
		Notes:        result.Notes,
		NoteType:     result.NoteType,
		ErrorMessage: result.ErrorMessage,
	}
}

func (h *Handler) writeUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEmptyFile):
		response.Error(c, http.StatusBadRequest, "EMPTY_FILE", err.Error())
	case errors.Is(err, ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, ErrInvalidMimeType):
		response.Error(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error())
	default:
		c.Error(err) //nolint:errcheck
		response.Error(c, http.StatusInternalServerError, "STORAGE_FAILURE", "upload failed")
	}
}

func (h *Handler) writeChunkError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chunkstore.ErrInvalidUploadID), errors.Is(err, chunkstore.ErrInvalidChunk):
		response.Error(c, http.StatusBadRequest, "INVALID_UPLOAD_ID", err.Error())
	case errors.Is(err, chunkstore.ErrScopeMismatch):
		response.Error(c, http.StatusConflict, "UPLOAD_ID_IN_USE", err.Error())
	default:
		c.Error(err) //nolint:errcheck
		response.Error(c, http.StatusInternalServerError, "STORAGE_FAILURE", "failed to store chunk")
	}
}

func (h *Handler) writeFinalizeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chunkstore.ErrIncompleteUpload):
		response.Error(c, http.StatusBadRequest, "INCOMPLETE_UPLOAD", err.Error())
	case errors.Is(err, ErrAlreadyFinalized):
		response.Error(c, http.StatusConflict, "ALREADY_FINALIZED", err.Error())
	case errors.Is(err, chunkstore.ErrScopeMismatch):
		response.Error(c, http.StatusConflict, "UPLOAD_ID_IN_USE", err.Error())
	case errors.Is(err, chunkstore.ErrInvalidUploadID):
		response.Error(c, http.StatusBadRequest, "INVALID_UPLOAD_ID", err.Error())
	case errors.Is(err, ErrEmptyFile):
		response.Error(c, http.StatusBadRequest, "EMPTY_FILE", err.Error())
	case errors.Is(err, ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, ErrInvalidMimeType):
		response.Error(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error())
	default:
		c.Error(err) //nolint:errcheck
		response.Error(c, http.StatusInternalServerError, "STORAGE_FAILURE", "finalize failed")
	}
}

// requesterScope namespaces client-chosen upload IDs. Authenticated clients
// get a stable per-user scope; anonymous clients are scoped by address so
// two strangers picking the same upload ID cannot touch each other's chunks.
func requesterScope(c *gin.Context) string {
	if id := middleware.RequesterID(c); id != nil {
		return fmt.Sprintf("user:%d", *id)
	}
	return "anon:" + c.ClientIP()
}
