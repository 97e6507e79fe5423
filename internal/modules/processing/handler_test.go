package processing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"notestream/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type webhookEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func setupWebhookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupDB(t)
	handler := NewHandler(NewReconciler(db, nil))

	router := gin.New()
	v1 := router.Group("/api/v1")
	RegisterRoutes(v1, handler)
	return router, db
}

func postWebhook(t *testing.T, router *gin.Engine, body any) (*httptest.ResponseRecorder, webhookEnvelope) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/processing/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var envelope webhookEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return w, envelope
}

func TestWebhookAppliesSuccess(t *testing.T) {
	router, db := setupWebhookRouter(t)
	file := seedFile(t, db, domain.FileSentToWorker)

	w, envelope := postWebhook(t, router, gin.H{
		"fileId": file.ID,
		"status": "success",
		"notes":  "- generated notes",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, true, envelope.Data["applied"])

	var got domain.File
	require.NoError(t, db.Where("id = ?", file.ID).First(&got).Error)
	assert.Equal(t, domain.FileProcessed, got.Status)
}

func TestWebhookDuplicateDeliveryAnswers200(t *testing.T) {
	router, db := setupWebhookRouter(t)
	file := seedFile(t, db, domain.FileSentToWorker)

	body := gin.H{"fileId": file.ID, "status": "success", "notes": "- notes"}
	w, _ := postWebhook(t, router, body)
	require.Equal(t, http.StatusOK, w.Code)

	// The worker retries until it sees 2xx, so a replay must not 409.
	w, _ = postWebhook(t, router, body)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookUnknownFile(t *testing.T) {
	router, _ := setupWebhookRouter(t)

	w, envelope := postWebhook(t, router, gin.H{
		"fileId": uuid.New().String(),
		"status": "error",
		"error":  "boom",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "UNKNOWN_FILE", envelope.Error.Code)
}

func TestWebhookWrongStateConflicts(t *testing.T) {
	router, db := setupWebhookRouter(t)
	file := seedFile(t, db, domain.FileUploaded)

	w, envelope := postWebhook(t, router, gin.H{
		"fileId": file.ID,
		"status": "success",
		"notes":  "- notes",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_CALLBACK_STATE", envelope.Error.Code)
}

func TestWebhookValidation(t *testing.T) {
	router, db := setupWebhookRouter(t)
	file := seedFile(t, db, domain.FileSentToWorker)

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing file id", gin.H{"status": "success", "notes": "- n"}},
		{"unknown status", gin.H{"fileId": file.ID, "status": "done"}},
		{"success without notes", gin.H{"fileId": file.ID, "status": "success"}},
		{"success with error message", gin.H{"fileId": file.ID, "status": "success", "notes": "- n", "error": "boom"}},
		{"error without message", gin.H{"fileId": file.ID, "status": "error"}},
		{"error with notes", gin.H{"fileId": file.ID, "status": "error", "error": "boom", "notes": "- n"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, envelope := postWebhook(t, router, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
		})
	}

	// Nothing above may have touched the row.
	var got domain.File
	require.NoError(t, db.Where("id = ?", file.ID).First(&got).Error)
	assert.Equal(t, domain.FileSentToWorker, got.Status)
}
