package upload

// ChunkRequest carries one chunk of a larger upload. The client chooses the
// upload ID (fileId) and declares totalChunks only at finalize time; the
// values sent with each chunk are advisory.
type ChunkRequest struct {
	FileID      string `form:"fileId" binding:"required"`
	ChunkIndex  *int   `form:"chunkIndex" binding:"required"`
	TotalChunks int    `form:"totalChunks"`
	FileName    string `form:"fileName"`
}

// FinalizeRequest closes a chunked upload. totalChunks is authoritative when
// present; otherwise the count declared with the chunk writes is used.
type FinalizeRequest struct {
	FileID      string `form:"fileId" binding:"required"`
	FileName    string `form:"fileName" binding:"required"`
	FileSize    int64  `form:"fileSize"`
	TotalChunks int    `form:"totalChunks"`
	Action      string `form:"action" binding:"required,eq=finalize"`
}

// UploadResponse is returned by both the single-shot and finalize paths.
type UploadResponse struct {
	FileID       string `json:"fileId"`
	Status       string `json:"status"`
	Notes        string `json:"notes,omitempty"`
	NoteType     string `json:"note_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
