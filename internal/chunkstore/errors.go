package chunkstore

import "errors"

var (
	ErrInvalidUploadID  = errors.New("invalid upload id")
	ErrInvalidChunk     = errors.New("invalid chunk index")
	ErrScopeMismatch    = errors.New("upload id is owned by another client")
	ErrSessionNotFound  = errors.New("upload session not found")
	ErrIncompleteUpload = errors.New("upload is missing chunks")
	ErrStorage          = errors.New("chunk storage failure")
)
