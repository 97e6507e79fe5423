package domain

import "time"

// NoteResult holds the generated notes for a processed file.
// Created exactly once per successful completion, never mutated; the unique
// index on file_id is the idempotency backstop for duplicate callbacks.
type NoteResult struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	FileID     string    `gorm:"column:file_id;uniqueIndex" json:"file_id"`
	NoteType   string    `gorm:"column:note_type" json:"note_type"`
	Content    string    `gorm:"column:content" json:"content"`
	PromptUsed string    `gorm:"column:prompt_used" json:"prompt_used"`
	Model      string    `gorm:"column:model" json:"model"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (NoteResult) TableName() string { return "note_results" }

// ProcessingResult is what a dispatch reports back to the upload path.
// For the synchronous deployment it carries the generated notes so the
// original request can return them; for the async deployment it only
// carries the accepted state.
type ProcessingResult struct {
	Status       FileStatus `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	NoteType     string     `json:"note_type,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
