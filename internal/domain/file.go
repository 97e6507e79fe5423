package domain

import "time"

type FileStatus string

const (
	FileUploaded     FileStatus = "uploaded"
	FileProcessing   FileStatus = "processing"
	FileSentToWorker FileStatus = "sent_to_worker"
	FileProcessed    FileStatus = "processed"
	FileFailed       FileStatus = "failed"
)

// Terminal reports whether no further transition is permitted for the status.
func (s FileStatus) Terminal() bool {
	return s == FileProcessed || s == FileFailed
}

// File represents one uploaded artifact and its processing lifecycle.
// Status only advances forward: uploaded -> processing -> (sent_to_worker ->)
// processed | failed. Terminal statuses are never overwritten.
type File struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	Filename      string     `gorm:"column:filename" json:"filename"`
	OriginalName  string     `gorm:"column:original_name" json:"original_name"`
	SizeBytes     int64      `gorm:"column:size_bytes" json:"size_bytes"`
	MimeType      string     `gorm:"column:mime_type" json:"mime_type"`
	OwnerID       *int64     `gorm:"column:owner_id" json:"owner_id,omitempty"`
	StoragePath   string     `gorm:"column:storage_path" json:"-"`
	Transcription *string    `gorm:"column:transcription" json:"-"`
	Status        FileStatus `gorm:"column:status" json:"status"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (File) TableName() string { return "files" }

// OwnedBy reports whether the file belongs to the given user.
func (f *File) OwnedBy(userID int64) bool {
	return f.OwnerID != nil && *f.OwnerID == userID
}

// Anonymous reports whether the file was uploaded without an authenticated owner.
func (f *File) Anonymous() bool { return f.OwnerID == nil }
