package domain

import "time"

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskSentToMake TaskStatus = "sent_to_make"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskStatusFor maps a file status onto the task status that mirrors it.
func TaskStatusFor(s FileStatus) TaskStatus {
	switch s {
	case FileUploaded, FileProcessing:
		return TaskPending
	case FileSentToWorker:
		return TaskSentToMake
	case FileProcessed:
		return TaskCompleted
	case FileFailed:
		return TaskFailed
	}
	return TaskPending
}

// Task is the authoritative audit record for one file's processing run.
// It mirrors File.Status and the two are updated in the same logical operation.
type Task struct {
	ID           string     `gorm:"column:id;primaryKey" json:"id"`
	FileID       string     `gorm:"column:file_id;uniqueIndex" json:"file_id"`
	OwnerID      *int64     `gorm:"column:owner_id" json:"owner_id,omitempty"`
	Status       TaskStatus `gorm:"column:status" json:"status"`
	ErrorMessage *string    `gorm:"column:error_message" json:"error_message,omitempty"`
	ProcessedAt  *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }
