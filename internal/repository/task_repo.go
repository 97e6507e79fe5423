package repository

import (
	"context"
	"errors"
	"time"

	"notestream/internal/domain"

	"gorm.io/gorm"
)

var ErrTaskNotFound = errors.New("task not found")

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TaskRepository) GetByFileID(ctx context.Context, fileID string) (*domain.Task, error) {
	var t domain.Task
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetStatusByFileID mirrors a file transition onto the task row.
func (r *TaskRepository) SetStatusByFileID(ctx context.Context, fileID string, status domain.TaskStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("file_id = ?", fileID).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
}

// Complete marks the task finished and stamps processed_at.
func (r *TaskRepository) Complete(ctx context.Context, fileID string, processedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("file_id = ?", fileID).
		Updates(map[string]any{
			"status":       domain.TaskCompleted,
			"processed_at": processedAt,
			"updated_at":   time.Now(),
		}).Error
}

// Fail marks the task failed and records the error message for audit.
func (r *TaskRepository) Fail(ctx context.Context, fileID string, message string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("file_id = ?", fileID).
		Updates(map[string]any{
			"status":        domain.TaskFailed,
			"error_message": message,
			"updated_at":    time.Now(),
		}).Error
}
