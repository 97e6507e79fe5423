package repository

import (
	"context"
	"errors"
	"time"

	"notestream/internal/domain"

	"gorm.io/gorm"
)

var ErrFileNotFound = errors.New("file not found")

type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) DB() *gorm.DB { return r.db }

func (r *FileRepository) Create(ctx context.Context, f *domain.File) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (*domain.File, error) {
	var f domain.File
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// TransitionStatus is the guarded compare-and-set behind every status change:
// the row is updated only if it is still in the expected state, so concurrent
// or replayed transitions cannot double-apply. Returns false when the row was
// not in `from` anymore.
func (r *FileRepository) TransitionStatus(ctx context.Context, id string, from, to domain.FileStatus) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.File{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// SetTranscription stores the (possibly encrypted) transcription text.
func (r *FileRepository) SetTranscription(ctx context.Context, id string, transcription string) error {
	return r.db.WithContext(ctx).
		Model(&domain.File{}).
		Where("id = ?", id).
		Updates(map[string]any{"transcription": transcription, "updated_at": time.Now()}).Error
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.File{}).Error
}
