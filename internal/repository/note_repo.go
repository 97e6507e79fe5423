package repository

import (
	"context"
	"errors"
	"strings"

	"notestream/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNoteNotFound = errors.New("note result not found")
	// ErrDuplicateNote means a result already exists for the file. It is the
	// idempotency backstop for replayed success callbacks.
	ErrDuplicateNote = errors.New("note result already exists for file")
)

type NoteRepository struct {
	db *gorm.DB
}

func NewNoteRepository(db *gorm.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) Create(ctx context.Context, n *domain.NoteResult) error {
	err := r.db.WithContext(ctx).Create(n).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateNote
	}
	return err
}

func (r *NoteRepository) GetByFileID(ctx context.Context, fileID string) (*domain.NoteResult, error) {
	var n domain.NoteResult
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NoteRepository) CountByFileID(ctx context.Context, fileID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.NoteResult{}).
		Where("file_id = ?", fileID).
		Count(&count).Error
	return count, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
