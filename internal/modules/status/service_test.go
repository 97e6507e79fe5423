package status

import (
	"context"
	"testing"
	"time"

	"notestream/internal/database"
	"notestream/internal/domain"
	"notestream/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupStatus(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	svc := NewService(
		repository.NewFileRepository(db),
		repository.NewTaskRepository(db),
		repository.NewNoteRepository(db),
	)
	return svc, db
}

func seedFile(t *testing.T, db *gorm.DB, ownerID *int64, status domain.FileStatus) *domain.File {
	t.Helper()
	now := time.Now()
	file := &domain.File{
		ID:           uuid.New().String(),
		Filename:     "notes.txt",
		OriginalName: "notes.txt",
		SizeBytes:    10,
		MimeType:     "text/plain",
		OwnerID:      ownerID,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, db.Create(file).Error)
	return file
}

func ptr(v int64) *int64 { return &v }

func TestGetStatusVisibility(t *testing.T) {
	svc, db := setupStatus(t)
	owned := seedFile(t, db, ptr(7), domain.FileProcessing)
	anon := seedFile(t, db, nil, domain.FileProcessing)

	cases := []struct {
		name      string
		fileID    string
		requester Requester
		wantErr   error
	}{
		{"owner sees own file", owned.ID, Requester{UserID: ptr(7)}, nil},
		{"other user blocked", owned.ID, Requester{UserID: ptr(8)}, ErrForbidden},
		{"anonymous blocked from owned file", owned.ID, Requester{}, ErrForbidden},
		{"admin sees any file", owned.ID, Requester{UserID: ptr(8), Privileged: true}, nil},
		{"anonymous sees ownerless file", anon.ID, Requester{}, nil},
		{"authenticated user blocked from ownerless file", anon.ID, Requester{UserID: ptr(7)}, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view, err := svc.GetStatus(context.Background(), tc.fileID, tc.requester)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.fileID, view.FileID)
		})
	}
}

func TestGetStatusUnknownFile(t *testing.T) {
	svc, _ := setupStatus(t)

	_, err := svc.GetStatus(context.Background(), uuid.New().String(), Requester{Privileged: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetStatusReflectsTaskAndNotes(t *testing.T) {
	svc, db := setupStatus(t)
	file := seedFile(t, db, nil, domain.FileProcessed)

	processedAt := time.Now()
	require.NoError(t, db.Create(&domain.Task{
		ID:          uuid.New().String(),
		FileID:      file.ID,
		Status:      domain.TaskCompleted,
		ProcessedAt: &processedAt,
		CreatedAt:   processedAt,
		UpdatedAt:   processedAt,
	}).Error)
	require.NoError(t, db.Create(&domain.NoteResult{
		FileID:    file.ID,
		NoteType:  "summary",
		Content:   "- note",
		CreatedAt: processedAt,
	}).Error)

	view, err := svc.GetStatus(context.Background(), file.ID, Requester{})
	require.NoError(t, err)
	assert.Equal(t, "processed", view.Status)
	assert.Equal(t, "completed", view.TaskStatus)
	assert.True(t, view.HasNotes)
	require.NotNil(t, view.ProcessedAt)
	assert.Empty(t, view.ErrorMessage)
}

func TestGetStatusSurfacesFailureMessage(t *testing.T) {
	svc, db := setupStatus(t)
	file := seedFile(t, db, nil, domain.FileFailed)

	msg := "worker rejected job with status 422"
	now := time.Now()
	require.NoError(t, db.Create(&domain.Task{
		ID:           uuid.New().String(),
		FileID:       file.ID,
		Status:       domain.TaskFailed,
		ErrorMessage: &msg,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error)

	view, err := svc.GetStatus(context.Background(), file.ID, Requester{})
	require.NoError(t, err)
	assert.Equal(t, "failed", view.Status)
	assert.Equal(t, "failed", view.TaskStatus)
	assert.Equal(t, msg, view.ErrorMessage)
	assert.False(t, view.HasNotes)
}

// A file whose task row is missing still answers from the file status alone.
func TestGetStatusWithoutTaskRow(t *testing.T) {
	svc, db := setupStatus(t)
	file := seedFile(t, db, nil, domain.FileSentToWorker)

	view, err := svc.GetStatus(context.Background(), file.ID, Requester{})
	require.NoError(t, err)
	assert.Equal(t, "sent_to_worker", view.Status)
	assert.Equal(t, "sent_to_make", view.TaskStatus)
}
