package status

import (
	"context"
	"errors"
	"fmt"

	"notestream/internal/domain"
	"notestream/internal/repository"
)

// Service is the read path over the File/Task pair. It only ever reads
// committed rows; any cached view elsewhere is rebuilt from these.
type Service struct {
	files *repository.FileRepository
	tasks *repository.TaskRepository
	notes *repository.NoteRepository
}

func NewService(files *repository.FileRepository, tasks *repository.TaskRepository, notes *repository.NoteRepository) *Service {
	return &Service{files: files, tasks: tasks, notes: notes}
}

// GetStatus returns the current snapshot for a file. Authorization is a pure
// function of (owner, requester) and is evaluated before any data — including
// task state or note existence — is assembled.
func (s *Service) GetStatus(ctx context.Context, fileID string, requester Requester) (*FileStatusView, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}

	if err := Authorize(file, requester); err != nil {
		return nil, err
	}

	view := &FileStatusView{
		FileID:     file.ID,
		Status:     string(file.Status),
		TaskStatus: string(domain.TaskStatusFor(file.Status)),
		CreatedAt:  file.CreatedAt,
	}

	task, err := s.tasks.GetByFileID(ctx, fileID)
	if err == nil {
		view.TaskStatus = string(task.Status)
		view.ProcessedAt = task.ProcessedAt
		if task.ErrorMessage != nil {
			view.ErrorMessage = *task.ErrorMessage
		}
	} else if !errors.Is(err, repository.ErrTaskNotFound) {
		return nil, fmt.Errorf("load task: %w", err)
	}

	if file.Status == domain.FileProcessed {
		count, err := s.notes.CountByFileID(ctx, fileID)
		if err != nil {
			return nil, fmt.Errorf("count notes: %w", err)
		}
		view.HasNotes = count > 0
	}

	return view, nil
}

// Authorize decides visibility: anonymous requesters see only ownerless
// files, authenticated requesters see their own, privileged requesters see
// everything.
func Authorize(file *domain.File, requester Requester) error {
	if requester.Privileged {
		return nil
	}
	if requester.UserID == nil {
		if file.Anonymous() {
			return nil
		}
		return ErrForbidden
	}
	if file.OwnedBy(*requester.UserID) {
		return nil
	}
	return ErrForbidden
}
