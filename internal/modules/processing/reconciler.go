package processing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"notestream/internal/domain"
	"notestream/internal/repository"

	"gorm.io/gorm"
)

// CallbackOutcome is the closed set of shapes an external worker callback
// can take. It is decoded and validated at the HTTP boundary; by the time it
// reaches the reconciler it is one of exactly two variants.
type CallbackOutcome interface {
	outcome()
}

// CallbackSuccess carries the generated notes.
type CallbackSuccess struct {
	Notes    string
	NoteType string
}

// CallbackFailure carries the worker's error message.
type CallbackFailure struct {
	Message string
}

func (CallbackSuccess) outcome() {}
func (CallbackFailure) outcome() {}

// Reconciler applies the external worker's callback to the File/Task pair.
// The callback channel is at-least-once: duplicates and concurrent
// redeliveries must collapse into exactly one applied transition.
type Reconciler struct {
	db       *gorm.DB
	files    *repository.FileRepository
	notifier Notifier
	noteType string
	model    string
}

func NewReconciler(db *gorm.DB, notifier Notifier) *Reconciler {
	return &Reconciler{
		db:       db,
		files:    repository.NewFileRepository(db),
		notifier: notifier,
		noteType: "summary",
		model:    "external-worker",
	}
}

// ApplyCallback validates the callback against the referenced file and
// applies exactly one terminal transition.
//
// Idempotency: a file already in a terminal state accepts the callback as a
// logged no-op (nil error, so the boundary answers 200 and the worker stops
// retrying). The transition itself is a guarded compare-and-set on
// sent_to_worker, and the NoteResult unique index backstops the race where
// two deliveries pass the terminal check simultaneously.
func (r *Reconciler) ApplyCallback(ctx context.Context, fileID string, outcome CallbackOutcome) error {
	file, err := r.files.GetByID(ctx, fileID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return ErrUnknownFile
	}
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}

	if file.Status.Terminal() {
		log.Printf("callback_duplicate file_id=%s status=%s", fileID, file.Status)
		return nil
	}
	if file.Status != domain.FileSentToWorker {
		return fmt.Errorf("%w: status=%s", ErrInvalidCallbackState, file.Status)
	}

	switch o := outcome.(type) {
	case CallbackSuccess:
		return r.applySuccess(ctx, fileID, o)
	case CallbackFailure:
		return r.applyFailure(ctx, fileID, o)
	default:
		return fmt.Errorf("unhandled callback outcome %T", outcome)
	}
}

// applySuccess writes the NoteResult before flipping the status, so any
// reader observing processed is guaranteed to find the notes.
func (r *Reconciler) applySuccess(ctx context.Context, fileID string, o CallbackSuccess) error {
	noteType := o.NoteType
	if noteType == "" {
		noteType = r.noteType
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := repository.NewNoteRepository(tx).Create(ctx, &domain.NoteResult{
			FileID:    fileID,
			NoteType:  noteType,
			Content:   o.Notes,
			Model:     r.model,
			CreatedAt: time.Now(),
		})
		if errors.Is(err, repository.ErrDuplicateNote) {
			// A concurrent delivery won; collapse into a no-op.
			return err
		}
		if err != nil {
			return err
		}

		files := repository.NewFileRepository(tx)
		ok, err := files.TransitionStatus(ctx, fileID, domain.FileSentToWorker, domain.FileProcessed)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCallbackState
		}
		return repository.NewTaskRepository(tx).Complete(ctx, fileID, time.Now())
	})
	// Either a concurrent delivery wrote the note first, or a concurrent
	// failure delivery won the transition; both collapse into a no-op.
	if errors.Is(err, repository.ErrDuplicateNote) || errors.Is(err, ErrInvalidCallbackState) {
		log.Printf("callback_duplicate file_id=%s status=racing_delivery", fileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply success callback: %w", err)
	}

	r.notify(fileID, domain.FileProcessed, "")
	log.Printf("callback_applied file_id=%s result=processed", fileID)
	return nil
}

func (r *Reconciler) applyFailure(ctx context.Context, fileID string, o CallbackFailure) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repository.NewFileRepository(tx).TransitionStatus(ctx, fileID, domain.FileSentToWorker, domain.FileFailed)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCallbackState
		}
		return repository.NewTaskRepository(tx).Fail(ctx, fileID, o.Message)
	})
	if errors.Is(err, ErrInvalidCallbackState) {
		// Lost a race against another delivery; already terminal.
		log.Printf("callback_duplicate file_id=%s status=racing_delivery", fileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply failure callback: %w", err)
	}

	r.notify(fileID, domain.FileFailed, o.Message)
	log.Printf("callback_applied file_id=%s result=failed error=%q", fileID, o.Message)
	return nil
}

func (r *Reconciler) notify(fileID string, status domain.FileStatus, errMsg string) {
	if r.notifier == nil {
		return
	}
	r.notifier.PublishStatus(fileID, status, domain.TaskStatusFor(status), errMsg)
}
