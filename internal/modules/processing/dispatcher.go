package processing

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"notestream/internal/domain"
	"notestream/internal/pkg/cryptobox"
	"notestream/internal/repository"

	"gorm.io/gorm"
)

// maxInlineTranscript caps how much of a text artifact is fed to note
// generation directly.
const maxInlineTranscript = 4 * 1024 * 1024

// AICapability is the in-process transcription/note-generation pair used by
// the synchronous deployment.
type AICapability interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
	GenerateNotes(ctx context.Context, transcript, promptSpec string) (string, error)
	Model() string
}

// JobSubmitter delegates processing to the external worker.
type JobSubmitter interface {
	Submit(ctx context.Context, file *domain.File) error
}

// Dispatcher decides, per deployment, whether a committed file is processed
// in-process or delegated to the external worker. The choice is fixed at
// construction time: a nil worker means the synchronous path.
type Dispatcher struct {
	db       *gorm.DB
	files    *repository.FileRepository
	tasks    *repository.TaskRepository
	ai       AICapability
	worker   JobSubmitter
	box      *cryptobox.Box
	notifier Notifier
	noteType string
	prompt   string
}

type DispatcherOption func(*Dispatcher)

// WithWorker switches the dispatcher to the asynchronous webhook path.
func WithWorker(w JobSubmitter) DispatcherOption {
	return func(d *Dispatcher) { d.worker = w }
}

// WithCryptoBox enables at-rest encryption of stored transcriptions.
func WithCryptoBox(box *cryptobox.Box) DispatcherOption {
	return func(d *Dispatcher) { d.box = box }
}

func WithNotifier(n Notifier) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithPrompt overrides the note type and prompt spec recorded on results.
func WithPrompt(noteType, prompt string) DispatcherOption {
	return func(d *Dispatcher) {
		d.noteType = noteType
		d.prompt = prompt
	}
}

func NewDispatcher(db *gorm.DB, ai AICapability, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		db:       db,
		files:    repository.NewFileRepository(db),
		tasks:    repository.NewTaskRepository(db),
		ai:       ai,
		noteType: "summary",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch advances a freshly committed file out of the uploaded state.
// Every transition is a guarded compare-and-set, so a duplicate dispatch of
// the same file is a no-op error rather than a double run.
func (d *Dispatcher) Dispatch(ctx context.Context, file *domain.File) (*domain.ProcessingResult, error) {
	ok, err := d.files.TransitionStatus(ctx, file.ID, domain.FileUploaded, domain.FileProcessing)
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyDispatched
	}
	d.notify(file.ID, domain.FileProcessing, "")

	if d.worker != nil {
		return d.dispatchAsync(ctx, file)
	}
	return d.dispatchSync(ctx, file)
}

// dispatchAsync submits the job and leaves the terminal transition to the
// Completion Reconciler. A submission failure is a terminal failure here —
// the file must not be left silently stalled for the uploader to poll forever.
func (d *Dispatcher) dispatchAsync(ctx context.Context, file *domain.File) (*domain.ProcessingResult, error) {
	if err := d.worker.Submit(ctx, file); err != nil {
		log.Printf("dispatch_async file_id=%s result=failed error=%q", file.ID, err)
		return d.markFailed(ctx, file.ID, err.Error()), nil
	}

	ok, err := d.files.TransitionStatus(ctx, file.ID, domain.FileProcessing, domain.FileSentToWorker)
	if err != nil {
		log.Printf("dispatch_async file_id=%s result=failed stage=mark_sent error=%q", file.ID, err)
		return d.markFailed(ctx, file.ID, err.Error()), nil
	}
	if ok {
		// The job is already submitted, so a failed task mirror must not
		// flip the file to failed; the callback will settle the task row.
		if err := d.tasks.SetStatusByFileID(ctx, file.ID, domain.TaskSentToMake); err != nil {
			log.Printf("dispatch_async file_id=%s stage=mirror_task error=%q", file.ID, err)
		}
		d.notify(file.ID, domain.FileSentToWorker, "")
	}

	log.Printf("dispatch_async file_id=%s result=sent_to_worker", file.ID)
	return &domain.ProcessingResult{Status: domain.FileSentToWorker}, nil
}

// dispatchSync runs transcription (for audio) and note generation in-process
// and applies the terminal transition itself.
func (d *Dispatcher) dispatchSync(ctx context.Context, file *domain.File) (*domain.ProcessingResult, error) {
	start := time.Now()

	transcript, err := d.resolveTranscript(ctx, file)
	if err != nil {
		log.Printf("dispatch_sync file_id=%s result=failed stage=transcribe error=%q", file.ID, err)
		return d.markFailed(ctx, file.ID, err.Error()), nil
	}

	if err := d.storeTranscription(ctx, file.ID, transcript); err != nil {
		log.Printf("dispatch_sync file_id=%s result=failed stage=store_transcription error=%q", file.ID, err)
		return d.markFailed(ctx, file.ID, err.Error()), nil
	}

	notes, err := d.ai.GenerateNotes(ctx, transcript, d.prompt)
	if err != nil {
		log.Printf("dispatch_sync file_id=%s result=failed stage=generate_notes error=%q", file.ID, err)
		return d.markFailed(ctx, file.ID, err.Error()), nil
	}

	prompt := d.prompt
	if prompt == "" {
		prompt = defaultPromptName
	}
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewNoteRepository(tx).Create(ctx, &domain.NoteResult{
			FileID:     file.ID,
			NoteType:   d.noteType,
			Content:    notes,
			PromptUsed: prompt,
			Model:      d.ai.Model(),
			CreatedAt:  time.Now(),
		}); err != nil {
			return err
		}
		ok, err := repository.NewFileRepository(tx).TransitionStatus(ctx, file.ID, domain.FileProcessing, domain.FileProcessed)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyDispatched
		}
		return repository.NewTaskRepository(tx).Complete(ctx, file.ID, time.Now())
	})
	if err != nil {
		log.Printf("dispatch_sync file_id=%s result=failed stage=finish error=%q", file.ID, err)
		return d.markFailed(ctx, file.ID, err.Error()), nil
	}
	d.notify(file.ID, domain.FileProcessed, "")

	log.Printf("dispatch_sync file_id=%s result=processed latency_ms=%d", file.ID, time.Since(start).Milliseconds())
	return &domain.ProcessingResult{
		Status:   domain.FileProcessed,
		Notes:    notes,
		NoteType: d.noteType,
	}, nil
}

const defaultPromptName = "default-notes-v1"

func (d *Dispatcher) resolveTranscript(ctx context.Context, file *domain.File) (string, error) {
	switch {
	case isAudioMime(file.MimeType):
		f, err := os.Open(file.StoragePath)
		if err != nil {
			return "", fmt.Errorf("open artifact: %w", err)
		}
		defer f.Close()
		return d.ai.Transcribe(ctx, f, file.OriginalName)
	case strings.HasPrefix(file.MimeType, "text/"):
		f, err := os.Open(file.StoragePath)
		if err != nil {
			return "", fmt.Errorf("open artifact: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxInlineTranscript))
		if err != nil {
			return "", fmt.Errorf("read artifact: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, file.MimeType)
	}
}

func (d *Dispatcher) storeTranscription(ctx context.Context, fileID, transcript string) error {
	stored := transcript
	if d.box != nil {
		sealed, err := d.box.Encrypt([]byte(transcript))
		if err != nil {
			return fmt.Errorf("encrypt transcription: %w", err)
		}
		stored = base64.StdEncoding.EncodeToString(sealed)
	}
	return d.files.SetTranscription(ctx, fileID, stored)
}

// markFailed applies the terminal failure transition to both rows. It is
// best-effort on top of a guarded CAS: if the file already left processing,
// nothing is overwritten.
func (d *Dispatcher) markFailed(ctx context.Context, fileID, message string) *domain.ProcessingResult {
	ok, err := d.files.TransitionStatus(ctx, fileID, domain.FileProcessing, domain.FileFailed)
	if err != nil {
		log.Printf("mark_failed file_id=%s error=%q", fileID, err)
	}
	if ok {
		if err := d.tasks.Fail(ctx, fileID, message); err != nil {
			log.Printf("mark_failed file_id=%s error=%q", fileID, err)
		}
		d.notify(fileID, domain.FileFailed, message)
		return &domain.ProcessingResult{Status: domain.FileFailed, ErrorMessage: message}
	}

	// Lost to another transition; report whatever state won.
	if file, err := d.files.GetByID(ctx, fileID); err == nil {
		return &domain.ProcessingResult{Status: file.Status, ErrorMessage: message}
	}
	return &domain.ProcessingResult{Status: domain.FileFailed, ErrorMessage: message}
}

func (d *Dispatcher) notify(fileID string, status domain.FileStatus, errMsg string) {
	if d.notifier == nil {
		return
	}
	d.notifier.PublishStatus(fileID, status, domain.TaskStatusFor(status), errMsg)
}

func isAudioMime(mime string) bool {
	if strings.HasPrefix(mime, "audio/") {
		return true
	}
	// m4a/webm audio sniffs as a video container
	return mime == "video/mp4" || mime == "video/webm"
}
