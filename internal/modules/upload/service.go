package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"notestream/internal/chunkstore"
	"notestream/internal/domain"
	"notestream/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultMaxUploadBytes = 200 * 1024 * 1024 // 200 MB

// AllowedMimeTypes is the upload-time allowlist. It is deliberately broader
// than what the synchronous AI path can process: an allowed-but-unprocessable
// type fails at dispatch with the reason recorded, it is not rejected here.
var AllowedMimeTypes = map[string]bool{
	"audio/mpeg":               true,
	"audio/wave":               true,
	"audio/webm":               true,
	"audio/ogg":                true,
	"audio/aiff":               true,
	"video/mp4":                true, // m4a containers sniff as video/mp4
	"video/webm":               true,
	"text/plain":               true,
	"text/html":                true,
	"application/pdf":          true,
	"application/octet-stream": true,
}

// Service is the common commit path for both the single-shot and the chunked
// upload flows: stage -> durable artifact -> File+Task rows -> dispatch.
type Service struct {
	db         *gorm.DB
	chunks     *chunkstore.Store
	dispatcher Dispatcher
	storageDir string
	maxBytes   int64
}

func NewService(db *gorm.DB, chunks *chunkstore.Store, dispatcher Dispatcher, storageDir string, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Service{
		db:         db,
		chunks:     chunks,
		dispatcher: dispatcher,
		storageDir: storageDir,
		maxBytes:   maxBytes,
	}
}

// Upload handles the single-shot path: persist the artifact, commit the
// File/Task pair, dispatch.
func (s *Service) Upload(ctx context.Context, ownerID *int64, fileHeader *multipart.FileHeader) (*domain.File, *domain.ProcessingResult, error) {
	if fileHeader.Size == 0 {
		return nil, nil, ErrEmptyFile
	}
	if fileHeader.Size > s.maxBytes {
		return nil, nil, ErrFileTooLarge
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	mimeType, err := sniffMime(src)
	if err != nil {
		return nil, nil, err
	}
	if !AllowedMimeTypes[mimeType] {
		return nil, nil, ErrInvalidMimeType
	}

	fileID := uuid.New().String()
	storageName := storageNameFor(fileID, fileHeader.Filename)
	artifactPath, size, err := s.writeArtifact(src, storageName)
	if err != nil {
		return nil, nil, err
	}

	file, err := s.CommitUpload(ctx, artifactPath, Metadata{
		Filename:     storageName,
		OriginalName: fileHeader.Filename,
		SizeBytes:    size,
		MimeType:     mimeType,
		FileID:       fileID,
	}, ownerID)
	if err != nil {
		return nil, nil, err
	}

	return file, s.dispatch(ctx, file), nil
}

// SaveChunk stages one chunk under the client-chosen upload ID, namespaced
// by the requester scope so colliding IDs from different clients never mix.
func (s *Service) SaveChunk(ctx context.Context, scope string, req ChunkRequest, chunk io.Reader) error {
	return s.chunks.PutChunk(req.FileID, scope, req.FileName, 0, req.TotalChunks, *req.ChunkIndex, chunk)
}

// Finalize reassembles a chunked upload and pushes it through the same
// commit path as a single-shot upload.
func (s *Service) Finalize(ctx context.Context, scope string, ownerID *int64, req FinalizeRequest) (*domain.File, *domain.ProcessingResult, error) {
	sess, err := s.chunks.SessionInfo(req.FileID)
	if errors.Is(err, chunkstore.ErrSessionNotFound) {
		return nil, nil, ErrAlreadyFinalized
	}
	if err != nil {
		return nil, nil, err
	}
	if sess.OwnerScope != scope {
		return nil, nil, chunkstore.ErrScopeMismatch
	}

	total := req.TotalChunks
	if total <= 0 {
		total = sess.ExpectedChunks
	}
	if total <= 0 {
		return nil, nil, chunkstore.ErrIncompleteUpload
	}

	fileID := uuid.New().String()
	storageName := storageNameFor(fileID, req.FileName)
	artifactPath, size, err := s.chunks.Assemble(req.FileID, total, s.storageDir, storageName)
	if errors.Is(err, chunkstore.ErrSessionNotFound) {
		return nil, nil, ErrAlreadyFinalized
	}
	if err != nil {
		return nil, nil, err
	}
	if size == 0 {
		_ = os.Remove(artifactPath)
		return nil, nil, ErrEmptyFile
	}
	if size > s.maxBytes {
		_ = os.Remove(artifactPath)
		return nil, nil, ErrFileTooLarge
	}

	mimeType, err := sniffFile(artifactPath)
	if err != nil {
		_ = os.Remove(artifactPath)
		return nil, nil, err
	}
	if !AllowedMimeTypes[mimeType] {
		_ = os.Remove(artifactPath)
		return nil, nil, ErrInvalidMimeType
	}

	file, err := s.CommitUpload(ctx, artifactPath, Metadata{
		Filename:     storageName,
		OriginalName: req.FileName,
		SizeBytes:    size,
		MimeType:     mimeType,
		FileID:       fileID,
	}, ownerID)
	if err != nil {
		return nil, nil, err
	}

	return file, s.dispatch(ctx, file), nil
}

// Metadata describes a committed artifact.
type Metadata struct {
	FileID       string
	Filename     string
	OriginalName string
	SizeBytes    int64
	MimeType     string
}

// CommitUpload persists the File row (status=uploaded) and its paired Task
// row (status=pending) in one transaction. A File must never exist durably
// without a Task, so a failed Task insert rolls the File back and the
// artifact is removed.
func (s *Service) CommitUpload(ctx context.Context, artifactPath string, meta Metadata, ownerID *int64) (*domain.File, error) {
	now := time.Now()
	file := &domain.File{
		ID:           meta.FileID,
		Filename:     meta.Filename,
		OriginalName: meta.OriginalName,
		SizeBytes:    meta.SizeBytes,
		MimeType:     meta.MimeType,
		OwnerID:      ownerID,
		StoragePath:  artifactPath,
		Status:       domain.FileUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	task := &domain.Task{
		ID:        uuid.New().String(),
		FileID:    file.ID,
		OwnerID:   ownerID,
		Status:    domain.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewFileRepository(tx).Create(ctx, file); err != nil {
			return err
		}
		return repository.NewTaskRepository(tx).Create(ctx, task)
	})
	if err != nil {
		_ = os.Remove(artifactPath)
		return nil, fmt.Errorf("commit upload: %w", err)
	}

	log.Printf("upload_commit file_id=%s task_id=%s size=%d mime=%s", file.ID, task.ID, file.SizeBytes, file.MimeType)
	return file, nil
}

// dispatch hands the file to the processing pipeline. The upload itself has
// already committed, so a dispatch error does not fail the request; it is
// reported as a failed processing outcome instead of a silent stall.
func (s *Service) dispatch(ctx context.Context, file *domain.File) *domain.ProcessingResult {
	result, err := s.dispatcher.Dispatch(ctx, file)
	if err != nil {
		log.Printf("dispatch_error file_id=%s error=%q", file.ID, err)
		return &domain.ProcessingResult{Status: domain.FileFailed, ErrorMessage: err.Error()}
	}
	return result
}

func (s *Service) writeArtifact(src io.Reader, storageName string) (string, int64, error) {
	if err := os.MkdirAll(s.storageDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create storage dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.storageDir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp artifact: %w", err)
	}
	size, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("close artifact: %w", err)
	}

	final := filepath.Join(s.storageDir, storageName)
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("commit artifact: %w", err)
	}
	return final, size, nil
}

// storageNameFor builds the durable storage name: the file ID plus a
// sanitized slice of the original name, so the name alone identifies the row.
func storageNameFor(fileID, originalName string) string {
	ext := filepath.Ext(originalName)
	return fmt.Sprintf("%s_%s%s", fileID, sanitizeName(originalName), ext)
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		return "file"
	}
	return name
}

func sniffMime(src multipart.File) (string, error) {
	buf := make([]byte, 512)
	n, err := src.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read file head: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind file: %w", err)
	}
	return normalizeMime(http.DetectContentType(buf[:n])), nil
}

func sniffFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read artifact head: %w", err)
	}
	return normalizeMime(http.DetectContentType(buf[:n])), nil
}

func normalizeMime(mime string) string {
	return strings.TrimSpace(strings.Split(mime, ";")[0])
}
