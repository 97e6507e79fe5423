package chunkstore

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	sessionFile = "session.json"
	chunkSuffix = ".chunk"
	maxUploadID = 64
)

// Session is the staging-only metadata for one chunked upload.
// It lives next to the chunk files and is never persisted in the database;
// the whole session is reconstructable by listing the staging directory.
type Session struct {
	UploadID       string    `json:"upload_id"`
	OwnerScope     string    `json:"owner_scope"`
	FileName       string    `json:"file_name"`
	DeclaredSize   int64     `json:"declared_size,omitempty"`
	ExpectedChunks int       `json:"expected_chunks,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is a durable staging area for chunked uploads, partitioned by
// upload ID. Chunks may arrive out of order and from concurrent requests;
// writes to the same index are last-write-wins via write-to-temp-then-rename.
type Store struct {
	root  string
	locks sync.Map // uploadID -> *sync.Mutex, serializes finalize per upload
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create staging root: %v", ErrStorage, err)
	}
	return &Store{root: root}, nil
}

// PutChunk stages one chunk. The first write for an upload ID claims it for
// ownerScope; a later write with a different scope is rejected so two clients
// colliding on the same ID can never interleave chunks into one artifact.
func (s *Store) PutChunk(uploadID, ownerScope, fileName string, declaredSize int64, expectedChunks, index int, r io.Reader) error {
	dir, err := s.sessionDir(uploadID)
	if err != nil {
		return err
	}
	if index < 0 {
		return ErrInvalidChunk
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create session dir: %v", ErrStorage, err)
	}
	if err := s.claimSession(dir, uploadID, ownerScope, fileName, declaredSize, expectedChunks); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".chunk-*")
	if err != nil {
		return fmt.Errorf("%w: create temp chunk: %v", ErrStorage, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: write chunk %d: %v", ErrStorage, index, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: close chunk %d: %v", ErrStorage, index, err)
	}

	// Atomic replace: a repeated write for the same index overwrites,
	// never appends, and a reader can never observe a partial chunk.
	final := filepath.Join(dir, chunkName(index))
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: commit chunk %d: %v", ErrStorage, index, err)
	}
	return nil
}

// ListChunks returns the staged chunk indices in ascending order.
func (s *Store) ListChunks(uploadID string) ([]int, error) {
	dir, err := s.sessionDir(uploadID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %v", ErrStorage, err)
	}

	indices := make([]int, 0, len(entries))
	for _, e := range entries {
		idx, ok := parseChunkName(e.Name())
		if !ok {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

// ReadChunk opens one staged chunk for reading.
func (s *Store) ReadChunk(uploadID string, index int) (io.ReadCloser, error) {
	dir, err := s.sessionDir(uploadID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, chunkName(index)))
	if os.IsNotExist(err) {
		return nil, ErrIncompleteUpload
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open chunk %d: %v", ErrStorage, index, err)
	}
	return f, nil
}

// SessionInfo loads the staged session metadata.
func (s *Store) SessionInfo(uploadID string) (*Session, error) {
	dir, err := s.sessionDir(uploadID)
	if err != nil {
		return nil, err
	}
	return readSession(dir)
}

// Purge removes the whole staging directory for an upload.
func (s *Store) Purge(uploadID string) error {
	dir, err := s.sessionDir(uploadID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: purge session: %v", ErrStorage, err)
	}
	return nil
}

// Sweep removes staging sessions older than maxAge and returns how many
// were dropped. Failures are logged, not propagated: a stale temp dir is
// acceptable, losing track of a live upload is not.
func (s *Store) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		log.Printf("chunkstore_sweep error=%q", err)
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		sess, err := readSession(dir)
		if err == nil {
			if sess.CreatedAt.After(cutoff) {
				continue
			}
		} else {
			// Missing or corrupt session marker (crash mid-claim). Age by
			// directory mtime so the leftover cannot leak forever.
			info, statErr := e.Info()
			if statErr != nil || info.ModTime().After(cutoff) {
				continue
			}
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("chunkstore_sweep upload_id=%s error=%q", e.Name(), err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("chunkstore_sweep removed=%d max_age=%s", removed, maxAge)
	}
	return removed
}

func (s *Store) sessionDir(uploadID string) (string, error) {
	if !validUploadID(uploadID) {
		return "", ErrInvalidUploadID
	}
	return filepath.Join(s.root, uploadID), nil
}

func (s *Store) lock(uploadID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(uploadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// claimSession creates the session marker with O_EXCL so the first writer
// wins; subsequent writers must present the same owner scope.
func (s *Store) claimSession(dir, uploadID, ownerScope, fileName string, declaredSize int64, expectedChunks int) error {
	path := filepath.Join(dir, sessionFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		existing, err := readSession(dir)
		if err != nil {
			return err
		}
		if existing.OwnerScope != ownerScope {
			return ErrScopeMismatch
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: claim session: %v", ErrStorage, err)
	}
	defer f.Close()

	sess := Session{
		UploadID:       uploadID,
		OwnerScope:     ownerScope,
		FileName:       fileName,
		DeclaredSize:   declaredSize,
		ExpectedChunks: expectedChunks,
		CreatedAt:      time.Now().UTC(),
	}
	if err := json.NewEncoder(f).Encode(&sess); err != nil {
		return fmt.Errorf("%w: write session: %v", ErrStorage, err)
	}
	return nil
}

func readSession(dir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if os.IsNotExist(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read session: %v", ErrStorage, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", ErrStorage, err)
	}
	return &sess, nil
}

func chunkName(index int) string {
	return strconv.Itoa(index) + chunkSuffix
}

func parseChunkName(name string) (int, bool) {
	if !strings.HasSuffix(name, chunkSuffix) {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(name, chunkSuffix))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// validUploadID keeps client-supplied IDs safe to use as directory names.
func validUploadID(id string) bool {
	if id == "" || len(id) > maxUploadID {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
