package chunkstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Assemble concatenates the staged chunks for uploadID strictly in ascending
// index order into destDir/destName and returns the final path and size.
//
// The staged indices must be exactly {0..expectedTotal-1}; gaps fail with
// ErrIncompleteUpload and the staged chunks are retained so the client can
// resend only what is missing. The artifact is written to a temp file and
// renamed into place, so a crash mid-write never leaves a half-written
// artifact visible. On success the staging directory is purged — that purge
// is the serialization point for concurrent finalize calls: the loser finds
// no session and fails instead of committing the same chunk set twice.
func (s *Store) Assemble(uploadID string, expectedTotal int, destDir, destName string) (string, int64, error) {
	if expectedTotal <= 0 {
		return "", 0, ErrIncompleteUpload
	}

	mu := s.lock(uploadID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.SessionInfo(uploadID); err != nil {
		return "", 0, err
	}

	indices, err := s.ListChunks(uploadID)
	if err != nil {
		return "", 0, err
	}
	if len(indices) != expectedTotal {
		return "", 0, fmt.Errorf("%w: have %d of %d chunks", ErrIncompleteUpload, len(indices), expectedTotal)
	}
	for i, idx := range indices {
		if idx != i {
			return "", 0, fmt.Errorf("%w: missing chunk %d", ErrIncompleteUpload, i)
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("%w: create storage dir: %v", ErrStorage, err)
	}
	tmp, err := os.CreateTemp(destDir, ".assemble-*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: create temp artifact: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()

	var size int64
	for i := 0; i < expectedTotal; i++ {
		n, err := s.copyChunk(tmp, uploadID, i)
		if err != nil {
			tmp.Close()
			_ = os.Remove(tmpName)
			return "", 0, err
		}
		size += n
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("%w: close artifact: %v", ErrStorage, err)
	}

	final := filepath.Join(destDir, destName)
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("%w: commit artifact: %v", ErrStorage, err)
	}

	// Best-effort: the artifact is already durable, a leftover staging dir
	// is collected by Sweep.
	_ = s.Purge(uploadID)
	return final, size, nil
}

func (s *Store) copyChunk(dst io.Writer, uploadID string, index int) (int64, error) {
	rc, err := s.ReadChunk(uploadID, index)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	n, err := io.Copy(dst, rc)
	if err != nil {
		return n, fmt.Errorf("%w: concatenate chunk %d: %v", ErrStorage, index, err)
	}
	return n, nil
}
