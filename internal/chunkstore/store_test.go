package chunkstore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	return s
}

func putAll(t *testing.T, s *Store, uploadID, scope string, chunks [][]byte, order []int) {
	t.Helper()
	for _, idx := range order {
		require.NoError(t, s.PutChunk(uploadID, scope, "sample.txt", 0, len(chunks), idx, bytes.NewReader(chunks[idx])))
	}
}

func shuffled(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j, _ := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		order[i], order[int(j.Int64())] = order[int(j.Int64())], order[i]
	}
	return order
}

func TestAssembleReproducesOriginalBytesForAnyOrder(t *testing.T) {
	original := make([]byte, 256*1024+17)
	_, err := rand.Read(original)
	require.NoError(t, err)

	for _, n := range []int{1, 3, 7, 16} {
		s := newStore(t)
		chunkSize := (len(original) + n - 1) / n
		chunks := make([][]byte, 0, n)
		for i := 0; i < n; i++ {
			lo := i * chunkSize
			hi := lo + chunkSize
			if hi > len(original) {
				hi = len(original)
			}
			chunks = append(chunks, original[lo:hi])
		}

		putAll(t, s, "upload-1", "user:1", chunks, shuffled(n))

		dest := t.TempDir()
		path, size, err := s.Assemble("upload-1", n, dest, "artifact.bin")
		require.NoError(t, err)
		require.Equal(t, int64(len(original)), size)

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, original, got, "n=%d", n)
	}
}

func TestAssembleMissingChunkFails(t *testing.T) {
	s := newStore(t)
	chunks := [][]byte{[]byte("aa"), []byte("bb"), []byte("cc"), []byte("dd")}
	putAll(t, s, "gap", "user:1", chunks, []int{0, 1, 3})

	_, _, err := s.Assemble("gap", 4, t.TempDir(), "artifact.bin")
	require.ErrorIs(t, err, ErrIncompleteUpload)

	// Staged chunks are retained so the client can resend only index 2.
	indices, err := s.ListChunks("gap")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, indices)

	require.NoError(t, s.PutChunk("gap", "user:1", "sample.txt", 0, 4, 2, bytes.NewReader(chunks[2])))
	path, _, err := s.Assemble("gap", 4, t.TempDir(), "artifact.bin")
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("aabbccdd"), got)
}

func TestPutChunkSameIndexOverwrites(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.PutChunk("dup", "user:1", "f", 0, 2, 0, strings.NewReader("first")))
	require.NoError(t, s.PutChunk("dup", "user:1", "f", 0, 2, 0, strings.NewReader("second")))
	require.NoError(t, s.PutChunk("dup", "user:1", "f", 0, 2, 1, strings.NewReader("!")))

	path, _, err := s.Assemble("dup", 2, t.TempDir(), "artifact.bin")
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second!", string(got))
}

func TestPutChunkRejectsForeignScope(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.PutChunk("shared-id", "user:1", "a.txt", 0, 2, 0, strings.NewReader("mine")))

	err := s.PutChunk("shared-id", "user:2", "b.txt", 0, 2, 1, strings.NewReader("theirs"))
	require.ErrorIs(t, err, ErrScopeMismatch)

	// The collision must not contaminate the first client's chunk set.
	indices, err := s.ListChunks("shared-id")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, indices)
}

func TestPutChunkRejectsUnsafeUploadID(t *testing.T) {
	s := newStore(t)
	for _, id := range []string{"", "../escape", "a/b", strings.Repeat("x", 100)} {
		err := s.PutChunk(id, "user:1", "f", 0, 1, 0, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidUploadID, "id=%q", id)
	}
}

func TestConcurrentAssembleSingleWinner(t *testing.T) {
	s := newStore(t)
	putAll(t, s, "race", "user:1", [][]byte{[]byte("a"), []byte("b")}, []int{0, 1})

	dest := t.TempDir()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = s.Assemble("race", 2, dest, "artifact.bin")
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			assert.ErrorIs(t, err, ErrSessionNotFound)
		}
	}
	require.Equal(t, 1, okCount)
}

func TestAssembleWithoutSessionFails(t *testing.T) {
	s := newStore(t)
	_, _, err := s.Assemble("never-seen", 1, t.TempDir(), "artifact.bin")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConcurrentChunkWritesDifferentIndices(t *testing.T) {
	s := newStore(t)
	const n = 24
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.PutChunk("par", "user:1", "f", 0, n, i, bytes.NewReader([]byte{byte(i)}))
		}(i)
	}
	wg.Wait()

	indices, err := s.ListChunks("par")
	require.NoError(t, err)
	require.Len(t, indices, n)

	path, size, err := s.Assemble("par", n, t.TempDir(), "artifact.bin")
	require.NoError(t, err)
	require.Equal(t, int64(n), size)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), got[i])
	}
}

func TestSweepRemovesStaleSessions(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.PutChunk("stale", "user:1", "f", 0, 1, 0, strings.NewReader("x")))
	require.NoError(t, s.PutChunk("fresh", "user:1", "f", 0, 1, 0, strings.NewReader("y")))

	// Age the first session by rewriting its metadata.
	sess, err := s.SessionInfo("stale")
	require.NoError(t, err)
	sess.CreatedAt = time.Now().Add(-48 * time.Hour)
	rewriteSession(t, s, "stale", sess)

	removed := s.Sweep(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, err = s.ListChunks("stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.ListChunks("fresh")
	assert.NoError(t, err)
}

// A crash between the session claim and the metadata write leaves a dir
// whose session.json is empty or garbage; Sweep ages those by mtime instead
// of skipping them forever.
func TestSweepRemovesCorruptSessions(t *testing.T) {
	s := newStore(t)

	oldDir := filepath.Join(s.root, "corrupt-old")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, sessionFile), []byte("{not json"), 0o644))
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, stale, stale))

	freshDir := filepath.Join(s.root, "corrupt-fresh")
	require.NoError(t, os.MkdirAll(freshDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(freshDir, sessionFile), []byte("{not json"), 0o644))

	removed := s.Sweep(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshDir)
	assert.NoError(t, err)
}

func rewriteSession(t *testing.T, s *Store, uploadID string, sess *Session) {
	t.Helper()
	dir, err := s.sessionDir(uploadID)
	require.NoError(t, err)
	f, err := os.Create(filepath.Join(dir, sessionFile))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, json.NewEncoder(f).Encode(sess))
}
