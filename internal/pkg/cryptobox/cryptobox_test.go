package cryptobox

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestRoundTrip(t *testing.T) {
	box, err := New(testKey(t))
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox said something worth transcribing")
	ciphertext, err := box.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := box.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	box, err := New(testKey(t))
	require.NoError(t, err)

	a, err := box.Encrypt([]byte("same input"))
	require.NoError(t, err)
	b, err := box.Encrypt([]byte("same input"))
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b))
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	box, err := New(testKey(t))
	require.NoError(t, err)

	ciphertext, err := box.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0x01

	_, err = box.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	box, err := New(testKey(t))
	require.NoError(t, err)

	_, err = box.Decrypt([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewRejectsBadKey(t *testing.T) {
	_, err := New([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
