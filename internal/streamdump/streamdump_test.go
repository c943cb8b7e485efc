package streamdump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderFlushWritesRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")
	r := NewRecorder(path, 64)

	n, err := r.Write([]byte{0x90, 60, 100})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, r.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 60, 100}, data)
}

func TestRecorderAgesOutOldestBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")
	r := NewRecorder(path, 8)

	for b := byte(0); b < 12; b++ {
		_, err := r.Write([]byte{b})
		require.NoError(t, err)
	}

	require.NoError(t, r.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5, 6, 7, 8, 9, 10, 11}, data,
		"recording keeps the most recent bytes")
}

func TestRecorderFlushEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")
	r := NewRecorder(path, 0)

	require.NoError(t, r.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
