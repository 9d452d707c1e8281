package snapshot

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveWritesFrameToDisk(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base)
	w.now = func() time.Time {
		return time.Date(2026, 1, 2, 10, 30, 45, 0, time.UTC)
	}

	path, timestamp, err := w.Save("alice", "front", []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "2026-01-02_10-30-45", timestamp)
	assert.Equal(t, fmt.Sprintf("%s/alice/front/%s.jpg", base, timestamp), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestSaveCreatesNestedDirectories(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, _, err := w.Save("alice", "front", []byte("a"))
	require.NoError(t, err)

	// A second camera of the same user gets its own directory.
	path, _, err := w.Save("alice", "back", []byte("b"))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestTimestampLayoutIsFilenameSafe(t *testing.T) {
	ts := time.Date(2026, 1, 2, 10, 30, 45, 0, time.UTC).Format(TimestampLayout)
	assert.NotContains(t, ts, ":")
	assert.NotContains(t, ts, "/")
	assert.NotContains(t, ts, " ")
}
