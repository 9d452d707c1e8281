// Package snapshot writes qualifying frames to disk, organized per
// user and camera.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TimestampLayout is the second-resolution layout embedded in snapshot
// file names and recorded in the image index.
const TimestampLayout = "2006-01-02_15-04-05"

// Writer saves JPEG snapshots under baseDir/<user>/<camera>/.
type Writer struct {
	baseDir string
	now     func() time.Time
}

func NewWriter(baseDir string) *Writer {
	return &Writer{
		baseDir: baseDir,
		now:     time.Now,
	}
}

// Save writes one frame and returns its path and the recorded timestamp.
func (w *Writer) Save(username, camera string, frame []byte) (string, string, error) {
	dir := filepath.ToSlash(filepath.Join(w.baseDir, username, camera))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	timestamp := w.now().Format(TimestampLayout)
	path := fmt.Sprintf("%s/%s.jpg", dir, timestamp)

	if err := os.WriteFile(path, frame, 0644); err != nil {
		return "", "", fmt.Errorf("failed to save snapshot %s: %w", path, err)
	}

	return path, timestamp, nil
}
