package scrape

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// maxSnapshotBytes caps the size of a persisted page snapshot.
const maxSnapshotBytes = 8 << 20

// FileSystemSink writes rendered-page snapshots to disk for later
// inspection of anti-bot failures and selector drift.
type FileSystemSink struct {
	root string
}

// NewFileSystemSink returns a sink rooted at dir.
func NewFileSystemSink(root string) (*FileSystemSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", root, err)
	}
	return &FileSystemSink{root: root}, nil
}

// Save implements SnapshotSink.
func (s *FileSystemSink) Save(platform Platform, html string) (string, error) {
	if html == "" {
		return "", fmt.Errorf("empty snapshot")
	}
	if int64(len(html)) > maxSnapshotBytes {
		html = html[:maxSnapshotBytes]
	}
	name := fmt.Sprintf("%s_%d_%s.html", platform, time.Now().UnixNano(), uuid.NewString()[:8])
	target := filepath.Join(s.root, name)
	if err := os.WriteFile(target, []byte(html), 0o600); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", target, err)
	}
	return target, nil
}
