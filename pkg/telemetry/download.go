package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirDownloader saves downloads as files in a directory.
type DirDownloader struct {
	Dir string
}

func (d DirDownloader) Download(_ context.Context, name, _ string, data []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	return os.WriteFile(filepath.Join(d.Dir, filepath.Base(name)), data, 0o644)
}
