package bulk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avolkov/featurepipe/internal/logging"
	"github.com/avolkov/featurepipe/internal/model"
)

// FileSink writes the derived-feature CSV to a local path. The data is
// staged at <path>.tmp, synced, and renamed over the final path, so readers
// only ever see the previous complete output or the new complete output.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path, creating parent directories
// on demand.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Write stages and atomically commits the full stream.
func (s *FileSink) Write(ctx context.Context, recs []model.DerivedRecord) error {
	data, err := Encode(recs)
	if err != nil {
		return fmt.Errorf("encode bulk output: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	staging := s.path + ".tmp"
	f, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open staging file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("close staging file: %w", err)
	}

	if err := os.Rename(staging, s.path); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("commit bulk output: %w", err)
	}

	logging.L(ctx).Info("bulk output committed", "path", s.path, "records", len(recs))
	return nil
}
