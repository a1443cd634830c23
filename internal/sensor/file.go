package sensor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/engine"
)

// File reads the current UID from a text file written by another process.
// A missing or empty file means no card.
type File struct {
	Path string
}

func (f *File) Poll(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrSensorRead, err)
	}
	return engine.NormalizeUID(string(raw)), nil
}

func (f *File) Close() error { return nil }
