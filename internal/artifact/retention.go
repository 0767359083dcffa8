package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweep deletes every regular file directly under dir whose modification
// time is more than maxAgeDays days before now. It is not recursive and
// returns the paths it removed.
func Sweep(dir string, maxAgeDays int, now time.Time) ([]string, error) {
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var (
		removed []string
		errs    []error
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		slog.Info("Deleting old file", "path", path, "modified", info.ModTime().UTC().Format(time.RFC3339))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}

	return removed, errors.Join(errs...)
}
