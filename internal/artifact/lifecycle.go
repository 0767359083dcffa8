// Package artifact manages raw captures and renderings in the download
// directory: picking the file the remote side just wrote, giving it its
// canonical name, and retiring old files.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dandantas/grabber/internal/model"
)

// CanonicalName returns "<YYYYMMDD_HHMMSS><ext>" for t in UTC.
func CanonicalName(t time.Time, ext string) string {
	return t.UTC().Format(model.ArtifactTimeLayout) + normalizeExt(ext)
}

// SelectLatest returns the most recently written regular file in dir whose
// extension matches ext. It returns model.ErrNotFound when none match.
func SelectLatest(dir, ext string) (string, error) {
	return selectLatest(dir, ext, time.Time{}, false)
}

// SelectLatestSince is SelectLatest restricted to files written at or after
// since that do not already carry a canonical name, so a file left by an
// earlier run is never picked up.
func SelectLatestSince(dir, ext string, since time.Time) (string, error) {
	return selectLatest(dir, ext, since, true)
}

// IsCanonical reports whether name is "<YYYYMMDD_HHMMSS>.<ext>".
func IsCanonical(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if len(stem) != len(model.ArtifactTimeLayout) {
		return false
	}
	_, err := time.Parse(model.ArtifactTimeLayout, stem)
	return err == nil
}

func selectLatest(dir, ext string, since time.Time, skipCanonical bool) (string, error) {
	ext = normalizeExt(ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var (
		latest     string
		latestTime time.Time
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		if skipCanonical && IsCanonical(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if mod.Before(since) {
			continue
		}
		if latest == "" || mod.After(latestTime) {
			latest = filepath.Join(dir, entry.Name())
			latestTime = mod
		}
	}

	if latest == "" {
		return "", fmt.Errorf("%w: *%s in %s", model.ErrNotFound, ext, dir)
	}
	return latest, nil
}

// Canonicalize renames path to its canonical name for timestamp, in the same
// directory and with the same extension. An existing file with that name is
// never overwritten: model.ErrAlreadyExists is returned instead.
func Canonicalize(path string, timestamp time.Time) (string, error) {
	target := filepath.Join(filepath.Dir(path), CanonicalName(timestamp, filepath.Ext(path)))
	if target == path {
		return path, nil
	}

	// Link fails atomically when target exists.
	if err := os.Link(path, target); err == nil {
		if err := os.Remove(path); err != nil {
			return target, fmt.Errorf("failed to remove %s after linking: %w", path, err)
		}
		return target, nil
	} else if errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("%w: %s", model.ErrAlreadyExists, target)
	}

	// Filesystems without hard links.
	if _, err := os.Lstat(target); err == nil {
		return "", fmt.Errorf("%w: %s", model.ErrAlreadyExists, target)
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return target, nil
}

func normalizeExt(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}
