// Package upload publishes rendered artifacts to remote destinations.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dandantas/grabber/internal/model"
)

// ErrCircuitOpen is returned for a destination skipped after repeated failures.
var ErrCircuitOpen = errors.New("destination circuit open")

// Destination is one place an artifact can be published to.
type Destination interface {
	Name() string
	Upload(ctx context.Context, path string, run model.RunContext) error
	Close(ctx context.Context) error
}

type guarded struct {
	dest    Destination
	breaker *CircuitBreaker
}

// Multi uploads every artifact to all configured destinations.
type Multi struct {
	dests []guarded
}

// NewMulti wraps each destination in its own circuit breaker.
func NewMulti(dests ...Destination) *Multi {
	m := &Multi{}
	for _, d := range dests {
		if d == nil {
			continue
		}
		m.dests = append(m.dests, guarded{dest: d, breaker: NewCircuitBreaker(5, 0)})
	}
	return m
}

// Len returns the number of destinations
func (m *Multi) Len() int {
	return len(m.dests)
}

// Upload publishes path to every destination. Failures do not stop the
// remaining destinations; they are joined into the returned error.
func (m *Multi) Upload(ctx context.Context, path string, run model.RunContext) error {
	logger := slog.With(run.LogAttrs()...)
	if len(m.dests) == 0 {
		logger.Info("No upload destination configured, skipping upload", "file", filepath.Base(path))
		return nil
	}

	var errs []error
	for _, g := range m.dests {
		name := g.dest.Name()
		if !g.breaker.CanAttempt() {
			logger.Warn("Skipping upload, destination circuit open", "destination", name)
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrCircuitOpen))
			continue
		}

		if err := g.dest.Upload(ctx, path, run); err != nil {
			g.breaker.RecordFailure()
			logger.Error("Upload failed",
				"destination", name,
				"file", filepath.Base(path),
				"circuit_state", g.breaker.State().String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		g.breaker.RecordSuccess()
		logger.Info("Upload done", "destination", name, "file", filepath.Base(path))
	}
	return errors.Join(errs...)
}

// Close releases every destination's connection.
func (m *Multi) Close(ctx context.Context) error {
	var errs []error
	for _, g := range m.dests {
		if err := g.dest.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.dest.Name(), err))
		}
	}
	return errors.Join(errs...)
}
