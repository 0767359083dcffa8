package worker

import (
	"context"

	"github.com/dandantas/grabber/internal/model"
)

// RunFunc executes one run. It owns the run until it returns.
type RunFunc func(ctx context.Context, run model.RunContext)

// Job is one queued run
type Job struct {
	Run model.RunContext
}
