package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dandantas/grabber/internal/artifact"
	"github.com/dandantas/grabber/internal/clock"
	"github.com/dandantas/grabber/internal/model"
	"github.com/dandantas/grabber/internal/worker"
)

// Recorder captures the raw artifact for one run.
type Recorder interface {
	Record(ctx context.Context, run model.RunContext) (string, error)
	State() model.SessionState
}

// RecorderFactory returns a fresh Recorder for each run. gate is shared by
// every recorder writing into the same download directory.
type RecorderFactory func(gate sync.Locker) Recorder

// Renderer turns a raw capture into an image artifact.
type Renderer interface {
	RenderFile(ctx context.Context, wavPath, pngPath string, start time.Time) error
}

// Uploader transfers an artifact to its destinations, best effort.
type Uploader interface {
	Upload(ctx context.Context, path string, run model.RunContext) error
}

// OrchestratorConfig configures the run pipeline.
type OrchestratorConfig struct {
	DownloadDir    string
	MaxFileAgeDays int
	JitterMin      time.Duration
	JitterMax      time.Duration
	Workers        int
	QueueSize      int

	// CheckConfig reports keys a run needs that are missing.
	CheckConfig func() error
}

// Orchestrator executes each run in isolation on a worker pool:
// record, jitter, render, upload, sweep.
type Orchestrator struct {
	cfg         OrchestratorConfig
	newRecorder RecorderFactory
	renderer    Renderer
	uploader    Uploader
	store       *model.RunStatusStore
	clock       clock.Clock
	pool        *worker.WorkerPool
	gate        sync.Mutex
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	cfg OrchestratorConfig,
	newRecorder RecorderFactory,
	renderer Renderer,
	uploader Uploader,
	store *model.RunStatusStore,
	clk clock.Clock,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if store == nil {
		store = model.NewRunStatusStore(0)
	}

	o := &Orchestrator{
		cfg:         cfg,
		newRecorder: newRecorder,
		renderer:    renderer,
		uploader:    uploader,
		store:       store,
		clock:       clk,
	}
	o.pool = worker.NewWorkerPool(cfg.Workers, cfg.QueueSize, func(ctx context.Context, run model.RunContext) {
		o.Execute(ctx, run)
	})
	return o
}

// Start starts the worker pool
func (o *Orchestrator) Start() {
	o.pool.Start()
}

// Stop waits for in-flight runs until ctx is done.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.pool.Stop(ctx)
}

// Submit queues run for execution without blocking.
func (o *Orchestrator) Submit(run model.RunContext) error {
	o.store.Set(model.RunStatus{Run: run, Status: model.OutcomeQueued, SessionState: model.SessionDisconnected.String()})
	if err := o.pool.Submit(run); err != nil {
		o.store.Set(model.RunStatus{
			Run:          run,
			Status:       model.OutcomeFailedNoArtifact,
			SessionState: model.SessionDisconnected.String(),
			Errors:       []model.StageError{{Stage: "dispatch", Error: err.Error()}},
		})
		return err
	}
	return nil
}

// Store returns the run status store
func (o *Orchestrator) Store() *model.RunStatusStore {
	return o.store
}

// Execute runs one RunContext end to end. Stage failures are recorded and
// logged; only stages that need the raw artifact are skipped without it.
func (o *Orchestrator) Execute(ctx context.Context, run model.RunContext) model.RunStatus {
	logger := slog.With(run.LogAttrs()...)
	logger.Info("Starting run",
		"recording_start", run.RecordingStart.UTC().Format(time.RFC3339),
		"recording_stop", run.RecordingStop.UTC().Format(time.RFC3339),
	)

	status := model.RunStatus{
		Run:          run,
		Status:       model.OutcomeRunning,
		SessionState: model.SessionDisconnected.String(),
		StartedAt:    time.Now().UTC(),
	}
	o.store.Set(status)

	fail := func(stage string, err error) {
		logger.Error("Run stage failed", "stage", stage, "error", err)
		status.Errors = append(status.Errors, model.StageError{Stage: stage, Error: err.Error()})
	}

	raw := o.record(ctx, run, &status, fail)

	if raw == "" {
		status.Status = model.OutcomeFailedNoArtifact
	} else {
		status.RawArtifact = raw
		status.Status = model.OutcomeSucceeded
		o.process(ctx, run, raw, &status, fail, logger)
	}

	if removed, err := artifact.Sweep(o.cfg.DownloadDir, o.cfg.MaxFileAgeDays, time.Now()); err != nil {
		fail("retention", err)
	} else if len(removed) > 0 {
		logger.Info("Retention sweep removed files", "count", len(removed))
	}

	status.FinishedAt = time.Now().UTC()
	o.store.Set(status)

	logger.Info("Run finished",
		"status", status.Status,
		"raw_artifact", status.RawArtifact,
		"image_artifact", status.ImageArtifact,
		"duration_ms", status.FinishedAt.Sub(status.StartedAt).Milliseconds(),
	)
	return status
}

func (o *Orchestrator) record(ctx context.Context, run model.RunContext, status *model.RunStatus, fail func(string, error)) string {
	if o.cfg.CheckConfig != nil {
		if err := o.cfg.CheckConfig(); err != nil {
			fail("config", err)
			return ""
		}
	}

	recorder := o.newRecorder(&o.gate)
	raw, err := recorder.Record(ctx, run)
	status.SessionState = recorder.State().String()
	if err != nil {
		fail("session", err)
		return ""
	}
	return raw
}

// process renders and uploads the image artifact.
func (o *Orchestrator) process(ctx context.Context, run model.RunContext, raw string, status *model.RunStatus, fail func(string, error), logger *slog.Logger) {
	// Spread CPU-heavy rendering of concurrent runs.
	jitter := o.jitter()
	logger.Debug("Waiting before render", "jitter", jitter)
	if err := clock.Sleep(ctx, o.clock, jitter); err != nil {
		fail("render", err)
		status.Status = model.OutcomePartial
		return
	}

	png := strings.TrimSuffix(raw, filepath.Ext(raw)) + ".png"
	logger.Info("Creating spectrogram", "path", filepath.Base(png))
	if err := o.renderer.RenderFile(ctx, raw, png, run.RecordingStart); err != nil {
		fail("render", fmt.Errorf("%w: %v", model.ErrRender, err))
		status.Status = model.OutcomePartial
		return
	}
	status.ImageArtifact = png

	if err := o.uploader.Upload(ctx, png, run); err != nil {
		fail("upload", fmt.Errorf("%w: %v", model.ErrUpload, err))
		status.Status = model.OutcomePartial
	}
}

// jitter draws a whole number of seconds in [JitterMin, JitterMax].
func (o *Orchestrator) jitter() time.Duration {
	lo, hi := o.cfg.JitterMin, o.cfg.JitterMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.IntN(int((hi-lo)/time.Second)+1))*time.Second
}
