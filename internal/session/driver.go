package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dandantas/grabber/internal/artifact"
	"github.com/dandantas/grabber/internal/clock"
	"github.com/dandantas/grabber/internal/model"
)

// downloadSlack widens the "written since" window for filesystems with
// coarse modification times.
const downloadSlack = 2 * time.Second

// Config describes one recording session.
type Config struct {
	Endpoint       string
	Marker         string
	Tuning         Tuning
	DownloadLabels []string
	DownloadDir    string
	Extension      string

	Repeats      int           // configure sequence repetitions per attempt
	RepeatPause  time.Duration // pause after each repetition
	Retry        RetryConfig
	SettleTime   time.Duration // wait after activating download
	CloseTimeout time.Duration
}

// SetDefaults fills in the observed receiver timings.
func (c *Config) SetDefaults() {
	if c.Extension == "" {
		c.Extension = ".wav"
	}
	if c.Repeats == 0 {
		c.Repeats = 3
	}
	if c.RepeatPause == 0 {
		c.RepeatPause = 500 * time.Millisecond
	}
	if c.SettleTime == 0 {
		c.SettleTime = 5 * time.Second
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if len(c.DownloadLabels) == 0 {
		c.DownloadLabels = []string{"save", "download"}
	}
	c.Retry.SetDefaults()
}

// Driver runs exactly one session for one RunContext. Create a new Driver
// per run; drivers never share a remote session.
type Driver struct {
	remote Remote
	cfg    Config
	clock  clock.Clock
	gate   sync.Locker

	mu    sync.Mutex
	state model.SessionState
}

// NewDriver creates a driver. gate is shared by all drivers writing to the
// same download directory and serialises download-to-rename so that the
// "latest file" is always this run's file.
func NewDriver(remote Remote, cfg Config, clk clock.Clock, gate sync.Locker) *Driver {
	cfg.SetDefaults()
	if clk == nil {
		clk = clock.Real{}
	}
	if gate == nil {
		gate = &sync.Mutex{}
	}
	return &Driver{
		remote: remote,
		cfg:    cfg,
		clock:  clk,
		gate:   gate,
		state:  model.SessionDisconnected,
	}
}

// State returns the session state.
func (d *Driver) State() model.SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s model.SessionState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Record drives the session and returns the canonical path of the raw
// capture. The session is closed on every path.
func (d *Driver) Record(ctx context.Context, run model.RunContext) (string, error) {
	logger := slog.With(run.LogAttrs()...)

	logger.Info("Connecting to remote session", "endpoint", d.cfg.Endpoint)
	sess, err := d.remote.Connect(ctx, d.cfg.Endpoint)
	if err != nil {
		d.setState(model.SessionClosed)
		return "", fmt.Errorf("%w: %v", model.ErrConnect, err)
	}
	d.setState(model.SessionConnected)

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.CloseTimeout)
		defer cancel()

		logger.Info("Closing remote session")
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn("Failed to close remote session", "error", err)
		}
		d.setState(model.SessionClosed)
	}()

	ok, err := sess.Verify(ctx, d.cfg.Marker)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrConnect, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", model.ErrMarkerMissing, d.cfg.Marker)
	}

	if err := d.configure(ctx, sess, logger); err != nil {
		return "", err
	}
	if err := d.arm(ctx, sess, run, logger); err != nil {
		return "", err
	}
	return d.download(ctx, sess, run, logger)
}

func (d *Driver) configure(ctx context.Context, sess Session, logger *slog.Logger) error {
	d.setState(model.SessionConfiguring)

	scripts := ConfigureScripts(d.cfg.Tuning)
	retry := NewRetryStrategy(d.cfg.Retry)

	for attempt := 1; ; attempt++ {
		logger.Info("Configuring remote session", "attempt", attempt, "max_attempts", retry.GetMaxAttempts())

		err := d.applySequence(ctx, sess, scripts)
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrScriptFault) {
			return err
		}
		if !retry.ShouldRetry(attempt, err) {
			logger.Error("Configure retries exhausted", "attempts", attempt, "error", err)
			return fmt.Errorf("%w after %d attempts: %v", model.ErrConfigureExhausted, attempt, err)
		}

		delay := retry.CalculateDelay(attempt)
		logger.Warn("Configure attempt failed, retrying",
			"attempt", attempt,
			"next_retry_ms", delay.Milliseconds(),
			"error", err,
		)
		if err := clock.Sleep(ctx, d.clock, delay); err != nil {
			return err
		}
	}
}

// applySequence runs the configure scripts Repeats times. The receiver
// sometimes ignores the first application of parameters.
func (d *Driver) applySequence(ctx context.Context, sess Session, scripts []string) error {
	for i := 0; i < d.cfg.Repeats; i++ {
		for _, script := range scripts {
			slog.Debug("Executing remote script", "script", script)
			if err := sess.Execute(ctx, script); err != nil {
				return err
			}
		}
		if err := clock.Sleep(ctx, d.clock, d.cfg.RepeatPause); err != nil {
			return err
		}
	}
	return nil
}

// arm starts and stops the recording at the run's absolute times and
// returns once both have fired.
func (d *Driver) arm(ctx context.Context, sess Session, run model.RunContext, logger *slog.Logger) error {
	d.setState(model.SessionArmed)

	armCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := newAlarm(d.clock, run.RecordingStart)
	stop := newAlarm(d.clock, run.RecordingStop)

	logger.Info("Recording armed",
		"start", run.RecordingStart.UTC().Format(time.RFC3339),
		"stop", run.RecordingStop.UTC().Format(time.RFC3339),
	)

	if err := start.Wait(armCtx); err != nil {
		return err
	}
	if err := sess.Execute(armCtx, scriptRecordStart); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	logger.Info("Recording started")

	if err := stop.Wait(armCtx); err != nil {
		return err
	}
	if err := sess.Execute(armCtx, scriptRecordStop); err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	logger.Info("Recording stopped")
	return nil
}

func (d *Driver) download(ctx context.Context, sess Session, run model.RunContext, logger *slog.Logger) (string, error) {
	d.gate.Lock()
	defer d.gate.Unlock()

	d.setState(model.SessionDownloading)
	since := time.Now().Add(-downloadSlack)

	logger.Info("Downloading audio", "labels", d.cfg.DownloadLabels)
	found, err := sess.LocateAndActivate(ctx, d.cfg.DownloadLabels)
	if err != nil {
		return "", fmt.Errorf("failed to activate download: %w", err)
	}
	if !found {
		logger.Warn("No download action found", "labels", d.cfg.DownloadLabels)
		return "", model.ErrDownloadNotFound
	}

	if err := clock.Sleep(ctx, d.clock, d.cfg.SettleTime); err != nil {
		return "", err
	}

	raw, err := artifact.SelectLatestSince(d.cfg.DownloadDir, d.cfg.Extension, since)
	if err != nil {
		return "", err
	}
	canonical, err := artifact.Canonicalize(raw, run.RecordingStart)
	if err != nil {
		logger.Error("Failed to rename raw artifact", "path", raw, "error", err)
		return "", err
	}

	logger.Info("Raw artifact saved", "path", canonical)
	return canonical, nil
}
