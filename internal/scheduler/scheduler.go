package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dandantas/grabber/internal/clock"
	"github.com/dandantas/grabber/internal/model"
)

// Dispatcher accepts runs for asynchronous execution. Submit must not block.
type Dispatcher interface {
	Submit(run model.RunContext) error
}

// Options configures a Scheduler.
type Options struct {
	Interval     time.Duration
	Lead         time.Duration
	RecordLength time.Duration
	PollInterval time.Duration
	Clock        clock.Clock
}

// Scheduler waits for each slot and hands a RunContext to the dispatcher
// without waiting for the run.
type Scheduler struct {
	tracker      *SlotTracker
	dispatcher   Dispatcher
	clock        clock.Clock
	recordLength time.Duration
	pollInterval time.Duration

	lastRunID atomic.Int64
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Snapshot describes the scheduler's current state.
type Snapshot struct {
	Interval    time.Duration       `json:"-"`
	Lead        time.Duration       `json:"-"`
	IntervalMin int                 `json:"interval_min"`
	LeadSec     int                 `json:"lead_sec"`
	Current     *model.ScheduleSlot `json:"current,omitempty"`
	LastRunID   int64               `json:"last_run_id"`
}

// NewScheduler creates a new scheduler instance
func NewScheduler(opts Options, dispatcher Dispatcher) (*Scheduler, error) {
	tracker, err := NewSlotTracker(opts.Interval, opts.Lead)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.RecordLength <= 0 {
		opts.RecordLength = opts.Interval
	}

	return &Scheduler{
		tracker:      tracker,
		dispatcher:   dispatcher,
		clock:        opts.Clock,
		recordLength: opts.RecordLength,
		pollInterval: opts.PollInterval,
		stopChan:     make(chan struct{}),
	}, nil
}

// Start begins the polling loop
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler",
		"interval", s.tracker.Interval(),
		"lead_time", s.tracker.Lead(),
		"record_length", s.recordLength,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the polling loop. Runs already dispatched are not affected.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// Reset discards the current slot; the next poll selects a fresh one.
func (s *Scheduler) Reset() {
	s.tracker.Reset()
}

// Snapshot returns the scheduler's current state
func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		Interval:    s.tracker.Interval(),
		Lead:        s.tracker.Lead(),
		IntervalMin: int(s.tracker.Interval() / time.Minute),
		LeadSec:     int(s.tracker.Lead() / time.Second),
		LastRunID:   s.lastRunID.Load(),
	}
	if slot, ok := s.tracker.Current(); ok {
		snap.Current = &slot
	}
	return snap
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	var announced time.Time
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			slog.Info("Scheduler context done")
			return
		default:
		}

		slot, _ := s.tracker.Poll(s.clock.Now())
		if !slot.At.Equal(announced) {
			slog.Info("Scheduling next session",
				"slot", slot.At.UTC().Format(time.RFC3339),
				"recording_start", slot.Nominal.UTC().Format(time.RFC3339),
			)
			announced = slot.At
		}

		due, err := s.waitFor(ctx, slot)
		if err != nil {
			return
		}
		if due {
			s.dispatch(slot)
		}
	}
}

var errStopped = errors.New("scheduler stopped")

// waitFor blocks until slot is due. It returns false when the tracker
// replaced the slot while waiting (clock anomaly).
func (s *Scheduler) waitFor(ctx context.Context, slot model.ScheduleSlot) (bool, error) {
	for {
		now := s.clock.Now()
		if !now.Before(slot.At) {
			return true, nil
		}
		if current, _ := s.tracker.Poll(now); !current.At.Equal(slot.At) {
			return false, nil
		}

		wait := slot.At.Sub(now)
		if wait > s.pollInterval {
			wait = s.pollInterval
		}
		select {
		case <-s.clock.After(wait):
		case <-s.stopChan:
			return false, errStopped
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// dispatch hands the slot's run to the dispatcher and clears the slot.
func (s *Scheduler) dispatch(slot model.ScheduleSlot) {
	defer s.tracker.Consume(slot)

	run := model.NewRunContext(s.lastRunID.Add(1), slot, s.recordLength)
	logger := slog.With(run.LogAttrs()...)

	if now := s.clock.Now(); now.After(run.RecordingStart) {
		logger.Warn("Missed slot, skipping",
			"recording_start", run.RecordingStart.UTC().Format(time.RFC3339),
			"now", now.UTC().Format(time.RFC3339),
		)
		return
	}

	if err := s.dispatcher.Submit(run); err != nil {
		logger.Error("Failed to dispatch run", "error", err)
		return
	}
	logger.Info("Run dispatched",
		"recording_start", run.RecordingStart.UTC().Format(time.RFC3339),
		"recording_stop", run.RecordingStop.UTC().Format(time.RFC3339),
	)
}
