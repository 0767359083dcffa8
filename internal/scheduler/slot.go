package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dandantas/grabber/internal/model"
)

var slotParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// boundarySchedule returns the cron schedule of minute boundaries every
// interval minutes within the hour, wrapping at the top of the hour.
func boundarySchedule(interval time.Duration) (cron.Schedule, error) {
	minutes := int(interval / time.Minute)
	if minutes <= 0 || time.Duration(minutes)*time.Minute != interval || 60%minutes != 0 {
		return nil, fmt.Errorf("interval %v must be a whole number of minutes dividing 60", interval)
	}
	return slotParser.Parse(fmt.Sprintf("*/%d * * * *", minutes))
}

// NextSlot returns the earliest slot whose configuration start
// (boundary - lead) is strictly after now. Boundaries are UTC.
func NextSlot(now time.Time, interval, lead time.Duration) (model.ScheduleSlot, error) {
	schedule, err := boundarySchedule(interval)
	if err != nil {
		return model.ScheduleSlot{}, err
	}
	return nextSlot(schedule, now, lead), nil
}

func nextSlot(schedule cron.Schedule, now time.Time, lead time.Duration) model.ScheduleSlot {
	// Next is strictly after its argument, so At > now.
	nominal := schedule.Next(now.UTC().Add(lead))
	return model.ScheduleSlot{
		At:      nominal.Add(-lead),
		Nominal: nominal,
		Lead:    lead,
	}
}

// SlotTracker holds the one current slot across polling iterations. A slot
// once selected is sticky: it is only replaced after it has passed, after
// Consume or Reset, or when the clock is seen moving backwards. A consumed
// slot is never selected again, whatever the clock does.
type SlotTracker struct {
	mu       sync.Mutex
	schedule cron.Schedule
	interval time.Duration
	lead     time.Duration
	current  *model.ScheduleSlot
	lastNow  time.Time
	consumed time.Time // At of the last consumed slot
}

// NewSlotTracker creates a tracker for a recurrence interval and a lead time
// that is held constant for the tracker's lifetime.
func NewSlotTracker(interval, lead time.Duration) (*SlotTracker, error) {
	schedule, err := boundarySchedule(interval)
	if err != nil {
		return nil, err
	}
	return &SlotTracker{
		schedule: schedule,
		interval: interval,
		lead:     lead,
	}, nil
}

// Poll returns the current slot, selecting one if there is none. reset is
// true when a backwards clock jump invalidated the previous slot.
func (t *SlotTracker) Poll(now time.Time) (slot model.ScheduleSlot, reset bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastNow.IsZero() && now.Before(t.lastNow) {
		slog.Warn("Clock moved backwards, invalidating slot",
			"error", model.ErrClockAnomaly,
			"previous", t.lastNow.UTC().Format(time.RFC3339),
			"now", now.UTC().Format(time.RFC3339),
		)
		t.current = nil
		reset = true
	}
	t.lastNow = now

	if t.current != nil && now.After(t.current.At) {
		t.current = nil
	}
	if t.current == nil {
		from := now
		if from.Before(t.consumed) {
			from = t.consumed
		}
		next := nextSlot(t.schedule, from, t.lead)
		t.current = &next
	}
	return *t.current, reset
}

// Current returns the current slot without selecting one.
func (t *SlotTracker) Current() (model.ScheduleSlot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return model.ScheduleSlot{}, false
	}
	return *t.current, true
}

// Consume clears slot after it has been dispatched so the next poll selects
// the following one. Later polls only select slots after it.
func (t *SlotTracker) Consume(slot model.ScheduleSlot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot.At.After(t.consumed) {
		t.consumed = slot.At
	}
	if t.current != nil && t.current.At.Equal(slot.At) {
		t.current = nil
	}
}

// Reset discards the current slot. Consumed slots stay consumed.
func (t *SlotTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = nil
}

func (t *SlotTracker) Lead() time.Duration     { return t.lead }
func (t *SlotTracker) Interval() time.Duration { return t.interval }
