package session

import (
	"context"
	"time"

	"github.com/dandantas/grabber/internal/clock"
)

// alarm fires once at an absolute wall-clock time. Waiting is bound to the
// caller's context so an aborted run drops its pending alarms.
type alarm struct {
	at  time.Time
	clk clock.Clock
}

func newAlarm(clk clock.Clock, at time.Time) alarm {
	return alarm{at: at, clk: clk}
}

// Wait blocks until the alarm time or ctx is done. An alarm whose time
// has passed returns at once.
func (a alarm) Wait(ctx context.Context) error {
	return clock.Sleep(ctx, a.clk, a.at.Sub(a.clk.Now()))
}
