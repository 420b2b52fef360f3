package homing

import (
	"context"
	"fmt"
	"time"

	"github.com/mherranz/HominGo/internal/debug"
)

// Sampler reads the endstop once. *endstop.Endstop satisfies it.
type Sampler interface {
	Triggered() (bool, error)
}

// Loop drives the controller at a fixed tick rate. Per tick: one fresh
// endstop sample, one controller decision, one profiler advance. The
// ordering is never interleaved; everything runs on the caller's
// goroutine until the context is cancelled or the hardware errors.
type Loop struct {
	ctrl     *Controller
	sampler  Sampler
	interval time.Duration
}

// NewLoop creates a tick loop. A non-positive interval defaults to
// 200µs, comfortably above the default max step rate.
func NewLoop(ctrl *Controller, sampler Sampler, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 200 * time.Microsecond
	}
	return &Loop{
		ctrl:     ctrl,
		sampler:  sampler,
		interval: interval,
	}
}

// Run blocks until the context is cancelled or a tick fails.
func (l *Loop) Run(ctx context.Context) error {
	debug.Live("Control loop started (tick %v)", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debug.Live("Control loop stopped")
			return ctx.Err()
		case <-ticker.C:
			hit, err := l.sampler.Triggered()
			if err != nil {
				return fmt.Errorf("read endstop: %w", err)
			}
			if err := l.ctrl.Tick(hit); err != nil {
				return err
			}
		}
	}
}
