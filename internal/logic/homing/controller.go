package homing

import (
	"fmt"
	"sync"

	"github.com/mherranz/HominGo/internal/debug"
)

// State is the controller's direction flag.
type State int

const (
	// Retracting: seeking the endstop with a far negative target. The
	// target is never expected to be reached; the switch is the real
	// terminator.
	Retracting State = iota
	// Advancing: travelling the fixed forward offset away from the switch.
	Advancing
)

func (s State) String() string {
	if s == Advancing {
		return "advancing"
	}
	return "retracting"
}

// Profiler is the capability the controller needs from the motion
// layer. *profile.Profile satisfies it; tests use a fake with
// instantaneous position updates.
type Profiler interface {
	SetTarget(position int64)
	Stop()
	Advance() (bool, error)
	RemainingDistance() int64
	CurrentPosition() int64
}

// Config holds the travel parameters for one axis.
type Config struct {
	Axis          string // label used in logs and status
	ForwardTravel int64  // steps to advance after each trigger
	SeekTravel    int64  // retract distance, large enough to always reach the switch
}

// Status is a read-only snapshot for the web layer.
type Status struct {
	Axis      string `json:"axis"`
	State     string `json:"state"`
	Position  int64  `json:"position"`
	Target    int64  `json:"target"`
	Remaining int64  `json:"remaining"`
	Cycles    uint64 `json:"cycles"`
	Stalled   bool   `json:"stalled"`
}

// Controller oscillates a single axis between its endstop and a fixed
// forward offset. Each Tick reads nothing but its arguments and the
// profiler: sample in, decision, at most one target change, then exactly
// one profiler advance. The endstop only terminates retraction; while
// advancing it is deliberately ignored (one-directional reference
// switch, not a travel limit on both ends).
//
// Tick and Status are safe for concurrent use; the decision path itself
// is sequential under the mutex.
type Controller struct {
	mu   sync.Mutex
	prof Profiler
	cfg  Config

	state   State
	target  int64
	cycles  uint64
	stalled bool
}

// New creates a controller in the Retracting state and issues the
// initial seek target (current position minus the seek travel).
// Non-positive travel values fall back to the defaults:
// 400 steps forward, 1,000,000 steps seek.
func New(p Profiler, cfg Config) *Controller {
	if cfg.ForwardTravel <= 0 {
		cfg.ForwardTravel = 400
	}
	if cfg.SeekTravel <= 0 {
		cfg.SeekTravel = 1_000_000
	}
	if cfg.Axis == "" {
		cfg.Axis = "z"
	}

	c := &Controller{
		prof:  p,
		cfg:   cfg,
		state: Retracting,
	}
	c.target = p.CurrentPosition() - cfg.SeekTravel
	p.SetTarget(c.target)
	debug.Info("Axis %s: homing toward endstop (initial target %d)", cfg.Axis, c.target)
	return c
}

// Tick evaluates one control cycle: decide on the endstop sample and
// the remaining distance, retarget if a transition fires, then advance
// the profiler exactly once.
func (c *Controller) Tick(endstopHit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == Retracting && endstopHit:
		// Halt, then re-anchor the forward travel on the position the
		// switch was seen at. Every pass re-anchors on the physical
		// reference, so repeated cycles accumulate no drift.
		c.prof.Stop()
		pos := c.prof.CurrentPosition()
		c.state = Advancing
		c.target = pos + c.cfg.ForwardTravel
		c.prof.SetTarget(c.target)
		c.stalled = false
		debug.Info("Endstop detected, switching to advance")
		debug.Transition(Retracting.String(), Advancing.String(), pos)
		debug.Target(c.cfg.Axis, c.target)

	case c.state == Advancing && c.prof.RemainingDistance() == 0:
		// Forward travel complete: seek the switch again. No stop
		// needed; travel is target-continuous through zero remaining.
		pos := c.prof.CurrentPosition()
		c.state = Retracting
		c.target = pos - c.cfg.SeekTravel
		c.prof.SetTarget(c.target)
		c.cycles++
		debug.Info("Advance complete, retracting")
		debug.Transition(Advancing.String(), Retracting.String(), pos)
		debug.Target(c.cfg.Axis, c.target)
		debug.Cycle(c.cycles)

	default:
		// No transition. Watch for the silent liveness failure: seek
		// travel exhausted without ever seeing the switch.
		if c.state == Retracting && c.prof.RemainingDistance() == 0 && !c.stalled {
			c.stalled = true
			debug.Info("WARNING: axis %s stalled: seek travel exhausted without endstop trigger", c.cfg.Axis)
		}
	}

	if _, err := c.prof.Advance(); err != nil {
		return fmt.Errorf("axis %s: %w", c.cfg.Axis, err)
	}
	return nil
}

// State returns the current direction flag.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Target returns the target issued at the last transition.
func (c *Controller) Target() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Cycles returns the number of completed advance phases.
func (c *Controller) Cycles() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

// Stalled reports whether the seek travel ran out with no trigger.
// A later trigger clears the condition by firing the normal transition.
func (c *Controller) Stalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalled
}

// Status returns a consistent snapshot for the web layer.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Axis:      c.cfg.Axis,
		State:     c.state.String(),
		Position:  c.prof.CurrentPosition(),
		Target:    c.target,
		Remaining: c.prof.RemainingDistance(),
		Cycles:    c.cycles,
		Stalled:   c.stalled,
	}
}
