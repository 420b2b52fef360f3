package profile

import (
	"fmt"
	"math"
	"time"

	"github.com/mherranz/HominGo/internal/debug"
)

// Pulser is the hardware hook the profile drives: one step edge pair
// per call, in the given direction.
type Pulser interface {
	Pulse(forward bool) error
}

// Config holds the kinematic limits for a profile.
type Config struct {
	MaxSpeed     float64 // steps per second, > 0
	Acceleration float64 // steps per second², > 0
}

// Profile paces steps toward a target position under a trapezoidal
// speed profile: accelerate, cruise at MaxSpeed, decelerate to stop
// exactly on the target. Step timing follows David Austin's ramp
// recurrence (the interval between steps n and n+1 is
// cn = cn-1 - 2*cn-1/(4n+1), clamped at the max-speed interval).
//
// Advance performs at most one step per call and never blocks; it must
// be polled at a rate comfortably above the max step rate. All methods
// are single-goroutine; the owning control loop is the only caller.
type Profile struct {
	pulser Pulser
	now    func() time.Time // injectable for tests

	maxSpeed float64
	accel    float64

	position int64
	target   int64

	speed    float64       // signed, steps per second
	interval time.Duration // time until the next step; 0 = at rest
	lastStep time.Time

	n    int64   // ramp step counter, negative while decelerating
	c0   float64 // interval of the first step, µs
	cn   float64 // interval of the next step, µs
	cmin float64 // interval at max speed, µs

	forward bool
}

// New creates a profile at position 0, at rest, with no target.
// Non-positive limits fall back to conservative defaults.
func New(p Pulser, cfg Config) *Profile {
	maxSpeed := cfg.MaxSpeed
	if maxSpeed <= 0 {
		maxSpeed = 500
	}
	accel := cfg.Acceleration
	if accel <= 0 {
		accel = 1000
	}

	return &Profile{
		pulser:   p,
		now:      time.Now,
		maxSpeed: maxSpeed,
		accel:    accel,
		c0:       0.676 * math.Sqrt(2.0/accel) * 1e6,
		cmin:     1e6 / maxSpeed,
	}
}

// SetTarget records a new destination. It may be called while motion is
// in progress; the ramp is recomputed toward the new destination
// without stopping first.
func (p *Profile) SetTarget(target int64) {
	if target == p.target {
		return
	}
	p.target = target
	debug.Verbose("Profile: target %d (position %d)", target, p.position)
	p.computeNewSpeed()
}

// SetCurrentPosition resets the position reference. Only sensible when
// the motor is stopped; motion state is cleared.
func (p *Profile) SetCurrentPosition(position int64) {
	p.position = position
	p.target = position
	p.n = 0
	p.interval = 0
	p.speed = 0
}

// Stop retargets to the nearest position the motor can reach under the
// configured deceleration. Not instantaneous: the caller should expect
// the position to keep advancing by the kinematic stopping distance.
func (p *Profile) Stop() {
	if p.speed == 0 {
		return
	}
	stepsToStop := int64(p.speed*p.speed/(2.0*p.accel)) + 1
	if p.speed > 0 {
		p.SetTarget(p.position + stepsToStop)
	} else {
		p.SetTarget(p.position - stepsToStop)
	}
}

// Advance performs at most one step if one is due. It returns true when
// a step was emitted. Non-blocking; pacing comes from comparing elapsed
// time against the current ramp interval.
func (p *Profile) Advance() (bool, error) {
	if p.interval == 0 {
		return false, nil
	}
	now := p.now()
	if now.Sub(p.lastStep) < p.interval {
		return false, nil
	}

	if p.pulser != nil {
		if err := p.pulser.Pulse(p.forward); err != nil {
			return false, fmt.Errorf("step pulse: %w", err)
		}
	}
	if p.forward {
		p.position++
	} else {
		p.position--
	}
	p.lastStep = now
	p.computeNewSpeed()
	return true, nil
}

// RemainingDistance returns the signed distance to the current target,
// exactly zero when the target has been reached.
func (p *Profile) RemainingDistance() int64 {
	return p.target - p.position
}

// CurrentPosition returns the current position in steps from the
// startup zero (or the last SetCurrentPosition).
func (p *Profile) CurrentPosition() int64 {
	return p.position
}

// TargetPosition returns the most recently set target.
func (p *Profile) TargetPosition() int64 {
	return p.target
}

// Speed returns the current signed speed in steps per second.
func (p *Profile) Speed() float64 {
	return p.speed
}

// Moving reports whether the profile still has work to do.
func (p *Profile) Moving() bool {
	return p.speed != 0 || p.RemainingDistance() != 0
}

// computeNewSpeed recalculates the ramp after a step, a new target or a
// stop request. The sign of n selects the ramp phase: positive while
// accelerating, negative while decelerating toward the target.
func (p *Profile) computeNewSpeed() {
	distanceTo := p.RemainingDistance()
	stepsToStop := int64(p.speed * p.speed / (2.0 * p.accel))

	if distanceTo == 0 && stepsToStop <= 1 {
		// On target, and close enough to stop dead.
		p.interval = 0
		p.speed = 0
		p.n = 0
		return
	}

	if distanceTo > 0 {
		if p.n > 0 {
			// Accelerating: start braking if the stopping distance
			// reaches the target, or if we are headed the wrong way.
			if stepsToStop >= distanceTo || !p.forward {
				p.n = -stepsToStop
			}
		} else if p.n < 0 {
			// Decelerating: resume acceleration if there is room again.
			if stepsToStop < distanceTo && p.forward {
				p.n = -p.n
			}
		}
	} else if distanceTo < 0 {
		if p.n > 0 {
			if stepsToStop >= -distanceTo || p.forward {
				p.n = -stepsToStop
			}
		} else if p.n < 0 {
			if stepsToStop < -distanceTo && !p.forward {
				p.n = -p.n
			}
		}
	}

	if p.n == 0 {
		// First step from rest.
		p.cn = p.c0
		p.forward = distanceTo > 0
	} else {
		p.cn = p.cn - (2.0*p.cn)/(4.0*float64(p.n)+1)
		if p.cn < p.cmin {
			p.cn = p.cmin
		}
	}
	p.n++

	p.interval = time.Duration(p.cn * float64(time.Microsecond))
	p.speed = 1e6 / p.cn
	if !p.forward {
		p.speed = -p.speed
	}
}
