package endstop

import (
	"github.com/mherranz/HominGo/internal/debug"
	"github.com/mherranz/HominGo/internal/hw/gpio"
)

// State represents the last sampled endstop state.
type State int

const (
	Open State = iota
	Triggered
)

func (s State) String() string {
	if s == Triggered {
		return "triggered"
	}
	return "open"
}

// Endstop samples a mechanical limit switch on a single GPIO pin.
// Every read goes to the hardware; no history is kept and no debounce
// is applied, so a spurious single-sample trigger is reported as a
// genuine trigger.
type Endstop struct {
	gpio      gpio.Driver
	pin       int
	activeLow bool
}

// New creates an endstop sampler. With activeLow (the usual wiring: switch
// to ground, internal pull-up) the input reads Low when the switch closes.
func New(g gpio.Driver, pin int, activeLow bool) (*Endstop, error) {
	mode := gpio.Input
	if activeLow {
		mode = gpio.InputPullUp
	}
	if err := g.SetupPin(pin, mode); err != nil {
		return nil, err
	}
	return &Endstop{
		gpio:      g,
		pin:       pin,
		activeLow: activeLow,
	}, nil
}

// Triggered samples the switch once and reports whether it is closed.
func (e *Endstop) Triggered() (bool, error) {
	level, err := e.gpio.ReadPin(e.pin)
	if err != nil {
		return false, err
	}
	triggered := level == gpio.High
	if e.activeLow {
		triggered = level == gpio.Low
	}
	debug.Endstop(e.pin, triggered)
	return triggered, nil
}

// Query samples the switch and returns the state as an enum, for diagnostics.
func (e *Endstop) Query() (State, error) {
	triggered, err := e.Triggered()
	if err != nil {
		return Open, err
	}
	if triggered {
		return Triggered, nil
	}
	return Open, nil
}

// Pin returns the BCM pin number the switch is wired to.
func (e *Endstop) Pin() int {
	return e.pin
}
