package stepper

import (
	"time"

	"github.com/mherranz/HominGo/internal/debug"
	"github.com/mherranz/HominGo/internal/hw/gpio"
)

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	StepPin    int
	DirPin     int
	EnablePin  int           // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	PulseWidth time.Duration // width of the STEP pulse high phase. A4988 needs >= 1µs.
}

// Stepper drives an A4988-style step/dir motor driver one pulse at a
// time. Pacing (speed, acceleration) is owned by the caller; this layer
// only translates a single step request into pin edges.
type Stepper struct {
	gpio    gpio.Driver
	cfg     Config
	width   time.Duration
	forward bool // last direction written to the DIR pin
	dirSet  bool // DIR pin has been written at least once
}

// NewStepper creates a new stepper motor driver.
// cfg.PulseWidth: if 0, defaults to 2µs (comfortably above the A4988 minimum).
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	width := cfg.PulseWidth
	if width <= 0 {
		width = 2 * time.Microsecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		width: width,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// Pulse emits one step edge pair in the requested direction.
// The DIR pin is only rewritten when the direction changes, so back to
// back pulses in the same direction cost two writes, not three.
func (s *Stepper) Pulse(forward bool) error {
	if !s.dirSet || forward != s.forward {
		var dirLevel gpio.Level
		if forward {
			dirLevel = gpio.High
		} else {
			dirLevel = gpio.Low
		}
		if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
			return err
		}
		s.forward = forward
		s.dirSet = true
	}

	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.width)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	debug.Trace("Stepper: enable (pin %d LOW)", s.cfg.EnablePin)
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel, no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	debug.Trace("Stepper: disable (pin %d HIGH)", s.cfg.EnablePin)
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
