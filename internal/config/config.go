package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AxisConfig holds the wiring for one axis of the CNC shield.
type AxisConfig struct {
	StepPin    int `yaml:"step_pin"`
	DirPin     int `yaml:"dir_pin"`
	EnablePin  int `yaml:"enable_pin"`  // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	EndstopPin int `yaml:"endstop_pin"` // reference switch input. 0 = not wired.
}

// MotionConfig holds the kinematic parameters for the active axis.
type MotionConfig struct {
	MaxSpeed           float64 `yaml:"max_speed"`            // steps/s
	Acceleration       float64 `yaml:"acceleration"`         // steps/s²
	CruiseSpeed        float64 `yaml:"cruise_speed"`         // steps/s, caps max_speed when lower
	ForwardTravelSteps int64   `yaml:"forward_travel_steps"` // advance distance after each trigger
	SeekTravelSteps    int64   `yaml:"seek_travel_steps"`    // retract distance, beyond any physical travel
	StepPulseUs        int     `yaml:"step_pulse_us"`        // STEP pulse high width
}

// DiagConfig describes the optional serial operator console.
type DiagConfig struct {
	SerialPort string `yaml:"serial_port"` // e.g. /dev/ttyAMA0, empty = disabled
	BaudRate   int    `yaml:"baud_rate"`
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	TickIntervalUs   int  `yaml:"tick_interval_us"`   // control loop period
	DebugLevel       int  `yaml:"debug_level"`        // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO         bool `yaml:"mock_gpio"`          // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	EndstopActiveLow bool `yaml:"endstop_active_low"` // switch to ground with pull-up (the usual wiring)
}

// Config aggregates all application configuration. Three axes are
// declared to match the shield, but only the active one is driven.
type Config struct {
	AxisX      AxisConfig     `yaml:"axis_x"`
	AxisY      AxisConfig     `yaml:"axis_y"`
	AxisZ      AxisConfig     `yaml:"axis_z"`
	ActiveAxis string         `yaml:"active_axis"` // "x", "y" or "z"
	Motion     MotionConfig   `yaml:"motion"`
	Diag       DiagConfig     `yaml:"diag"`
	Defaults   DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	// Defaults that yaml zero values cannot express.
	cfg.Defaults.EndstopActiveLow = true
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.ActiveAxis == "" {
		cfg.ActiveAxis = "z"
	}
	switch cfg.ActiveAxis {
	case "x", "y", "z":
	default:
		return nil, fmt.Errorf("active_axis must be x, y or z, got %q", cfg.ActiveAxis)
	}

	active := cfg.Axis(cfg.ActiveAxis)
	if active.StepPin <= 0 || active.DirPin <= 0 {
		return nil, fmt.Errorf("axis_%s: step_pin and dir_pin are required", cfg.ActiveAxis)
	}
	if active.EndstopPin <= 0 {
		return nil, fmt.Errorf("axis_%s: endstop_pin is required for the active axis", cfg.ActiveAxis)
	}

	if cfg.Motion.MaxSpeed < 0 {
		return nil, fmt.Errorf("max_speed must be >= 0, got %g", cfg.Motion.MaxSpeed)
	}
	if cfg.Motion.MaxSpeed == 0 {
		cfg.Motion.MaxSpeed = 500
	}
	if cfg.Motion.Acceleration < 0 {
		return nil, fmt.Errorf("acceleration must be >= 0, got %g", cfg.Motion.Acceleration)
	}
	if cfg.Motion.Acceleration == 0 {
		cfg.Motion.Acceleration = 10000
	}
	if cfg.Motion.CruiseSpeed < 0 {
		return nil, fmt.Errorf("cruise_speed must be >= 0, got %g", cfg.Motion.CruiseSpeed)
	}
	if cfg.Motion.CruiseSpeed == 0 {
		cfg.Motion.CruiseSpeed = cfg.Motion.MaxSpeed
	}
	if cfg.Motion.ForwardTravelSteps < 0 {
		return nil, fmt.Errorf("forward_travel_steps must be >= 0, got %d", cfg.Motion.ForwardTravelSteps)
	}
	if cfg.Motion.ForwardTravelSteps == 0 {
		cfg.Motion.ForwardTravelSteps = 400 // half a revolution at 800 microsteps/rev
	}
	if cfg.Motion.SeekTravelSteps == 0 {
		cfg.Motion.SeekTravelSteps = 1_000_000
	}
	if cfg.Motion.SeekTravelSteps < cfg.Motion.ForwardTravelSteps {
		return nil, fmt.Errorf("seek_travel_steps (%d) must exceed forward_travel_steps (%d)",
			cfg.Motion.SeekTravelSteps, cfg.Motion.ForwardTravelSteps)
	}
	if cfg.Motion.StepPulseUs <= 0 {
		cfg.Motion.StepPulseUs = 2
	}

	if cfg.Defaults.TickIntervalUs <= 0 {
		cfg.Defaults.TickIntervalUs = 200
	}

	if cfg.Diag.SerialPort != "" && cfg.Diag.BaudRate <= 0 {
		cfg.Diag.BaudRate = 9600
	}

	return &cfg, nil
}

// Axis returns the wiring block for the named axis.
func (c *Config) Axis(name string) AxisConfig {
	switch name {
	case "x":
		return c.AxisX
	case "y":
		return c.AxisY
	default:
		return c.AxisZ
	}
}

// EffectiveMaxSpeed returns the speed ceiling actually applied: the
// cruise speed when it is below the max speed.
func (c *Config) EffectiveMaxSpeed() float64 {
	if c.Motion.CruiseSpeed > 0 && c.Motion.CruiseSpeed < c.Motion.MaxSpeed {
		return c.Motion.CruiseSpeed
	}
	return c.Motion.MaxSpeed
}

// TickInterval returns the control loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Defaults.TickIntervalUs) * time.Microsecond
}

// StepPulseWidth returns the STEP pulse high width.
func (c *Config) StepPulseWidth() time.Duration {
	return time.Duration(c.Motion.StepPulseUs) * time.Microsecond
}
