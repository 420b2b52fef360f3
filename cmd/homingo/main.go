package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/mherranz/HominGo/internal/config"
	"github.com/mherranz/HominGo/internal/debug"
	"github.com/mherranz/HominGo/internal/diag"
	"github.com/mherranz/HominGo/internal/hw/endstop"
	"github.com/mherranz/HominGo/internal/hw/gpio"
	"github.com/mherranz/HominGo/internal/hw/stepper"
	"github.com/mherranz/HominGo/internal/logic/homing"
	"github.com/mherranz/HominGo/internal/logic/profile"
	"github.com/mherranz/HominGo/internal/web"
)

// overrides carries CLI values that replace config settings.
// Zero means "use config default".
type overrides struct {
	ForwardTravel int64
	MaxSpeed      float64
	Acceleration  float64
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	forwardTravel := flag.Int64("forward_travel", 0, "override forward travel in steps")
	maxSpeed := flag.Float64("max_speed", 0, "override max speed in steps/s")
	acceleration := flag.Float64("acceleration", 0, "override acceleration in steps/s²")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	ovr := overrides{
		ForwardTravel: *forwardTravel,
		MaxSpeed:      *maxSpeed,
		Acceleration:  *acceleration,
	}
	if err := validateCLIOverrides(ovr); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, ovr)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Active axis", cfg.ActiveAxis)

	// Collect debug sinks: stdout always, serial console and web stream when enabled.
	writers := []io.Writer{os.Stdout}
	if cfg.Diag.SerialPort != "" {
		console, err := diag.OpenConsole(cfg.Diag.SerialPort, cfg.Diag.BaudRate)
		if err != nil {
			log.Fatalf("open serial console failed: %v", err)
		}
		defer func() {
			if err := console.Close(); err != nil {
				log.Printf("closing serial console failed: %v", err)
			}
		}()
		debug.Value("Serial console", cfg.Diag.SerialPort)
		writers = append(writers, console)
	}

	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		writers = append(writers, web.BroadcastWriter(broadcaster))
	}
	if len(writers) > 1 {
		debug.SetOutput(io.MultiWriter(writers...))
	}

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize steppers. All configured axes are declared so their
	// drivers sit in a known state, but only the active one is driven.
	debug.Step(2, "Initializing stepper motors")
	for _, name := range []string{"x", "y", "z"} {
		if name == cfg.ActiveAxis {
			continue
		}
		idle := cfg.Axis(name)
		if idle.StepPin > 0 && idle.DirPin > 0 {
			stepper.NewStepper(gpioDriver, stepper.Config{
				StepPin:   idle.StepPin,
				DirPin:    idle.DirPin,
				EnablePin: idle.EnablePin,
			})
			debug.Value(debug.Fmt("Axis %s", name), "declared, idle")
		}
	}
	axis := cfg.Axis(cfg.ActiveAxis)
	motor := stepper.NewStepper(gpioDriver, stepper.Config{
		StepPin:    axis.StepPin,
		DirPin:     axis.DirPin,
		EnablePin:  axis.EnablePin,
		PulseWidth: cfg.StepPulseWidth(),
	})
	debug.PrintStruct(debug.Fmt("Axis %s stepper config", cfg.ActiveAxis), axis)
	if err := motor.Enable(); err != nil {
		log.Fatalf("enable motor failed: %v", err)
	}
	defer func() {
		if err := motor.Disable(); err != nil {
			log.Printf("disabling motor failed: %v", err)
		}
	}()

	// Initialize endstop
	debug.Step(3, "Initializing endstop")
	es, err := endstop.New(gpioDriver, axis.EndstopPin, cfg.Defaults.EndstopActiveLow)
	if err != nil {
		log.Fatalf("init endstop failed: %v", err)
	}
	debug.Value("Endstop pin", es.Pin())
	debug.Value("Endstop active low", cfg.Defaults.EndstopActiveLow)

	// Build the motion profile and homing controller
	debug.Step(4, "Creating motion profile and homing controller")
	prof := profile.New(motor, profile.Config{
		MaxSpeed:     cfg.EffectiveMaxSpeed(),
		Acceleration: cfg.Motion.Acceleration,
	})
	ctrl := homing.New(prof, homing.Config{
		Axis:          cfg.ActiveAxis,
		ForwardTravel: cfg.Motion.ForwardTravelSteps,
		SeekTravel:    cfg.Motion.SeekTravelSteps,
	})
	debug.Value("Max speed", cfg.EffectiveMaxSpeed())
	debug.Value("Acceleration", cfg.Motion.Acceleration)
	debug.Value("Forward travel", cfg.Motion.ForwardTravelSteps)
	debug.Value("Seek travel", cfg.Motion.SeekTravelSteps)

	loop := homing.NewLoop(ctrl, es, cfg.TickInterval())

	var webErr chan error
	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		srv := web.NewServer(webAddr, broadcaster, ctrl.Status, web.MotionInfo{
			Axis:          cfg.ActiveAxis,
			MaxSpeed:      cfg.EffectiveMaxSpeed(),
			Acceleration:  cfg.Motion.Acceleration,
			ForwardTravel: cfg.Motion.ForwardTravelSteps,
			SeekTravel:    cfg.Motion.SeekTravelSteps,
		})
		webErr = make(chan error, 1)
		go func() { webErr <- srv.Run(ctx) }()
		go publishStatus(ctx, broadcaster, ctrl)
	}

	debug.Section("Starting Homing Loop")
	err = loop.Run(ctx)
	cancel()
	if webErr != nil {
		if werr := <-webErr; werr != nil {
			log.Printf("web server: %v", werr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("homing loop: %v", err)
	}
	debug.Section("Shutdown Complete")
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(ovr overrides) error {
	if ovr.ForwardTravel < 0 {
		return fmt.Errorf("forward_travel must be positive, got %d", ovr.ForwardTravel)
	}
	if ovr.MaxSpeed != 0 {
		if math.IsNaN(ovr.MaxSpeed) || math.IsInf(ovr.MaxSpeed, 0) || ovr.MaxSpeed <= 0 {
			return fmt.Errorf("max_speed must be positive, got %g", ovr.MaxSpeed)
		}
	}
	if ovr.Acceleration != 0 {
		if math.IsNaN(ovr.Acceleration) || math.IsInf(ovr.Acceleration, 0) || ovr.Acceleration <= 0 {
			return fmt.Errorf("acceleration must be positive, got %g", ovr.Acceleration)
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, ovr overrides) {
	if ovr.ForwardTravel > 0 {
		cfg.Motion.ForwardTravelSteps = ovr.ForwardTravel
	}
	if ovr.MaxSpeed > 0 {
		cfg.Motion.MaxSpeed = ovr.MaxSpeed
	}
	if ovr.Acceleration > 0 {
		cfg.Motion.Acceleration = ovr.Acceleration
	}
}

// publishStatus pushes controller snapshots to SSE clients twice a second.
func publishStatus(ctx context.Context, b *web.StatusBroadcaster, ctrl *homing.Controller) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.BroadcastStatus(ctrl.Status())
		}
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
