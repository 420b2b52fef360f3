package homing

import (
	"errors"
	"testing"
)

// fakeProfiler moves instantly toward its target: stepPerTick steps per
// Advance, no ramp. stopOvershoot models the kinematic slide past the
// point where Stop was requested.
type fakeProfiler struct {
	position      int64
	target        int64
	dir           int64 // direction of the last movement
	stepPerTick   int64
	stopOvershoot int64

	stops    int
	advances int
	targets  []int64 // every SetTarget call, in order
	advErr   error
}

func (f *fakeProfiler) SetTarget(target int64) {
	f.targets = append(f.targets, target)
	f.target = target
}

func (f *fakeProfiler) Stop() {
	f.stops++
	f.position += f.dir * f.stopOvershoot
	f.target = f.position
}

func (f *fakeProfiler) Advance() (bool, error) {
	if f.advErr != nil {
		return false, f.advErr
	}
	f.advances++
	rem := f.target - f.position
	if rem == 0 {
		return false, nil
	}
	step := f.stepPerTick
	if step <= 0 {
		step = 1
	}
	if rem > 0 {
		if rem < step {
			step = rem
		}
		f.position += step
		f.dir = 1
	} else {
		if -rem < step {
			step = -rem
		}
		f.position -= step
		f.dir = -1
	}
	return true, nil
}

func (f *fakeProfiler) RemainingDistance() int64 { return f.target - f.position }
func (f *fakeProfiler) CurrentPosition() int64   { return f.position }

func mustTick(t *testing.T, c *Controller, hit bool) {
	t.Helper()
	if err := c.Tick(hit); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestController_InitialSeekTarget(t *testing.T) {
	f := &fakeProfiler{}
	c := New(f, Config{})

	if c.State() != Retracting {
		t.Errorf("initial state = %v, want retracting", c.State())
	}
	if c.Target() != -1_000_000 {
		t.Errorf("initial target = %d, want -1000000", c.Target())
	}
	if len(f.targets) != 1 || f.targets[0] != -1_000_000 {
		t.Errorf("profiler targets = %v, want [-1000000]", f.targets)
	}
}

func TestController_StartupScenario(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 1000}
	c := New(f, Config{})

	// Retract with the switch open: position strictly decreasing.
	prev := f.position
	for i := 0; i < 10; i++ {
		mustTick(t, c, false)
		if f.position >= prev {
			t.Fatalf("tick %d: position %d did not decrease from %d", i, f.position, prev)
		}
		prev = f.position
		if c.State() != Retracting {
			t.Fatalf("tick %d: state = %v, want retracting", i, c.State())
		}
	}

	// Switch closes: same tick fires the reversal, anchored on the
	// position the trigger was seen at.
	posAtTrigger := f.position
	mustTick(t, c, true)
	if c.State() != Advancing {
		t.Fatalf("state after trigger = %v, want advancing", c.State())
	}
	if c.Target() != posAtTrigger+400 {
		t.Errorf("target = %d, want %d (trigger position + 400)", c.Target(), posAtTrigger+400)
	}
	if f.stops != 1 {
		t.Errorf("profiler stops = %d, want 1", f.stops)
	}
}

func TestController_FullCycle(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 1000}
	c := New(f, Config{})

	for i := 0; i < 10; i++ {
		mustTick(t, c, false)
	}
	mustTick(t, c, true)
	advanceTarget := c.Target()

	// Feed ticks until the forward travel completes and the controller
	// flips back to retracting.
	for i := 0; i < 100 && c.State() == Advancing; i++ {
		mustTick(t, c, false)
	}
	if c.State() != Retracting {
		t.Fatal("controller never returned to retracting")
	}
	if got, want := c.Target(), advanceTarget-1_000_000; got != want {
		t.Errorf("retract target = %d, want %d (advance target - 1000000)", got, want)
	}
	if c.Cycles() != 1 {
		t.Errorf("cycles = %d, want 1", c.Cycles())
	}
}

func TestController_ReAnchoringNoDrift(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 50, stopOvershoot: 3}
	c := New(f, Config{ForwardTravel: 400, SeekTravel: 100_000})

	// Several full cycles, triggering at a different depth each time.
	// After every trigger the target must be the post-stop position
	// plus exactly the forward travel, regardless of prior cycles.
	for cycle := 0; cycle < 5; cycle++ {
		for i := 0; i < 4+cycle; i++ {
			mustTick(t, c, false)
		}
		posBefore := f.position
		mustTick(t, c, true)
		if c.State() != Advancing {
			t.Fatalf("cycle %d: expected advancing after trigger", cycle)
		}
		// The anchor is the post-stop position: the pre-tick position
		// plus the slide the fake applies inside Stop (retracting, so
		// the slide is negative).
		if got, want := c.Target(), posBefore-f.stopOvershoot+400; got != want {
			t.Fatalf("cycle %d: target = %d, want %d", cycle, got, want)
		}
		for i := 0; i < 100 && c.State() == Advancing; i++ {
			mustTick(t, c, false)
		}
		if c.State() != Retracting {
			t.Fatalf("cycle %d: never returned to retracting", cycle)
		}
	}
	if c.Cycles() != 5 {
		t.Errorf("cycles = %d, want 5", c.Cycles())
	}
}

func TestController_BoundedForwardExcursion(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 150}
	c := New(f, Config{})

	for i := 0; i < 10; i++ {
		mustTick(t, c, false)
	}
	mustTick(t, c, true)
	target := c.Target()

	for i := 0; i < 100 && c.State() == Advancing; i++ {
		mustTick(t, c, false)
		if f.position > target {
			t.Fatalf("position %d exceeded advance target %d", f.position, target)
		}
	}
}

func TestController_RetriggerImmunityWhileAdvancing(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 100}
	c := New(f, Config{})

	mustTick(t, c, true) // trigger at startup: straight to advancing
	targetsBefore := len(f.targets)
	stopsBefore := f.stops

	// Forward travel is 400 at 100 steps per tick: the held trigger must
	// be ignored for the whole advance phase.
	for i := 0; i < 3; i++ {
		mustTick(t, c, true)
		if c.State() != Advancing {
			t.Fatalf("tick %d: state = %v, want advancing despite held trigger", i, c.State())
		}
		if len(f.targets) != targetsBefore {
			t.Fatalf("tick %d: target changed while advancing with held trigger", i)
		}
		if f.stops != stopsBefore {
			t.Fatalf("tick %d: stop issued while advancing", i)
		}
	}

	// Remaining distance hits zero: the normal reversal fires even with
	// the trigger still held.
	mustTick(t, c, true)
	if c.State() != Retracting {
		t.Errorf("state = %v, want retracting once advance completed", c.State())
	}
}

func TestController_TriggeredAtStartup(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 1000}
	c := New(f, Config{})

	// Axis starts at or past the reference point: the very first tick
	// must fire the reversal. Correct behavior, not an error.
	mustTick(t, c, true)
	if c.State() != Advancing {
		t.Errorf("state = %v, want advancing on first tick", c.State())
	}
	if c.Target() != 400 {
		t.Errorf("target = %d, want 400", c.Target())
	}
}

func TestController_StallWithoutTrigger(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 10}
	c := New(f, Config{SeekTravel: 50})

	// Exhaust the whole seek travel with the switch open.
	for i := 0; i < 20; i++ {
		mustTick(t, c, false)
	}
	if c.State() != Retracting {
		t.Errorf("state = %v, want retracting after stall", c.State())
	}
	if f.RemainingDistance() != 0 {
		t.Errorf("remaining = %d, want 0 at stall", f.RemainingDistance())
	}
	if !c.Stalled() {
		t.Error("controller should report the stall")
	}
	if f.stops != 0 {
		t.Errorf("stops = %d, want 0 (no transition ever fired)", f.stops)
	}
	if len(f.targets) != 1 {
		t.Errorf("targets = %v, want only the initial seek target", f.targets)
	}

	// A late trigger still recovers through the normal transition.
	mustTick(t, c, true)
	if c.State() != Advancing || c.Stalled() {
		t.Errorf("late trigger: state=%v stalled=%v, want advancing and cleared", c.State(), c.Stalled())
	}
}

func TestController_OnlyLegalTransitions(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 75}
	c := New(f, Config{ForwardTravel: 200, SeekTravel: 10_000})

	// A long mixed scenario; every observed state change must match one
	// of the two legal transitions evaluated against the pre-tick state.
	pattern := []bool{false, false, true, true, false, true, false, false, false, true}
	prevState := c.State()
	for i := 0; i < 400; i++ {
		hit := pattern[i%len(pattern)]
		remBefore := f.RemainingDistance()
		mustTick(t, c, hit)
		state := c.State()
		if state == prevState {
			continue
		}
		switch {
		case prevState == Retracting && state == Advancing:
			if !hit {
				t.Fatalf("tick %d: retracting->advancing without trigger", i)
			}
		case prevState == Advancing && state == Retracting:
			if remBefore != 0 {
				t.Fatalf("tick %d: advancing->retracting with remaining %d", i, remBefore)
			}
		default:
			t.Fatalf("tick %d: illegal transition %v -> %v", i, prevState, state)
		}
		prevState = state
	}
}

func TestController_AdvanceRunsEveryTick(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 1000}
	c := New(f, Config{})

	mustTick(t, c, false)
	mustTick(t, c, true) // transition tick
	mustTick(t, c, false)
	if f.advances != 3 {
		t.Errorf("advances = %d, want one per tick (3)", f.advances)
	}
}

func TestController_AdvanceErrorPropagates(t *testing.T) {
	f := &fakeProfiler{advErr: errors.New("gpio write failed")}
	c := New(f, Config{Axis: "x"})

	err := c.Tick(false)
	if err == nil {
		t.Fatal("expected advance error to propagate")
	}
}

func TestController_Status(t *testing.T) {
	f := &fakeProfiler{stepPerTick: 1000}
	c := New(f, Config{Axis: "z"})

	mustTick(t, c, false)
	st := c.Status()
	if st.Axis != "z" {
		t.Errorf("status axis = %q, want z", st.Axis)
	}
	if st.State != "retracting" {
		t.Errorf("status state = %q, want retracting", st.State)
	}
	if st.Position != f.position {
		t.Errorf("status position = %d, want %d", st.Position, f.position)
	}
	if st.Target != -1_000_000 {
		t.Errorf("status target = %d, want -1000000", st.Target)
	}
	if st.Remaining != f.RemainingDistance() {
		t.Errorf("status remaining = %d, want %d", st.Remaining, f.RemainingDistance())
	}
	if st.Cycles != 0 || st.Stalled {
		t.Errorf("status cycles=%d stalled=%v, want 0/false", st.Cycles, st.Stalled)
	}
}

func TestState_String(t *testing.T) {
	if Retracting.String() != "retracting" {
		t.Errorf("Retracting.String() = %q", Retracting.String())
	}
	if Advancing.String() != "advancing" {
		t.Errorf("Advancing.String() = %q", Advancing.String())
	}
}
