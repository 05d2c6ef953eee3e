package scheduler

import (
	"context"
	"testing"
	"time"
)

// fakeClock lets tests drive the Loop without real wall-clock waits: sleep
// advances the clock by the requested duration instead of blocking.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) clock() time.Time { return f.now }

func (f *fakeClock) sleep(d time.Duration) { f.now = f.now.Add(d) }

func newTestLoop(t *testing.T, opts ...Option) (*Loop, *fakeClock) {
	t.Helper()
	fc := &fakeClock{now: time.Unix(0, 0)}
	all := append([]Option{WithClock(fc.clock), WithSleeper(fc.sleep)}, opts...)
	l, err := New(all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, fc
}

func TestRunOnceRunsDueTaskOnly(t *testing.T) {
	l, fc := newTestLoop(t)
	ran := false
	rl := false
	_, err := l.ScheduleTask(TaskSpec{
		Delay:                10 * time.Millisecond,
		Name:                 "t1",
		ApplyGlobalRateLimit: &rl,
		Callback: func(task *Task) error {
			ran = true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	if didRun, err := l.RunOnce(); err != nil || didRun {
		t.Fatalf("expected task not yet due, got ran=%v err=%v", didRun, err)
	}
	if ran {
		t.Fatalf("callback ran before its trigger time")
	}
	// Advance the fake clock past the trigger time and try again.
	fc.now = fc.now.Add(time.Second)
	if didRun, err := l.RunOnce(); err != nil || !didRun {
		t.Fatalf("expected task to run, got ran=%v err=%v", didRun, err)
	}
	if !ran {
		t.Fatalf("callback never ran")
	}
}

func TestRescheduleAnchorsToOriginalTriggerTime(t *testing.T) {
	l, fc := newTestLoop(t)
	fc.now = time.Unix(100, 0)
	const period = 10 * time.Second
	// A bare Duration would be fuzzed; a DelayFunc is used as-is, so the
	// cadence below is exact.
	fixed := DelayFunc(func() time.Duration { return period })
	rl := false
	count := 0
	var triggerTimes []time.Time
	_, err := l.ScheduleTask(TaskSpec{
		Delay:                fixed,
		Name:                 "periodic",
		ApplyGlobalRateLimit: &rl,
		Reschedule:           true,
		RescheduleDelay:      fixed,
		Callback: func(task *Task) error {
			count++
			triggerTimes = append(triggerTimes, task.TriggerTime)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	for i := 0; i < 3; i++ {
		fc.now = fc.now.Add(period + time.Second) // simulate a slow callback / late pop
		if _, err := l.RunOnce(); err != nil {
			t.Fatalf("RunOnce %d: %v", i, err)
		}
	}
	if count != 3 {
		t.Fatalf("expected 3 runs, got %d", count)
	}
	for i := 1; i < len(triggerTimes); i++ {
		gap := triggerTimes[i].Sub(triggerTimes[i-1])
		if gap != period {
			t.Fatalf("trigger time gap %v != period %v (re-anchoring broke cadence)", gap, period)
		}
	}
}

func TestNeverRescheduleRunsOnce(t *testing.T) {
	l, fc := newTestLoop(t)
	fc.now = time.Unix(0, 0)
	rl := false
	runs := 0
	_, err := l.ScheduleTask(TaskSpec{
		Delay:                time.Millisecond,
		ApplyGlobalRateLimit: &rl,
		Callback: func(task *Task) error {
			runs++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	fc.now = fc.now.Add(time.Second)
	for i := 0; i < 5; i++ {
		if _, err := l.RunOnce(); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	if runs != 1 {
		t.Fatalf("expected exactly 1 run for a non-rescheduling task, got %d", runs)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty queue after a non-rescheduling task ran, got %d", l.Len())
	}
}

func TestGlobalRateLimitSpacesOutRateLimitedTasks(t *testing.T) {
	l, fc := newTestLoop(t, WithGlobalRateLimit(200*time.Millisecond))
	fc.now = time.Unix(0, 0)
	runAt := []time.Time{}
	for i := 0; i < 3; i++ {
		if _, err := l.ScheduleTask(TaskSpec{
			Delay: time.Millisecond,
			Name:  "rl",
			Callback: func(task *Task) error {
				runAt = append(runAt, fc.now)
				return nil
			},
		}); err != nil {
			t.Fatalf("ScheduleTask: %v", err)
		}
	}
	fc.now = fc.now.Add(time.Second)
	for i := 0; i < 3; i++ {
		if _, err := l.RunOnce(); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	if len(runAt) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runAt))
	}
	// The 200ms limit is fuzzed by up to 50%, so consecutive runs start at
	// least 100ms apart.
	for i := 1; i < len(runAt); i++ {
		if gap := runAt[i].Sub(runAt[i-1]); gap < 100*time.Millisecond {
			t.Fatalf("run %d started %v after the previous one, want at least 100ms", i, gap)
		}
	}
}

func TestFuzzedDelayStaysWithinBounds(t *testing.T) {
	mean := 100 * time.Millisecond
	ratio := 0.3
	delayFn, err := FuzzedDelay(mean, ratio)
	if err != nil {
		t.Fatalf("FuzzedDelay: %v", err)
	}
	lo := time.Duration(float64(mean) * (1 - ratio))
	hi := time.Duration(float64(mean) * (1 + ratio))
	for i := 0; i < 1000; i++ {
		d := delayFn()
		if d < lo || d > hi {
			t.Fatalf("fuzzed delay %v out of bounds [%v, %v]", d, lo, hi)
		}
	}
}

func TestFuzzedDelayRejectsOutOfRangeRatio(t *testing.T) {
	if _, err := FuzzedDelay(time.Second, 1.5); err == nil {
		t.Fatalf("expected error for fuzz ratio > 1")
	}
	if _, err := FuzzedDelay(time.Second, -0.1); err == nil {
		t.Fatalf("expected error for negative fuzz ratio")
	}
}

func TestRunLoopStopsOnContextCancel(t *testing.T) {
	l, fc := newTestLoop(t)
	rl := false
	_, err := l.ScheduleTask(TaskSpec{
		Delay:                time.Millisecond,
		ApplyGlobalRateLimit: &rl,
		Reschedule:           true,
		RescheduleDelay:      time.Millisecond,
		Callback:             func(task *Task) error { return nil },
	})
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	fc.now = fc.now.Add(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	if err := l.RunLoop(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunLoopWithoutRecoverStopsOnFirstError(t *testing.T) {
	l, fc := newTestLoop(t)
	rl := false
	_, err := l.ScheduleTask(TaskSpec{
		Delay:                time.Millisecond,
		ApplyGlobalRateLimit: &rl,
		Callback:             func(task *Task) error { return errAlwaysFails },
	})
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	fc.now = fc.now.Add(time.Second)
	if err := l.RunLoop(context.Background()); err != errAlwaysFails {
		t.Fatalf("expected callback error to propagate, got %v", err)
	}
}

func TestRunLoopWithRecoverContinuesPastErrors(t *testing.T) {
	l, fc := newTestLoop(t, WithRecover())
	rl := false
	runs := 0
	_, err := l.ScheduleTask(TaskSpec{
		Delay:                time.Millisecond,
		ApplyGlobalRateLimit: &rl,
		Reschedule:           true,
		RescheduleDelay:      time.Millisecond,
		Callback: func(task *Task) error {
			runs++
			return errAlwaysFails
		},
	})
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}
	fc.now = fc.now.Add(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	if err := l.RunLoop(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled once recovered errors stop blocking the loop, got %v", err)
	}
	if runs < 2 {
		t.Fatalf("expected WithRecover to let the loop keep running past errors, runs=%d", runs)
	}
}

var errAlwaysFails = context.DeadlineExceeded
