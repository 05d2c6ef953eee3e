// Package scheduler implements the single-threaded, cooperative
// priority-queue loop that drives the fetcher: a min-heap of Tasks ordered
// by trigger time, a global rate limiter shared across rate-limited Tasks,
// and per-Task reschedule policies anchored to the Task's original trigger
// time rather than to when it happened to finish running.
//
// © 2025 arena-cache authors. MIT License.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// verySleepCap bounds how long RunOnce ever sleeps while waiting for the
// head task to become due, so that a caller driving RunOnce directly (rather
// than RunLoop) never blocks for long even if the heap is momentarily empty
// or the head task is scheduled far in the future.
const verySleepCap = 100 * time.Microsecond

// ErrNoTasks names the empty-queue condition. RunOnce does not return it:
// on an empty queue it sleeps briefly and reports ran=false with a nil
// error.
var ErrNoTasks = errors.New("scheduler: no tasks scheduled")

// Loop is a single-threaded cooperative scheduler: exactly one task runs at
// a time, to completion, before the next is considered. All of its methods
// are intended to be called from one goroutine; nothing here is safe for
// concurrent use from several.
type Loop struct {
	cfg   *config
	tasks taskHeap
	seq   uint64

	globalRateLimitDelay   DelayFunc
	globalRateLimitLastEnd *time.Time
	globalRateLimitNext    *time.Duration
}

// New constructs an empty Loop.
func New(opts ...Option) (*Loop, error) {
	cfg := defaultConfig()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}
	rl, err := AsDelay(cfg.globalRateLimitRaw)
	if err != nil {
		return nil, err
	}
	l := &Loop{cfg: cfg, globalRateLimitDelay: rl}
	heap.Init(&l.tasks)
	return l, nil
}

// Len reports how many tasks are currently queued.
func (l *Loop) Len() int { return l.tasks.Len() }

// AddTask inserts an already-constructed Task into the queue.
func (l *Loop) AddTask(t *Task) {
	l.seq++
	t.seq = l.seq
	l.cfg.logger.Debug("scheduling task", zap.String("name", t.Name), zap.Time("trigger_time", t.TriggerTime))
	heap.Push(&l.tasks, t)
}

// TaskSpec describes a Task to be scheduled relative to now via ScheduleTask.
type TaskSpec struct {
	// Delay is a time.Duration (fuzzed around that mean) or a DelayFunc;
	// it is evaluated once, immediately, to compute the initial
	// TriggerTime.
	Delay    any
	Callback Callback
	Name     string
	Payload  any
	// ApplyGlobalRateLimit defaults to true (matching the Python
	// original's apply_global_ratelimit=True default) when left nil;
	// pass a pointer to false to opt a Task out of the shared rate
	// limiter.
	ApplyGlobalRateLimit *bool
	// Reschedule, if true, sets RescheduleIf to AlwaysReschedule. Ignored
	// if RescheduleIf is also set.
	Reschedule   bool
	RescheduleIf RescheduleIf
	// RescheduleDelay is a time.Duration or DelayFunc for the reschedule
	// cadence. Defaults to Delay's resolved DelayFunc when RescheduleIf is
	// set (directly or via Reschedule) but RescheduleDelay is left nil.
	RescheduleDelay any
}

// ScheduleTask resolves spec's delay arguments and inserts the resulting
// Task, returning it so the caller can inspect its TriggerTime.
func (l *Loop) ScheduleTask(spec TaskSpec) (*Task, error) {
	delayFn, err := AsDelay(spec.Delay)
	if err != nil {
		return nil, err
	}
	rescheduleIf := spec.RescheduleIf
	if rescheduleIf == nil && spec.Reschedule {
		rescheduleIf = AlwaysReschedule
	}
	var rescheduleDelayFn DelayFunc
	if rescheduleIf != nil {
		raw := spec.RescheduleDelay
		if raw == nil {
			raw = delayFn
		}
		rescheduleDelayFn, err = AsDelay(raw)
		if err != nil {
			return nil, err
		}
	}
	applyRL := true
	if spec.ApplyGlobalRateLimit != nil {
		applyRL = *spec.ApplyGlobalRateLimit
	}
	t := &Task{
		TriggerTime:          l.cfg.clock().Add(delayFn()),
		Callback:             spec.Callback,
		Name:                 spec.Name,
		Payload:              spec.Payload,
		ApplyGlobalRateLimit: applyRL,
		RescheduleIf:         rescheduleIf,
		RescheduleDelay:      rescheduleDelayFn,
	}
	l.AddTask(t)
	return t, nil
}

func (l *Loop) waitForGlobalRateLimit() {
	if l.globalRateLimitLastEnd == nil {
		return
	}
	if l.globalRateLimitNext == nil {
		d := l.globalRateLimitDelay()
		l.globalRateLimitNext = &d
	}
	since := l.cfg.clock().Sub(*l.globalRateLimitLastEnd)
	shortfall := *l.globalRateLimitNext - since
	if shortfall > 0 {
		l.cfg.logger.Debug("waiting for global rate limit", zap.Duration("shortfall", shortfall))
		l.cfg.sleep(shortfall)
	}
	l.globalRateLimitNext = nil
}

// RunOnce pops and runs at most one due task. It returns ran=false without
// error if the head task (if any) is not yet due or the queue is empty,
// having slept for a short, bounded interval either way.
func (l *Loop) RunOnce() (ran bool, err error) {
	now := l.cfg.clock()
	if l.tasks.Len() == 0 {
		l.cfg.sleep(verySleepCap)
		return false, nil
	}
	head := l.tasks[0]
	if head.TriggerTime.After(now) {
		wait := head.TriggerTime.Sub(now)
		if wait > verySleepCap {
			wait = verySleepCap
		}
		l.cfg.sleep(wait)
		return false, nil
	}
	task := heap.Pop(&l.tasks).(*Task)
	if task.ApplyGlobalRateLimit {
		l.waitForGlobalRateLimit()
	}
	l.cfg.logger.Debug("running task", zap.String("name", task.Name), zap.Duration("delay", now.Sub(task.TriggerTime)))
	t0 := l.cfg.clock()
	cbErr := task.Callback(task)
	t1 := l.cfg.clock()
	if task.ApplyGlobalRateLimit {
		l.globalRateLimitLastEnd = &t1
	}
	l.cfg.logger.Debug("ran task", zap.String("name", task.Name), zap.Duration("took", t1.Sub(t0)))
	if task.RescheduleIf != nil && task.RescheduleIf() {
		delay := task.RescheduleDelay()
		next := &Task{
			TriggerTime:          task.TriggerTime.Add(delay),
			Callback:             task.Callback,
			Name:                 task.Name,
			Payload:              task.Payload,
			ApplyGlobalRateLimit: task.ApplyGlobalRateLimit,
			RescheduleIf:         task.RescheduleIf,
			RescheduleDelay:      task.RescheduleDelay,
		}
		l.cfg.logger.Debug("rescheduling task", zap.String("name", task.Name), zap.Time("trigger_time", next.TriggerTime))
		l.AddTask(next)
	}
	return true, cbErr
}

// RunLoop calls RunOnce forever until ctx is canceled or a Callback returns
// an error (unless the Loop was built with WithRecover, in which case
// errors are logged and the loop continues).
func (l *Loop) RunLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, err := l.RunOnce()
		if err != nil {
			if l.cfg.continueOnError {
				l.cfg.logger.Error("task callback failed", zap.Error(err))
				continue
			}
			return err
		}
	}
}
