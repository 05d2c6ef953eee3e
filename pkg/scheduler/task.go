package scheduler

import "time"

// Callback is the work a Task performs when it comes due. A non-nil error
// propagates out of RunOnce/RunLoop unless the Loop was built with
// WithRecover.
type Callback func(task *Task) error

// RescheduleIf reports whether a just-run Task should be reinserted into the
// queue. AlwaysReschedule and NeverReschedule cover the two constant cases;
// most real uses (Fetcher's "is this target still claimed") are stateful
// closures.
type RescheduleIf func() bool

// AlwaysReschedule always requests rescheduling.
func AlwaysReschedule() bool { return true }

// NeverReschedule never requests rescheduling. This is a Task's default.
func NeverReschedule() bool { return false }

// Task is one entry in the scheduling loop's priority queue.
type Task struct {
	// TriggerTime is the absolute time this Task becomes eligible to run.
	TriggerTime time.Time
	// Callback is invoked once TriggerTime has passed.
	Callback Callback
	// Name identifies the Task in logs; it has no effect on scheduling.
	Name string
	// Payload is opaque data the Callback can use to know what it's
	// operating on (a URL, a keyhash, ...).
	Payload any
	// ApplyGlobalRateLimit gates this Task behind the Loop's global rate
	// limiter. Non-rate-limited tasks bypass the wait entirely and never
	// update the rate limiter's last-end timestamp.
	ApplyGlobalRateLimit bool
	// RescheduleIf decides whether this Task reinserts itself after
	// running. Nil behaves like NeverReschedule.
	RescheduleIf RescheduleIf
	// RescheduleDelay computes the delay (from this Task's *original*
	// TriggerTime, not from completion time) of the reinserted Task. Only
	// consulted when RescheduleIf returns true.
	RescheduleDelay DelayFunc

	seq       uint64
	heapIndex int
}

// taskHeap implements container/heap.Interface, ordering by TriggerTime with
// ties broken by insertion order (a stable heap, matching Python's heapq
// behavior over dataclasses with a monotonically increasing tiebreaker).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].TriggerTime.Equal(h[j].TriggerTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].TriggerTime.Before(h[j].TriggerTime)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}
