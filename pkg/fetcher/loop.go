// Package fetcher implements discovery-plus-polling on top of pkg/scheduler:
// periodically re-crawl a set of discovery-root pages for links, and poll
// every link that passes a caller-supplied filter on its own cadence,
// handing fetched content to a delegate (normally Collection.UpdateData).
//
// © 2025 arena-cache authors. MIT License.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/datawatch/pkg/errs"
	"github.com/Voskan/datawatch/pkg/scheduler"
)

// Loop drives discovery and polling tasks on a single-threaded
// scheduler.Loop. Like the scheduler it wraps, none of its methods are safe
// for concurrent use from more than one goroutine.
type Loop struct {
	cfg       *config
	scheduler *scheduler.Loop

	targetsByRoot map[string]map[string]struct{}
}

// New constructs a Loop. WithOnFetched is required; every other option has
// a default matching the Python original's.
func New(opts ...Option) (*Loop, error) {
	cfg := defaultConfig()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}
	sched, err := scheduler.New(
		scheduler.WithGlobalRateLimit(cfg.fetchingRateLimit),
		scheduler.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}
	return &Loop{cfg: cfg, scheduler: sched, targetsByRoot: make(map[string]map[string]struct{})}, nil
}

// hasTarget reports whether target is currently claimed by any discovery
// root's target set.
func (l *Loop) hasTarget(target string) bool {
	for _, set := range l.targetsByRoot {
		if _, ok := set[target]; ok {
			return true
		}
	}
	return false
}

func (l *Loop) runDiscovery(task *scheduler.Task) error {
	root, _ := task.Payload.(string)
	_, content, err := l.getURL(root, false)
	if err != nil {
		return err
	}
	links, err := extractLinks(content, root)
	if err != nil {
		return err
	}
	l.cfg.metrics.AddDiscoveredLinks(len(links))

	newSet := make(map[string]struct{}, len(links))
	var newly []string
	for _, link := range links {
		if !l.cfg.targetLinkFilter(link) {
			continue
		}
		newSet[link] = struct{}{}
		if !l.hasTarget(link) {
			newly = append(newly, link)
		}
	}
	l.targetsByRoot[root] = newSet
	l.cfg.logger.Debug("discovery complete", zap.String("root", root), zap.Int("targets", len(newSet)), zap.Int("new", len(newly)))
	for _, target := range newly {
		l.addTarget(target)
	}
	return nil
}

func (l *Loop) computeRescheduleDelay(baseDelay scheduler.DelayFunc, consecutiveNochange *int) scheduler.DelayFunc {
	return func() time.Duration {
		n := *consecutiveNochange
		if l.cfg.exponentialBackoff == 0 || n == 0 {
			return baseDelay()
		}
		multiplier := math.Pow(l.cfg.exponentialBackoff, float64(n))
		return time.Duration(multiplier * float64(baseDelay()))
	}
}

func (l *Loop) addTarget(target string) {
	baseDelay, err := scheduler.AsDelay(l.cfg.fetchDelay)
	if err != nil {
		l.cfg.logger.Error("invalid fetch delay", zap.Error(err))
		return
	}
	var lastContent []byte
	haveLast := false
	consecutiveNochange := 0

	runFetch := func(task *scheduler.Task) error {
		url, _ := task.Payload.(string)
		resp, content, err := l.getURL(url, true)
		var tfe *errs.TransientFetchError
		if err != nil {
			if !errors.As(err, &tfe) {
				return err
			}
			l.cfg.metrics.IncFetchFailure()
			l.cfg.logger.Warn("fetch failed", zap.String("url", url), zap.Error(tfe))
		} else {
			l.cfg.metrics.IncFetchSuccess()
		}
		changed := !haveLast || !bytes.Equal(lastContent, content)
		if changed {
			consecutiveNochange = 0
		} else {
			consecutiveNochange++
		}
		lastContent = content
		haveLast = true
		l.cfg.logger.Debug("polled target", zap.String("url", url), zap.Bool("changed", changed), zap.Int("consecutive_nochange", consecutiveNochange))
		return l.cfg.onFetched(url, resp, content)
	}

	l.cfg.logger.Debug("adding new target", zap.String("url", target))
	if _, err := l.scheduler.ScheduleTask(scheduler.TaskSpec{
		Delay:    l.cfg.fetchDelay,
		Name:     "poll:" + target,
		Payload:  target,
		Callback: runFetch,
		RescheduleIf: func() bool {
			return l.hasTarget(target)
		},
		RescheduleDelay: l.computeRescheduleDelay(baseDelay, &consecutiveNochange),
	}); err != nil {
		l.cfg.logger.Error("failed to schedule polling task", zap.String("url", target), zap.Error(err))
	}
}

// AddDiscoveryRoot registers url as a discovery root: an initial fetch
// happens after ~1s, then every cfg.discoveryDelay thereafter for as long as
// this Loop runs.
func (l *Loop) AddDiscoveryRoot(url string) error {
	_, err := l.scheduler.ScheduleTask(scheduler.TaskSpec{
		Delay:           l.cfg.initialDiscovery,
		Name:            "discovery:" + url,
		Payload:         url,
		Callback:        l.runDiscovery,
		Reschedule:      true,
		RescheduleDelay: l.cfg.discoveryDelay,
	})
	return err
}

// ScheduleNonFetchingTask schedules an arbitrary task exempt from the
// global fetch rate limit, matching the Python original's
// schedule_nonfetching_task (used by CLIs to interleave periodic
// sync/summarize work with fetching).
func (l *Loop) ScheduleNonFetchingTask(spec scheduler.TaskSpec) (*scheduler.Task, error) {
	no := false
	spec.ApplyGlobalRateLimit = &no
	return l.scheduler.ScheduleTask(spec)
}

// RunOnce runs at most one due task (discovery, polling, or a
// non-fetching task added via ScheduleNonFetchingTask).
func (l *Loop) RunOnce() (bool, error) { return l.scheduler.RunOnce() }

// RunLoop runs RunOnce forever until ctx is canceled or a callback errors
// (see scheduler.Loop.RunLoop; pass scheduler.WithRecover-equivalent
// behavior via the scheduler options this Loop was not given direct access
// to configure — construct your own scheduler.Loop instead if you need
// that).
func (l *Loop) RunLoop(ctx context.Context) error { return l.scheduler.RunLoop(ctx) }

// Targets returns the current target set discovered from root, or nil if
// root is not a known discovery root.
func (l *Loop) Targets(root string) []string {
	set, ok := l.targetsByRoot[root]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}
