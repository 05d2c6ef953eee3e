package fetcher

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Voskan/datawatch/pkg/scheduler"
)

// drainUntil runs RunOnce until cond() reports true or deadline elapses,
// failing the test otherwise.
func drainUntil(t *testing.T, l *Loop, deadline time.Duration, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return
		}
		if _, err := l.RunOnce(); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	t.Fatalf("condition not met within %v", deadline)
}

func TestAddDiscoveryRootFetchesAndPollsDiscoveredTargets(t *testing.T) {
	targetA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content-a"))
	}))
	defer targetA.Close()
	targetB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content-b"))
	}))
	defer targetB.Close()

	root := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="` + targetA.URL + `">a</a><a href="` + targetB.URL + `">b</a>`))
	}))
	defer root.Close()

	var mu sync.Mutex
	fetched := map[string]string{}

	l, err := New(
		WithInitialDiscoveryDelay(time.Millisecond),
		WithDiscoveryDelay(time.Hour),
		WithFetchDelay(time.Millisecond),
		WithFetchingRateLimit(0),
		WithOnFetched(func(url string, resp *http.Response, content []byte) error {
			mu.Lock()
			fetched[url] = string(content)
			mu.Unlock()
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := l.AddDiscoveryRoot(root.URL); err != nil {
		t.Fatalf("AddDiscoveryRoot: %v", err)
	}

	drainUntil(t, l, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fetched[targetA.URL] == "content-a" && fetched[targetB.URL] == "content-b"
	})

	if !l.hasTarget(targetA.URL) || !l.hasTarget(targetB.URL) {
		t.Fatalf("expected both discovered links to be tracked as targets")
	}
}

func TestTargetLinkFilterExcludesNonMatchingLinks(t *testing.T) {
	wanted := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer wanted.Close()
	excluded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("should not be fetched"))
	}))
	defer excluded.Close()

	root := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="` + wanted.URL + `">w</a><a href="` + excluded.URL + `">e</a>`))
	}))
	defer root.Close()

	var mu sync.Mutex
	fetched := map[string]bool{}

	l, err := New(
		WithInitialDiscoveryDelay(time.Millisecond),
		WithDiscoveryDelay(time.Hour),
		WithFetchDelay(time.Millisecond),
		WithFetchingRateLimit(0),
		WithTargetLinkFilter(func(url string) bool { return url == wanted.URL }),
		WithOnFetched(func(url string, resp *http.Response, content []byte) error {
			mu.Lock()
			fetched[url] = true
			mu.Unlock()
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.AddDiscoveryRoot(root.URL); err != nil {
		t.Fatalf("AddDiscoveryRoot: %v", err)
	}

	drainUntil(t, l, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fetched[wanted.URL]
	})

	if l.hasTarget(excluded.URL) {
		t.Fatalf("excluded link should never become a tracked target")
	}
	mu.Lock()
	defer mu.Unlock()
	if fetched[excluded.URL] {
		t.Fatalf("excluded link should never be fetched")
	}
}

func TestScheduleNonFetchingTaskBypassesRateLimit(t *testing.T) {
	l, err := New(
		WithFetchingRateLimit(time.Hour),
		WithOnFetched(func(string, *http.Response, []byte) error { return nil }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ran := false
	if _, err := l.ScheduleNonFetchingTask(scheduler.TaskSpec{
		Delay: time.Millisecond,
		Name:  "housekeeping",
		Callback: func(task *scheduler.Task) error {
			ran = true
			return nil
		},
	}); err != nil {
		t.Fatalf("ScheduleNonFetchingTask: %v", err)
	}
	drainUntil(t, l, 2*time.Second, func() bool { return ran })
}

func TestMissingOnFetchedIsRejected(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatalf("expected New to reject a missing OnFetched option")
	}
}
