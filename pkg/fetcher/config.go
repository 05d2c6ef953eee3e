package fetcher

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/datawatch/internal/telemetry"
)

// TargetLinkFilter decides whether a link extracted from a discovery root's
// HTML should be tracked as a polling target.
type TargetLinkFilter func(url string) bool

// OnFetched is handed every (url, response, content) triple a polling task
// produces, including ones where the fetch itself failed (see
// TransientFetchError in pkg/errs). On failure resp is nil only when no
// response arrived at all; for a 4xx/5xx status resp is set and content
// holds the error body, and for a failed body read content is nil.
type OnFetched func(targetURL string, resp *http.Response, content []byte) error

// config bundles every knob influencing a Loop's behavior.
type config struct {
	userAgent          string
	targetLinkFilter   TargetLinkFilter
	onFetched          OnFetched
	discoveryDelay     time.Duration
	fetchDelay         time.Duration
	fetchingRateLimit  time.Duration
	initialDiscovery   time.Duration
	exponentialBackoff float64 // 0 means disabled
	httpClient         *http.Client
	logger             *zap.Logger
	metrics            telemetry.Sink
}

func defaultConfig() *config {
	return &config{
		discoveryDelay:    300 * time.Second,
		fetchDelay:        60 * time.Second,
		fetchingRateLimit: 200 * time.Millisecond,
		initialDiscovery:  time.Second,
		httpClient:        &http.Client{Timeout: 60 * time.Second},
		logger:            zap.NewNop(),
		metrics:           telemetry.NoopSink,
		targetLinkFilter:  func(string) bool { return true },
	}
}

// Option configures a Loop at construction time.
type Option func(*config)

// WithUserAgent sets the User-Agent header sent with every fetch.
func WithUserAgent(ua string) Option {
	return func(c *config) { c.userAgent = ua }
}

// WithTargetLinkFilter overrides the predicate links extracted from
// discovery roots must pass to become polling targets. Default: accept
// everything.
func WithTargetLinkFilter(f TargetLinkFilter) Option {
	return func(c *config) {
		if f != nil {
			c.targetLinkFilter = f
		}
	}
}

// WithOnFetched sets the delegate invoked with every fetched target's
// content, normally collection.Collection.UpdateData.
func WithOnFetched(f OnFetched) Option {
	return func(c *config) { c.onFetched = f }
}

// WithDiscoveryDelay sets the period between re-polls of a discovery root.
// Default 300s.
func WithDiscoveryDelay(d time.Duration) Option {
	return func(c *config) { c.discoveryDelay = d }
}

// WithFetchDelay sets the period between re-polls of a target. Default 60s.
func WithFetchDelay(d time.Duration) Option {
	return func(c *config) { c.fetchDelay = d }
}

// WithFetchingRateLimit sets the mean global rate limit applied across all
// fetches (discovery and polling alike). Default 200ms.
func WithFetchingRateLimit(d time.Duration) Option {
	return func(c *config) { c.fetchingRateLimit = d }
}

// WithInitialDiscoveryDelay overrides the delay before a newly added
// discovery root is first fetched. Default 1s.
func WithInitialDiscoveryDelay(d time.Duration) Option {
	return func(c *config) { c.initialDiscovery = d }
}

// WithExponentialBackoff enables a per-target exponential backoff: after n
// consecutive unchanged polls, the next delay is fetchDelay * base^n. base
// must be in (1, 10). Passing 0 (the default) disables backoff entirely.
func WithExponentialBackoff(base float64) Option {
	return func(c *config) { c.exponentialBackoff = base }
}

// WithHTTPClient overrides the http.Client used for every fetch. Default one
// with a 60s timeout and no special transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger plugs an external zap.Logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection for this Loop.
func WithMetrics(sink telemetry.Sink) Option {
	return func(c *config) {
		if sink != nil {
			c.metrics = sink
		}
	}
}

func applyOptions(cfg *config, opts []Option) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.onFetched == nil {
		return errMissingOnFetched
	}
	if cfg.exponentialBackoff != 0 && (cfg.exponentialBackoff <= 1 || cfg.exponentialBackoff >= 10) {
		return errInvalidBackoffBase
	}
	return nil
}

var (
	errMissingOnFetched   = errors.New("fetcher: OnFetched is required")
	errInvalidBackoffBase = errors.New("fetcher: exponential backoff base must be in (1, 10)")
)
