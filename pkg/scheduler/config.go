package scheduler

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Clock returns the current time. Injectable so tests can drive the loop
// without real sleeps.
type Clock func() time.Time

// Sleeper pauses the calling goroutine for d. Injectable for the same
// reason as Clock.
type Sleeper func(d time.Duration)

// config bundles every knob influencing a Loop's behavior. All fields are
// set once at construction.
type config struct {
	clock              Clock
	sleep              Sleeper
	globalRateLimitRaw any
	logger             *zap.Logger
	continueOnError    bool
}

func defaultConfig() *config {
	return &config{
		clock:              time.Now,
		sleep:              time.Sleep,
		globalRateLimitRaw: DefaultGlobalRateLimit,
		logger:             zap.NewNop(),
	}
}

// Option configures a Loop at construction time.
type Option func(*config)

// WithClock overrides the time source. Default time.Now.
func WithClock(c Clock) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithSleeper overrides the sleep function. Default time.Sleep.
func WithSleeper(s Sleeper) Option {
	return func(cfg *config) {
		if s != nil {
			cfg.sleep = s
		}
	}
}

// WithGlobalRateLimit sets the delay (a time.Duration mean, or a DelayFunc)
// enforced between the completion of one rate-limited Task and the start of
// the next. Default is a 200ms-mean fuzzed delay.
func WithGlobalRateLimit(delay any) Option {
	return func(cfg *config) { cfg.globalRateLimitRaw = delay }
}

// WithLogger plugs an external zap.Logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRecover makes RunLoop catch a Callback's returned error, log it, and
// continue the loop instead of propagating it to the caller. Per spec §7,
// this is an explicit policy knob the spec leaves to implementers.
func WithRecover() Option {
	return func(cfg *config) { cfg.continueOnError = true }
}

func applyOptions(cfg *config, opts []Option) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if _, err := AsDelay(cfg.globalRateLimitRaw); err != nil {
		return errors.Join(errInvalidGlobalRateLimit, err)
	}
	return nil
}

var errInvalidGlobalRateLimit = errors.New("scheduler: invalid global rate limit")
