package scheduler

import (
	"fmt"
	"math/rand"
	"time"
)

// DelayFunc returns the next delay to use. A bare time.Duration means "a
// fuzzed delay with that mean" once passed through AsDelay; a DelayFunc
// itself means "call this each time for the next delay" (spec §4.5's delay
// argument polymorphism).
type DelayFunc func() time.Duration

// defaultFuzzSigmas is how many standard deviations the fuzz's max swing
// represents, matching the Python default (fuzzed_delay_generator(mean,
// fuzz_ratio=0.5, sigmas=3)).
const defaultFuzzSigmas = 3

// FuzzedDelay returns a DelayFunc drawing from mean plus a zero-centered
// normal perturbation, resampled until it falls within
// mean*fuzzRatio of mean on either side. It never returns a value outside
// [mean*(1-fuzzRatio), mean*(1+fuzzRatio)].
func FuzzedDelay(mean time.Duration, fuzzRatio float64) (DelayFunc, error) {
	if fuzzRatio < 0 || fuzzRatio > 1 {
		return nil, fmt.Errorf("scheduler: fuzz ratio out of range: %v", fuzzRatio)
	}
	maxFuzz := float64(mean) * fuzzRatio
	sigma := maxFuzz / defaultFuzzSigmas
	return func() time.Duration {
		if sigma == 0 {
			return mean
		}
		for {
			fuzz := rand.NormFloat64() * sigma
			if fuzz >= -maxFuzz && fuzz <= maxFuzz {
				return mean + time.Duration(fuzz)
			}
		}
	}, nil
}

// MustFuzzedDelay is FuzzedDelay for call sites that construct a DelayFunc
// from a compile-time-constant fuzzRatio and want to panic rather than plumb
// an error (mirroring how constructors like DefaultGlobalRateLimit are
// defined as package-level values in the Python original).
func MustFuzzedDelay(mean time.Duration, fuzzRatio float64) DelayFunc {
	d, err := FuzzedDelay(mean, fuzzRatio)
	if err != nil {
		panic(err)
	}
	return d
}

// defaultFuzzRatio is the fuzz_ratio default fuzzed_delay_generator uses in
// the Python original when a bare mean is handed to as_delay.
const defaultFuzzRatio = 0.5

// AsDelay normalizes a delay argument: a time.Duration becomes a fuzzed
// delay generator around that mean (fuzz_ratio 0.5); a DelayFunc passes
// through unchanged. Any other type is a programming error.
func AsDelay(delay any) (DelayFunc, error) {
	switch v := delay.(type) {
	case time.Duration:
		return FuzzedDelay(v, defaultFuzzRatio)
	case DelayFunc:
		return v, nil
	case func() time.Duration:
		return DelayFunc(v), nil
	default:
		return nil, fmt.Errorf("scheduler: delay must be a time.Duration or a DelayFunc, got %T", delay)
	}
}

// DefaultGlobalRateLimit is the Loop's built-in rate limit mean (200ms) when
// no WithGlobalRateLimit option is given, matching the Python
// DEFAULT_GLOBAL_RATELIMIT = fuzzed_delay_generator(0.2).
var DefaultGlobalRateLimit = 200 * time.Millisecond
