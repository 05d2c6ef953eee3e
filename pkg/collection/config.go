// Package collection implements Collection, the in-process index over a
// Storage backend: lazy per-key loading, update, flush-on-sync, and
// chunk-to-chunk summarization.
//
// © 2025 arena-cache authors. MIT License.
package collection

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Voskan/datawatch/internal/telemetry"
	"github.com/Voskan/datawatch/pkg/entry"
)

// config bundles every knob influencing a Collection's behavior. All fields
// are set once at construction; there is no live reconfiguration.
type config struct {
	fullHistory      bool
	chainLengthLimit int
	logger           *zap.Logger
	metrics          telemetry.Sink
}

func defaultConfig() *config {
	return &config{
		fullHistory:      false,
		chainLengthLimit: entry.DefaultChainLengthLimit,
		logger:           zap.NewNop(),
		metrics:          telemetry.NoopSink,
	}
}

// Option configures a Collection at construction time.
type Option func(*config)

// WithFullHistory makes the Collection load every available version for a
// key instead of just the most recent checkpoint trail. Entries loaded this
// way are never flushed back to their own storage: the mode exists for
// summarize/read paths that need complete history, not for ongoing writes.
func WithFullHistory() Option {
	return func(c *config) { c.fullHistory = true }
}

// WithChainLengthLimit overrides the dependency_chain_length_limit passed to
// Entry.Flush by SyncAndFlushOne.
func WithChainLengthLimit(limit int) Option {
	return func(c *config) { c.chainLengthLimit = limit }
}

// WithLogger plugs an external zap.Logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection for this Collection.
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
	if cfg.chainLengthLimit < entry.NoChainLengthLimit {
		return errInvalidChainLengthLimit
	}
	return nil
}

var errInvalidChainLengthLimit = errors.New("collection: chain length limit must be >= -1")
