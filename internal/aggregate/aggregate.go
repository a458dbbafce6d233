// Package aggregate turns an ordered chain of providers into cached quotes
// and persisted daily history.
package aggregate

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/logger"
)

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// UniqueSymbols normalizes symbols, dropping blanks and repeats while
// keeping first-seen order.
func UniqueSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

type options struct {
	clock  clock.Clock
	logger *zap.Logger
}

// Option configures an aggregator.
type Option func(*options)

// WithClock sets the clock used for freshness checks and delays.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{clock: clock.System{}}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logger.OrNop(o.logger)
	return o
}
