// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

// DefaultMaxEvents is the default size of the ready buffer, i.e. the maximum
// number of ready descriptors reported by a single cycle.
const DefaultMaxEvents = 128

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	newPoller      pollerFactory
	maxEvents      int
	metricsEnabled bool
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithMaxEvents sets the size of the ready buffer, allocated once by New and
// reused by every cycle. Descriptors beyond this many are reported by the
// next cycle.
func WithMaxEvents(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidMaxEvents, n)
		}
		opts.maxEvents = n
		return nil
	}}
}

// WithLogger attaches a structured logger. A nil logger (the default)
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Loop.
// When enabled, metrics can be accessed via Loop.Metrics().
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// withPollerFactory replaces the readiness facility. Used by tests.
func withPollerFactory(factory pollerFactory) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.newPoller = factory
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		maxEvents: DefaultMaxEvents,
		newPoller: defaultPollerFactory,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
