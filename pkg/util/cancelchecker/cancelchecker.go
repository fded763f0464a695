// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package cancelchecker provides a helper for cooperative cancellation of
// long-running row loops.
package cancelchecker

import (
	"context"

	"github.com/cockroachdb/errors"
)

// QueryCanceledError is returned by Check once the context is done.
var QueryCanceledError = errors.New("query execution canceled")

// DefaultInterval is the number of Check calls between context polls.
const DefaultInterval = 1024

// CancelChecker is a helper object for repeatedly checking whether the
// associated context has been canceled or not. Encapsulates all logic for
// waiting for cancelCheckInterval rows before actually checking for
// cancellation. The cancellation check has a significant time overhead, so
// it's not checked in every iteration.
type CancelChecker struct {
	// Reference to associated context to check.
	ctx context.Context

	// Number of times Check() has been called since last context cancellation
	// check.
	callsSinceLastCheck uint32

	interval uint32
}

// Reset resets this cancel checker with a fresh context. An interval of zero
// means DefaultInterval.
func (c *CancelChecker) Reset(ctx context.Context, interval int) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	*c = CancelChecker{ctx: ctx, interval: uint32(interval)}
}

// Check returns an error if the associated query has been canceled.
func (c *CancelChecker) Check() error {
	if c.ctx == nil {
		return nil
	}
	if c.callsSinceLastCheck%c.interval == 0 {
		select {
		case <-c.ctx.Done():
			// Once the context is canceled, we no longer increment
			// callsSinceLastCheck and will fall into this path on subsequent calls
			// to Check().
			return errors.Mark(errors.Wrap(c.ctx.Err(), "query execution canceled"), QueryCanceledError)
		default:
		}
	}

	// Increment. This may rollover when the 32-bit capacity is reached, but
	// that's all right.
	c.callsSinceLastCheck++
	return nil
}
