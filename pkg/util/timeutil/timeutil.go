// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package timeutil contains the time helpers used to measure planning and
// execution phases.
package timeutil

import "time"

// Now returns the current local time with its monotonic clock reading.
func Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func Since(t time.Time) time.Duration { return Now().Sub(t) }

// StopWatch accumulates the wall time of the intervals between Start and
// Stop. The zero value is ready to use. It is not safe for concurrent use.
type StopWatch struct {
	started time.Time
	running bool
	elapsed time.Duration
}

// Start begins an interval. Starting a running StopWatch is a no-op.
func (w *StopWatch) Start() {
	if !w.running {
		w.started = Now()
		w.running = true
	}
}

// Stop ends the current interval and returns its duration.
func (w *StopWatch) Stop() time.Duration {
	if !w.running {
		return 0
	}
	d := Since(w.started)
	w.elapsed += d
	w.running = false
	return d
}

// Elapsed returns the total time of all completed intervals.
func (w *StopWatch) Elapsed() time.Duration { return w.elapsed }
