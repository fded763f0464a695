// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package mon implements memory accounting for query execution. A
// BytesMonitor tracks the bytes reserved by its accounts against a limit and,
// optionally, against the budget of a parent monitor. Operators hold a
// BoundAccount and grow it before retaining memory; a failed Grow is the
// signal that the operator must release memory, typically by spilling.
package mon

import (
	"context"
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/dustin/go-humanize"
)

// ErrBudgetExceeded is the marker for allocations refused by a monitor.
// Callers test for it with errors.Is.
var ErrBudgetExceeded = errors.New("memory budget exceeded")

// BytesMonitor defines an object that can track and limit memory usage by
// other components.
type BytesMonitor struct {
	mu struct {
		sync.Mutex

		// curAllocated tracks the current amount of bytes allocated at this
		// monitor by its client components.
		curAllocated int64

		// maxAllocated tracks the high water mark of allocations.
		maxAllocated int64
	}

	name   redact.RedactableString
	parent *BytesMonitor

	// limit specifies a hard limit on the number of bytes a monitor allows to
	// be allocated. Allocations are also bounded by the parent, if any.
	limit int64

	// noteworthyUsageBytes is the size beyond which a new high water mark gets
	// reported in the logs.
	noteworthyUsageBytes int64
}

// NewMonitor creates a new monitor. A limit <= 0 means unlimited. The parent
// may be nil.
func NewMonitor(name redact.RedactableString, limit int64, parent *BytesMonitor) *BytesMonitor {
	if limit <= 0 {
		limit = math.MaxInt64
	}
	return &BytesMonitor{
		name:                 name,
		parent:               parent,
		limit:                limit,
		noteworthyUsageBytes: 64 << 20,
	}
}

// Name returns the name of the monitor.
func (mm *BytesMonitor) Name() redact.RedactableString { return mm.name }

// Limit returns the monitor's limit.
func (mm *BytesMonitor) Limit() int64 { return mm.limit }

// AllocBytes returns the current number of allocated bytes in this monitor.
func (mm *BytesMonitor) AllocBytes() int64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.mu.curAllocated
}

// MaximumBytes returns the maximum number of bytes that were allocated by
// this monitor at one time since it was created.
func (mm *BytesMonitor) MaximumBytes() int64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.mu.maxAllocated
}

// reserveBytes declares an allocation to this monitor. An error is returned
// if the allocation is denied.
func (mm *BytesMonitor) reserveBytes(ctx context.Context, x int64) error {
	mm.mu.Lock()
	if mm.mu.curAllocated > mm.limit-x {
		cur := mm.mu.curAllocated
		mm.mu.Unlock()
		return errors.WithHintf(
			errors.Wrapf(ErrBudgetExceeded, "%s: %s requested, %s currently allocated",
				mm.name, redact.Safe(humanize.IBytes(uint64(x))), redact.Safe(humanize.IBytes(uint64(cur)))),
			"the %s budget is %s", mm.name, humanize.IBytes(uint64(mm.limit)))
	}
	if mm.parent != nil {
		if err := mm.parent.reserveBytes(ctx, x); err != nil {
			mm.mu.Unlock()
			return err
		}
	}
	mm.mu.curAllocated += x
	if mm.mu.maxAllocated < mm.mu.curAllocated {
		prevMax := mm.mu.maxAllocated
		mm.mu.maxAllocated = mm.mu.curAllocated
		if prevMax/mm.noteworthyUsageBytes != mm.mu.maxAllocated/mm.noteworthyUsageBytes {
			log.VEventf(ctx, 1, "%s: bytes usage increases to %s", mm.name,
				redact.Safe(humanize.IBytes(uint64(mm.mu.maxAllocated))))
		}
	}
	mm.mu.Unlock()
	return nil
}

// releaseBytes releases bytes previously successfully registered via
// reserveBytes().
func (mm *BytesMonitor) releaseBytes(ctx context.Context, sz int64) {
	mm.mu.Lock()
	if mm.mu.curAllocated < sz {
		log.Errorf(ctx, "%s: no bytes to release, current %d, free %d", mm.name, mm.mu.curAllocated, sz)
		sz = mm.mu.curAllocated
	}
	mm.mu.curAllocated -= sz
	mm.mu.Unlock()
	if mm.parent != nil {
		mm.parent.releaseBytes(ctx, sz)
	}
}

// MakeBoundAccount creates a BoundAccount connected to the given monitor.
func (mm *BytesMonitor) MakeBoundAccount() BoundAccount {
	return BoundAccount{mon: mm}
}

// BoundAccount tracks the memory usage of a single client component against
// a monitor. It is not safe for concurrent use.
type BoundAccount struct {
	used int64
	mon  *BytesMonitor
}

// Used returns the number of bytes currently allocated through this account.
func (b *BoundAccount) Used() int64 { return b.used }

// Monitor returns the monitor this account is bound to.
func (b *BoundAccount) Monitor() *BytesMonitor { return b.mon }

// Grow is an accessor for reserving x bytes against the monitor.
func (b *BoundAccount) Grow(ctx context.Context, x int64) error {
	if b.mon == nil {
		b.used += x
		return nil
	}
	if err := b.mon.reserveBytes(ctx, x); err != nil {
		return err
	}
	b.used += x
	return nil
}

// Shrink releases part of the cumulated allocations by the specified size.
func (b *BoundAccount) Shrink(ctx context.Context, delta int64) {
	if b.used < delta {
		log.Errorf(ctx, "%s: no bytes in account to release, current %d, free %d",
			b.mon.Name(), b.used, delta)
		delta = b.used
	}
	b.used -= delta
	if b.mon != nil {
		b.mon.releaseBytes(ctx, delta)
	}
}

// Resize requests a size change for an object already registered in the
// account.
func (b *BoundAccount) Resize(ctx context.Context, oldSz, newSz int64) error {
	delta := newSz - oldSz
	switch {
	case delta > 0:
		return b.Grow(ctx, delta)
	case delta < 0:
		b.Shrink(ctx, -delta)
	}
	return nil
}

// Clear releases all the cumulated allocations of an account at once.
func (b *BoundAccount) Clear(ctx context.Context) {
	b.Shrink(ctx, b.used)
}

// Close releases all the cumulated allocations of an account at once.
func (b *BoundAccount) Close(ctx context.Context) {
	b.Clear(ctx)
}
