// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package mon

import "context"

// PageAllocator hands out fixed memory pages. It is the handle through which
// hash tables and sorters obtain memory; a failure to allocate is reported
// with an error marked ErrBudgetExceeded.
type PageAllocator interface {
	TryAllocatePage(ctx context.Context, size int64) ([]byte, error)
	ReleasePage(ctx context.Context, page []byte)
}

var _ PageAllocator = (*BoundAccount)(nil)

// TryAllocatePage reserves size bytes and returns a zeroed page of that size.
func (b *BoundAccount) TryAllocatePage(ctx context.Context, size int64) ([]byte, error) {
	if err := b.Grow(ctx, size); err != nil {
		return nil, err
	}
	return make([]byte, size), nil
}

// ReleasePage returns the page's bytes to the account's monitor.
func (b *BoundAccount) ReleasePage(ctx context.Context, page []byte) {
	b.Shrink(ctx, int64(cap(page)))
}
