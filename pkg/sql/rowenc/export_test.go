// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowenc

// SetLimitForTesting lowers the size limit of a buffer.
func (b *GrowableBuffer) SetLimitForTesting(limit int) { b.limit = limit }
