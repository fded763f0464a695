// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cancelchecker

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// Ensure that the cancel checker only checks the context every interval
// calls and reports cancellation once observed.
func TestCancelChecker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var c CancelChecker
	c.Reset(ctx, 4)
	require.NoError(t, c.Check())
	cancel()
	// The next three calls fall between polls.
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Check())
	}
	err := c.Check()
	require.Error(t, err)
	require.True(t, errors.Is(err, QueryCanceledError))
	require.True(t, errors.Is(err, context.Canceled))
	require.Error(t, c.Check())
}
