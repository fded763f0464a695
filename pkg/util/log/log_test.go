// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestLogTagsAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	defer SetOutput(&buf)()

	var entries []Entry
	defer Intercept(func(e Entry) { entries = append(entries, e) })()

	ctx := WithLogTag(context.Background(), "rule", "MergeSelects")
	Warningf(ctx, "batch %s did not converge after %d iterations", redact.Safe("norm"), 100)

	require.Len(t, entries, 1)
	require.Equal(t, SeverityWarning, entries[0].Severity)
	require.Equal(t, "rule=MergeSelects", entries[0].Tags)
	require.Contains(t, buf.String(), "[rule=MergeSelects] batch norm did not converge after 100 iterations")
	require.Equal(t, byte('W'), buf.Bytes()[0])
}

func TestVEventf(t *testing.T) {
	var buf bytes.Buffer
	defer SetOutput(&buf)()

	VEventf(context.Background(), 2, "hidden")
	require.Empty(t, buf.String())

	defer SetVModule(2)()
	VEventf(context.Background(), 2, "shown %d", 1)
	require.Contains(t, buf.String(), "shown 1")
}

func TestEveryN(t *testing.T) {
	e := Every(time.Hour)
	require.True(t, e.ShouldLog())
	require.False(t, e.ShouldLog())
}
