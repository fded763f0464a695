// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package base_test

import (
	"testing"

	"github.com/cockroachdb/relcore/pkg/base"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

func TestDefaultEngineConfig(t *testing.T) {
	cfg := base.DefaultEngineConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, base.ByteSize(10<<20), cfg.BroadcastThreshold)
	require.Equal(t, "10 MiB", cfg.BroadcastThreshold.String())
	require.Equal(t, 3.0, cfg.ShuffleHashRatio)
	require.True(t, cfg.PreferSortMergeJoin)
	require.Equal(t, 4, cfg.ShufflePartitions)
	require.Equal(t, 0.5, cfg.UnknownSelectivity)
	require.Equal(t, 100, cfg.MaxIterations)
	require.False(t, cfg.Strict)
	require.True(t, cfg.Codegen)
	require.Equal(t, 255, cfg.CodegenMaxParams)
	require.Equal(t, base.ByteSize(1024), cfg.CodegenSplit)
	require.Equal(t, base.ByteSize(8000), cfg.HugeMethodWarning)
	require.Equal(t, 100, cfg.WholeStageMaxFields)
	require.Equal(t, base.ByteSize(64<<20), cfg.WorkMem)
	require.Equal(t, base.ByteSize(64<<10), cfg.PageSize)
	require.Equal(t, 1024, cfg.CancelCheckInterval)
	require.True(t, cfg.ReorderJoins)
	require.True(t, cfg.StarSchema)
}

func TestLoadEngineConfig(t *testing.T) {
	cfg, err := base.LoadEngineConfig([]byte(`
broadcast-threshold: 1MiB
shuffle-partitions: 8
prefer-sort-merge-join: false
work-mem: 65536
page-size: "4 KiB"
strict: true
`))
	require.NoError(t, err)
	require.Equal(t, base.ByteSize(1<<20), cfg.BroadcastThreshold)
	require.Equal(t, 8, cfg.ShufflePartitions)
	require.False(t, cfg.PreferSortMergeJoin)
	require.Equal(t, base.ByteSize(64<<10), cfg.WorkMem)
	require.Equal(t, base.ByteSize(4<<10), cfg.PageSize)
	require.True(t, cfg.Strict)
	// Absent settings keep their default.
	require.Equal(t, 3.0, cfg.ShuffleHashRatio)
	require.True(t, cfg.Codegen)

	cfg, err = base.LoadEngineConfig([]byte(`broadcast-threshold: -1`))
	require.NoError(t, err)
	require.Equal(t, base.ByteSize(-1), cfg.BroadcastThreshold)

	for _, tc := range []struct {
		doc string
		err string
	}{
		{doc: `broadcast-treshold: 1MiB`, err: "broadcast-treshold"},
		{doc: `work-mem: lots`, err: "invalid size"},
		{doc: `shuffle-partitions: 0`, err: "shuffle-partitions must be positive"},
		{doc: `unknown-selectivity: 2`, err: "unknown-selectivity"},
		{doc: `huge-method-limit: 100`, err: "below huge-method-warning"},
	} {
		_, err := base.LoadEngineConfig([]byte(tc.doc))
		require.ErrorContains(t, err, tc.err, tc.doc)
	}
}

func TestEngineConfigRoundTrip(t *testing.T) {
	cfg := base.DefaultEngineConfig()
	cfg.WorkMem = 3 << 20
	data, err := yaml.Marshal(&cfg)
	require.NoError(t, err)
	require.Contains(t, string(data), "work-mem: 3.0 MiB")

	loaded, err := base.LoadEngineConfig(data)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestEngineConfigFlags(t *testing.T) {
	cfg := base.DefaultEngineConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	require.Equal(t, "64 MiB", fs.Lookup("work-mem").DefValue)

	require.NoError(t, fs.Parse([]string{
		"--work-mem=1MiB", "--codegen=false", "--shuffle-partitions=2", "--broadcast-threshold=-1",
	}))
	require.Equal(t, base.ByteSize(1<<20), cfg.WorkMem)
	require.False(t, cfg.Codegen)
	require.Equal(t, 2, cfg.ShufflePartitions)
	require.Equal(t, base.ByteSize(-1), cfg.BroadcastThreshold)
}
