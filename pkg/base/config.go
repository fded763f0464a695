// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package base

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/util/humanizeutil"
	"github.com/spf13/pflag"
	yaml "gopkg.in/yaml.v2"
)

// ByteSize is a size in bytes. In YAML it is either an integer or a string
// with a unit recognized by humanize, such as "10MiB".
type ByteSize int64

// String formats the size with IEC units.
func (b ByteSize) String() string {
	return humanizeutil.IBytes(int64(b))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	n, err := humanizeutil.ParseBytes(s)
	if err != nil {
		return errors.Wrapf(err, "invalid size %q", s)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler. Sizes that humanize formats
// exactly are written with a unit.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	s := b.String()
	if n, err := humanizeutil.ParseBytes(s); err == nil && n == int64(b) {
		return s, nil
	}
	return int64(b), nil
}

// EngineConfig holds the settings of a query engine.
type EngineConfig struct {
	// Physical planning.
	BroadcastThreshold  ByteSize `yaml:"broadcast-threshold"`
	ShuffleHashRatio    float64  `yaml:"shuffle-hash-ratio"`
	PreferSortMergeJoin bool     `yaml:"prefer-sort-merge-join"`
	ShufflePartitions   int      `yaml:"shuffle-partitions"`
	UnknownSelectivity  float64  `yaml:"unknown-selectivity"`

	// Optimization.
	MaxIterations int  `yaml:"max-iterations"`
	Strict        bool `yaml:"strict"`
	ReorderJoins  bool `yaml:"reorder-joins"`
	StarSchema    bool `yaml:"star-schema"`

	// Code generation.
	Codegen             bool     `yaml:"codegen"`
	CodegenMaxParams    int      `yaml:"codegen-max-params"`
	CodegenSplit        ByteSize `yaml:"codegen-split-threshold"`
	HugeMethodWarning   ByteSize `yaml:"huge-method-warning"`
	HugeMethodLimit     ByteSize `yaml:"huge-method-limit"`
	WholeStageMaxFields int      `yaml:"whole-stage-max-fields"`
	CodeCacheCapacity   int      `yaml:"code-cache-capacity"`

	// Execution.
	WorkMem             ByteSize `yaml:"work-mem"`
	MemoryLimit         ByteSize `yaml:"memory-limit"`
	PageSize            ByteSize `yaml:"page-size"`
	CancelCheckInterval int      `yaml:"cancel-check-interval"`
	MaxSpillWriters     int      `yaml:"max-spill-writers"`
	// TempDir is the directory holding spill files. If empty, a directory
	// under the system temporary directory is used.
	TempDir string `yaml:"temp-dir"`

	PlanCacheCapacity int `yaml:"plan-cache-capacity"`
}

// DefaultEngineConfig returns the default engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BroadcastThreshold:  DefaultBroadcastThreshold,
		ShuffleHashRatio:    DefaultShuffleHashRatio,
		PreferSortMergeJoin: true,
		ShufflePartitions:   DefaultShufflePartitions,
		UnknownSelectivity:  DefaultUnknownSelectivity,

		MaxIterations: DefaultMaxIterations,
		ReorderJoins:  true,
		StarSchema:    true,

		Codegen:             true,
		CodegenMaxParams:    255,
		CodegenSplit:        1024,
		HugeMethodWarning:   8000,
		HugeMethodLimit:     65535,
		WholeStageMaxFields: 100,
		CodeCacheCapacity:   100,

		WorkMem:             DefaultWorkMem,
		PageSize:            DefaultPageSize,
		CancelCheckInterval: DefaultCancelCheckInterval,
		MaxSpillWriters:     DefaultMaxSpillWriters,

		PlanCacheCapacity: DefaultPlanCacheCapacity,
	}
}

// LoadEngineConfig reads settings from YAML. Settings absent from the
// document keep their default value; unknown settings are an error.
func LoadEngineConfig(data []byte) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return EngineConfig{}, errors.Wrap(err, "parsing engine config")
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// LoadEngineConfigFile reads settings from a YAML file.
func LoadEngineConfigFile(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, errors.Wrapf(err, "reading engine config %s", path)
	}
	return LoadEngineConfig(data)
}

// Validate checks that the settings are usable.
func (cfg *EngineConfig) Validate() error {
	switch {
	case cfg.ShuffleHashRatio < 1:
		return errors.Newf("shuffle-hash-ratio must be at least 1, got %g", cfg.ShuffleHashRatio)
	case cfg.ShufflePartitions < 1:
		return errors.Newf("shuffle-partitions must be positive, got %d", cfg.ShufflePartitions)
	case cfg.UnknownSelectivity <= 0 || cfg.UnknownSelectivity > 1:
		return errors.Newf("unknown-selectivity must be in (0, 1], got %g", cfg.UnknownSelectivity)
	case cfg.MaxIterations < 1:
		return errors.Newf("max-iterations must be positive, got %d", cfg.MaxIterations)
	case cfg.CodegenMaxParams < 1:
		return errors.Newf("codegen-max-params must be positive, got %d", cfg.CodegenMaxParams)
	case cfg.HugeMethodLimit < cfg.HugeMethodWarning:
		return errors.Newf("huge-method-limit %s is below huge-method-warning %s",
			cfg.HugeMethodLimit, cfg.HugeMethodWarning)
	case cfg.WorkMem <= 0:
		return errors.Newf("work-mem must be positive, got %s", cfg.WorkMem)
	case cfg.MemoryLimit < 0:
		return errors.Newf("memory-limit must not be negative, got %s", cfg.MemoryLimit)
	case cfg.PageSize < 1<<10:
		return errors.Newf("page-size must be at least 1KiB, got %s", cfg.PageSize)
	case cfg.CancelCheckInterval < 1:
		return errors.Newf("cancel-check-interval must be positive, got %d", cfg.CancelCheckInterval)
	case cfg.MaxSpillWriters < 1:
		return errors.Newf("max-spill-writers must be positive, got %d", cfg.MaxSpillWriters)
	}
	return nil
}

// AddFlags binds the settings to command-line flags. The current values are
// the flag defaults.
func (cfg *EngineConfig) AddFlags(fs *pflag.FlagSet) {
	bytesVar := func(p *ByteSize, name, usage string) {
		fs.Var(humanizeutil.NewBytesValue((*int64)(p)), name, usage)
	}
	bytesVar(&cfg.BroadcastThreshold, "broadcast-threshold",
		"estimated size under which a join input is broadcast; negative disables broadcasting")
	fs.Float64Var(&cfg.ShuffleHashRatio, "shuffle-hash-ratio", cfg.ShuffleHashRatio,
		"how many times smaller the build side of a shuffle hash join must be")
	fs.BoolVar(&cfg.PreferSortMergeJoin, "prefer-sort-merge-join", cfg.PreferSortMergeJoin,
		"plan sort-merge joins rather than shuffle hash joins on orderable keys")
	fs.IntVar(&cfg.ShufflePartitions, "shuffle-partitions", cfg.ShufflePartitions,
		"number of partitions produced by hash exchanges")
	fs.Float64Var(&cfg.UnknownSelectivity, "unknown-selectivity", cfg.UnknownSelectivity,
		"selectivity of predicates that cannot be estimated")

	fs.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations,
		"maximum passes of a fixed-point rule batch")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "fail when a rule batch does not converge")
	fs.BoolVar(&cfg.ReorderJoins, "reorder-joins", cfg.ReorderJoins, "reorder inner joins by cost")
	fs.BoolVar(&cfg.StarSchema, "star-schema", cfg.StarSchema, "detect star schemas when reordering joins")

	fs.BoolVar(&cfg.Codegen, "codegen", cfg.Codegen, "compile whole-stage pipelines")
	fs.IntVar(&cfg.CodegenMaxParams, "codegen-max-params", cfg.CodegenMaxParams,
		"maximum parameters of a generated sub-function")
	bytesVar(&cfg.CodegenSplit, "codegen-split-threshold",
		"generated statement size beyond which expressions are split into sub-functions")
	bytesVar(&cfg.HugeMethodWarning, "huge-method-warning", "generated method size that is logged")
	bytesVar(&cfg.HugeMethodLimit, "huge-method-limit", "generated method size that is not compiled")
	fs.IntVar(&cfg.WholeStageMaxFields, "whole-stage-max-fields", cfg.WholeStageMaxFields,
		"maximum columns of a row flowing through a generated pipeline")

	bytesVar(&cfg.WorkMem, "work-mem", "memory of an operator before it spills to disk")
	bytesVar(&cfg.MemoryLimit, "memory-limit", "memory of the engine; zero means unlimited")
	bytesVar(&cfg.PageSize, "page-size", "size of the pages of hash maps and sorters")
	fs.IntVar(&cfg.CancelCheckInterval, "cancel-check-interval", cfg.CancelCheckInterval,
		"rows processed between two cancellation checks")
	fs.IntVar(&cfg.MaxSpillWriters, "max-spill-writers", cfg.MaxSpillWriters,
		"operators that may write spill files concurrently")
	fs.StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "directory holding spill files")
}
