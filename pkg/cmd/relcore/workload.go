// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"os"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/base"
	"github.com/cockroachdb/relcore/pkg/sql/opt/optbuilder"
	"github.com/cockroachdb/relcore/pkg/sql/opt/testutils/testcat"
	"github.com/cockroachdb/relcore/pkg/util/yamlutil"
	"github.com/spf13/pflag"
	yaml "gopkg.in/yaml.v2"
)

// workload is the YAML file read by every command:
//
//	config: {work-mem: 1MiB, shuffle-partitions: 8}
//	tables:
//	- name: t
//	  columns: [{name: a, type: int}, {name: b, type: string}]
//	  partitions: [[[1, x], [2, y]], [[3, z]]]
//	analyze: [t]
//	query:
//	  filter: {input: {scan: t}, cond: [">", a, 1]}
//
// Tables listed under analyze have their statistics computed before the
// query is planned.
type workload struct {
	Config  yaml.MapSlice      `yaml:"config"`
	Tables  []testcat.TableDef `yaml:"tables"`
	Analyze []string           `yaml:"analyze"`
	Query   yamlutil.Value     `yaml:"query"`
}

func loadWorkload(path string) (*workload, error) {
	if path == "" {
		return nil, errors.New("no workload file given, use --file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading workload %s", path)
	}
	var w workload
	if err := yaml.UnmarshalStrict(data, &w); err != nil {
		return nil, errors.Wrapf(err, "parsing workload %s", path)
	}
	if len(w.Tables) == 0 {
		return nil, errors.Newf("workload %s declares no tables", path)
	}
	return &w, nil
}

func (w *workload) catalog() (*testcat.Catalog, error) {
	catalog := testcat.New()
	if err := catalog.AddTableDefs(w.Tables); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (w *workload) query() (optbuilder.RelNode, error) {
	if w.Query.V == nil {
		return nil, errors.New("workload has no query")
	}
	return optbuilder.DecodeRel(w.Query.V)
}

// engineConfig layers the settings: defaults, then the config file, then the
// config section of the workload, then the flags set on the command line.
func (w *workload) engineConfig(
	configFile string, flagCfg base.EngineConfig, fs *pflag.FlagSet,
) (base.EngineConfig, error) {
	cfg := base.DefaultEngineConfig()
	if configFile != "" {
		var err error
		if cfg, err = base.LoadEngineConfigFile(configFile); err != nil {
			return base.EngineConfig{}, err
		}
	}
	if len(w.Config) > 0 {
		data, err := yaml.Marshal(w.Config)
		if err != nil {
			return base.EngineConfig{}, errors.Wrap(err, "workload config")
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return base.EngineConfig{}, errors.Wrap(err, "workload config")
		}
	}
	overrideChanged(&cfg, flagCfg, fs)
	if err := cfg.Validate(); err != nil {
		return base.EngineConfig{}, err
	}
	return cfg, nil
}

// overrideChanged copies into dst the settings of src whose flag was set.
// Flags are named after the YAML keys of the settings.
func overrideChanged(dst *base.EngineConfig, src base.EngineConfig, fs *pflag.FlagSet) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src)
	for i := 0; i < dv.NumField(); i++ {
		name, _, _ := strings.Cut(dv.Type().Field(i).Tag.Get("yaml"), ",")
		if name != "" && fs.Changed(name) {
			dv.Field(i).Set(sv.Field(i))
		}
	}
}
