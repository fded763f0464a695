// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package yamlutil decodes untyped YAML documents.
package yamlutil

import (
	yaml "gopkg.in/yaml.v2"
)

// Value is a YAML value of any shape, decoded to the Go types yaml.v2 uses
// for interface{}: nil, bool, int, float64, string, []interface{} and
// map[interface{}]interface{}.
//
// Unlike a plain interface{}, the only plain scalars decoded as booleans
// are true and false. The other YAML 1.1 boolean words (y, n, yes, no, on,
// off) stay strings, and mapping keys are always strings, so a column named
// y or a join condition under the key on keep their text.
type Value struct {
	V interface{}
}

var _ yaml.Unmarshaler = (*Value)(nil)

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch raw.(type) {
	case []interface{}:
		var l []Value
		if err := unmarshal(&l); err != nil {
			return err
		}
		v.V = Values(l)

	case map[interface{}]interface{}:
		var m map[string]Value
		if err := unmarshal(&m); err != nil {
			return err
		}
		res := make(map[interface{}]interface{}, len(m))
		for k, e := range m {
			res[k] = e.V
		}
		v.V = res

	case bool:
		// Decoding a scalar into a string yields its text.
		var s string
		if err := unmarshal(&s); err != nil {
			return err
		}
		if isBoolLiteral(s) {
			v.V = raw
		} else {
			v.V = s
		}

	default:
		v.V = raw
	}
	return nil
}

func isBoolLiteral(s string) bool {
	switch s {
	case "true", "True", "TRUE", "false", "False", "FALSE":
		return true
	}
	return false
}

// Unmarshal decodes a YAML document into a Value and returns its contents.
func Unmarshal(data []byte) (interface{}, error) {
	var v Value
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v.V, nil
}

// Values returns the contents of a list of values.
func Values(l []Value) []interface{} {
	res := make([]interface{}, len(l))
	for i := range l {
		res[i] = l[i].V
	}
	return res
}
