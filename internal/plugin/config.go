package plugin

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Config is a task's configuration map.
type Config map[string]any

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	cp := make(Config, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// Kind is the expected type of a config value.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// ConfigSchema maps config key names to their expected kind.
type ConfigSchema map[string]Kind

// Clone returns a copy of the schema.
func (s ConfigSchema) Clone() ConfigSchema {
	if s == nil {
		return nil
	}
	cp := make(ConfigSchema, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// ConfigProblem describes one offending config key.
type ConfigProblem struct {
	Key    string
	Reason string
}

func (p ConfigProblem) String() string {
	return fmt.Sprintf("%s: %s", p.Key, p.Reason)
}

// CheckConfig validates cfg against the descriptor's schemas. Keys not named
// by either schema are allowed. Problems are sorted by key.
func CheckConfig(d Descriptor, cfg Config) []ConfigProblem {
	var problems []ConfigProblem
	for key, kind := range d.RequiredConfig {
		val, ok := cfg[key]
		if !ok || val == nil {
			problems = append(problems, ConfigProblem{Key: key, Reason: fmt.Sprintf("required %s value missing", kind)})
			continue
		}
		if !kind.Matches(val) {
			problems = append(problems, ConfigProblem{Key: key, Reason: fmt.Sprintf("expected %s, got %T", kind, val)})
		}
	}
	for key, kind := range d.OptionalConfig {
		val, ok := cfg[key]
		if !ok || val == nil {
			continue
		}
		if !kind.Matches(val) {
			problems = append(problems, ConfigProblem{Key: key, Reason: fmt.Sprintf("expected %s, got %T", kind, val)})
		}
	}
	sort.Slice(problems, func(i, j int) bool { return problems[i].Key < problems[j].Key })
	return problems
}

// Matches reports whether v is acceptable for the kind. Integral floats count
// as ints because JSON and YAML decoders produce float64 for numbers.
func (k Kind) Matches(v any) bool {
	rv := reflect.ValueOf(v)
	switch k {
	case KindString:
		return rv.Kind() == reflect.String
	case KindBool:
		return rv.Kind() == reflect.Bool
	case KindInt:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			return f == math.Trunc(f) && !math.IsInf(f, 0)
		}
		return false
	case KindFloat:
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return true
		}
		return false
	case KindList:
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	case KindMap:
		return rv.Kind() == reflect.Map
	default:
		return false
	}
}
