package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// numericPattern accepts decimal integers and floats with an optional exponent.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Value is a post-install setting value after numeric coercion.
// Numeric input is applied as an integer; anything else is applied verbatim.
type Value struct {
	raw     string
	numeric bool
	n       int64
}

// Coerce classifies raw. Numeric strings are truncated toward zero ("1.7" -> 1).
func Coerce(raw string) Value {
	s := strings.TrimSpace(raw)
	if !numericPattern.MatchString(s) {
		return Value{raw: raw}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Value{raw: raw, numeric: true, n: n}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{raw: raw}
	}
	f = math.Trunc(f)
	switch {
	case f >= math.MaxInt64:
		return Value{raw: raw, numeric: true, n: math.MaxInt64}
	case f <= math.MinInt64:
		return Value{raw: raw, numeric: true, n: math.MinInt64}
	}
	return Value{raw: raw, numeric: true, n: int64(f)}
}

// IsInt reports whether the value is applied as an integer.
func (v Value) IsInt() bool { return v.numeric }

// Int returns the integer form; zero for string values.
func (v Value) Int() int64 { return v.n }

// Raw returns the value as it was configured.
func (v Value) Raw() string { return v.raw }

// String returns the value as passed to the configuration setter.
func (v Value) String() string {
	if v.numeric {
		return strconv.FormatInt(v.n, 10)
	}
	return v.raw
}

// Setting is a single post-install configuration entry.
type Setting struct {
	Path  string
	Value Value
}

// NewSetting builds a Setting, coercing raw.
func NewSetting(path, raw string) Setting {
	return Setting{Path: path, Value: Coerce(raw)}
}

// Settings is an ordered list of post-install configuration entries.
// In YAML it is a mapping of config path to scalar value; mapping order is kept.
type Settings []Setting

// UnmarshalYAML decodes a mapping node preserving key order.
func (s *Settings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*s = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: configurations must be a mapping of config path to value", node.Line)
	}

	out := make(Settings, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		path := strings.TrimSpace(key.Value)
		if path == "" {
			return fmt.Errorf("line %d: empty configuration path", key.Line)
		}
		if _, dup := seen[path]; dup {
			return fmt.Errorf("line %d: duplicate configuration path %q", key.Line, path)
		}
		seen[path] = struct{}{}

		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", val.Line, path)
		}
		raw := val.Value
		if val.Tag == "!!null" {
			raw = ""
		}
		out = append(out, NewSetting(path, raw))
	}
	*s = out
	return nil
}

// MarshalYAML encodes the settings as an ordered mapping.
func (s Settings) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, setting := range s {
		val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: setting.Value.Raw()}
		if setting.Value.IsInt() {
			val.Tag = "!!int"
			val.Value = setting.Value.String()
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: setting.Path},
			val,
		)
	}
	return node, nil
}
