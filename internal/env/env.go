// Package env gathers the variables visible to the m2install.yaml template:
// the process environment, .env files and inline k=v pairs.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// optionalPrefix marks an env file that may be absent, e.g. "?local.env".
const optionalPrefix = "?"

// Vars maps variable names to values.
type Vars map[string]string

// FromOS returns the current process environment.
func FromOS() Vars {
	out := make(Vars)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			out[key] = value
		}
	}
	return out
}

// Merge combines sets; a key in a later set replaces the same key in an earlier one.
func Merge(sets ...Vars) Vars {
	out := make(Vars)
	for _, s := range sets {
		maps.Copy(out, s)
	}
	return out
}

// LoadEnvFile reads one dotenv file.
func LoadEnvFile(path string) (Vars, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	return Vars(vars), nil
}

// LoadEnvFiles reads files in order, resolving relative names against baseDir.
// Names starting with "?" are skipped when the file does not exist.
func LoadEnvFiles(baseDir string, files []string) (Vars, error) {
	result := make(Vars)
	for _, name := range files {
		name = strings.TrimSpace(name)
		optional := strings.HasPrefix(name, optionalPrefix)
		name = strings.TrimPrefix(name, optionalPrefix)
		if name == "" {
			continue
		}

		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}
		vars, err := LoadEnvFile(path)
		if optional && errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		maps.Copy(result, vars)
	}
	return result, nil
}

// ParseInlineVars parses "A=1,B=2". Keys and values are trimmed; empty items are ignored.
func ParseInlineVars(s string) (Vars, error) {
	out := make(Vars)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid inline var %q, expected key=value", item)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty key in inline var %q", item)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
