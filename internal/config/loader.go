package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config struct. A .env file next to the config is
// loaded first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("config: reading: %w", err)}
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Path = abs
	return cfg, nil
}

// Parse expands environment variables in raw and decodes it. Unknown keys
// are rejected and a missing version defaults to CurrentVersion.
func Parse(raw []byte) (*Config, error) {
	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	return &cfg, nil
}

// dotenvKeys remembers which variables came from a .env file so a reload can
// refresh them while values from the real environment keep precedence.
var (
	dotenvMu   sync.Mutex
	dotenvKeys = map[string]struct{}{}
)

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}

	dotenvMu.Lock()
	defer dotenvMu.Unlock()
	for k, v := range vals {
		if _, fromFile := dotenvKeys[k]; !fromFile {
			if _, set := os.LookupEnv(k); set {
				continue
			}
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("config: setting %s from %s: %w", k, path, err)
		}
		dotenvKeys[k] = struct{}{}
	}
	return nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables (no default, no env value).
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil
		defaultVal := ""
		if hasDefault {
			defaultVal = string(subs[2])
		}

		value, ok := os.LookupEnv(name)
		if ok {
			return []byte(value)
		}

		if hasDefault {
			return []byte(defaultVal)
		}

		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(errs...)
}
