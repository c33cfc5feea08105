package config

// loader.go - layered configuration loading.
//
// Precedence order (highest wins):
//   1. CLI flags  (passed in by cmd/root.go via WithOverrides)
//   2. Environment variables  (HTTPLINK_SECTION_KEY)
//   3. Config file  (YAML, --config)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	hlerr "httplink/internal/errors"
)

// Loader merges configuration sources into a Config.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the YAML configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides sets the highest-priority values, keyed by dotted
// path ("tls.ca").
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

// NewLoader creates a loader.  Nothing is read until Load.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every source in precedence order, unmarshals the result
// and expands the tunnel spec.  The returned Config is not validated.
func (l *Loader) Load() (*Config, error) {
	if err := l.LoadMap(defaultValues()); err != nil {
		return nil, err
	}
	if l.filePath != "" {
		if err := l.LoadFile(l.filePath); err != nil {
			return nil, err
		}
	}
	if err := l.LoadEnv(); err != nil {
		return nil, err
	}
	if len(l.overrides) > 0 {
		if err := l.LoadMap(l.overrides); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := l.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Tunnel.Spec != "" {
		user, host, port, err := ParseTunnelSpec(cfg.Tunnel.Spec)
		if err != nil {
			return nil, &hlerr.ConfigError{
				Field:   "tunnel",
				Value:   cfg.Tunnel.Spec,
				Message: err.Error(),
				Hint:    "use -T [user@]host[:port]",
			}
		}
		cfg.Tunnel.User, cfg.Tunnel.Host, cfg.Tunnel.Port = user, host, port
	}
	return cfg, nil
}

// LoadFile merges a YAML file.
func (l *Loader) LoadFile(path string) error {
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges environment variables.  HTTPLINK_TLS_CA becomes the
// key tls.ca, so keys never contain underscores.
func (l *Loader) LoadEnv() error {
	transform := func(s string) string {
		s = strings.TrimPrefix(s, l.envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadMap merges a map keyed by dotted paths.
func (l *Loader) LoadMap(values map[string]any) error {
	if err := l.k.Load(mapProvider(maps.Unflatten(values, ".")), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Get returns the merged value at key.
func (l *Loader) Get(key string) any { return l.k.Get(key) }

// ── map provider ─────────────────────────────────────────────────────

var errReadBytes = errors.New("config: map provider has no byte form, use Read")

// mapProvider feeds an in-memory map to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) { return nil, errReadBytes }

func (m mapProvider) Read() (map[string]any, error) { return m, nil }
