package paramconfig

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/go-cachesim/cachesim/store"
)

// Option configures a CommonParams load.
type Option func(*loadConfig)

type loadConfig struct {
	yamlPath  string
	envPrefix string
}

// WithYAMLFile loads store.CommonParams fields from a YAML file. Fields
// not present keep their zero value (or whatever an earlier option set).
func WithYAMLFile(path string) Option {
	return func(c *loadConfig) { c.yamlPath = path }
}

// WithEnvPrefix loads store.CommonParams fields from environment
// variables with the given prefix, e.g. CACHESIM_CAPACITY_BYTES.
func WithEnvPrefix(prefix string) Option {
	return func(c *loadConfig) { c.envPrefix = prefix }
}

// commonParamsSchema mirrors store.CommonParams with koanf struct tags;
// kept separate so store.CommonParams itself stays free of config-library
// tags.
type commonParamsSchema struct {
	CapacityBytes       uint64 `koanf:"capacity_bytes"`
	DefaultTTL          int64  `koanf:"default_ttl"`
	ConsiderObjMetadata bool   `koanf:"consider_obj_metadata"`
}

// LoadCommonParams builds a store.CommonParams from the configured
// sources (YAML file and/or environment), layered in that order so env
// vars win over file values. This is a convenience for the external
// driver; cachecore.New itself never touches disk or the environment.
func LoadCommonParams(opts ...Option) (store.CommonParams, error) {
	cfg := &loadConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	k := koanf.New(".")

	if cfg.yamlPath != "" {
		if err := k.Load(file.Provider(cfg.yamlPath), yaml.Parser()); err != nil {
			return store.CommonParams{}, fmt.Errorf("paramconfig: load yaml %q: %w", cfg.yamlPath, err)
		}
	}

	if cfg.envPrefix != "" {
		provider := env.Provider(cfg.envPrefix, ".", func(s string) string {
			return strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, cfg.envPrefix), "_"))
		})
		if err := k.Load(provider, nil); err != nil {
			return store.CommonParams{}, fmt.Errorf("paramconfig: load env prefix %q: %w", cfg.envPrefix, err)
		}
	}

	var schema commonParamsSchema
	if err := k.Unmarshal("", &schema); err != nil {
		return store.CommonParams{}, fmt.Errorf("paramconfig: unmarshal: %w", err)
	}

	return store.CommonParams{
		CapacityBytes:       schema.CapacityBytes,
		DefaultTTL:          schema.DefaultTTL,
		ConsiderObjMetadata: schema.ConsiderObjMetadata,
	}, nil
}
