package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix    = "DGAMG_"
	configEnvVar = "DGAMG_CONFIG"
)

// Loader merges defaults, an optional YAML file and environment variables,
// later sources overriding earlier ones
type Loader struct {
	k          *koanf.Koanf
	configPath string
	envPrefix  string
}

type LoaderOption func(*Loader)

// WithConfigFile loads path after the defaults. The file must exist.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) { l.configPath = path }
}

func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Defaults is the configuration used when nothing overrides a key
func Defaults() map[string]any {
	return map[string]any{
		"amg.num_presmooth":                    2,
		"amg.num_postsmooth":                   2,
		"amg.cycle_type":                       1,
		"amg.max_levels":                       20,
		"amg.max_nodes_for_base":               100,
		"amg.max_fill_before_base":             0.5,
		"amg.epsilon_truncation":               0.0,
		"amg.f_smoothing":                      false,
		"amg.min_nodes_on_one_processor":       100,
		"amg.preferred_nodes_on_one_processor": 1000,
		"amg.y_cycle_iterations":               0,
		"amg.y_cycle_reduce":                   0.1,
		"amg.y_cycle_absolute":                 0.0,
		"amg.coarsening":                       "classical",
		"amg.theta":                            0.25,
		"amg.smoother":                         "symmetric-gauss-seidel",
		"amg.damping":                          2.0 / 3.0,
		"amg.base_solver":                      "lu",
		"amg.base_tolerance":                   1e-12,

		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		"metrics.enabled":   false,
		"metrics.address":   ":9090",
		"metrics.path":      "/metrics",
		"metrics.namespace": "dgamg",

		"solver.method":         "cg",
		"solver.max_iterations": 100,
		"solver.reduction":      1e-8,
		"solver.absolute":       1e-14,
		"solver.damping":        1.0,
		"solver.processes":      1,
	}
}

// Load merges the sources, unmarshals and validates
func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	path := l.configPath
	if path == "" {
		path = os.Getenv(configEnvVar)
	}
	if path != "" {
		if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnv maps DGAMG_AMG_CYCLE_TYPE to amg.cycle_type: the first underscore
// after the prefix separates the section from the key
func (l *Loader) loadEnv() error {
	return l.k.Load(env.ProviderWithValue(l.envPrefix, ".", func(envKey, value string) (string, any) {
		key := strings.ToLower(strings.TrimPrefix(envKey, l.envPrefix))
		if key == strings.ToLower(strings.TrimPrefix(configEnvVar, EnvPrefix)) {
			return "", nil
		}
		section, rest, ok := strings.Cut(key, "_")
		if !ok {
			return "", nil
		}
		return section + "." + rest, value
	}), nil)
}

// Load reads the configuration with the default loader
func Load() (*Config, error) {
	return NewLoader().Load()
}
