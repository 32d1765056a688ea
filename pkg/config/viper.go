package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. MNEMO_SEARCH_BACKEND
// for search.backend.
const EnvPrefix = "MNEMO"

// InitViper returns a viper instance layered, from lowest to highest, as:
//  1. NewDefaultConfig()
//  2. config.toml in the resolved .mnemo/ directory, when present
//  3. MNEMO_* environment variables
//  4. CLI flags, once bound with BindRegisteredFlags
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	defaults := NewDefaultConfig()
	v.SetDefault("version", defaults.Version)
	for _, key := range orderedKeys {
		v.SetDefault(key, configKeys[key].get(defaults))
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	path := filepath.Join(dir, configFile)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves every config key through v into a Config, validating
// values the same way "mnemo config set" does.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{Version: v.GetInt("version")}
	for _, key := range orderedKeys {
		value := v.GetString(key)
		if value == "" {
			continue
		}
		if err := configKeys[key].set(cfg, value); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
