package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/teranos/ciconf/errors"
)

// ConfigFileName is searched for from the working directory upwards.
const ConfigFileName = "ciconf.toml"

// SystemConfigPath is read before the project file.
const SystemConfigPath = "/etc/ciconf/" + ConfigFileName

// EnvPrefix prefixes environment overrides:
// CICONF_INCLUDE_MAX_INCLUDES overrides include.max_includes.
const EnvPrefix = "CICONF"

var (
	mu     sync.Mutex
	cached *Config
)

// Load returns the process configuration, reading it on first use.
// Precedence (lowest to highest): defaults, system file, project file,
// environment.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	for _, path := range configFiles() {
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	cached = cfg
	return cached, nil
}

// LoadWithViper unmarshals and validates the settings of v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads a single TOML file over the defaults. The environment
// is not consulted.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}
	return cfg, nil
}

// Reset drops the configuration cached by Load.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}

func configFiles() []string {
	files := []string{SystemConfigPath}
	if project := findProjectConfig(); project != "" {
		files = append(files, project)
	}
	return files
}

// mergeFile merges the TOML file at path into v. A missing file is skipped.
func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("toml")
	if err := file.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	return errors.Wrapf(v.MergeConfigMap(file.AllSettings()), "failed to merge config file %s", path)
}

// findProjectConfig walks up from the working directory to the first
// ciconf.toml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
