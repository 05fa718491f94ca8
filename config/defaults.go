package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Include resolution
	v.SetDefault("include.max_includes", DefaultMaxIncludes)
	v.SetDefault("include.max_mapper_includes", DefaultMaxMapperIncludes)
	v.SetDefault("include.max_nesting", DefaultMaxNesting)
	v.SetDefault("include.timeout_seconds", DefaultTimeoutSeconds)

	// Interpolation
	v.SetDefault("interpolation.enabled", true)
	v.SetDefault("interpolation.max_blocks", DefaultMaxBlocks)

	// Remote fragments
	v.SetDefault("remote.timeout_seconds", 10)
	v.SetDefault("remote.max_requests_per_minute", 600)
	v.SetDefault("remote.block_private_ip", true)
	v.SetDefault("remote.max_bytes", 1<<20) // 1 MiB

	// Template catalog
	v.SetDefault("templates.source", "")
	v.SetDefault("templates.dir", "templates")

	// Repository host
	v.SetDefault("repository.base_url", "")
	v.SetDefault("repository.component_host", "")

	// Logging
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 1)
}

// Default returns a Config holding only the defaults, without reading any
// file or environment variable.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always unmarshal; a failure here is a programming error
		panic(err)
	}
	return cfg
}
