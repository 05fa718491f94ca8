package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance without system/project config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.Include.MaxIncludes)
	assert.Equal(t, 150, cfg.Include.MaxMapperIncludes)
	assert.Equal(t, 100, cfg.Include.MaxNesting)
	assert.Equal(t, 30, cfg.Include.TimeoutSeconds)
	assert.True(t, cfg.Interpolation.Enabled)
	assert.Equal(t, 10000, cfg.Interpolation.MaxBlocks)
	assert.True(t, cfg.Remote.BlockPrivateIP)
	assert.Equal(t, int64(1<<20), cfg.Remote.MaxBytes)
	assert.Equal(t, "templates", cfg.Templates.Dir)
	assert.Empty(t, cfg.Templates.Source)
	assert.Empty(t, cfg.Repository.BaseURL)
}

func TestDefaultMatchesSetDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultMaxIncludes, cfg.Include.MaxIncludes)
	assert.Equal(t, 1, cfg.Log.Verbosity)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `
[include]
max_includes = 10
timeout_seconds = 5

[interpolation]
enabled = false

[templates]
source = "git::https://example.com/ci-templates.git"
dir = "/var/cache/ci-templates"

[repository]
base_url = "https://git.example.com"
component_host = "git.example.com"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Include.MaxIncludes)
	assert.Equal(t, 5, cfg.Include.TimeoutSeconds)
	assert.False(t, cfg.Interpolation.Enabled)
	assert.Equal(t, "git::https://example.com/ci-templates.git", cfg.Templates.Source)
	assert.Equal(t, "https://git.example.com", cfg.Repository.BaseURL)
	assert.Equal(t, "git.example.com", cfg.Repository.ComponentHost)

	// Untouched keys keep defaults
	assert.Equal(t, 150, cfg.Include.MaxMapperIncludes)
	assert.Equal(t, 100, cfg.Include.MaxNesting)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("[include]\nmax_includes = 0\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include.max_includes must be > 0")
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config { return *Default() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "zero tree ceiling", mutate: func(c *Config) { c.Include.MaxIncludes = 0 }, wantErr: "include.max_includes"},
		{name: "negative mapper ceiling", mutate: func(c *Config) { c.Include.MaxMapperIncludes = -1 }, wantErr: "include.max_mapper_includes"},
		{name: "zero nesting", mutate: func(c *Config) { c.Include.MaxNesting = 0 }, wantErr: "include.max_nesting"},
		{name: "zero timeout", mutate: func(c *Config) { c.Include.TimeoutSeconds = 0 }, wantErr: "include.timeout_seconds"},
		{name: "zero max blocks", mutate: func(c *Config) { c.Interpolation.MaxBlocks = 0 }, wantErr: "interpolation.max_blocks"},
		{name: "unlimited remote rate is valid", mutate: func(c *Config) { c.Remote.MaxRequestsPerMinute = 0 }},
		{name: "negative remote rate", mutate: func(c *Config) { c.Remote.MaxRequestsPerMinute = -5 }, wantErr: "remote.max_requests_per_minute"},
		{name: "source without dir", mutate: func(c *Config) {
			c.Templates.Source = "https://example.com/t.zip"
			c.Templates.Dir = ""
		}, wantErr: "templates.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("CICONF_INCLUDE_MAX_INCLUDES", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Include.MaxIncludes)

	// Cached after the first load
	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}
