package config

import "github.com/teranos/ciconf/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Ceilings: zero would make every include fail, negative is meaningless
	if c.Include.MaxIncludes <= 0 {
		return errors.Newf("include.max_includes must be > 0, got %d", c.Include.MaxIncludes)
	}
	if c.Include.MaxMapperIncludes <= 0 {
		return errors.Newf("include.max_mapper_includes must be > 0, got %d", c.Include.MaxMapperIncludes)
	}
	if c.Include.MaxNesting <= 0 {
		return errors.Newf("include.max_nesting must be > 0, got %d", c.Include.MaxNesting)
	}
	if c.Include.TimeoutSeconds <= 0 {
		return errors.Newf("include.timeout_seconds must be > 0, got %d", c.Include.TimeoutSeconds)
	}

	if c.Interpolation.MaxBlocks <= 0 {
		return errors.Newf("interpolation.max_blocks must be > 0, got %d", c.Interpolation.MaxBlocks)
	}

	if c.Remote.TimeoutSeconds <= 0 {
		return errors.Newf("remote.timeout_seconds must be > 0, got %d", c.Remote.TimeoutSeconds)
	}
	// 0 = unlimited
	if c.Remote.MaxRequestsPerMinute < 0 {
		return errors.Newf("remote.max_requests_per_minute must be >= 0, got %d", c.Remote.MaxRequestsPerMinute)
	}
	if c.Remote.MaxBytes <= 0 {
		return errors.Newf("remote.max_bytes must be > 0, got %d", c.Remote.MaxBytes)
	}

	if c.Templates.Source != "" && c.Templates.Dir == "" {
		return errors.New("templates.dir cannot be empty when templates.source is set")
	}

	return nil
}
