package config

// Config represents the resolver configuration
type Config struct {
	Include       IncludeConfig       `mapstructure:"include"`
	Interpolation InterpolationConfig `mapstructure:"interpolation"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Templates     TemplatesConfig     `mapstructure:"templates"`
	Repository    RepositoryConfig    `mapstructure:"repository"`
	Log           LogConfig           `mapstructure:"log"`
}

// IncludeConfig bounds a single resolution tree
type IncludeConfig struct {
	MaxIncludes       int `mapstructure:"max_includes"`        // fragments across the whole tree (default: 150)
	MaxMapperIncludes int `mapstructure:"max_mapper_includes"` // entries in one include: key (default: 150)
	MaxNesting        int `mapstructure:"max_nesting"`         // recursion depth (default: 100)
	TimeoutSeconds    int `mapstructure:"timeout_seconds"`     // shared deadline (default: 30)
}

// InterpolationConfig configures $[[ inputs.x ]] interpolation
type InterpolationConfig struct {
	Enabled   bool `mapstructure:"enabled"`    // feature toggle (default: true)
	MaxBlocks int  `mapstructure:"max_blocks"` // blocks per fragment (default: 10000)
}

// RemoteConfig configures the remote fragment backend
type RemoteConfig struct {
	TimeoutSeconds       int   `mapstructure:"timeout_seconds"`         // per request (default: 10)
	MaxRequestsPerMinute int   `mapstructure:"max_requests_per_minute"` // outbound rate (default: 600)
	BlockPrivateIP       bool  `mapstructure:"block_private_ip"`        // SSRF protection (default: true)
	MaxBytes             int64 `mapstructure:"max_bytes"`               // body size cap (default: 1 MiB)
}

// TemplatesConfig configures the named-template catalog
type TemplatesConfig struct {
	Source string `mapstructure:"source"` // go-getter source synced into Dir (empty = no sync)
	Dir    string `mapstructure:"dir"`    // local catalog directory (default: "templates")
}

// RepositoryConfig describes the repository host fragments are read from
type RepositoryConfig struct {
	BaseURL       string `mapstructure:"base_url"`       // web URL for audit blob/raw links (empty = no links)
	ComponentHost string `mapstructure:"component_host"` // only accepted component host (empty = any)
}

// LogConfig configures logging output
type LogConfig struct {
	JSON      bool `mapstructure:"json"`
	Verbosity int  `mapstructure:"verbosity"` // 0 quiet, 1 info, 2 debug, 3 trace
}

// Default ceilings. DefaultMaxIncludes matches the tree-wide limit observed in
// production pipelines.
const (
	DefaultMaxIncludes       = 150
	DefaultMaxMapperIncludes = 150
	DefaultMaxNesting        = 100
	DefaultTimeoutSeconds    = 30
	DefaultMaxBlocks         = 10000
)
