// Package version holds build information set through ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		Version:    Version,
		GoVersion:  runtime.Version(),
	}
}

// Short returns the first seven characters of the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// UserAgent identifies outbound fragment fetches, e.g.
// "ciconf/1.2.0 (abc1234)".
func (i Info) UserAgent() string {
	return fmt.Sprintf("ciconf/%s (%s)", i.Version, i.Short())
}
