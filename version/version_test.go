package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	info := Info{CommitHash: "0123456789abcdef", Version: "1.2.0"}
	assert.Equal(t, "0123456", info.Short())
	assert.Equal(t, "ciconf/1.2.0 (0123456)", info.UserAgent())

	assert.Equal(t, "ciconf/dev (dev)", Info{CommitHash: "dev", Version: "dev"}.UserAgent())
}
