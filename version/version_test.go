package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo_String(t *testing.T) {
	dev := Info{Version: "dev", CommitHash: "abcdef123456", BuildTime: "now"}
	assert.Equal(t, "strata dev (commit abcdef1, built now)", dev.String())

	tagged := Info{Version: "v1.2.0", CommitHash: "abc", BuildTime: "now"}
	assert.Equal(t, "strata v1.2.0 (commit abc, built now)", tagged.String())

	_, ok := dev.Semver()
	assert.False(t, ok)
}
