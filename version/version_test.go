package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	assert.True(t, strings.HasPrefix(Version, TLCoreSemVer))
	assert.EqualValues(t, 4, ClientVersion.Uint64())
}
