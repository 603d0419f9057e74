package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesOrder(t *testing.T) {
	up, err := Files(Up)
	require.NoError(t, err)
	require.NotEmpty(t, up)
	assert.Equal(t, "000001_init.up.sql", up[0])

	down, err := Files(Down)
	require.NoError(t, err)
	require.Len(t, down, len(up))
	assert.Equal(t, "000001_init.down.sql", down[len(down)-1])
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("up")
	require.NoError(t, err)
	assert.Equal(t, Up, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
