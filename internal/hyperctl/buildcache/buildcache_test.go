package buildcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMissOnEmptyCache(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get("nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put("sha256:abc", "valid"))

	val, ok, err := c.Get("sha256:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "valid", val)
}

func TestDeleteRemovesKey(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put("k", "v"))
	require.NoError(t, c.Delete("k"))

	_, ok, err := c.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCountReflectsStoredKeys(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	n, err := c.Count()
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, c.Put("a", "1"))
	require.NoError(t, c.Put("b", "2"))

	n, err = c.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
