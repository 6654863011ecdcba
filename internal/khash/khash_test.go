package khash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashBytesIsDeterministic(t *testing.T) {
	data := []byte("kernel image bytes")
	s1 := HashBytes(data)
	s2 := HashBytes(data)
	require.Equal(t, s1, s2)
	require.Len(t, s1.String(), 64)
}

func TestHashMatchesHashBytes(t *testing.T) {
	data := []byte("module payload")
	streamed, err := Hash(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, HashBytes(data), streamed)
}

func TestHashBytesDiffersOnDifferentInput(t *testing.T) {
	require.NotEqual(t, HashBytes([]byte("a")), HashBytes([]byte("b")))
}
