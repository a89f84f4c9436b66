package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultimate-research/arcfs/internal/hash40"
)

func TestCacheGetMiss(t *testing.T) {
	c := New(4)
	_, ok := c.Get(hash40.New("nope"))
	require.False(t, ok)
}

func TestCacheAddGet(t *testing.T) {
	c := New(4)
	h := hash40.New("x")
	c.Add(h, []byte("payload"))

	got, ok := c.Get(h)
	require.True(t, ok)
	require.Equal(t, "payload", string(got))
}

func TestCacheDefaultCapacity(t *testing.T) {
	c := New(0)
	require.NotNil(t, c)
}
