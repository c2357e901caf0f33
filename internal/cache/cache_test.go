package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batch struct {
	Names []string `json:"names"`
}

func TestKey_Stable(t *testing.T) {
	a := Key("/tmp/a.xlsx", "Sheet1")
	assert.Equal(t, a, Key("/tmp/a.xlsx", "Sheet1"))
	assert.NotEqual(t, a, Key("/tmp/a.xlsxSheet1"))
	assert.NotContains(t, a, "/")
}

func TestMemory(t *testing.T) {
	c := NewMemory[batch](time.Minute, 0)

	_, ok := c.Get("k")
	assert.False(t, ok)

	require.NoError(t, c.Set("k", batch{Names: []string{"A0015"}}, 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"A0015"}, got.Names)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)

	require.NoError(t, c.Set("a", batch{}, 0))
	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestMemory_Expiry(t *testing.T) {
	c := NewMemory[int](time.Minute, 0)
	require.NoError(t, c.Set("k", 1, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := NewDisk[batch](dir, time.Minute)

	require.NoError(t, c.Set("k", batch{Names: []string{"B0002"}}, 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"B0002"}, got.Names)

	// Corrupt entries are misses
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cache"), []byte("{"), 0o644))
	_, ok = c.Get("bad")
	assert.False(t, ok)

	require.NoError(t, c.Delete("k"))
	require.NoError(t, c.Delete("k"), "deleting a missing key is not an error")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestDisk_Expired(t *testing.T) {
	c := NewDisk[int](t.TempDir(), time.Minute)
	require.NoError(t, c.Set("k", 7, time.Nanosecond))
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLayered_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	first := NewLayered[batch](time.Minute, 0, dir, time.Hour)
	require.NoError(t, first.Set("k", batch{Names: []string{"x"}}, 0))

	// A fresh process only sees the disk layer
	second := NewLayered[batch](time.Minute, 0, dir, time.Hour)
	got, ok := second.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, got.Names)

	_, ok = second.memory.Get("k")
	assert.True(t, ok)

	require.NoError(t, second.Clear())
	_, ok = second.Get("k")
	assert.False(t, ok)
}
