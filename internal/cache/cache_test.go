package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyDiffersForDifferingSBIL(t *testing.T) {
	k1 := NewKey([]byte{1, 2, 3}, "v1")
	k2 := NewKey([]byte{1, 2, 4}, "v1")
	assert.NotEqual(t, k1, k2)
}

func TestKeyDiffersForDifferingVersion(t *testing.T) {
	k1 := NewKey([]byte{1, 2, 3}, "v1")
	k2 := NewKey([]byte{1, 2, 3}, "v2")
	assert.NotEqual(t, k1, k2)
}

func TestPutGetMemoryHit(t *testing.T) {
	c := New(t.TempDir())
	k := NewKey([]byte("class A"), "v1")
	require.NoError(t, c.Put(k, "move r0 0"))

	text, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, "move r0 0", text)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(t.TempDir())
	_, ok := c.Get(NewKey([]byte("nothing"), "v1"))
	assert.False(t, ok)
}

func TestGetSurvivesFreshProcessViaDisk(t *testing.T) {
	dir := t.TempDir()
	k := NewKey([]byte("class B"), "v1")

	c1 := New(dir)
	require.NoError(t, c1.Put(k, "move r1 1"))

	c2 := New(dir)
	text, ok := c2.Get(k)
	require.True(t, ok)
	assert.Equal(t, "move r1 1", text)
}

func TestGetCorruptEntryIsMissNotFatal(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	k := Key("not-a-real-hash")
	// No file at all is already covered by the miss test; here simulate
	// a path that exists but as a directory, which ReadFile rejects.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, string(k)+".ic10"), 0o755))

	text, ok := c.Get(k)
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestDeleteRemovesFromBothTiers(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	k := NewKey([]byte("class C"), "v1")
	require.NoError(t, c.Put(k, "move r2 2"))

	c.Delete(k)

	_, ok := c.Get(k)
	assert.False(t, ok)
}
