package epctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "model_ctx.bin")
	binary := []byte("context-binary")
	require.NoError(t, os.WriteFile(binPath, binary, 0o600))

	parts := []FusedPartition{{NodeName: "p0"}, {NodeName: "p1"}}
	want := NewManifest(binary, parts, "2.38.0", DefaultSource, "session-1")
	require.NoError(t, WriteManifest(OSFileSystem{}, binPath, want))

	got, err := ReadManifest(binPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"p0", "p1"}, got.Partitions)

	assert.NoError(t, VerifyCacheBinary(binPath))
}

func TestVerifyCacheBinaryMismatch(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "model_ctx.bin")
	require.NoError(t, os.WriteFile(binPath, []byte("original"), 0o600))
	require.NoError(t, WriteManifest(OSFileSystem{}, binPath, NewManifest([]byte("original"), nil, "", DefaultSource, "")))

	require.NoError(t, os.WriteFile(binPath, []byte("replaced"), 0o600))
	assert.ErrorIs(t, VerifyCacheBinary(binPath), ErrDigestMismatch)
}

func TestVerifyCacheBinaryMissingManifest(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "model_ctx.bin")
	require.NoError(t, os.WriteFile(binPath, []byte("x"), 0o600))

	assert.Error(t, VerifyCacheBinary(binPath))
}

func TestPayloadDigestStable(t *testing.T) {
	a := PayloadDigest([]byte("abc"))
	b := PayloadDigest([]byte("abc"))
	c := PayloadDigest([]byte("abd"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "xxh64:")
}

func TestOSFileSystemAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.bin")

	require.NoError(t, OSFileSystem{}.WriteFile(path, []byte("v1")))
	require.NoError(t, OSFileSystem{}.WriteFile(path, []byte("v2")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
