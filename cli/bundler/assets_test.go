package bundler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetTokenStable(t *testing.T) {
	content := []byte("\x00asm\x01\x00\x00\x00")

	first := assetToken(content)
	second := assetToken(content)
	assert.Equal(t, first, second)
	assert.Len(t, first, assetTokenLength)
}

func TestAssetTokenContentSensitive(t *testing.T) {
	a := assetToken([]byte("\x00asm\x01\x00\x00\x00"))
	b := assetToken([]byte("\x00asm\x02\x00\x00\x00"))
	assert.NotEqual(t, a, b)
}

func TestResolverExternalizesAsset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod.wasm"), []byte("wasm-bytes"), 0644))

	r := newAssetResolver()
	result, err := r.resolve(api.OnResolveArgs{Path: "./mod.wasm", ResolveDir: dir})
	require.NoError(t, err)

	assert.True(t, result.External)
	token := assetToken([]byte("wasm-bytes"))
	assert.Equal(t, "./"+token+"-mod.wasm", result.Path)

	assets := r.Assets()
	require.Len(t, assets, 1)
	assert.Equal(t, token+"-mod.wasm", assets[0].Filename)
	assert.Equal(t, []byte("wasm-bytes"), assets[0].Bytes)
}

func TestResolverDeduplicatesByPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod.wasm"), []byte("wasm-bytes"), 0644))

	r := newAssetResolver()
	first, err := r.resolve(api.OnResolveArgs{Path: "./mod.wasm", ResolveDir: dir})
	require.NoError(t, err)
	second, err := r.resolve(api.OnResolveArgs{Path: "./mod.wasm", ResolveDir: dir})
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)
	assert.Len(t, r.Assets(), 1)
}

func TestResolverNoFilenameCollision(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "mod.wasm"), []byte("first"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "mod.wasm"), []byte("second"), 0644))

	r := newAssetResolver()
	_, err := r.resolve(api.OnResolveArgs{Path: "./a/mod.wasm", ResolveDir: dir})
	require.NoError(t, err)
	_, err = r.resolve(api.OnResolveArgs{Path: "./b/mod.wasm", ResolveDir: dir})
	require.NoError(t, err)

	assets := r.Assets()
	require.Len(t, assets, 2)
	assert.NotEqual(t, assets[0].Filename, assets[1].Filename)
}

func TestResolverMissingFileFails(t *testing.T) {
	r := newAssetResolver()
	_, err := r.resolve(api.OnResolveArgs{Path: "./missing.wasm", ResolveDir: t.TempDir()})
	assert.Error(t, err)
}

func TestLoaderTableCoversScriptFamily(t *testing.T) {
	table := loaderTable()
	for _, ext := range []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx", ".json"} {
		_, ok := table[ext]
		assert.True(t, ok, "expected a loader for %s", ext)
	}
	_, ok := table[".wasm"]
	assert.False(t, ok, "binary formats must have no configured loader")
}
