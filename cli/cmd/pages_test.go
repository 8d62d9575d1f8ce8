package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekit-dev/edgekit/cli/bundler"
)

// resetBuildFlags restores the build command's flag state between Execute
// calls; cobra keeps both values and Changed markers across invocations.
func resetBuildFlags(t *testing.T) {
	t.Helper()
	pfOutfile = bundler.WorkerEntryName
	pfOutputDir = "."
	pfWorkerBundle = false
	pfCompatFlags = nil
	pfReport = false
	cfgFile = ""
	quiet = false
	for _, name := range []string{
		"outfile", "build-output-directory", "experimental-worker-bundle",
		"compatibility-flag", "report",
	} {
		pagesFunctionsBuildCmd.Flags().Lookup(name).Changed = false
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// chdir is t.Chdir for toolchains before Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestBuildCommandCompilesFunctions(t *testing.T) {
	resetBuildFlags(t)
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, "functions", "hello.ts"),
		`export const onRequest = () => new Response("from the functions dir");`)

	out, _, err := execute(t, "pages", "functions", "build", "--outfile", "out.js")
	require.NoError(t, err)
	assert.Contains(t, out, "beta command")
	assert.Contains(t, out, "✨ Compiled Worker successfully")

	content, err := os.ReadFile(filepath.Join(dir, "out.js"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "from the functions dir")
}

func TestBuildCommandNothingToBuild(t *testing.T) {
	resetBuildFlags(t)
	dir := t.TempDir()
	chdir(t, dir)

	_, errOut, err := execute(t, "pages", "functions", "build", "--outfile", "out.js")
	require.Error(t, err)
	assert.Contains(t, errOut, "Could not find anything to build.")

	_, statErr := os.Stat(filepath.Join(dir, "out.js"))
	assert.True(t, os.IsNotExist(statErr), "no output may be written on failure")
}

func TestBuildCommandFailureWritesNoOutput(t *testing.T) {
	resetBuildFlags(t)
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, "blob.wasm"), "\x00asm\x01\x00\x00\x00")
	writeFile(t, filepath.Join(dir, bundler.WorkerEntryName),
		`import mod from "./blob.wasm";
export default { fetch: () => new Response(String(mod)) };`)

	_, errOut, err := execute(t, "pages", "functions", "build", "--outfile", "out.js")
	require.Error(t, err)
	assert.Contains(t, errOut, `No loader is configured for ".wasm" files`)

	_, statErr := os.Stat(filepath.Join(dir, "out.js"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildCommandWorkerBundle(t *testing.T) {
	resetBuildFlags(t)
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, "mod.wasm"), "\x00asm\x01\x00\x00\x00")
	writeFile(t, filepath.Join(dir, bundler.WorkerEntryName),
		`import mod from "./mod.wasm";
export default { fetch: () => new Response(String(mod)) };`)

	_, _, err := execute(t, "pages", "functions", "build",
		"--outfile", "out.bundle.js", "--experimental-worker-bundle=true")
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "out.bundle.js"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "------formdata-undici-0."))
	assert.Contains(t, string(content), `{"main_module":"out.bundle.js"}`)
	assert.Contains(t, string(content), "-mod.wasm")
}

func TestBuildCommandUsesConfigDefaults(t *testing.T) {
	resetBuildFlags(t)
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, "functions", "hi.ts"),
		`export const onRequest = () => new Response("hi");`)
	writeFile(t, filepath.Join(dir, "edgekit.yaml"), "build:\n  outfile: from-config.js\n")

	_, _, err := execute(t, "pages", "functions", "build")
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "from-config.js"))
	assert.NoError(t, statErr)
}

func TestBuildCommandReport(t *testing.T) {
	resetBuildFlags(t)
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, "functions", "hi.ts"),
		`export const onRequest = () => new Response("hi");`)

	out, _, err := execute(t, "pages", "functions", "build", "--outfile", "out.js", "--report")
	require.NoError(t, err)
	assert.Contains(t, out, "Total bundle size:")
}
