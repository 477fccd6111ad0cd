package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string `json:"name"`
	Workers int    `json:"workers"`
	Nested  struct {
		Url string `json:"url"`
	} `json:"nested"`
}

func writeFile(t testing.TB, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, "surveysync.local.json5", LocalPath("surveysync.json5"))
	require.Equal(t, filepath.Join("a", "b", "c.local.json5"), LocalPath(filepath.Join("a", "b", "c.json5")))
	require.Equal(t, "noext.local", LocalPath("noext"))
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")

	_, err := ReadConfig[testConfig](name)
	require.ErrorIs(t, err, os.ErrNotExist)

	writeFile(t, name, `{
		// comments and trailing commas are allowed
		name: "base",
		workers: 2,
		nested: { url: "https://example.com" },
	}`)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 2, cfg.Workers)

	writeFile(t, LocalPath(name), `{ workers: 9 }`)

	cfg, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 9, cfg.Workers)
	require.Equal(t, "https://example.com", cfg.Nested.Url)
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")
	writeFile(t, LocalPath(name), `{ name: "local" }`)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Name)
}

func TestReadConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")
	writeFile(t, name, `{ name: `)

	_, err := ReadConfig[testConfig](name)
	require.Error(t, err)
	require.NotErrorIs(t, err, os.ErrNotExist)
}

func TestMergeOnto(t *testing.T) {
	base := testConfig{Name: "base", Workers: 5}
	merged, err := MergeOnto(base, testConfig{Workers: 1})
	require.NoError(t, err)
	require.Equal(t, testConfig{Name: "base", Workers: 1}, merged)
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotenv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	t.Setenv("SURVEYSYNC_DOTENV_PRESET", "kept")
	writeFile(t, path, "SURVEYSYNC_DOTENV_TEST=from-file\nSURVEYSYNC_DOTENV_PRESET=overwritten\n")

	require.NoError(t, LoadDotenv(path))
	t.Cleanup(func() { os.Unsetenv("SURVEYSYNC_DOTENV_TEST") })

	require.Equal(t, "from-file", os.Getenv("SURVEYSYNC_DOTENV_TEST"))
	require.Equal(t, "kept", os.Getenv("SURVEYSYNC_DOTENV_PRESET"))
}
