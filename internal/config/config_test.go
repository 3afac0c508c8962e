package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, DefaultDBPath, cfg.DBPath)
	require.Equal(t, DefaultAddr, cfg.Addr)
	require.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
	require.True(t, cfg.Recursive)
	require.False(t, cfg.RetryFailed)
	require.Empty(t, cfg.Directory)
	require.Equal(t, "http", cfg.Embed.Provider)
	require.Equal(t, DefaultDimension, cfg.Embed.Dimension)
	require.Equal(t, DefaultBatchSize, cfg.Embed.BatchSize)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
directory: /photos
refresh_interval: 30s
embed:
  provider: openai
  batch_size: 16
`), 0644))

	t.Setenv("IMAGE_SEARCH_EMBED_DIMENSION", "768")
	t.Setenv("DB_PATH", "/tmp/idx.json")

	cfg, err := Load(New(), file)
	require.NoError(t, err)
	require.Equal(t, "/photos", cfg.Directory)
	require.Equal(t, 30*time.Second, cfg.RefreshInterval)
	require.Equal(t, "openai", cfg.Embed.Provider)
	require.Equal(t, 16, cfg.Embed.BatchSize)
	require.Equal(t, 768, cfg.Embed.Dimension)
	require.Equal(t, "/tmp/idx.json", cfg.DBPath)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("IMAGE_DIR=/from/dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("IMAGE_DIR") })

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, "/from/dotenv", cfg.Directory)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(New(), "does-not-exist.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DBPath:          "x.db",
			RefreshInterval: time.Minute,
			Embed:           EmbedConfig{Provider: "http", Dimension: 4, BatchSize: 1},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Embed.Provider = "carrier-pigeon"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Embed.Dimension = 0
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Embed.BatchSize = -1
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Directory = "/photos"
	cfg.RefreshInterval = 0
	require.Error(t, cfg.Validate())
}
