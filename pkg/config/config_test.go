package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Dashboard.PageSize)
	assert.True(t, cfg.Dashboard.ResetImportsOnCancel, "imports are reset on cancel by default")
	assert.Equal(t, 30*time.Second, cfg.Dashboard.LockTTL())
	assert.Equal(t, 50000, cfg.Ingestion.MaxRows)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		missing bool
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "non-existent file returns defaults",
			missing: true,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10, cfg.Dashboard.PageSize)
			},
		},
		{
			name: "valid YAML overrides defaults",
			yaml: `
dashboard:
  page_size: 25
  reset_imports_on_cancel: false
  lock_ttl_seconds: 5
ingestion:
  max_rows: 100
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 25, cfg.Dashboard.PageSize)
				assert.False(t, cfg.Dashboard.ResetImportsOnCancel)
				assert.Equal(t, 5*time.Second, cfg.Dashboard.LockTTL())
				assert.Equal(t, 100, cfg.Ingestion.MaxRows)
				assert.Equal(t, 64, cfg.Archive.CacheSize, "unset keys keep defaults")
			},
		},
		{
			name:    "invalid YAML returns error",
			yaml:    "{{invalid yaml",
			wantErr: true,
		},
		{
			name:    "out of range value returns error",
			yaml:    "dashboard:\n  page_size: 0\n",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if !tc.missing {
				require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))
			}

			cfg, err := Load(path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.check != nil {
				tc.check(t, cfg)
			}
		})
	}
}

func TestArchiveDir(t *testing.T) {
	dir := ArchiveDir()
	assert.Equal(t, filepath.Join(DataDir(), "archive"), dir)
	assert.Equal(t, "scrutin", filepath.Base(DataDir()))
}

func TestFindConfigFile(t *testing.T) {
	write := func(t *testing.T, root string) string {
		t.Helper()
		configDir := filepath.Join(root, ".scrutin")
		require.NoError(t, os.MkdirAll(configDir, 0o755))
		configPath := filepath.Join(configDir, "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0o644))
		return configPath
	}

	t.Run("found in current directory", func(t *testing.T) {
		root := t.TempDir()
		configPath := write(t, root)
		assert.Equal(t, configPath, FindConfigFile(root))
	})

	t.Run("found in parent directory", func(t *testing.T) {
		root := t.TempDir()
		configPath := write(t, root)

		sub := filepath.Join(root, "a", "b", "c")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		assert.Equal(t, configPath, FindConfigFile(sub))
	})

	t.Run("not found", func(t *testing.T) {
		assert.Empty(t, FindConfigFile(t.TempDir()))
	})
}
