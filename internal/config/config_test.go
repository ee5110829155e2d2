package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreWithoutFileUsesDefaults(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "missing", "config.yaml"))
	require.NoError(t, err)

	cfg, err := store.Config()
	require.NoError(t, err)

	assert.Equal(t, NamingTimestamp, cfg.Output.Naming)
	assert.Equal(t, 95, cfg.Output.JPEGQuality)
	assert.Equal(t, BackendCommand, cfg.Remover.Backend)
	assert.Equal(t, []string{".png", ".jpg", ".jpeg"}, cfg.Extensions)
	assert.Empty(t, cfg.ExportFolder)

	folders, err := store.LoadFolders()
	require.NoError(t, err)
	assert.Equal(t, Folders{}, folders)
}

func TestSaveFoldersPersistsAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), AppName, "config.yaml")

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveFolders(Folders{Import: "/in", Export: "/out"}))

	_, err = os.Stat(path)
	require.NoError(t, err)

	reopened, err := NewStore(path)
	require.NoError(t, err)
	folders, err := reopened.LoadFolders()
	require.NoError(t, err)
	assert.Equal(t, Folders{Import: "/in", Export: "/out"}, folders)

	cfg, err := reopened.Config()
	require.NoError(t, err)
	assert.Equal(t, "/out", cfg.ExportFolder)
}

func TestSaveFoldersRejectsEmpty(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Error(t, store.SaveFolders(Folders{Import: "/in"}))
	assert.Error(t, store.SaveFolders(Folders{Export: "/out"}))
}

func TestConfigFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("output:\n  naming: fixed\n  resize_to_original: true\nremover:\n  backend: key\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	t.Setenv("REMOVE_BG_LOGGING_LEVEL", "debug")

	store, err := NewStore(path)
	require.NoError(t, err)
	cfg, err := store.Config()
	require.NoError(t, err)

	assert.Equal(t, NamingFixed, cfg.Output.Naming)
	assert.True(t, cfg.Output.ResizeToOriginal)
	assert.Equal(t, BackendKey, cfg.Remover.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad naming", mutate: func(c *Config) { c.Output.Naming = "random" }, wantErr: true},
		{name: "bad backend", mutate: func(c *Config) { c.Remover.Backend = "magic" }, wantErr: true},
		{name: "command without binary", mutate: func(c *Config) { c.Remover.Command = "" }, wantErr: true},
		{name: "http without url", mutate: func(c *Config) {
			c.Remover.Backend = BackendHTTP
			c.Remover.URL = ""
		}, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "quality clamped", mutate: func(c *Config) { c.Output.JPEGQuality = 400 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 95, cfg.Output.JPEGQuality)
		})
	}
}

func TestIsImageExtension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extensions = []string{"PNG", " jpg", ".jpeg"}
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.IsImageExtension(".png"))
	assert.True(t, cfg.IsImageExtension(".JPG"))
	assert.False(t, cfg.IsImageExtension(".gif"))
}
