package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database: /var/lib/faldb/faldb.db
storages:
  - id: 1
    name: main
    kind: database
  - id: 2
    name: legacy
    kind: local
    base-path: /srv/files
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/faldb/faldb.db", cfg.DatabasePath)
	assert.Equal(t, "127.0.0.1:8474", cfg.ListenAddr, "default listen address")
	assert.NotEmpty(t, cfg.TempDir)

	require.NotNil(t, cfg.Storage(2))
	assert.Equal(t, StorageKindLocal, cfg.Storage(2).Kind)
	assert.Equal(t, "/srv/files", cfg.Storage(2).BasePath)
	assert.Nil(t, cfg.Storage(99))
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing_database", "storages: []\n"},
		{"duplicate_id", "database: x.db\nstorages:\n  - {id: 1, kind: database}\n  - {id: 1, kind: database}\n"},
		{"unknown_kind", "database: x.db\nstorages:\n  - {id: 1, kind: ftp}\n"},
		{"local_without_base", "database: x.db\nstorages:\n  - {id: 1, kind: local}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
