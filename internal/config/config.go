// Copyright 2024 FAL Database Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the fal-database configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "FALDB_CONFIG"

// StorageKindDatabase and StorageKindLocal are the supported storage
// backends.
const (
	StorageKindDatabase = "database"
	StorageKindLocal    = "local"
)

// StorageConfig describes one storage partition known to the system.
type StorageConfig struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	// Kind selects the backend: "database" (entries table) or "local"
	// (a directory tree, usable as a migration source).
	Kind string `yaml:"kind"`
	// BasePath is the root directory of a local storage.
	BasePath string `yaml:"base-path,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	// DatabasePath is the SQLite file holding the entries table.
	DatabasePath string `yaml:"database"`
	// TempDir is where file contents are materialized for local
	// processing. Defaults to the OS temp directory.
	TempDir string `yaml:"temp-dir,omitempty"`
	// ListenAddr is the bind address of the download endpoint.
	ListenAddr string          `yaml:"listen-addr,omitempty"`
	Storages   []StorageConfig `yaml:"storages"`
}

// DefaultPath returns the config file location: FALDB_CONFIG if set,
// otherwise ~/.faldb/config.yaml.
func DefaultPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".faldb", "config.yaml")
}

// Load reads and validates the configuration at path. An empty path uses
// DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8474"
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	seen := make(map[int64]bool, len(c.Storages))
	for _, s := range c.Storages {
		if s.ID <= 0 {
			return fmt.Errorf("storage %q: id must be positive", s.Name)
		}
		if seen[s.ID] {
			return fmt.Errorf("storage id %d defined twice", s.ID)
		}
		seen[s.ID] = true
		switch s.Kind {
		case StorageKindDatabase:
		case StorageKindLocal:
			if s.BasePath == "" {
				return fmt.Errorf("local storage %d needs base-path", s.ID)
			}
		default:
			return fmt.Errorf("storage %d: unknown kind %q", s.ID, s.Kind)
		}
	}
	return nil
}

// Storage looks a storage up by id. Returns nil when unknown.
func (c *Config) Storage(id int64) *StorageConfig {
	for i := range c.Storages {
		if c.Storages[i].ID == id {
			return &c.Storages[i]
		}
	}
	return nil
}
