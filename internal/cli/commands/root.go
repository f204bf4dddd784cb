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

package commands

import (
	"github.com/spf13/cobra"

	"github.com/JostBaron/fal-database/internal/config"
	"github.com/JostBaron/fal-database/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c string) {
	version = v
	commit = c
	rootCmd.Version = version + " (" + commit + ")"
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "faldb",
	Short: "Database-backed file storage",
	Long:  `faldb stores a file/folder hierarchy in a single relational table and migrates folder trees between storages.`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("faldb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $FALDB_CONFIG or ~/.faldb/config.yaml)")
}

// loadConfigAndDB loads the configuration and opens the backing database.
func loadConfigAndDB() (*config.Config, *storage.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
