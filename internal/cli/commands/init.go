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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JostBaron/fal-database/internal/config"
	"github.com/JostBaron/fal-database/internal/driver"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema and register the configured storages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := loadConfigAndDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		for _, sc := range cfg.Storages {
			if sc.Kind != config.StorageKindDatabase {
				continue
			}
			if err := db.EnsureStorage(ctx, sc.ID, sc.Name); err != nil {
				return fmt.Errorf("registering storage %d: %w", sc.ID, err)
			}
			d := driver.New(db, sc.ID, driver.WithTempDir(cfg.TempDir))
			if _, err := d.RootFolder(ctx); err != nil {
				return fmt.Errorf("creating root folder for storage %d: %w", sc.ID, err)
			}
			d.Close()
		}

		fmt.Printf("initialized %s\n", cfg.DatabasePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
