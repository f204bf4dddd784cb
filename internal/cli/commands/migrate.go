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
	"os"
	"strconv"

	"github.com/gofrs/flock"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/cobra"

	"github.com/JostBaron/fal-database/internal/config"
	"github.com/JostBaron/fal-database/internal/driver"
	"github.com/JostBaron/fal-database/internal/migrate"
)

var (
	migrateSourceFolder string
	migrateTargetFolder string
	migrateExcludes     []string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <source-storage> <target-storage>",
	Short: "Move a folder tree from one storage into another",
	Long: `Moves a folder subtree from a source storage (database or local disk)
into a database-backed target storage. The source is only cleaned up after
the target side has committed; any accumulated error rolls the whole
migration back and exits non-zero.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source storage id %q", args[0])
		}
		targetID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid target storage id %q", args[1])
		}

		cfg, db, err := loadConfigAndDB()
		if err != nil {
			return err
		}
		defer db.Close()

		targetCfg := cfg.Storage(targetID)
		if targetCfg == nil {
			return fmt.Errorf("target storage %d not configured", targetID)
		}
		if targetCfg.Kind != config.StorageKindDatabase {
			return fmt.Errorf("target storage %d must be database-backed", targetID)
		}
		sourceCfg := cfg.Storage(sourceID)
		if sourceCfg == nil {
			return fmt.Errorf("source storage %d not configured", sourceID)
		}

		// One migration at a time per database file.
		lock := flock.New(cfg.DatabasePath + ".migrate.lock")
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquiring migration lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another migration is already running against %s", cfg.DatabasePath)
		}
		defer lock.Unlock()

		target := driver.New(db, targetID, driver.WithTempDir(cfg.TempDir))
		defer target.Close()

		var srcDriver *driver.Driver
		if sourceCfg.Kind == config.StorageKindDatabase {
			srcDriver = driver.New(db, sourceID, driver.WithTempDir(cfg.TempDir))
			defer srcDriver.Close()
		}
		src, err := migrate.OpenSource(sourceCfg.Kind, migrate.SourceOptions{
			BasePath: sourceCfg.BasePath,
			Driver:   srcDriver,
		})
		if err != nil {
			return err
		}

		var opts []migrate.Option
		if len(migrateExcludes) > 0 {
			matcher := ignore.CompileIgnoreLines(migrateExcludes...)
			opts = append(opts, migrate.WithExclude(func(relPath string, isDir bool) bool {
				return matcher.MatchesPath(relPath)
			}))
		}

		engine := migrate.New(target, opts...)
		result := engine.Run(cmd.Context(), src, migrateSourceFolder, migrateTargetFolder)
		if result.Failed() {
			for _, msg := range result.Errors {
				fmt.Fprintln(os.Stderr, msg)
			}
			return fmt.Errorf("migration failed with %d error(s)", len(result.Errors))
		}

		fmt.Printf("migrated %d file(s) and %d folder(s) from storage %d to storage %d\n",
			result.FilesMigrated, result.FoldersMigrated, sourceID, targetID)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSourceFolder, "source-folder", "", "source folder identifier (default: root)")
	migrateCmd.Flags().StringVar(&migrateTargetFolder, "target-folder", "", "target folder identifier (default: root)")
	migrateCmd.Flags().StringArrayVar(&migrateExcludes, "exclude", nil, "gitignore-style pattern of paths to skip (repeatable)")
	rootCmd.AddCommand(migrateCmd)
}
