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

	"github.com/JostBaron/fal-database/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the public download endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := loadConfigAndDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return server.Serve(db, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
