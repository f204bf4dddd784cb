package main

import (
	"fmt"
	"os"

	"github.com/JostBaron/fal-database/internal/cli/commands"
)

// Set by goreleaser ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.SetVersion(version, commit)
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
