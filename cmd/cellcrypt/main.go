package main

import (
	"os"

	"github.com/ai8future/cellcrypt/internal/commands"
	"github.com/ai8future/cellcrypt/internal/config"
)

var version = "dev"

func main() {
	cfg := &config.Config{}

	if err := commands.NewRootCommand(cfg, version).Execute(); err != nil {
		os.Exit(1)
	}
}
