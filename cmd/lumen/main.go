package main

import (
	"os"

	"github.com/openfluke/lumen/cmd/lumen/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
