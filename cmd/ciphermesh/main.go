package main

import (
	"os"

	"ciphermesh/cmd/ciphermesh/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
