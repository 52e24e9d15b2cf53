package main

import (
	"os"

	"github.com/relaywire-systems/relaywire-stack/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
