package main

import (
	"os"

	"github.com/tradepilot/tradepilot/cmd/tradepilot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
