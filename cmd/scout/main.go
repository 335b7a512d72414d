package main

import (
	"os"

	"github.com/berth-dev/scout/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
