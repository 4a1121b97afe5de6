package main

import (
	"os"

	"github.com/dukerupert/cleanround/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
