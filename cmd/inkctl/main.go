// Package main is the entry point for the inkctl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/vadim/inkdesk/internal/cli"
)

// Version information (set at build time)
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
