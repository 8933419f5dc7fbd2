// Package main provides the entry point for the goose CLI.
package main

import (
	"fmt"
	"os"

	"github.com/goosehq/goose/cmd/goose/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
