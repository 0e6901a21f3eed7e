// Package main is the entry point for the bl-docs CLI.
package main

import (
	"os"

	"github.com/shunichi-ikebuchi/bl-docs/cmd/bl-docs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitFailure)
	}
}
