// Package main provides the entry point for the beacon CLI.
package main

import (
	"os"

	"github.com/bluetali/beacon/cmd/beacon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
