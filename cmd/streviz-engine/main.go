// Package main is the entry point for the streviz-engine CLI.
package main

import (
	"os"

	"github.com/olbboy/streviz-engine/cmd/streviz-engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
