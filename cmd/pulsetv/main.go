// Package main is the entry point for the pulsetv application.
package main

import (
	"os"

	"github.com/pulsetv/pulsetv/cmd/pulsetv/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
