// Package main provides the entry point for the tasksearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/tasksearch/cmd/tasksearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
