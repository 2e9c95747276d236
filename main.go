// Package main is the entry point for the incboard application.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/incboard/cmd"
	"github.com/danielolaszy/incboard/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
