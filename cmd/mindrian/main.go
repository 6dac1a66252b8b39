// Package main is the mindrian command.
package main

import (
	"fmt"
	"os"

	"mindrian/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
