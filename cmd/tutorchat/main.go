// Package main is the tutorchat command line client for the tutoring
// gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "tutorchat",
		Short:   "tutorchat — ask the AI tutoring backend from the terminal",
		Version: version,
	}

	root.AddCommand(
		newAskCmd(),
		newProvidersCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
