package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "warden",
		Short:   "Warden - request governance gateway for AI provider APIs",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newBanCmd(),
		newFlagsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
