// Package main provides the scrutin CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "scrutin",
		Short: "Election results aggregation and publication",
		Long: `Scrutin rolls polling-station and CEL results up the geographic and
electoral hierarchies, ranks candidates and tracks which entities are
ready to publish.`,
		Version: version,
	}

	rootCmd.AddCommand(
		newAggregateCmd(),
		newListCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
