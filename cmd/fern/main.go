package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "fern",
		Short:         "Similarity and ranking engine",
		Long:          `Ranks records by similarity to a query, finds duplicate accounts and recommends job postings for a résumé`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")

	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createSearchCmd())
	rootCmd.AddCommand(createDuplicatesCmd())
	rootCmd.AddCommand(createRecommendCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
