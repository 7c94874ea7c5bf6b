package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rental-scraper/config"
	"rental-scraper/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:           "rental-scraper",
	Short:         "Collect, deduplicate and enrich rental listings",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.Load()
		logger = utils.NewLogger(utils.ParseLevel(cfg.LogLevel))
		if dataset, _ := cmd.Flags().GetString("dataset"); dataset != "" {
			cfg.Dataset = dataset
		}
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().String("dataset", "", "Logical dataset (selects the store), overrides DATASET")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("%v", err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
