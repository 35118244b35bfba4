package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pulseboard/tsengine/cmd/cli/commands"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "tsengine-cli",
		Short: "Time-series analytics CLI",
		Long: `A command-line interface for analyzing time-series data from CSV files:
descriptive statistics, anomaly detection, and forecasting.`,
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewAnalyzeCmd())
	rootCmd.AddCommand(commands.NewAnomaliesCmd())
	rootCmd.AddCommand(commands.NewForecastCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
