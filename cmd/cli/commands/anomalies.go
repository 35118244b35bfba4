package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pulseboard/tsengine/internal/analytics"
)

type AnomaliesOptions struct {
	InputFile      string
	Threshold      float64
	LookbackWindow int
	OutputFormat   string
}

func NewAnomaliesCmd() *cobra.Command {
	opts := &AnomaliesOptions{}

	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Detect z-score anomalies in a time series",
		Example: `  # Global baseline, default threshold 3.0
  tsengine-cli anomalies --input metrics.csv

  # Rolling baseline of the last 24 points
  tsengine-cli anomalies --input metrics.csv --lookback 24 --threshold 2.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnomalies(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "input CSV file (timestamp,value)")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", 3.0, "z-score threshold")
	cmd.Flags().IntVar(&opts.LookbackWindow, "lookback", 0, "rolling window size (0 = whole series)")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "text", "output format (text, json)")

	cmd.MarkFlagRequired("input")

	return cmd
}

func runAnomalies(opts *AnomaliesOptions) error {
	series, err := loadCSV(opts.InputFile)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	pre := analytics.NewPreprocessor(logger).Process(series, analytics.DefaultPreprocessOptions())
	if !pre.Report.IsValid {
		return fmt.Errorf("series unusable: %v", pre.Report.Errors)
	}

	anomalies, err := analytics.NewAnomalyDetector(logger).Detect(pre.Series, opts.Threshold, opts.LookbackWindow)
	if err != nil {
		return err
	}

	return writeOutput(opts.OutputFormat, anomalies, func() {
		if len(anomalies) == 0 {
			fmt.Println("No anomalies detected.")
			return
		}
		fmt.Printf("%d anomalies:\n", len(anomalies))
		for _, a := range anomalies {
			fmt.Printf("  %s  value=%.4f  z=%.2f  expected=%.4f\n",
				a.Timestamp.Format("2006-01-02 15:04:05"), a.Value, a.ZScore, a.Expected)
		}
	})
}
