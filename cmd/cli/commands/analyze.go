package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pulseboard/tsengine/internal/analytics"
	"github.com/pulseboard/tsengine/internal/stats"
)

type AnalyzeOptions struct {
	InputFile          string
	Decompose          bool
	WindowSize         int
	SeasonalPeriod     int
	Entropy            bool
	EmbeddingDimension int
	OutputFormat       string
}

func NewAnalyzeCmd() *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize a time series: statistics, trend, optional decomposition and entropy",
		Example: `  # Basic statistics and trend
  tsengine-cli analyze --input metrics.csv

  # Include trend/seasonal decomposition and sample entropy
  tsengine-cli analyze --input metrics.csv --decompose --entropy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "input CSV file (timestamp,value)")
	cmd.Flags().BoolVar(&opts.Decompose, "decompose", false, "decompose into trend/seasonal/residual")
	cmd.Flags().IntVar(&opts.WindowSize, "window", 7, "moving-average window for decomposition")
	cmd.Flags().IntVar(&opts.SeasonalPeriod, "seasonal-period", 0, "seasonal period (0 = infer from interval)")
	cmd.Flags().BoolVar(&opts.Entropy, "entropy", false, "compute sample entropy")
	cmd.Flags().IntVar(&opts.EmbeddingDimension, "embedding-dimension", 2, "sample-entropy embedding dimension")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "text", "output format (text, json)")

	cmd.MarkFlagRequired("input")

	return cmd
}

func runAnalyze(opts *AnalyzeOptions) error {
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

	values := pre.Series.Values()
	min, max := stats.MinMax(values)

	result := map[string]interface{}{
		"points": len(values),
		"mean":   stats.Mean(values),
		"median": stats.Median(values),
		"stddev": stats.StdDev(values),
		"min":    min,
		"max":    max,
	}

	if opts.Decompose {
		decomp, err := analytics.NewDecomposer(logger).Decompose(pre.Series, opts.WindowSize, opts.SeasonalPeriod)
		if err != nil {
			return err
		}
		result["trend"] = decomp.TrendInfo
		result["seasonal_period"] = decomp.SeasonalPeriod
	}

	if opts.Entropy {
		entropy, err := analytics.NewAnalyzer(logger).SampleEntropy(pre.Series, opts.EmbeddingDimension, 0)
		if err != nil {
			return err
		}
		result["sample_entropy"] = entropy
	}

	return writeOutput(opts.OutputFormat, result, func() {
		fmt.Printf("Points:  %d\n", len(values))
		fmt.Printf("Mean:    %.4f\n", result["mean"])
		fmt.Printf("Median:  %.4f\n", result["median"])
		fmt.Printf("StdDev:  %.4f\n", result["stddev"])
		fmt.Printf("Min:     %.4f\n", min)
		fmt.Printf("Max:     %.4f\n", max)
		if info, ok := result["trend"]; ok {
			fmt.Printf("Trend:   %+v\n", info)
		}
		if e, ok := result["sample_entropy"]; ok {
			fmt.Printf("Entropy: %.4f\n", e)
		}
	})
}
