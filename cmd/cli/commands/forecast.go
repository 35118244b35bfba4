package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pulseboard/tsengine/internal/analytics"
	"github.com/pulseboard/tsengine/pkg/models"
)

type ForecastOptions struct {
	InputFile       string
	Horizon         int
	Method          string
	WindowSize      int
	SeasonalPeriod  int
	ConfidenceLevel float64
	Validate        bool
	OutputFormat    string
}

func NewForecastCmd() *cobra.Command {
	opts := &ForecastOptions{}

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast future points with confidence bands",
		Example: `  # Auto-select the best method by backtesting
  tsengine-cli forecast --input metrics.csv --horizon 14

  # Specific method with validation metrics
  tsengine-cli forecast --input metrics.csv --horizon 7 --method linear_regression --validate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "input CSV file (timestamp,value)")
	cmd.Flags().IntVar(&opts.Horizon, "horizon", 7, "number of steps to forecast (1-365)")
	cmd.Flags().StringVar(&opts.Method, "method", "auto",
		"forecast method (naive, seasonal_naive, moving_average, linear_regression, auto)")
	cmd.Flags().IntVar(&opts.WindowSize, "window", 0, "moving-average window (0 = default)")
	cmd.Flags().IntVar(&opts.SeasonalPeriod, "seasonal-period", 0, "seasonal period (0 = infer from interval)")
	cmd.Flags().Float64Var(&opts.ConfidenceLevel, "confidence", 0.95, "confidence level for bands")
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "backtest on held-out history")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "text", "output format (text, json)")

	cmd.MarkFlagRequired("input")

	return cmd
}

func runForecast(opts *ForecastOptions) error {
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

	result, err := analytics.NewForecaster(logger).Forecast(pre.Series, opts.Horizon,
		models.ForecastMethod(opts.Method), analytics.ForecastOptions{
			WindowSize:          opts.WindowSize,
			SeasonalPeriod:      opts.SeasonalPeriod,
			ConfidenceLevel:     opts.ConfidenceLevel,
			ValidateWithHistory: opts.Validate,
		})
	if err != nil {
		return err
	}

	return writeOutput(opts.OutputFormat, result, func() {
		fmt.Printf("Method:   %s\n", result.Method)
		fmt.Printf("Accuracy: %.3f\n", result.Accuracy)
		if result.ValidationMetrics != nil {
			m := result.ValidationMetrics
			fmt.Printf("Backtest: MAPE=%.2f%% RMSE=%.4f MAE=%.4f R2=%.3f\n", m.MAPE, m.RMSE, m.MAE, m.R2)
		}
		fmt.Println("Forecast:")
		for i, p := range result.Forecast.Points {
			fmt.Printf("  %s  %.4f  [%.4f, %.4f]\n",
				p.Timestamp.Format("2006-01-02 15:04:05"), p.Value,
				result.Confidence.Lower.Points[i].Value, result.Confidence.Upper.Points[i].Value)
		}
	})
}
