package models

// ForecastMethod identifies a forecasting algorithm. The set is closed; new
// methods are added here and in the forecaster's method table.
type ForecastMethod string

const (
	MethodNaive            ForecastMethod = "naive"
	MethodSeasonalNaive    ForecastMethod = "seasonal_naive"
	MethodMovingAverage    ForecastMethod = "moving_average"
	MethodLinearRegression ForecastMethod = "linear_regression"
	MethodAuto             ForecastMethod = "auto"
)

// IsValid reports whether m names a known method.
func (m ForecastMethod) IsValid() bool {
	switch m {
	case MethodNaive, MethodSeasonalNaive, MethodMovingAverage, MethodLinearRegression, MethodAuto:
		return true
	}
	return false
}

// ValidationMetrics are backtesting accuracy metrics computed on held-out
// history.
type ValidationMetrics struct {
	MAPE float64 `json:"mape"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// ConfidenceBand bounds a forecast with parallel upper and lower series.
type ConfidenceBand struct {
	Upper *TimeSeries `json:"upper"`
	Lower *TimeSeries `json:"lower"`
	Level float64     `json:"level"`
}

// ForecastResult is the output of a forecast operation.
type ForecastResult struct {
	Forecast          *TimeSeries        `json:"forecast"`
	Confidence        ConfidenceBand     `json:"confidence"`
	Accuracy          float64            `json:"accuracy"` // [0,1] goodness score
	Method            ForecastMethod     `json:"method"`
	ValidationMetrics *ValidationMetrics `json:"validation_metrics,omitempty"`
}
