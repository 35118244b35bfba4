package analytics

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/stats"
	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

const (
	// MaxHorizon bounds forecast length in steps.
	MaxHorizon = 365

	// DefaultMovingAverageWindow is the moving-average window when none is given.
	DefaultMovingAverageWindow = 7

	// DefaultConfidenceLevel is the confidence band level when none is given.
	DefaultConfidenceLevel = 0.95
)

// autoMethodOrder fixes the tie-break for auto selection: when backtested
// errors tie, the simpler (earlier) method wins.
var autoMethodOrder = []models.ForecastMethod{
	models.MethodNaive,
	models.MethodSeasonalNaive,
	models.MethodMovingAverage,
	models.MethodLinearRegression,
}

// ForecastOptions tune a forecast request.
type ForecastOptions struct {
	WindowSize          int     `json:"window_size"`
	SeasonalPeriod      int     `json:"seasonal_period"`
	ConfidenceLevel     float64 `json:"confidence_level"`
	ValidateWithHistory bool    `json:"validate_with_history"`
}

// Forecaster produces point forecasts with confidence bands using one of a
// fixed set of methods, including accuracy-driven auto selection.
type Forecaster struct {
	logger *logrus.Logger
}

// NewForecaster creates a forecaster.
func NewForecaster(logger *logrus.Logger) *Forecaster {
	if logger == nil {
		logger = logrus.New()
	}
	return &Forecaster{logger: logger}
}

// Forecast produces horizon future points for the series. Method "auto"
// backtests every method on held-out history and picks the lowest error.
// Methods with insufficient history degrade to simpler ones (seasonal naive
// to naive) rather than failing.
func (f *Forecaster) Forecast(series *models.TimeSeries, horizon int, method models.ForecastMethod, opts ForecastOptions) (*models.ForecastResult, error) {
	if horizon < 1 || horizon > MaxHorizon {
		return nil, errors.NewValidationError(errors.CodeOutOfRange, "horizon must be in [1, 365]").
			WithContext("horizon", horizon)
	}
	if !method.IsValid() {
		return nil, errors.NewValidationError(errors.CodeInvalidMethod, "unknown forecast method").
			WithContext("method", string(method))
	}
	if series == nil || series.Len() == 0 {
		return nil, errors.NewComputationError(errors.CodeEmptySeries, "cannot forecast empty series")
	}
	if opts.ConfidenceLevel == 0 {
		opts.ConfidenceLevel = DefaultConfidenceLevel
	}
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		return nil, errors.NewValidationError(errors.CodeOutOfRange, "confidence level must be in (0, 1)").
			WithContext("confidence_level", opts.ConfidenceLevel)
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultMovingAverageWindow
	}
	if opts.SeasonalPeriod <= 0 {
		opts.SeasonalPeriod = models.DefaultSeasonalPeriod(series.Interval)
	}

	values := series.Values()

	var metrics *models.ValidationMetrics
	mapeDefined := false

	if method == models.MethodAuto {
		method, metrics, mapeDefined = f.selectMethod(values, horizon, opts)
	}

	resolved := resolveFallback(method, len(values), opts)
	if resolved != method {
		f.logger.WithFields(logrus.Fields{
			"requested": string(method),
			"used":      string(resolved),
			"length":    len(values),
		}).Debug("forecast method degraded for short history")
	}

	forecast, residuals := runMethod(resolved, values, horizon, opts)

	if metrics == nil && opts.ValidateWithHistory {
		if m, defined, ok := f.backtest(resolved, values, horizon, opts); ok {
			metrics, mapeDefined = m, defined
		} else {
			f.logger.WithFields(logrus.Fields{
				"length":  len(values),
				"horizon": horizon,
			}).Debug("history too short for backtesting; skipping validation")
		}
	}

	result := &models.ForecastResult{
		Forecast: forecastSeries(series, forecast),
		Method:   resolved,
		Accuracy: accuracyScore(metrics, mapeDefined, values, residuals),
	}
	result.ValidationMetrics = metrics
	result.Confidence = confidenceBand(result.Forecast, residuals, opts.ConfidenceLevel)

	return result, nil
}

// resolveFallback degrades a method the history cannot support.
func resolveFallback(method models.ForecastMethod, n int, opts ForecastOptions) models.ForecastMethod {
	switch method {
	case models.MethodSeasonalNaive:
		if n < opts.SeasonalPeriod {
			return models.MethodNaive
		}
	case models.MethodLinearRegression, models.MethodMovingAverage:
		if n < 2 {
			return models.MethodNaive
		}
	}
	return method
}

// runMethod dispatches to a concrete method and returns the point forecasts
// together with the method's in-sample residuals, which size the confidence
// band.
func runMethod(method models.ForecastMethod, values []float64, horizon int, opts ForecastOptions) ([]float64, []float64) {
	switch method {
	case models.MethodSeasonalNaive:
		return seasonalNaiveForecast(values, horizon, opts.SeasonalPeriod)
	case models.MethodMovingAverage:
		return movingAverageForecast(values, horizon, opts.WindowSize)
	case models.MethodLinearRegression:
		return linearRegressionForecast(values, horizon)
	default:
		return naiveForecast(values, horizon)
	}
}

// naiveForecast repeats the last observed value.
func naiveForecast(values []float64, horizon int) ([]float64, []float64) {
	last := values[len(values)-1]
	forecast := make([]float64, horizon)
	for i := range forecast {
		forecast[i] = last
	}

	residuals := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		residuals = append(residuals, values[i]-values[i-1])
	}
	return forecast, residuals
}

// seasonalNaiveForecast repeats the value from exactly one period back.
func seasonalNaiveForecast(values []float64, horizon, period int) ([]float64, []float64) {
	n := len(values)
	forecast := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		forecast[h] = values[n-period+h%period]
	}

	residuals := make([]float64, 0, n-period)
	for i := period; i < n; i++ {
		residuals = append(residuals, values[i]-values[i-period])
	}
	return forecast, residuals
}

// movingAverageForecast holds the mean of the last window constant.
func movingAverageForecast(values []float64, horizon, window int) ([]float64, []float64) {
	n := len(values)
	if window > n {
		window = n
	}

	mean := stats.Mean(values[n-window:])
	forecast := make([]float64, horizon)
	for i := range forecast {
		forecast[i] = mean
	}

	residuals := make([]float64, 0, n-window)
	for i := window; i < n; i++ {
		residuals = append(residuals, values[i]-stats.Mean(values[i-window:i]))
	}
	return forecast, residuals
}

// linearRegressionForecast extrapolates the OLS fit of value on time index.
func linearRegressionForecast(values []float64, horizon int) ([]float64, []float64) {
	n := len(values)
	slope, intercept, _ := stats.LinearRegression(values)

	forecast := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		forecast[h] = slope*float64(n+h) + intercept
	}

	residuals := make([]float64, n)
	for i, v := range values {
		residuals[i] = v - (slope*float64(i) + intercept)
	}
	return forecast, residuals
}

// selectMethod backtests every method over a held-out suffix and returns the
// one with the lowest error; ties keep the simpler method. Histories too
// short to hold out a suffix get the naive method.
func (f *Forecaster) selectMethod(values []float64, horizon int, opts ForecastOptions) (models.ForecastMethod, *models.ValidationMetrics, bool) {
	best := models.MethodNaive
	var bestMetrics *models.ValidationMetrics
	bestDefined := false
	bestScore := math.Inf(1)

	for _, candidate := range autoMethodOrder {
		metrics, defined, ok := f.backtest(candidate, values, horizon, opts)
		if !ok {
			continue
		}

		score := metrics.RMSE
		if defined {
			score = metrics.MAPE
		}
		if score < bestScore {
			best = candidate
			bestMetrics = metrics
			bestDefined = defined
			bestScore = score
		}
	}

	f.logger.WithFields(logrus.Fields{
		"selected": string(best),
		"score":    bestScore,
	}).Debug("auto-selected forecast method")

	return best, bestMetrics, bestDefined
}

// backtest forecasts a held-out suffix of length horizon from the preceding
// prefix and scores it. Returns ok=false when the history cannot be split.
func (f *Forecaster) backtest(method models.ForecastMethod, values []float64, horizon int, opts ForecastOptions) (*models.ValidationMetrics, bool, bool) {
	n := len(values)
	if n <= horizon+1 {
		return nil, false, false
	}

	train := values[:n-horizon]
	actuals := values[n-horizon:]

	resolved := resolveFallback(method, len(train), opts)
	predicted, _ := runMethod(resolved, train, horizon, opts)

	metrics, defined := computeMetrics(actuals, predicted)
	return metrics, defined, true
}

// computeMetrics returns mape/rmse/mae/r2 for predictions against actuals.
// Zero actuals are excluded from the MAPE mean rather than divided by; the
// second return value reports whether MAPE was computable at all.
func computeMetrics(actuals, predicted []float64) (*models.ValidationMetrics, bool) {
	n := len(actuals)
	sumAbs := 0.0
	sumSq := 0.0
	sumPct := 0.0
	pctCount := 0

	for i := 0; i < n; i++ {
		diff := actuals[i] - predicted[i]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		if actuals[i] != 0 {
			sumPct += math.Abs(diff/actuals[i]) * 100
			pctCount++
		}
	}

	metrics := &models.ValidationMetrics{
		MAE:  sumAbs / float64(n),
		RMSE: math.Sqrt(sumSq / float64(n)),
	}

	defined := pctCount > 0
	if defined {
		metrics.MAPE = sumPct / float64(pctCount)
	}

	mean := stats.Mean(actuals)
	ssTot := 0.0
	for _, a := range actuals {
		ssTot += (a - mean) * (a - mean)
	}
	if ssTot > 0 {
		metrics.R2 = 1 - sumSq/ssTot
	} else if sumSq == 0 {
		metrics.R2 = 1
	}

	return metrics, defined
}

// accuracyScore maps validation or in-sample error onto [0, 1].
func accuracyScore(metrics *models.ValidationMetrics, mapeDefined bool, values, residuals []float64) float64 {
	if metrics != nil {
		if mapeDefined {
			return clamp01(1 - metrics.MAPE/100)
		}
		return clamp01(metrics.R2)
	}

	if len(residuals) == 0 {
		return 0.5
	}

	meanAbsResidual := 0.0
	for _, r := range residuals {
		meanAbsResidual += math.Abs(r)
	}
	meanAbsResidual /= float64(len(residuals))

	scale := 0.0
	for _, v := range values {
		scale += math.Abs(v)
	}
	scale /= float64(len(values))

	if scale == 0 {
		if meanAbsResidual == 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - meanAbsResidual/scale)
}

// confidenceBand widens with sqrt(h): step-h uncertainty is the residual
// standard deviation scaled by sqrt(h) times the critical value for the
// requested level (Student's t for small samples).
func confidenceBand(forecast *models.TimeSeries, residuals []float64, level float64) models.ConfidenceBand {
	sigma := stats.StdDev(residuals)
	crit := stats.CriticalValue(level, len(residuals)-1)

	upper := forecast.Clone()
	lower := forecast.Clone()
	for h := range forecast.Points {
		margin := crit * sigma * math.Sqrt(float64(h+1))
		upper.Points[h].Value = forecast.Points[h].Value + margin
		lower.Points[h].Value = forecast.Points[h].Value - margin
	}

	return models.ConfidenceBand{Upper: upper, Lower: lower, Level: level}
}

// forecastSeries builds the future series, stepping from the last observed
// timestamp at the series' nominal interval.
func forecastSeries(series *models.TimeSeries, forecast []float64) *models.TimeSeries {
	step := series.Interval
	if step <= 0 {
		step = medianSpacing(series)
	}
	if step <= 0 {
		step = 24 * time.Hour
	}

	last := series.Points[series.Len()-1].Timestamp
	points := make([]models.DataPoint, len(forecast))
	for h, v := range forecast {
		points[h] = models.DataPoint{
			Timestamp: last.Add(time.Duration(h+1) * step),
			Value:     v,
		}
	}

	return &models.TimeSeries{
		MetricID: series.MetricID,
		Points:   points,
		Start:    points[0].Timestamp,
		End:      points[len(points)-1].Timestamp,
		Interval: step,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
