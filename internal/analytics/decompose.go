package analytics

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/stats"
	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// Decomposer splits a cleaned series into additive trend, seasonal and
// residual components.
type Decomposer struct {
	logger *logrus.Logger
}

// NewDecomposer creates a decomposer.
func NewDecomposer(logger *logrus.Logger) *Decomposer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Decomposer{logger: logger}
}

// Decompose computes trend by centered moving average, seasonal by
// phase-averaged detrended values, and residual as the pointwise remainder,
// so original[i] = trend[i] + seasonal[i] + residual[i] holds exactly.
//
// A seasonalPeriod of zero infers the period from the series' nominal
// interval. Series shorter than two full periods still decompose; the
// seasonal estimate is simply lower-confidence.
func (d *Decomposer) Decompose(series *models.TimeSeries, windowSize, seasonalPeriod int) (*models.Decomposition, error) {
	if series == nil || series.Len() == 0 {
		return nil, errors.NewComputationError(errors.CodeEmptySeries, "cannot decompose empty series")
	}
	if windowSize < 3 {
		return nil, errors.NewValidationError(errors.CodeOutOfRange, "window size must be >= 3").
			WithContext("window_size", windowSize)
	}
	if seasonalPeriod <= 0 {
		seasonalPeriod = models.DefaultSeasonalPeriod(series.Interval)
	}

	values := series.Values()
	n := len(values)

	trend := centeredMovingAverage(values, windowSize)

	seasonal := seasonalComponent(values, trend, seasonalPeriod)

	residual := make([]float64, n)
	for i := range values {
		residual[i] = values[i] - trend[i] - seasonal[i]
	}

	slope, intercept, r2 := stats.LinearRegression(values)
	info := trendInfo(slope, intercept, r2, values)

	if n < 2*seasonalPeriod {
		d.logger.WithFields(logrus.Fields{
			"metric_id": series.MetricID,
			"length":    n,
			"period":    seasonalPeriod,
		}).Debug("series shorter than two seasonal periods; seasonal estimate is low-confidence")
	}

	return &models.Decomposition{
		Trend:          componentSeries(series, trend),
		Seasonal:       componentSeries(series, seasonal),
		Residual:       componentSeries(series, residual),
		Original:       series.Clone(),
		SeasonalPeriod: seasonalPeriod,
		WindowSize:     windowSize,
		TrendInfo:      info,
	}, nil
}

// centeredMovingAverage smooths with a symmetric window of up to windowSize
// points. Edge points use the widest symmetric window available instead of
// being left undefined.
func centeredMovingAverage(values []float64, windowSize int) []float64 {
	n := len(values)
	half := windowSize / 2
	out := make([]float64, n)

	for i := 0; i < n; i++ {
		w := half
		if i < w {
			w = i
		}
		if n-1-i < w {
			w = n - 1 - i
		}

		sum := 0.0
		for j := i - w; j <= i+w; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(2*w+1)
	}
	return out
}

// seasonalComponent averages detrended values at each phase position modulo
// the period, broadcasts the phase means back across the series, and centers
// the result so the seasonal component does not bias the trend.
func seasonalComponent(values, trend []float64, period int) []float64 {
	n := len(values)
	phaseSums := make([]float64, period)
	phaseCounts := make([]int, period)

	for i := 0; i < n; i++ {
		phase := i % period
		phaseSums[phase] += values[i] - trend[i]
		phaseCounts[phase]++
	}

	phaseMeans := make([]float64, period)
	for i := range phaseMeans {
		if phaseCounts[i] > 0 {
			phaseMeans[i] = phaseSums[i] / float64(phaseCounts[i])
		}
	}

	seasonal := make([]float64, n)
	for i := 0; i < n; i++ {
		seasonal[i] = phaseMeans[i%period]
	}

	mean := stats.Mean(seasonal)
	for i := range seasonal {
		seasonal[i] -= mean
	}
	return seasonal
}

// trendInfo classifies the fitted slope as increasing, decreasing, or stable
// relative to the magnitude of the series.
func trendInfo(slope, intercept, r2 float64, values []float64) models.TrendInfo {
	info := models.TrendInfo{Slope: slope, Intercept: intercept, RSquared: r2}
	scale := math.Max(math.Abs(stats.Mean(values)), 1)
	switch {
	case slope > 0.001*scale:
		info.Direction = "increasing"
	case slope < -0.001*scale:
		info.Direction = "decreasing"
	default:
		info.Direction = "stable"
	}
	return info
}

func componentSeries(src *models.TimeSeries, values []float64) *models.TimeSeries {
	points := make([]models.DataPoint, len(values))
	for i, v := range values {
		points[i] = models.DataPoint{Timestamp: src.Points[i].Timestamp, Value: v}
	}
	return &models.TimeSeries{
		MetricID: src.MetricID,
		Points:   points,
		Start:    src.Start,
		End:      src.End,
		Interval: src.Interval,
	}
}
