package analytics

import (
	"math"
	"time"

	"github.com/pulseboard/tsengine/pkg/models"
)

var testBase = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// createTestTimeSeries builds a series from values at a fixed interval.
func createTestTimeSeries(interval time.Duration, values ...float64) *models.TimeSeries {
	points := make([]models.DataPoint, len(values))
	for i, v := range values {
		points[i] = models.DataPoint{Timestamp: testBase.Add(time.Duration(i) * interval), Value: v}
	}
	ts := &models.TimeSeries{
		MetricID: "test.metric",
		Points:   points,
		Interval: interval,
	}
	if len(points) > 0 {
		ts.Start = points[0].Timestamp
		ts.End = points[len(points)-1].Timestamp
	}
	return ts
}

// createDailySeries builds a daily series from values.
func createDailySeries(values ...float64) *models.TimeSeries {
	return createTestTimeSeries(24*time.Hour, values...)
}

// createLinearSeries builds a daily series rising from start by step.
func createLinearSeries(n int, start, step float64) *models.TimeSeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return createDailySeries(values...)
}

// createSeasonalSeries builds an hourly series with a sine cycle of the given
// period plus a linear drift.
func createSeasonalSeries(n, period int, amplitude, drift float64) *models.TimeSeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = 50 + drift*float64(i) + amplitude*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return createTestTimeSeries(time.Hour, values...)
}
