package analytics

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecomposeAdditivity(t *testing.T) {
	d := NewDecomposer(logrus.New())

	series := createSeasonalSeries(96, 24, 10, 0.5)
	decomp, err := d.Decompose(series, 7, 24)
	require.NoError(t, err)

	require.Equal(t, series.Len(), decomp.Trend.Len())
	require.Equal(t, series.Len(), decomp.Seasonal.Len())
	require.Equal(t, series.Len(), decomp.Residual.Len())

	for i := 0; i < series.Len(); i++ {
		sum := decomp.Trend.Points[i].Value +
			decomp.Seasonal.Points[i].Value +
			decomp.Residual.Points[i].Value
		assert.InDelta(t, series.Points[i].Value, sum, 1e-9,
			"additivity violated at index %d", i)
	}
}

func TestDecomposeTimestampsAligned(t *testing.T) {
	d := NewDecomposer(logrus.New())

	series := createSeasonalSeries(48, 24, 5, 0)
	decomp, err := d.Decompose(series, 5, 24)
	require.NoError(t, err)

	for i := 0; i < series.Len(); i++ {
		assert.Equal(t, series.Points[i].Timestamp, decomp.Trend.Points[i].Timestamp)
		assert.Equal(t, series.Points[i].Timestamp, decomp.Seasonal.Points[i].Timestamp)
		assert.Equal(t, series.Points[i].Timestamp, decomp.Residual.Points[i].Timestamp)
	}
}

func TestDecomposeWindowTooSmall(t *testing.T) {
	d := NewDecomposer(logrus.New())

	_, err := d.Decompose(createDailySeries(1, 2, 3, 4, 5), 2, 0)
	require.Error(t, err)
}

func TestDecomposeEmptySeries(t *testing.T) {
	d := NewDecomposer(logrus.New())

	_, err := d.Decompose(createDailySeries(), 7, 0)
	require.Error(t, err)
}

func TestDecomposeInfersSeasonalPeriod(t *testing.T) {
	d := NewDecomposer(logrus.New())

	// Daily data defaults to a weekly period.
	decomp, err := d.Decompose(createLinearSeries(30, 10, 1), 7, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, decomp.SeasonalPeriod)
}

func TestDecomposeShortSeriesStillDecomposes(t *testing.T) {
	d := NewDecomposer(logrus.New())

	// Shorter than 2 * seasonalPeriod: best-effort, not an error.
	series := createSeasonalSeries(30, 24, 10, 0)
	decomp, err := d.Decompose(series, 7, 24)
	require.NoError(t, err)
	assert.Equal(t, series.Len(), decomp.Trend.Len())
}

func TestDecomposeTrendDirection(t *testing.T) {
	d := NewDecomposer(logrus.New())

	up, err := d.Decompose(createLinearSeries(30, 10, 1), 7, 7)
	require.NoError(t, err)
	assert.Equal(t, "increasing", up.TrendInfo.Direction)
	assert.Greater(t, up.TrendInfo.Slope, 0.0)
	assert.InDelta(t, 1.0, up.TrendInfo.RSquared, 1e-9)

	down, err := d.Decompose(createLinearSeries(30, 50, -1), 7, 7)
	require.NoError(t, err)
	assert.Equal(t, "decreasing", down.TrendInfo.Direction)

	flat, err := d.Decompose(createDailySeries(5, 5, 5, 5, 5, 5, 5, 5), 3, 7)
	require.NoError(t, err)
	assert.Equal(t, "stable", flat.TrendInfo.Direction)
}

func TestDecomposeRecoversSeasonalShape(t *testing.T) {
	d := NewDecomposer(logrus.New())

	// Pure sine with no trend: the seasonal component should carry most of the
	// variance and repeat with the configured period.
	series := createSeasonalSeries(240, 24, 10, 0)
	decomp, err := d.Decompose(series, 25, 24)
	require.NoError(t, err)

	seasonal := decomp.Seasonal.Values()
	for i := 24; i < len(seasonal); i++ {
		assert.InDelta(t, seasonal[i-24], seasonal[i], 1e-6)
	}

	amplitude := 0.0
	for _, v := range seasonal {
		amplitude = math.Max(amplitude, math.Abs(v))
	}
	assert.Greater(t, amplitude, 5.0)
}
