package analytics

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allDownsampleMethods = []DownsampleMethod{
	DownsampleLTTB,
	DownsampleMinMax,
	DownsampleAverage,
	DownsampleFirstLastSignificant,
}

func TestDownsampleUnderCapReturnsUnchanged(t *testing.T) {
	series := createDailySeries(1, 2, 3, 4, 5)

	for _, method := range allDownsampleMethods {
		out, err := Downsample(series, 10, method)
		require.NoError(t, err, "method %s", method)
		assert.Equal(t, series, out, "method %s", method)
	}
}

func TestDownsampleRespectsMaxPoints(t *testing.T) {
	series := createSeasonalSeries(500, 24, 10, 0.1)

	for _, method := range allDownsampleMethods {
		out, err := Downsample(series, 50, method)
		require.NoError(t, err, "method %s", method)
		assert.LessOrEqual(t, out.Len(), 50, "method %s", method)
		assert.Greater(t, out.Len(), 0, "method %s", method)
	}
}

func TestDownsampleTinyTargets(t *testing.T) {
	// Alternating values make every interior point significant, so the
	// trimming paths of each method are exercised.
	series := createDailySeries(5, 1, 9, 2, 8, 3, 7, 4, 6, 5)

	for _, method := range allDownsampleMethods {
		for _, maxPoints := range []int{1, 2} {
			out, err := Downsample(series, maxPoints, method)
			require.NoError(t, err, "method %s max %d", method, maxPoints)
			assert.LessOrEqual(t, out.Len(), maxPoints, "method %s max %d", method, maxPoints)
			assert.Greater(t, out.Len(), 0, "method %s max %d", method, maxPoints)
		}
	}
}

func TestDownsamplePreservesTimeOrder(t *testing.T) {
	series := createSeasonalSeries(300, 24, 10, 0)

	for _, method := range allDownsampleMethods {
		out, err := Downsample(series, 40, method)
		require.NoError(t, err, "method %s", method)

		sorted := sort.SliceIsSorted(out.Points, func(i, j int) bool {
			return out.Points[i].Timestamp.Before(out.Points[j].Timestamp)
		})
		assert.True(t, sorted, "method %s", method)
	}
}

func TestDownsampleLTTBKeepsEndpoints(t *testing.T) {
	series := createSeasonalSeries(200, 24, 10, 0.2)

	out, err := Downsample(series, 20, DownsampleLTTB)
	require.NoError(t, err)

	require.Equal(t, 20, out.Len())
	assert.Equal(t, series.Points[0], out.Points[0])
	assert.Equal(t, series.Points[series.Len()-1], out.Points[out.Len()-1])
}

func TestDownsampleMinMaxKeepsExtremes(t *testing.T) {
	series := createSeasonalSeries(240, 24, 10, 0)

	out, err := Downsample(series, 40, DownsampleMinMax)
	require.NoError(t, err)

	var globalMin, globalMax float64
	for i, p := range series.Points {
		if i == 0 || p.Value < globalMin {
			globalMin = p.Value
		}
		if i == 0 || p.Value > globalMax {
			globalMax = p.Value
		}
	}

	values := out.Values()
	assert.Contains(t, values, globalMin)
	assert.Contains(t, values, globalMax)
}

func TestDownsampleDefaultsToLTTB(t *testing.T) {
	series := createSeasonalSeries(200, 24, 10, 0)

	byDefault, err := Downsample(series, 20, "")
	require.NoError(t, err)
	byName, err := Downsample(series, 20, DownsampleLTTB)
	require.NoError(t, err)

	assert.Equal(t, byName.Points, byDefault.Points)
}

func TestDownsampleInvalidInputs(t *testing.T) {
	series := createDailySeries(1, 2, 3, 4, 5)

	_, err := Downsample(series, 0, DownsampleLTTB)
	require.Error(t, err)

	big := createSeasonalSeries(100, 24, 10, 0)
	_, err = Downsample(big, 10, "decimate")
	require.Error(t, err)
}

func TestDownsampleFirstLastSignificantKeepsEndpoints(t *testing.T) {
	series := createSeasonalSeries(200, 24, 10, 0)

	out, err := Downsample(series, 30, DownsampleFirstLastSignificant)
	require.NoError(t, err)

	require.GreaterOrEqual(t, out.Len(), 2)
	assert.Equal(t, series.Points[0], out.Points[0])
	assert.Equal(t, series.Points[series.Len()-1], out.Points[out.Len()-1])
	assert.LessOrEqual(t, out.Len(), 30)
}
