package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 3.0, Mean([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, 0.0, Mean(nil))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3, 2, 4}))
	assert.Equal(t, 2.5, Median([]float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, Median(nil))
}

func TestStdDev(t *testing.T) {
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Equal(t, 0.0, StdDev([]float64{5, 5, 5}))
}

func TestMinMax(t *testing.T) {
	min, max := MinMax([]float64{3, 1, 4, 1, 5})
	assert.Equal(t, 1.0, min)
	assert.Equal(t, 5.0, max)
}

func TestCorrelation(t *testing.T) {
	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Correlation([]float64{1, 2, 3}, []float64{6, 4, 2}), 1e-9)
	assert.Equal(t, 0.0, Correlation([]float64{1, 1, 1}, []float64{1, 2, 3}))
}

func TestLinearRegression(t *testing.T) {
	slope, intercept, r2 := LinearRegression([]float64{10, 12, 14, 16, 18})
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 10.0, intercept, 1e-9)
	assert.InDelta(t, 1.0, r2, 1e-9)
}

func TestLinearRegressionFlat(t *testing.T) {
	slope, _, _ := LinearRegression([]float64{7, 7, 7, 7})
	assert.InDelta(t, 0.0, slope, 1e-12)
}

func TestCriticalValue(t *testing.T) {
	// Large samples converge to the normal z-value.
	assert.InDelta(t, 1.96, CriticalValue(0.95, 1000), 0.01)

	// Small samples use the wider t-value.
	assert.Greater(t, CriticalValue(0.95, 5), CriticalValue(0.95, 1000))
}
