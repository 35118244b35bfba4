package analytics

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAnomaliesGlobal(t *testing.T) {
	d := NewAnomalyDetector(logrus.New())

	series := createDailySeries(1, 1, 1, 1, 1, 1, 1, 1, 1, 50)
	anomalies, err := d.Detect(series, 2.5, 0)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	assert.Equal(t, 9, anomalies[0].Index)
	assert.Equal(t, 50.0, anomalies[0].Value)
	assert.Greater(t, anomalies[0].ZScore, 2.5)
}

func TestDetectAnomaliesConstantSeries(t *testing.T) {
	d := NewAnomalyDetector(logrus.New())

	series := createDailySeries(7, 7, 7, 7, 7, 7, 7, 7)

	for _, threshold := range []float64{0.5, 1, 3, 10} {
		anomalies, err := d.Detect(series, threshold, 0)
		require.NoError(t, err)
		assert.Empty(t, anomalies)
	}
}

func TestDetectAnomaliesLocalWindow(t *testing.T) {
	d := NewAnomalyDetector(logrus.New())

	// Level shift: normal around 10, then a spike against the local baseline.
	series := createDailySeries(10, 11, 9, 10, 11, 9, 10, 11, 9, 10, 100)
	anomalies, err := d.Detect(series, 3.0, 5)
	require.NoError(t, err)

	require.NotEmpty(t, anomalies)
	last := anomalies[len(anomalies)-1]
	assert.Equal(t, 10, last.Index)
	assert.Equal(t, 100.0, last.Value)
}

func TestDetectAnomaliesInvalidThreshold(t *testing.T) {
	d := NewAnomalyDetector(logrus.New())

	_, err := d.Detect(createDailySeries(1, 2, 3), 0, 0)
	require.Error(t, err)

	_, err = d.Detect(createDailySeries(1, 2, 3), -1, 0)
	require.Error(t, err)
}

func TestDetectAnomaliesEmptySeries(t *testing.T) {
	d := NewAnomalyDetector(logrus.New())

	_, err := d.Detect(createDailySeries(), 3.0, 0)
	require.Error(t, err)
}

func TestDetectAnomaliesZeroVarianceWindow(t *testing.T) {
	d := NewAnomalyDetector(logrus.New())

	// The first windows are constant; detection must not divide by zero.
	series := createDailySeries(5, 5, 5, 5, 5, 5, 20, 5, 5, 5)
	anomalies, err := d.Detect(series, 2.0, 3)
	require.NoError(t, err)

	for _, a := range anomalies {
		assert.NotEqual(t, 0, a.Index)
	}
}
