package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/tsengine/internal/cache"
	"github.com/pulseboard/tsengine/internal/storage"
	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

func newTestEngine(t *testing.T, series ...*models.TimeSeries) *Engine {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	source := storage.NewMemorySource(logger)
	for _, s := range series {
		source.Put(s)
	}

	memoizer := cache.NewMemoryMemoizer(64, nil, logger)
	return NewEngine(source, memoizer, nil, logger)
}

func testRange(series *models.TimeSeries) SeriesRequest {
	return SeriesRequest{
		MetricID: series.MetricID,
		Start:    series.Points[0].Timestamp,
		End:      series.Points[series.Len()-1].Timestamp.Add(time.Second),
	}
}

func TestEngineGetSeries(t *testing.T) {
	series := createDailySeries(10, 20, 30, 40, 50)
	engine := newTestEngine(t, series)

	result, err := engine.GetSeries(context.Background(), testRange(series))
	require.NoError(t, err)

	assert.Equal(t, 5, result.Series.Len())
	assert.True(t, result.Report.IsValid)
}

func TestEngineGetSeriesValidatesRequest(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.GetSeries(ctx, SeriesRequest{Start: testBase, End: testBase.Add(time.Hour)})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = engine.GetSeries(ctx, SeriesRequest{
		MetricID: "m", Start: testBase.Add(time.Hour), End: testBase,
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestEngineUnknownMetricIsDependencyError(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.GetSeries(context.Background(), SeriesRequest{
		MetricID: "missing", Start: testBase, End: testBase.Add(time.Hour),
	})
	require.Error(t, err)
	assert.True(t, errors.IsDependency(err))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, errors.CodeNoData, appErr.Code)
}

func TestEngineSummary(t *testing.T) {
	series := createLinearSeries(10, 1, 1)
	engine := newTestEngine(t, series)

	result, err := engine.Summary(context.Background(), testRange(series))
	require.NoError(t, err)

	assert.Equal(t, 10, result.Stats.Count)
	assert.InDelta(t, 5.5, result.Stats.Mean, 1e-9)
	assert.Equal(t, 1.0, result.Stats.Min)
	assert.Equal(t, 10.0, result.Stats.Max)
	assert.Equal(t, "increasing", result.Trend.Direction)
}

func TestEngineDecompose(t *testing.T) {
	series := createSeasonalSeries(96, 24, 10, 0.5)
	engine := newTestEngine(t, series)

	result, err := engine.Decompose(context.Background(), DecomposeRequest{
		SeriesRequest: testRange(series),
		WindowSize:    7,
	})
	require.NoError(t, err)

	assert.Equal(t, series.Len(), result.Trend.Len())
	assert.Equal(t, 24, result.SeasonalPeriod) // inferred for hourly data
}

func TestEngineDetectAnomalies(t *testing.T) {
	series := createDailySeries(1, 1, 1, 1, 1, 1, 1, 1, 1, 50)
	engine := newTestEngine(t, series)

	anomalies, err := engine.DetectAnomalies(context.Background(), AnomalyRequest{
		SeriesRequest: testRange(series),
		Threshold:     2.5,
	})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, 50.0, anomalies[0].Value)
}

func TestEngineForecast(t *testing.T) {
	series := createLinearSeries(30, 10, 1)
	engine := newTestEngine(t, series)

	result, err := engine.Forecast(context.Background(), ForecastRequest{
		SeriesRequest: testRange(series),
		Horizon:       5,
		Method:        models.MethodLinearRegression,
	})
	require.NoError(t, err)
	require.Equal(t, 5, result.Forecast.Len())
	assert.InDelta(t, 40.0, result.Forecast.Points[0].Value, 0.5)
}

func TestEngineCorrelate(t *testing.T) {
	a := createDailySeries(1, 2, 3, 4, 5)
	b := createDailySeries(2, 4, 6, 8, 10)
	b.MetricID = "test.other"
	engine := newTestEngine(t, a, b)

	result, err := engine.Correlate(context.Background(), CorrelationRequest{
		MetricA: a.MetricID,
		MetricB: b.MetricID,
		Start:   a.Points[0].Timestamp,
		End:     a.Points[a.Len()-1].Timestamp.Add(time.Second),
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Coefficient, 1e-9)
	assert.Equal(t, 5, result.Points)
}

func TestEngineEntropy(t *testing.T) {
	series := createSeasonalSeries(100, 24, 10, 0)
	engine := newTestEngine(t, series)

	result, err := engine.Entropy(context.Background(), EntropyRequest{
		SeriesRequest: testRange(series),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.EmbeddingDimension)
	assert.GreaterOrEqual(t, result.Entropy, 0.0)
}

func TestEngineCachesResults(t *testing.T) {
	series := createLinearSeries(20, 1, 1)
	engine := newTestEngine(t, series)
	ctx := context.Background()

	req := testRange(series)
	_, err := engine.Summary(ctx, req)
	require.NoError(t, err)
	_, err = engine.Summary(ctx, req)
	require.NoError(t, err)

	stats := engine.CacheStats()
	assert.Equal(t, int64(1), stats.Hits[cache.NamespaceAnalysis])
	assert.Equal(t, int64(1), stats.Misses[cache.NamespaceAnalysis])
}

func TestEngineInvalidateCache(t *testing.T) {
	series := createLinearSeries(20, 1, 1)
	engine := newTestEngine(t, series)
	ctx := context.Background()

	req := testRange(series)
	_, err := engine.Summary(ctx, req)
	require.NoError(t, err)

	engine.InvalidateCache(ctx, "*")

	_, err = engine.Summary(ctx, req)
	require.NoError(t, err)

	stats := engine.CacheStats()
	assert.Equal(t, int64(0), stats.Hits[cache.NamespaceAnalysis])
	assert.Equal(t, int64(2), stats.Misses[cache.NamespaceAnalysis])
}
