package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/tsengine/internal/analytics"
	"github.com/pulseboard/tsengine/internal/cache"
	"github.com/pulseboard/tsengine/internal/storage"
	"github.com/pulseboard/tsengine/pkg/models"
)

var testBase = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, series ...*models.TimeSeries) *httptest.Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	source := storage.NewMemorySource(logger)
	for _, s := range series {
		source.Put(s)
	}

	memoizer := cache.NewMemoryMemoizer(64, nil, logger)
	engine := analytics.NewEngine(source, memoizer, nil, logger)

	config := NewDefaultConfig()
	srv := New(config, engine, nil, logger)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return ts
}

func dailySeries(metricID string, values ...float64) *models.TimeSeries {
	points := make([]models.DataPoint, len(values))
	for i, v := range values {
		points[i] = models.DataPoint{Timestamp: testBase.Add(time.Duration(i) * 24 * time.Hour), Value: v}
	}
	return &models.TimeSeries{
		MetricID: metricID,
		Points:   points,
		Start:    points[0].Timestamp,
		End:      points[len(points)-1].Timestamp,
		Interval: 24 * time.Hour,
	}
}

func rangeQuery(series *models.TimeSeries) string {
	start := series.Points[0].Timestamp.Format(time.RFC3339)
	end := series.Points[series.Len()-1].Timestamp.Add(time.Second).Format(time.RFC3339)
	return fmt.Sprintf("start=%s&end=%s", start, end)
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestGetSeriesEndpoint(t *testing.T) {
	series := dailySeries("cpu.usage", 10, 20, 30, 40, 50)
	ts := newTestServer(t, series)

	var body seriesResponse
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/metrics/cpu.usage/series?%s", ts.URL, rangeQuery(series)), &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, body.Series.Len())
	assert.Equal(t, 5, body.Meta.TotalPoints)
	assert.False(t, body.Meta.WasDownsampled)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestGetSeriesDownsamples(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i)
	}
	series := dailySeries("big.metric", values...)
	ts := newTestServer(t, series)

	var body seriesResponse
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/metrics/big.metric/series?%s&max_points=10", ts.URL, rangeQuery(series)), &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.LessOrEqual(t, body.Series.Len(), 10)
	assert.Equal(t, 100, body.Meta.TotalPoints)
	assert.Equal(t, body.Series.Len(), body.Meta.DownsampledPoints)
	assert.True(t, body.Meta.WasDownsampled)
}

func TestGetSeriesSinglePointTarget(t *testing.T) {
	series := dailySeries("jumpy", 5, 1, 9, 2, 8, 3, 7, 4, 6, 5)
	ts := newTestServer(t, series)

	for _, method := range []string{"lttb", "min_max", "average", "first_last_significant"} {
		var body seriesResponse
		resp := getJSON(t, fmt.Sprintf("%s/api/v1/metrics/jumpy/series?%s&max_points=1&downsample=%s",
			ts.URL, rangeQuery(series), method), &body)

		assert.Equal(t, http.StatusOK, resp.StatusCode, "method %s", method)
		assert.LessOrEqual(t, body.Series.Len(), 1, "method %s", method)
		assert.True(t, body.Meta.WasDownsampled, "method %s", method)
	}
}

func TestGetSeriesMissingParams(t *testing.T) {
	ts := newTestServer(t)

	var body errorResponse
	resp := getJSON(t, ts.URL+"/api/v1/metrics/cpu.usage/series", &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_FIELD", body.Error.Code)
}

func TestGetSeriesUnknownMetricIs404(t *testing.T) {
	ts := newTestServer(t)

	var body errorResponse
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/metrics/nope/series?start=%s&end=%s",
		ts.URL, testBase.Format(time.RFC3339), testBase.Add(time.Hour).Format(time.RFC3339)), &body)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NO_DATA", body.Error.Code)
}

func TestForecastEndpoint(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 10 + float64(i)
	}
	series := dailySeries("trend.metric", values...)
	ts := newTestServer(t, series)

	var body models.ForecastResult
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/metrics/trend.metric/forecast?%s&horizon=5&method=linear_regression",
		ts.URL, rangeQuery(series)), &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 5, body.Forecast.Len())
	assert.InDelta(t, 40.0, body.Forecast.Points[0].Value, 0.5)
	assert.Equal(t, models.MethodLinearRegression, body.Method)
}

func TestForecastEndpointRejectsBadHorizon(t *testing.T) {
	series := dailySeries("m", 1, 2, 3)
	ts := newTestServer(t, series)

	var body errorResponse
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/metrics/m/forecast?%s&horizon=999", ts.URL, rangeQuery(series)), &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "OUT_OF_RANGE", body.Error.Code)
}

func TestAnomaliesEndpoint(t *testing.T) {
	series := dailySeries("spiky", 1, 1, 1, 1, 1, 1, 1, 1, 1, 50)
	ts := newTestServer(t, series)

	var body struct {
		Anomalies []models.Anomaly `json:"anomalies"`
		Count     int              `json:"count"`
	}
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/metrics/spiky/anomalies?%s&threshold=2.5", ts.URL, rangeQuery(series)), &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, 50.0, body.Anomalies[0].Value)
}

func TestCorrelationEndpoint(t *testing.T) {
	a := dailySeries("metric.a", 1, 2, 3, 4, 5)
	b := dailySeries("metric.b", 2, 4, 6, 8, 10)
	ts := newTestServer(t, a, b)

	var body analytics.CorrelationResult
	resp := getJSON(t, fmt.Sprintf("%s/api/v1/correlation?metric_a=metric.a&metric_b=metric.b&%s", ts.URL, rangeQuery(a)), &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 1.0, body.Coefficient, 1e-9)
}

func TestCacheInvalidationEndpoint(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/cache?pattern=*", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]interface{}
	resp := getJSON(t, ts.URL+"/health", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "cache")
}
