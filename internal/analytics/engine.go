package analytics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/cache"
	"github.com/pulseboard/tsengine/internal/observability/metrics"
	"github.com/pulseboard/tsengine/internal/stats"
	"github.com/pulseboard/tsengine/internal/storage"
	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// Engine orchestrates the analytics pipeline: fetch raw data from the
// configured source, preprocess it, run the requested computation, and cache
// the result under the operation's namespace.
type Engine struct {
	source       storage.TimeSeriesSource
	memoizer     *cache.Memoizer
	preprocessor *Preprocessor
	decomposer   *Decomposer
	detector     *AnomalyDetector
	analyzer     *Analyzer
	forecaster   *Forecaster
	metrics      *metrics.Metrics
	logger       *logrus.Logger
}

// NewEngine wires an engine. A nil memoizer disables caching; a nil metrics
// collector disables instrumentation.
func NewEngine(source storage.TimeSeriesSource, memoizer *cache.Memoizer, m *metrics.Metrics, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if memoizer == nil {
		memoizer = cache.NewMemoryMemoizer(0, nil, logger)
	}
	return &Engine{
		source:       source,
		memoizer:     memoizer,
		preprocessor: NewPreprocessor(logger),
		decomposer:   NewDecomposer(logger),
		detector:     NewAnomalyDetector(logger),
		analyzer:     NewAnalyzer(logger),
		forecaster:   NewForecaster(logger),
		metrics:      m,
		logger:       logger,
	}
}

// SeriesRequest identifies a metric and time range.
type SeriesRequest struct {
	MetricID string        `json:"metric_id"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Interval time.Duration `json:"interval"`
}

// Validate checks the request is well-formed.
func (r SeriesRequest) Validate() error {
	if r.MetricID == "" {
		return errors.NewValidationError(errors.CodeMissingField, "metric_id is required")
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.NewValidationError(errors.CodeMissingField, "start and end are required")
	}
	if !r.Start.Before(r.End) {
		return errors.NewValidationError(errors.CodeInvalidTimeRange, "start must be before end").
			WithContext("start", r.Start.Format(time.RFC3339)).
			WithContext("end", r.End.Format(time.RFC3339))
	}
	return nil
}

func (r SeriesRequest) cacheKey(op string, extra ...interface{}) string {
	parts := append([]interface{}{
		r.MetricID,
		r.Start.UnixNano(),
		r.End.UnixNano(),
		int64(r.Interval),
	}, extra...)
	return cache.Key(op, parts...)
}

// DecomposeRequest parameterizes a trend/seasonal/residual decomposition.
type DecomposeRequest struct {
	SeriesRequest
	WindowSize     int `json:"window_size"`
	SeasonalPeriod int `json:"seasonal_period"`
}

// AnomalyRequest parameterizes z-score anomaly detection.
type AnomalyRequest struct {
	SeriesRequest
	Threshold      float64 `json:"threshold"`
	LookbackWindow int     `json:"lookback_window"`
}

// ForecastRequest parameterizes a forecast.
type ForecastRequest struct {
	SeriesRequest
	Horizon int                   `json:"horizon"`
	Method  models.ForecastMethod `json:"method"`
	Options ForecastOptions       `json:"options"`
}

// CorrelationRequest parameterizes pairwise correlation between two metrics
// over a shared time range.
type CorrelationRequest struct {
	MetricA  string        `json:"metric_a"`
	MetricB  string        `json:"metric_b"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Interval time.Duration `json:"interval"`
	Align    bool          `json:"align"`
}

// EntropyRequest parameterizes a sample-entropy computation.
type EntropyRequest struct {
	SeriesRequest
	EmbeddingDimension int     `json:"embedding_dimension"`
	Tolerance          float64 `json:"tolerance"`
}

// SummaryResult bundles descriptive statistics with a linear trend summary.
type SummaryResult struct {
	Stats models.BasicStats `json:"stats"`
	Trend models.TrendInfo  `json:"trend"`
}

// CorrelationResult reports a correlation coefficient and how many points it
// was computed from.
type CorrelationResult struct {
	Coefficient float64 `json:"coefficient"`
	Points      int     `json:"points"`
}

// EntropyResult reports a sample-entropy value and its parameters.
type EntropyResult struct {
	Entropy            float64 `json:"entropy"`
	EmbeddingDimension int     `json:"embedding_dimension"`
	Tolerance          float64 `json:"tolerance"`
}

// GetSeries fetches and preprocesses a metric, caching the cleaned series.
func (e *Engine) GetSeries(ctx context.Context, req SeriesRequest) (*models.PreprocessResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return e.fetchAndPreprocess(ctx, req)
}

// Summary returns descriptive statistics and trend direction for a metric.
func (e *Engine) Summary(ctx context.Context, req SeriesRequest) (*SummaryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result SummaryResult
	err := e.instrumented(ctx, "summary", cache.NamespaceAnalysis, req.cacheKey("summary"), &result, func() (interface{}, error) {
		pre, err := e.fetchAndPreprocess(ctx, req)
		if err != nil {
			return nil, err
		}

		values := pre.Series.Values()
		min, max := stats.MinMax(values)
		slope, intercept, r2 := stats.LinearRegression(values)

		return &SummaryResult{
			Stats: models.BasicStats{
				Count:  len(values),
				Mean:   stats.Mean(values),
				Median: stats.Median(values),
				StdDev: stats.StdDev(values),
				Min:    min,
				Max:    max,
			},
			Trend: trendInfo(slope, intercept, r2, values),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Decompose splits a metric into trend, seasonal, and residual components.
func (e *Engine) Decompose(ctx context.Context, req DecomposeRequest) (*models.Decomposition, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := req.cacheKey("decompose", req.WindowSize, req.SeasonalPeriod)
	var result models.Decomposition
	err := e.instrumented(ctx, "decompose", cache.NamespaceDecomposition, key, &result, func() (interface{}, error) {
		pre, err := e.fetchAndPreprocess(ctx, req.SeriesRequest)
		if err != nil {
			return nil, err
		}
		return e.decomposer.Decompose(pre.Series, req.WindowSize, req.SeasonalPeriod)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DetectAnomalies flags points deviating from a global or rolling baseline.
func (e *Engine) DetectAnomalies(ctx context.Context, req AnomalyRequest) ([]models.Anomaly, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := req.cacheKey("anomalies", req.Threshold, req.LookbackWindow)
	var result []models.Anomaly
	err := e.instrumented(ctx, "anomalies", cache.NamespaceAnalysis, key, &result, func() (interface{}, error) {
		pre, err := e.fetchAndPreprocess(ctx, req.SeriesRequest)
		if err != nil {
			return nil, err
		}

		anomalies, err := e.detector.Detect(pre.Series, req.Threshold, req.LookbackWindow)
		if err != nil {
			return nil, err
		}
		if anomalies == nil {
			anomalies = []models.Anomaly{}
		}
		return anomalies, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Forecast predicts future points for a metric.
func (e *Engine) Forecast(ctx context.Context, req ForecastRequest) (*models.ForecastResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := req.cacheKey("forecast", req.Horizon, string(req.Method),
		req.Options.WindowSize, req.Options.SeasonalPeriod, req.Options.ConfidenceLevel, req.Options.ValidateWithHistory)
	var result models.ForecastResult
	err := e.instrumented(ctx, "forecast", cache.NamespaceForecast, key, &result, func() (interface{}, error) {
		pre, err := e.fetchAndPreprocess(ctx, req.SeriesRequest)
		if err != nil {
			return nil, err
		}
		return e.forecaster.Forecast(pre.Series, req.Horizon, req.Method, req.Options)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Correlate computes the Pearson correlation between two metrics over the
// same range.
func (e *Engine) Correlate(ctx context.Context, req CorrelationRequest) (*CorrelationResult, error) {
	if req.MetricA == "" || req.MetricB == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "metric_a and metric_b are required")
	}
	base := SeriesRequest{MetricID: req.MetricA, Start: req.Start, End: req.End, Interval: req.Interval}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key("correlate", req.MetricA, req.MetricB,
		req.Start.UnixNano(), req.End.UnixNano(), int64(req.Interval), req.Align)
	var result CorrelationResult
	err := e.instrumented(ctx, "correlate", cache.NamespaceAnalysis, key, &result, func() (interface{}, error) {
		preA, err := e.fetchAndPreprocess(ctx, base)
		if err != nil {
			return nil, err
		}
		preB, err := e.fetchAndPreprocess(ctx, SeriesRequest{
			MetricID: req.MetricB, Start: req.Start, End: req.End, Interval: req.Interval,
		})
		if err != nil {
			return nil, err
		}

		coeff, err := e.analyzer.Correlation(preA.Series, preB.Series, req.Align)
		if err != nil {
			return nil, err
		}
		points := preA.Series.Len()
		if preB.Series.Len() < points {
			points = preB.Series.Len()
		}
		return &CorrelationResult{Coefficient: coeff, Points: points}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Entropy computes the sample entropy of a metric.
func (e *Engine) Entropy(ctx context.Context, req EntropyRequest) (*EntropyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.EmbeddingDimension == 0 {
		req.EmbeddingDimension = 2
	}

	key := req.cacheKey("entropy", req.EmbeddingDimension, req.Tolerance)
	var result EntropyResult
	err := e.instrumented(ctx, "entropy", cache.NamespaceAnalysis, key, &result, func() (interface{}, error) {
		pre, err := e.fetchAndPreprocess(ctx, req.SeriesRequest)
		if err != nil {
			return nil, err
		}

		entropy, err := e.analyzer.SampleEntropy(pre.Series, req.EmbeddingDimension, req.Tolerance)
		if err != nil {
			return nil, err
		}
		return &EntropyResult{
			Entropy:            entropy,
			EmbeddingDimension: req.EmbeddingDimension,
			Tolerance:          req.Tolerance,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// InvalidateCache removes cached results matching a glob pattern; empty or
// "*" clears everything. Returns the number of entries removed (0 for a full
// clear).
func (e *Engine) InvalidateCache(ctx context.Context, pattern string) int {
	return e.memoizer.Invalidate(ctx, pattern)
}

// CacheStats reports per-namespace hit/miss counts.
func (e *Engine) CacheStats() cache.Stats {
	return e.memoizer.Stats()
}

// Ping verifies the data source is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.source.Ping(ctx)
}

// fetchAndPreprocess pulls raw data and cleans it with default options. The
// cleaned series is cached so sibling operations on the same range share one
// fetch.
func (e *Engine) fetchAndPreprocess(ctx context.Context, req SeriesRequest) (*models.PreprocessResult, error) {
	var result models.PreprocessResult
	err := e.cached(ctx, cache.NamespaceRawSeries, req.cacheKey("series"), &result, func() (interface{}, error) {
		started := time.Now()
		raw, err := e.source.GetTimeSeries(ctx, req.MetricID, req.Start, req.End, req.Interval)
		e.recordStorage(err, time.Since(started))
		if err != nil {
			return nil, err
		}

		pre := e.preprocessor.Process(raw, DefaultPreprocessOptions())
		if !pre.Report.IsValid {
			return nil, errors.NewComputationError(errors.CodeInsufficientData,
				"series unusable after preprocessing").
				WithContext("metric_id", req.MetricID).
				WithContext("errors", pre.Report.Errors)
		}
		return pre, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// instrumented wraps cached with operation metrics.
func (e *Engine) instrumented(ctx context.Context, op string, ns cache.Namespace, key string, dest interface{}, compute func() (interface{}, error)) error {
	started := time.Now()
	err := e.cached(ctx, ns, key, dest, compute)

	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordOperation(op, status, time.Since(started))
	}
	return err
}

func (e *Engine) cached(ctx context.Context, ns cache.Namespace, key string, dest interface{}, compute func() (interface{}, error)) error {
	before := e.memoizer.Stats()
	err := e.memoizer.GetOrCompute(ctx, ns, key, dest, compute)

	if e.metrics != nil {
		after := e.memoizer.Stats()
		if after.Hits[ns] > before.Hits[ns] {
			e.metrics.RecordCacheHit(string(ns))
		} else if after.Misses[ns] > before.Misses[ns] {
			e.metrics.RecordCacheMiss(string(ns))
		}
	}
	return err
}

func (e *Engine) recordStorage(err error, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordStorageQuery("source", status, duration)
}
