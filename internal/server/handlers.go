package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/analytics"
	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// Handlers exposes the analytics engine over HTTP.
type Handlers struct {
	engine           *analytics.Engine
	logger           *logrus.Logger
	defaultMaxPoints int
}

// NewHandlers creates the handler set.
func NewHandlers(engine *analytics.Engine, defaultMaxPoints int, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	if defaultMaxPoints <= 0 {
		defaultMaxPoints = 2000
	}
	return &Handlers{engine: engine, logger: logger, defaultMaxPoints: defaultMaxPoints}
}

// seriesMeta describes whether a returned series was reduced for transport.
type seriesMeta struct {
	TotalPoints       int  `json:"totalPoints"`
	DownsampledPoints int  `json:"downsampledPoints"`
	WasDownsampled    bool `json:"wasDownsampled"`
}

type seriesResponse struct {
	Series   *models.TimeSeries       `json:"series"`
	Report   models.ValidationReport  `json:"report"`
	Metadata models.PreprocessMetadata `json:"metadata"`
	Meta     seriesMeta               `json:"meta"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// GetSeries handles GET /api/v1/metrics/{id}/series.
func (h *Handlers) GetSeries(w http.ResponseWriter, r *http.Request) {
	req, err := h.seriesRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.engine.GetSeries(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	series, meta, err := h.maybeDownsample(r, result.Series)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, seriesResponse{
		Series:   series,
		Report:   result.Report,
		Metadata: result.Metadata,
		Meta:     meta,
	})
}

// GetSummary handles GET /api/v1/metrics/{id}/summary.
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	req, err := h.seriesRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.engine.Summary(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetDecomposition handles GET /api/v1/metrics/{id}/decompose.
func (h *Handlers) GetDecomposition(w http.ResponseWriter, r *http.Request) {
	base, err := h.seriesRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	windowSize, err := intParam(r, "window_size", 7)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	seasonalPeriod, err := intParam(r, "seasonal_period", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.engine.Decompose(r.Context(), analytics.DecomposeRequest{
		SeriesRequest:  base,
		WindowSize:     windowSize,
		SeasonalPeriod: seasonalPeriod,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetAnomalies handles GET /api/v1/metrics/{id}/anomalies.
func (h *Handlers) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	base, err := h.seriesRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	threshold, err := floatParam(r, "threshold", 3.0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lookback, err := intParam(r, "lookback_window", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	anomalies, err := h.engine.DetectAnomalies(r.Context(), analytics.AnomalyRequest{
		SeriesRequest:  base,
		Threshold:      threshold,
		LookbackWindow: lookback,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

// GetForecast handles GET /api/v1/metrics/{id}/forecast.
func (h *Handlers) GetForecast(w http.ResponseWriter, r *http.Request) {
	base, err := h.seriesRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	horizon, err := intParam(r, "horizon", 7)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	windowSize, err := intParam(r, "window_size", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	seasonalPeriod, err := intParam(r, "seasonal_period", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	confidence, err := floatParam(r, "confidence_level", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	method := models.ForecastMethod(r.URL.Query().Get("method"))
	if method == "" {
		method = models.MethodAuto
	}

	result, err := h.engine.Forecast(r.Context(), analytics.ForecastRequest{
		SeriesRequest: base,
		Horizon:       horizon,
		Method:        method,
		Options: analytics.ForecastOptions{
			WindowSize:          windowSize,
			SeasonalPeriod:      seasonalPeriod,
			ConfidenceLevel:     confidence,
			ValidateWithHistory: boolParam(r, "validate_with_history"),
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetCorrelation handles GET /api/v1/correlation.
func (h *Handlers) GetCorrelation(w http.ResponseWriter, r *http.Request) {
	start, end, interval, err := rangeParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.engine.Correlate(r.Context(), analytics.CorrelationRequest{
		MetricA:  r.URL.Query().Get("metric_a"),
		MetricB:  r.URL.Query().Get("metric_b"),
		Start:    start,
		End:      end,
		Interval: interval,
		Align:    boolParam(r, "align"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetEntropy handles GET /api/v1/metrics/{id}/entropy.
func (h *Handlers) GetEntropy(w http.ResponseWriter, r *http.Request) {
	base, err := h.seriesRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dim, err := intParam(r, "embedding_dimension", 2)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tolerance, err := floatParam(r, "tolerance", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.engine.Entropy(r.Context(), analytics.EntropyRequest{
		SeriesRequest:      base,
		EmbeddingDimension: dim,
		Tolerance:          tolerance,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// InvalidateCache handles DELETE /api/v1/cache.
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	removed := h.engine.InvalidateCache(r.Context(), pattern)

	h.logger.WithFields(logrus.Fields{
		"pattern": pattern,
		"removed": removed,
	}).Info("cache invalidated")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pattern": pattern,
		"removed": removed,
	})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	var sourceErr string

	if err := h.engine.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		sourceErr = err.Error()
	}

	body := map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"cache":  h.engine.CacheStats(),
	}
	if sourceErr != "" {
		body["source_error"] = sourceErr
	}
	h.writeJSON(w, code, body)
}

// seriesRequest parses the metric id path variable and the shared range
// query parameters.
func (h *Handlers) seriesRequest(r *http.Request) (analytics.SeriesRequest, error) {
	start, end, interval, err := rangeParams(r)
	if err != nil {
		return analytics.SeriesRequest{}, err
	}
	return analytics.SeriesRequest{
		MetricID: mux.Vars(r)["id"],
		Start:    start,
		End:      end,
		Interval: interval,
	}, nil
}

// maybeDownsample reduces the series per max_points / downsample query
// parameters, defaulting to the configured response cap.
func (h *Handlers) maybeDownsample(r *http.Request, series *models.TimeSeries) (*models.TimeSeries, seriesMeta, error) {
	maxPoints, err := intParam(r, "max_points", h.defaultMaxPoints)
	if err != nil {
		return nil, seriesMeta{}, err
	}

	method := analytics.DownsampleMethod(r.URL.Query().Get("downsample"))
	total := series.Len()

	reduced, err := analytics.Downsample(series, maxPoints, method)
	if err != nil {
		return nil, seriesMeta{}, err
	}

	return reduced, seriesMeta{
		TotalPoints:       total,
		DownsampledPoints: reduced.Len(),
		WasDownsampled:    reduced.Len() < total,
	}, nil
}

func rangeParams(r *http.Request) (time.Time, time.Time, time.Duration, error) {
	q := r.URL.Query()

	start, err := timeParam(q.Get("start"), "start")
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	end, err := timeParam(q.Get("end"), "end")
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}

	var interval time.Duration
	if s := q.Get("interval"); s != "" {
		interval, err = models.ParseInterval(s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, err
		}
	}
	return start, end, interval, nil
}

func timeParam(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.NewValidationError(errors.CodeMissingField, name+" is required")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.NewValidationError(errors.CodeInvalidInput,
			name+" must be RFC3339").WithContext(name, value)
	}
	return t, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			name+" must be an integer").WithContext(name, value)
	}
	return n, nil
}

func floatParam(r *http.Request, name string, fallback float64) (float64, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			name+" must be a number").WithContext(name, value)
	}
	return f, nil
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Code: errors.CodeInternalError, Message: "internal server error"}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
		body = errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Context: appErr.Context,
		}
	}

	h.logger.WithFields(logrus.Fields{
		"status":     status,
		"path":       r.URL.Path,
		"request_id": RequestIDFromContext(r.Context()),
	}).WithError(err).Warn("request failed")

	h.writeJSON(w, status, errorResponse{Error: body})
}
