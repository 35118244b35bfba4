package analytics

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/stats"
	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// AnomalyDetector flags points whose z-score against a global or local
// baseline exceeds a threshold.
type AnomalyDetector struct {
	logger *logrus.Logger
}

// NewAnomalyDetector creates a detector.
func NewAnomalyDetector(logger *logrus.Logger) *AnomalyDetector {
	if logger == nil {
		logger = logrus.New()
	}
	return &AnomalyDetector{logger: logger}
}

// Detect flags anomalies. With lookbackWindow <= 0 the baseline is the whole
// series; otherwise each point is scored against the preceding lookbackWindow
// points only (partial history is used before the first full window). A
// zero-variance baseline can produce no anomalies.
func (a *AnomalyDetector) Detect(series *models.TimeSeries, threshold float64, lookbackWindow int) ([]models.Anomaly, error) {
	if series == nil || series.Len() == 0 {
		return nil, errors.NewComputationError(errors.CodeEmptySeries, "cannot detect anomalies on empty series")
	}
	if threshold <= 0 {
		return nil, errors.NewValidationError(errors.CodeOutOfRange, "threshold must be > 0").
			WithContext("threshold", threshold)
	}

	values := series.Values()
	var anomalies []models.Anomaly
	if lookbackWindow <= 0 {
		anomalies = detectGlobal(series, values, threshold)
	} else {
		anomalies = detectLocal(series, values, threshold, lookbackWindow)
	}

	a.logger.WithFields(logrus.Fields{
		"metric_id": series.MetricID,
		"points":    len(values),
		"anomalies": len(anomalies),
		"threshold": threshold,
		"lookback":  lookbackWindow,
	}).Debug("anomaly detection complete")

	return anomalies, nil
}

func detectGlobal(series *models.TimeSeries, values []float64, threshold float64) []models.Anomaly {
	mean := stats.Mean(values)
	std := stats.StdDev(values)
	if std == 0 {
		return nil
	}

	anomalies := make([]models.Anomaly, 0)
	for i, v := range values {
		z := (v - mean) / std
		if math.Abs(z) > threshold {
			anomalies = append(anomalies, models.Anomaly{
				Timestamp: series.Points[i].Timestamp,
				Value:     v,
				ZScore:    z,
				Expected:  mean,
				Index:     i,
			})
		}
	}
	return anomalies
}

func detectLocal(series *models.TimeSeries, values []float64, threshold float64, lookback int) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0)
	for i := 1; i < len(values); i++ {
		lo := i - lookback
		if lo < 0 {
			lo = 0
		}
		window := values[lo:i]

		mean := stats.Mean(window)
		std := stats.StdDev(window)
		if std == 0 {
			continue
		}

		z := (values[i] - mean) / std
		if math.Abs(z) > threshold {
			anomalies = append(anomalies, models.Anomaly{
				Timestamp: series.Points[i].Timestamp,
				Value:     values[i],
				ZScore:    z,
				Expected:  mean,
				Index:     i,
			})
		}
	}
	return anomalies
}
