package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DataPoint is a single timestamped observation.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeSeries is an ordered sequence of data points for one metric. Points are
// non-decreasing in timestamp and fall within [Start, End].
type TimeSeries struct {
	MetricID string        `json:"metric_id"`
	Points   []DataPoint   `json:"points"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Interval time.Duration `json:"interval"`
}

// Len returns the number of points.
func (ts *TimeSeries) Len() int {
	return len(ts.Points)
}

// Values returns the point values as a slice.
func (ts *TimeSeries) Values() []float64 {
	values := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		values[i] = p.Value
	}
	return values
}

// Timestamps returns the point timestamps as a slice.
func (ts *TimeSeries) Timestamps() []time.Time {
	timestamps := make([]time.Time, len(ts.Points))
	for i, p := range ts.Points {
		timestamps[i] = p.Timestamp
	}
	return timestamps
}

// Clone returns a deep copy of the series.
func (ts *TimeSeries) Clone() *TimeSeries {
	points := make([]DataPoint, len(ts.Points))
	copy(points, ts.Points)
	out := *ts
	out.Points = points
	return &out
}

// ParseInterval parses a frequency string such as "30s", "5m", "1h", "1d" or
// "1w" into a duration. Days and weeks are not supported by time.ParseDuration
// and are handled here.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}

	unit := s[len(s)-1:]
	switch unit {
	case "d", "w":
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		if unit == "d" {
			return time.Duration(n) * 24 * time.Hour, nil
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

// DefaultSeasonalPeriod infers a seasonal period from the nominal sampling
// interval: hourly data gets a daily cycle (24), daily data a weekly cycle
// (7), weekly data a yearly cycle (52), monthly data 12. Anything else
// defaults to 7.
func DefaultSeasonalPeriod(interval time.Duration) int {
	day := 24 * time.Hour
	switch {
	case interval <= 0:
		return 7
	case interval <= time.Hour:
		return 24
	case interval <= day:
		return 7
	case interval <= 7*day:
		return 52
	case interval <= 31*day:
		return 12
	default:
		return 7
	}
}

// ValidationReport describes the outcome of preprocessing validation.
// IsValid is false only for unrecoverable input; recoverable issues (gaps,
// outliers) are warnings.
type ValidationReport struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// IntervalStats summarizes the spacing between consecutive timestamps.
type IntervalStats struct {
	Mean      time.Duration `json:"mean"`
	Min       time.Duration `json:"min"`
	Max       time.Duration `json:"max"`
	Median    time.Duration `json:"median"`
	IsRegular bool          `json:"is_regular"`
}

// PreprocessMetadata describes what preprocessing changed.
type PreprocessMetadata struct {
	OriginalLength   int           `json:"original_length"`
	ProcessedLength  int           `json:"processed_length"`
	HasMissingValues bool          `json:"has_missing_values"`
	HasOutliers      bool          `json:"has_outliers"`
	FilledPoints     int           `json:"filled_points"`
	RemovedOutliers  int           `json:"removed_outliers"`
	Intervals        IntervalStats `json:"intervals"`
}

// PreprocessResult is a cleaned series together with its validation report.
type PreprocessResult struct {
	Series   *TimeSeries        `json:"series"`
	Report   ValidationReport   `json:"report"`
	Metadata PreprocessMetadata `json:"metadata"`
}

// BasicStats contains descriptive statistics for a series.
type BasicStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// TrendInfo summarizes the linear fit of a series.
type TrendInfo struct {
	Direction string  `json:"direction"` // "increasing", "decreasing", "stable"
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
}

// Decomposition holds the additive components of a series. The four series
// are parallel: equal length, aligned timestamps, and
// Original[i] = Trend[i] + Seasonal[i] + Residual[i] for every i.
type Decomposition struct {
	Trend          *TimeSeries `json:"trend"`
	Seasonal       *TimeSeries `json:"seasonal"`
	Residual       *TimeSeries `json:"residual"`
	Original       *TimeSeries `json:"original"`
	SeasonalPeriod int         `json:"seasonal_period"`
	WindowSize     int         `json:"window_size"`
	TrendInfo      TrendInfo   `json:"trend_info"`
}

// Anomaly is a point whose deviation from the baseline exceeded the
// detection threshold.
type Anomaly struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	ZScore    float64   `json:"z_score"`
	Expected  float64   `json:"expected"`
	Index     int       `json:"index"`
}
