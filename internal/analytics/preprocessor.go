package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/stats"
	"github.com/pulseboard/tsengine/pkg/models"
)

const (
	// DefaultOutlierThreshold is the z-score beyond which a point is an outlier.
	DefaultOutlierThreshold = 3.0

	// spacing coefficient-of-variation above which a series is irregular
	regularityTolerance = 0.1

	// a gap is a spacing larger than this multiple of the nominal interval
	gapFactor = 1.5
)

// PreprocessOptions control the cleaning steps. All steps toggle independently.
type PreprocessOptions struct {
	FillMissingValues   bool          `json:"fill_missing_values"`
	RemoveOutliers      bool          `json:"remove_outliers"`
	OutlierThreshold    float64       `json:"outlier_threshold"`
	NormalizeTimestamps bool          `json:"normalize_timestamps"`
	ExpectedInterval    time.Duration `json:"expected_interval"`
}

// DefaultPreprocessOptions returns the options used when a caller supplies none.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		FillMissingValues: true,
		OutlierThreshold:  DefaultOutlierThreshold,
	}
}

// Preprocessor validates and cleans a raw series before analysis.
type Preprocessor struct {
	logger *logrus.Logger
}

// NewPreprocessor creates a preprocessor.
func NewPreprocessor(logger *logrus.Logger) *Preprocessor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Preprocessor{logger: logger}
}

// Process validates and cleans the series. Invalid points and duplicate
// timestamps become validation-report entries rather than silent drops;
// IsValid goes false only for unrecoverable input (empty, or fewer than two
// usable points).
func (p *Preprocessor) Process(series *models.TimeSeries, opts PreprocessOptions) *models.PreprocessResult {
	if opts.OutlierThreshold <= 0 {
		opts.OutlierThreshold = DefaultOutlierThreshold
	}

	result := &models.PreprocessResult{
		Series: series,
		Report: models.ValidationReport{IsValid: true},
	}
	result.Metadata.OriginalLength = series.Len()

	if series.Len() == 0 {
		result.Report.IsValid = false
		result.Report.Errors = append(result.Report.Errors, "empty time series")
		return result
	}

	points := p.validatePoints(series.Points, &result.Report)
	if len(points) < 2 {
		result.Report.IsValid = false
		result.Report.Errors = append(result.Report.Errors, "fewer than 2 usable points")
		result.Series = seriesWith(series, points)
		result.Metadata.ProcessedLength = len(points)
		return result
	}

	intervals := spacings(points)
	result.Metadata.Intervals = intervalStats(intervals)

	// Median spacing resists a single outlier gap skewing the estimate.
	interval := opts.ExpectedInterval
	if interval <= 0 {
		interval = result.Metadata.Intervals.Median
	}
	if opts.ExpectedInterval > 0 && result.Metadata.Intervals.Median > 0 {
		ratio := float64(result.Metadata.Intervals.Median) / float64(opts.ExpectedInterval)
		if ratio > 1.05 || ratio < 0.95 {
			result.Report.Warnings = append(result.Report.Warnings,
				fmt.Sprintf("detected interval %s differs from expected %s",
					result.Metadata.Intervals.Median, opts.ExpectedInterval))
		}
	}

	if opts.NormalizeTimestamps && interval > 0 {
		points = normalizeTimestamps(points, interval)
	}

	if gaps := countGaps(points, interval); gaps > 0 {
		result.Metadata.HasMissingValues = true
		result.Report.Warnings = append(result.Report.Warnings,
			fmt.Sprintf("%d gap(s) detected at interval %s", gaps, interval))
		if opts.FillMissingValues && interval > 0 {
			var filled int
			points, filled = fillGaps(points, interval)
			result.Metadata.FilledPoints = filled
		}
	}

	points, outliers := p.handleOutliers(points, opts, &result.Report)
	if outliers > 0 {
		result.Metadata.HasOutliers = true
		if opts.RemoveOutliers {
			result.Metadata.RemovedOutliers = outliers
			// Excised outliers leave gaps; refill through the missing-value path.
			if opts.FillMissingValues && interval > 0 {
				var filled int
				points, filled = fillGaps(points, interval)
				result.Metadata.FilledPoints += filled
			}
		}
	}

	out := seriesWith(series, points)
	out.Interval = interval
	result.Series = out
	result.Metadata.ProcessedLength = len(points)

	p.logger.WithFields(logrus.Fields{
		"metric_id": series.MetricID,
		"original":  result.Metadata.OriginalLength,
		"processed": result.Metadata.ProcessedLength,
		"filled":    result.Metadata.FilledPoints,
		"outliers":  outliers,
	}).Debug("preprocessed series")

	return result
}

// validatePoints drops points with zero timestamps, non-finite values or
// duplicate timestamps, recording each as a validation error, and returns the
// remainder sorted ascending.
func (p *Preprocessor) validatePoints(in []models.DataPoint, report *models.ValidationReport) []models.DataPoint {
	points := make([]models.DataPoint, 0, len(in))
	for i, pt := range in {
		switch {
		case pt.Timestamp.IsZero():
			report.Errors = append(report.Errors, fmt.Sprintf("point %d: missing timestamp", i))
		case math.IsNaN(pt.Value) || math.IsInf(pt.Value, 0):
			report.Errors = append(report.Errors, fmt.Sprintf("point %d: non-finite value", i))
		default:
			points = append(points, pt)
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	deduped := points[:0]
	for i, pt := range points {
		if i > 0 && pt.Timestamp.Equal(points[i-1].Timestamp) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("duplicate timestamp %s", pt.Timestamp.Format(time.RFC3339)))
			continue
		}
		deduped = append(deduped, pt)
	}
	return deduped
}

func (p *Preprocessor) handleOutliers(points []models.DataPoint, opts PreprocessOptions, report *models.ValidationReport) ([]models.DataPoint, int) {
	values := make([]float64, len(points))
	for i, pt := range points {
		values[i] = pt.Value
	}

	mean := stats.Mean(values)
	std := stats.StdDev(values)
	if std == 0 {
		// Constant series: no outliers by definition.
		return points, 0
	}

	outliers := 0
	kept := make([]models.DataPoint, 0, len(points))
	for _, pt := range points {
		if math.Abs(pt.Value-mean) > opts.OutlierThreshold*std {
			outliers++
			if opts.RemoveOutliers {
				continue
			}
		}
		kept = append(kept, pt)
	}

	if outliers > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d outlier(s) beyond %.1f standard deviations", outliers, opts.OutlierThreshold))
	}
	return kept, outliers
}

func spacings(points []models.DataPoint) []time.Duration {
	if len(points) < 2 {
		return nil
	}
	out := make([]time.Duration, len(points)-1)
	for i := 1; i < len(points); i++ {
		out[i-1] = points[i].Timestamp.Sub(points[i-1].Timestamp)
	}
	return out
}

func intervalStats(intervals []time.Duration) models.IntervalStats {
	if len(intervals) == 0 {
		return models.IntervalStats{IsRegular: true}
	}

	seconds := make([]float64, len(intervals))
	for i, d := range intervals {
		seconds[i] = d.Seconds()
	}

	mean := stats.Mean(seconds)
	min, max := stats.MinMax(seconds)
	median := stats.Median(seconds)

	isRegular := true
	if mean > 0 {
		isRegular = stats.StdDev(seconds)/mean <= regularityTolerance
	}

	return models.IntervalStats{
		Mean:      time.Duration(mean * float64(time.Second)),
		Min:       time.Duration(min * float64(time.Second)),
		Max:       time.Duration(max * float64(time.Second)),
		Median:    time.Duration(median * float64(time.Second)),
		IsRegular: isRegular,
	}
}

func countGaps(points []models.DataPoint, interval time.Duration) int {
	if interval <= 0 {
		return 0
	}
	gaps := 0
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp.Sub(points[i-1].Timestamp) > time.Duration(gapFactor*float64(interval)) {
			gaps++
		}
	}
	return gaps
}

// fillGaps inserts points at the expected interval inside detected gaps,
// interpolating linearly between the neighboring known values. When
// interpolation is impossible the series mean is used instead.
func fillGaps(points []models.DataPoint, interval time.Duration) ([]models.DataPoint, int) {
	if len(points) < 2 || interval <= 0 {
		return points, 0
	}

	values := make([]float64, len(points))
	for i, pt := range points {
		values[i] = pt.Value
	}
	mean := stats.Mean(values)

	out := make([]models.DataPoint, 0, len(points))
	filled := 0
	out = append(out, points[0])

	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		curr := points[i]
		gap := curr.Timestamp.Sub(prev.Timestamp)

		if gap > time.Duration(gapFactor*float64(interval)) {
			span := gap.Seconds()
			for t := prev.Timestamp.Add(interval); curr.Timestamp.Sub(t) >= interval/2; t = t.Add(interval) {
				frac := t.Sub(prev.Timestamp).Seconds() / span
				value := prev.Value + frac*(curr.Value-prev.Value)
				if math.IsNaN(value) || math.IsInf(value, 0) {
					value = mean
				}
				out = append(out, models.DataPoint{Timestamp: t, Value: value})
				filled++
			}
		}
		out = append(out, curr)
	}

	return out, filled
}

// normalizeTimestamps snaps each timestamp to the nearest multiple of the
// interval from the first point.
func normalizeTimestamps(points []models.DataPoint, interval time.Duration) []models.DataPoint {
	out := make([]models.DataPoint, len(points))
	base := points[0].Timestamp
	for i, pt := range points {
		offset := pt.Timestamp.Sub(base)
		snapped := time.Duration(math.Round(float64(offset)/float64(interval))) * interval
		out[i] = models.DataPoint{Timestamp: base.Add(snapped), Value: pt.Value}
	}
	return out
}

func seriesWith(src *models.TimeSeries, points []models.DataPoint) *models.TimeSeries {
	out := &models.TimeSeries{
		MetricID: src.MetricID,
		Points:   points,
		Start:    src.Start,
		End:      src.End,
		Interval: src.Interval,
	}
	if len(points) > 0 {
		if out.Start.IsZero() {
			out.Start = points[0].Timestamp
		}
		if out.End.IsZero() {
			out.End = points[len(points)-1].Timestamp
		}
	}
	return out
}
