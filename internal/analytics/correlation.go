package analytics

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/tsengine/internal/stats"
	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// Analyzer computes pairwise similarity between series and complexity
// measures for a single series.
type Analyzer struct {
	logger *logrus.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Analyzer{logger: logger}
}

// Correlation returns the Pearson correlation coefficient between two series.
// Without alignment both series must have equal length and are compared
// index-by-index. With alignment, points are matched by nearest timestamp
// within half the smaller series' median sampling interval. A zero-variance
// series yields 0 by convention.
func (a *Analyzer) Correlation(seriesA, seriesB *models.TimeSeries, align bool) (float64, error) {
	if seriesA == nil || seriesA.Len() == 0 || seriesB == nil || seriesB.Len() == 0 {
		return 0, errors.NewComputationError(errors.CodeEmptySeries, "cannot correlate empty series")
	}

	var x, y []float64
	if align {
		var err error
		x, y, err = alignByTimestamp(seriesA, seriesB)
		if err != nil {
			return 0, err
		}
	} else {
		if seriesA.Len() != seriesB.Len() {
			return 0, errors.NewValidationError(errors.CodeLengthMismatch,
				"series lengths differ; pass align=true or equal-length series").
				WithContext("len_a", seriesA.Len()).
				WithContext("len_b", seriesB.Len())
		}
		x = seriesA.Values()
		y = seriesB.Values()
	}

	return stats.Correlation(x, y), nil
}

// SampleEntropy computes the sample entropy (SampEn) of the series:
// the negative log conditional probability that sequences matching for
// embeddingDimension points remain within tolerance for one more point.
// Higher values indicate greater unpredictability. A tolerance <= 0 defaults
// to 0.2 standard deviations of the series.
func (a *Analyzer) SampleEntropy(series *models.TimeSeries, embeddingDimension int, tolerance float64) (float64, error) {
	if series == nil || series.Len() == 0 {
		return 0, errors.NewComputationError(errors.CodeEmptySeries, "cannot compute entropy of empty series")
	}
	if embeddingDimension < 1 {
		return 0, errors.NewValidationError(errors.CodeOutOfRange, "embedding dimension must be >= 1").
			WithContext("embedding_dimension", embeddingDimension)
	}

	values := series.Values()
	n := len(values)
	m := embeddingDimension
	if n < m+2 {
		return 0, errors.NewComputationError(errors.CodeInsufficientData,
			"series too short for the requested embedding dimension").
			WithContext("length", n).
			WithContext("embedding_dimension", m)
	}

	r := tolerance
	if r <= 0 {
		r = 0.2 * stats.StdDev(values)
	}
	if r == 0 {
		// Constant series is perfectly predictable.
		return 0, nil
	}

	// Count template matches for lengths m and m+1.
	a1 := 0 // matches for length m+1
	b := 0  // matches for length m

	for i := 0; i < n-m; i++ {
		for j := i + 1; j < n-m; j++ {
			match := true
			for k := 0; k < m; k++ {
				if math.Abs(values[i+k]-values[j+k]) > r {
					match = false
					break
				}
			}
			if match {
				b++
				if math.Abs(values[i+m]-values[j+m]) <= r {
					a1++
				}
			}
		}
	}

	if b == 0 || a1 == 0 {
		// Standard guard when no matches exist: the largest value SampEn can
		// resolve for this series length.
		return math.Log(float64(n-m)) + math.Log(float64(n-m-1)) - math.Log(2), nil
	}

	return -math.Log(float64(a1) / float64(b)), nil
}

// alignByTimestamp pairs points from the two series by nearest timestamp. The
// matching tolerance derives from the smaller series' sampling interval.
func alignByTimestamp(seriesA, seriesB *models.TimeSeries) ([]float64, []float64, error) {
	small, large := seriesA, seriesB
	if large.Len() < small.Len() {
		small, large = large, small
	}
	swapped := small == seriesB

	tolerance := medianSpacing(small) / 2
	if tolerance <= 0 {
		tolerance = time.Second
	}

	x := make([]float64, 0, small.Len())
	y := make([]float64, 0, small.Len())

	j := 0
	for _, pt := range small.Points {
		// Advance until large[j] is the nearest candidate at or after pt.
		for j < large.Len()-1 && large.Points[j].Timestamp.Before(pt.Timestamp) &&
			absDuration(large.Points[j+1].Timestamp.Sub(pt.Timestamp)) <= absDuration(large.Points[j].Timestamp.Sub(pt.Timestamp)) {
			j++
		}
		if absDuration(large.Points[j].Timestamp.Sub(pt.Timestamp)) <= tolerance {
			x = append(x, pt.Value)
			y = append(y, large.Points[j].Value)
		}
	}

	if len(x) < 2 {
		return nil, nil, errors.NewComputationError(errors.CodeInsufficientData,
			"series share fewer than 2 aligned points").
			WithContext("aligned_points", len(x))
	}

	if swapped {
		return y, x, nil
	}
	return x, y, nil
}

func medianSpacing(series *models.TimeSeries) time.Duration {
	if series.Len() < 2 {
		return series.Interval
	}
	diffs := make([]float64, series.Len()-1)
	for i := 1; i < series.Len(); i++ {
		diffs[i-1] = series.Points[i].Timestamp.Sub(series.Points[i-1].Timestamp).Seconds()
	}
	return time.Duration(stats.Median(diffs) * float64(time.Second))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
