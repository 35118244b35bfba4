package analytics

import (
	"math"
	"sort"

	"github.com/pulseboard/tsengine/pkg/errors"
	"github.com/pulseboard/tsengine/pkg/models"
)

// DownsampleMethod selects a point-reduction strategy.
type DownsampleMethod string

const (
	// DownsampleLTTB is Largest-Triangle-Three-Buckets, preserving visual shape.
	DownsampleLTTB DownsampleMethod = "lttb"
	// DownsampleMinMax keeps both extremes per bucket.
	DownsampleMinMax DownsampleMethod = "min_max"
	// DownsampleAverage keeps the bucket mean.
	DownsampleAverage DownsampleMethod = "average"
	// DownsampleFirstLastSignificant keeps endpoints plus points whose local
	// change is significant relative to the series range.
	DownsampleFirstLastSignificant DownsampleMethod = "first_last_significant"
)

// significance threshold for first_last_significant, as a fraction of range
const significantChangeFraction = 0.05

// Downsample reduces the series to at most maxPoints using the given method.
// A series already at or under the target is returned unchanged.
func Downsample(series *models.TimeSeries, maxPoints int, method DownsampleMethod) (*models.TimeSeries, error) {
	if maxPoints <= 0 {
		return nil, errors.NewValidationError(errors.CodeOutOfRange, "maxPoints must be > 0").
			WithContext("max_points", maxPoints)
	}
	if series == nil || series.Len() <= maxPoints {
		return series, nil
	}

	var points []models.DataPoint
	switch method {
	case DownsampleLTTB, "":
		if maxPoints < 3 {
			points = averageBuckets(series.Points, maxPoints)
		} else {
			points = lttb(series.Points, maxPoints)
		}
	case DownsampleMinMax:
		if maxPoints < 2 {
			points = averageBuckets(series.Points, maxPoints)
		} else {
			points = minMaxBuckets(series.Points, maxPoints)
		}
	case DownsampleAverage:
		points = averageBuckets(series.Points, maxPoints)
	case DownsampleFirstLastSignificant:
		if maxPoints < 2 {
			points = averageBuckets(series.Points, maxPoints)
		} else {
			points = firstLastSignificant(series.Points, maxPoints)
		}
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidMethod, "unknown downsample method").
			WithContext("method", string(method))
	}

	out := series.Clone()
	out.Points = points
	return out, nil
}

// lttb implements Largest-Triangle-Three-Buckets: the first and last points
// are fixed; every interior bucket keeps the point forming the largest
// triangle with the previously selected point and the next bucket's average.
func lttb(points []models.DataPoint, threshold int) []models.DataPoint {
	n := len(points)
	sampled := make([]models.DataPoint, 0, threshold)
	sampled = append(sampled, points[0])

	bucketSize := float64(n-2) / float64(threshold-2)
	prevIdx := 0

	for i := 0; i < threshold-2; i++ {
		bucketStart := int(math.Floor(float64(i)*bucketSize)) + 1
		bucketEnd := int(math.Floor(float64(i+1)*bucketSize)) + 1
		if bucketEnd >= n-1 {
			bucketEnd = n - 1
		}

		// Average of the next bucket is the third triangle vertex.
		nextStart := bucketEnd
		nextEnd := int(math.Floor(float64(i+2)*bucketSize)) + 1
		if nextEnd >= n {
			nextEnd = n
		}
		avgX, avgY := 0.0, 0.0
		for j := nextStart; j < nextEnd; j++ {
			avgX += float64(points[j].Timestamp.UnixNano())
			avgY += points[j].Value
		}
		count := float64(nextEnd - nextStart)
		if count > 0 {
			avgX /= count
			avgY /= count
		}

		prevX := float64(points[prevIdx].Timestamp.UnixNano())
		prevY := points[prevIdx].Value

		maxArea := -1.0
		chosen := bucketStart
		for j := bucketStart; j < bucketEnd; j++ {
			x := float64(points[j].Timestamp.UnixNano())
			area := math.Abs((prevX-avgX)*(points[j].Value-prevY) - (prevX-x)*(avgY-prevY))
			if area > maxArea {
				maxArea = area
				chosen = j
			}
		}

		sampled = append(sampled, points[chosen])
		prevIdx = chosen
	}

	sampled = append(sampled, points[n-1])
	return sampled
}

// minMaxBuckets splits the series into maxPoints/2 buckets and keeps the
// minimum and maximum of each, in time order. Callers guarantee maxPoints >= 2.
func minMaxBuckets(points []models.DataPoint, maxPoints int) []models.DataPoint {
	buckets := maxPoints / 2

	n := len(points)
	out := make([]models.DataPoint, 0, maxPoints)
	for b := 0; b < buckets; b++ {
		lo := b * n / buckets
		hi := (b + 1) * n / buckets
		if lo >= hi {
			continue
		}

		minIdx, maxIdx := lo, lo
		for j := lo; j < hi; j++ {
			if points[j].Value < points[minIdx].Value {
				minIdx = j
			}
			if points[j].Value > points[maxIdx].Value {
				maxIdx = j
			}
		}

		if minIdx == maxIdx {
			out = append(out, points[minIdx])
		} else if minIdx < maxIdx {
			out = append(out, points[minIdx], points[maxIdx])
		} else {
			out = append(out, points[maxIdx], points[minIdx])
		}
	}
	return out
}

// averageBuckets splits the series into maxPoints buckets and keeps each
// bucket's mean value at its middle timestamp.
func averageBuckets(points []models.DataPoint, maxPoints int) []models.DataPoint {
	n := len(points)
	out := make([]models.DataPoint, 0, maxPoints)
	for b := 0; b < maxPoints; b++ {
		lo := b * n / maxPoints
		hi := (b + 1) * n / maxPoints
		if lo >= hi {
			continue
		}

		sum := 0.0
		for j := lo; j < hi; j++ {
			sum += points[j].Value
		}
		out = append(out, models.DataPoint{
			Timestamp: points[(lo+hi)/2].Timestamp,
			Value:     sum / float64(hi-lo),
		})
	}
	return out
}

// firstLastSignificant keeps the endpoints plus every point whose change from
// the previously kept point exceeds a fraction of the series range. If that
// still exceeds the target, the least significant interior points are dropped.
// Callers guarantee maxPoints >= 2.
func firstLastSignificant(points []models.DataPoint, maxPoints int) []models.DataPoint {
	n := len(points)
	values := make([]float64, n)
	for i, p := range points {
		values[i] = p.Value
	}
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	threshold := (max - min) * significantChangeFraction

	type candidate struct {
		idx    int
		change float64
	}
	var interior []candidate

	lastKept := points[0].Value
	for i := 1; i < n-1; i++ {
		change := math.Abs(points[i].Value - lastKept)
		if change > threshold {
			interior = append(interior, candidate{idx: i, change: change})
			lastKept = points[i].Value
		}
	}

	if len(interior) > maxPoints-2 {
		sort.Slice(interior, func(i, j int) bool { return interior[i].change > interior[j].change })
		interior = interior[:maxPoints-2]
		sort.Slice(interior, func(i, j int) bool { return interior[i].idx < interior[j].idx })
	}

	out := make([]models.DataPoint, 0, len(interior)+2)
	out = append(out, points[0])
	for _, c := range interior {
		out = append(out, points[c.idx])
	}
	out = append(out, points[n-1])
	return out
}
