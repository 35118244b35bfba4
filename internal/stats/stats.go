package stats

import (
	"math"
	"sort"
)

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance calculates the population variance of a slice of float64 values.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := Mean(values)
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return sumSquaredDiff / float64(len(values))
}

// StdDev calculates the population standard deviation.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// Median calculates the median of a slice of float64 values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// MinMax returns the minimum and maximum of a slice of float64 values.
func MinMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}

	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Correlation calculates the Pearson correlation coefficient between two
// equal-length variables. A zero-variance input yields 0 by convention.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	numerator := 0.0
	sumXSq := 0.0
	sumYSq := 0.0

	for i := 0; i < len(x); i++ {
		diffX := x[i] - meanX
		diffY := y[i] - meanY
		numerator += diffX * diffY
		sumXSq += diffX * diffX
		sumYSq += diffY * diffY
	}

	denominator := math.Sqrt(sumXSq * sumYSq)
	if denominator == 0 {
		return 0
	}

	return numerator / denominator
}

// LinearRegression fits value on index by ordinary least squares and returns
// slope, intercept and R-squared.
func LinearRegression(values []float64) (slope, intercept, r2 float64) {
	n := float64(len(values))
	if n < 2 {
		return 0, 0, 0
	}

	sumX := n * (n - 1) / 2
	sumX2 := n * (n - 1) * (2*n - 1) / 6
	sumY := 0.0
	sumXY := 0.0
	sumY2 := 0.0

	for i, y := range values {
		x := float64(i)
		sumY += y
		sumXY += x * y
		sumY2 += y * y
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0, Mean(values), 0
	}

	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = (sumY - slope*sumX) / n

	yMean := sumY / n
	ssTotal := sumY2 - n*yMean*yMean
	if ssTotal == 0 {
		return slope, intercept, 1.0
	}

	ssRes := 0.0
	for i, y := range values {
		predicted := slope*float64(i) + intercept
		ssRes += (y - predicted) * (y - predicted)
	}
	r2 = 1.0 - ssRes/ssTotal

	return slope, intercept, r2
}

// AutoCorrelation calculates autocorrelation at the given lag.
func AutoCorrelation(values []float64, lag int) float64 {
	if lag < 0 || lag >= len(values) {
		return 0
	}

	n := len(values) - lag
	if n <= 1 {
		return 0
	}

	return Correlation(values[:n], values[lag:lag+n])
}

// CriticalValue returns the two-sided critical value for the given confidence
// level, using Student's t for small samples (df < 30) and the normal
// approximation otherwise.
func CriticalValue(confidenceLevel float64, df int) float64 {
	z := zValue(confidenceLevel)
	if df >= 30 || df <= 0 {
		return z
	}

	// Ratio of t to z at the 95% level by degrees-of-freedom bucket; the
	// inflation is nearly level-independent in the range used here.
	var ratio float64
	switch {
	case df < 3:
		ratio = 4.30 / 1.96
	case df < 5:
		ratio = 2.78 / 1.96
	case df < 10:
		ratio = 2.26 / 1.96
	case df < 20:
		ratio = 2.09 / 1.96
	default:
		ratio = 2.04 / 1.96
	}
	return z * ratio
}

func zValue(confidenceLevel float64) float64 {
	switch {
	case confidenceLevel >= 0.99:
		return 2.576
	case confidenceLevel >= 0.95:
		return 1.96
	case confidenceLevel >= 0.90:
		return 1.645
	case confidenceLevel >= 0.80:
		return 1.282
	default:
		return 1.0
	}
}
