package stats

import (
	"math"
	"sort"
)

// roundHalfUp rounds .5 toward positive infinity
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// roundTo rounds x half-up to the given number of decimals
func roundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(x*p+0.5) / p
}

// percent returns round(100*part/total), 0 when total is 0
func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return roundHalfUp(float64(part) / float64(total) * 100)
}

// Median sorts a copy of values; ok is false for an empty input
func Median(values []int) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return float64(sorted[mid-1]+sorted[mid]) / 2, true
	}
	return float64(sorted[mid]), true
}

func minMaxSum(values []int) (lo, hi, sum int) {
	lo, hi = values[0], values[0]
	for _, v := range values {
		sum += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, sum
}

// argMax returns the first index holding the maximum, -1 when all are zero
func argMax(counts []int) int {
	best, idx := 0, -1
	for i, c := range counts {
		if c > best {
			best, idx = c, i
		}
	}
	return idx
}
