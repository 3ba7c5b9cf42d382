// Package stats summarizes per-country round-trip times.
package stats

import (
	"cmp"
	"slices"

	"github.com/Ch00k/geoping/internal/ping"
)

// MedianMode selects how the median of an even-sized sample is computed
type MedianMode int

const (
	// MedianConventional averages the two central values
	MedianConventional MedianMode = iota
	// MedianLowerMiddle takes the lower of the two central values
	MedianLowerMiddle
)

// Options configures aggregation
type Options struct {
	Median MedianMode
}

// CountryStats holds the RTT summary of one country, in milliseconds
type CountryStats struct {
	Country string
	Min     float64
	Median  float64
	Average float64
	Max     float64
	Count   int
}

// Aggregate computes statistics for every non-empty group and returns them
// sorted ascending by Min. Countries with equal Min keep the order of their
// country codes.
func Aggregate(groups ping.Groups, opts Options) []CountryStats {
	result := make([]CountryStats, 0, len(groups))
	for _, cc := range groups.Countries() {
		ms := groups[cc]
		if len(ms) == 0 {
			continue
		}

		rtts := make([]float64, len(ms))
		for i, m := range ms {
			rtts[i] = m.RTT
		}
		result = append(result, summarize(cc, rtts, opts.Median))
	}

	slices.SortStableFunc(result, func(a, b CountryStats) int {
		return cmp.Compare(a.Min, b.Min)
	})
	return result
}

// summarize computes the statistics of a non-empty sample. rtts is sorted in place.
func summarize(country string, rtts []float64, mode MedianMode) CountryStats {
	slices.Sort(rtts)

	var sum float64
	for _, v := range rtts {
		sum += v
	}

	return CountryStats{
		Country: country,
		Min:     rtts[0],
		Median:  Median(rtts, mode),
		Average: sum / float64(len(rtts)),
		Max:     rtts[len(rtts)-1],
		Count:   len(rtts),
	}
}

// Median returns the median of an ascending, non-empty sample
func Median(sorted []float64, mode MedianMode) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	if mode == MedianLowerMiddle {
		return sorted[n/2-1]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
