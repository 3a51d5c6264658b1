package marketdata

import (
	"sort"

	"stockview/internal/provider"
)

// rangeLengths approximates each range window in trading days. This is a
// deliberate simplification, not calendar-accurate, and is part of the
// cache-key contract: do not tune.
var rangeLengths = map[string]int{
	"1D": 1,
	"1W": 5,
	"1M": 22,
	"3M": 66,
	"1Y": 252,
}

// sortBars returns a copy of bars in ascending timestamp order. Both
// upstream timestamp formats ("2024-05-01" and "2024-05-01 16:00:00" /
// ISO) sort correctly as strings.
func sortBars(bars []provider.Bar) []provider.Bar {
	out := make([]provider.Bar, len(bars))
	copy(out, bars)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// sortPoints returns a copy of points in ascending timestamp order.
func sortPoints(points []provider.IndicatorPoint) []provider.IndicatorPoint {
	out := make([]provider.IndicatorPoint, len(points))
	copy(out, points)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// sliceRange truncates an ascending series to the requested window.
// Unrecognized ranges (including MAX) return the full sequence.
func sliceRange(bars []provider.Bar, rangeKey string) []provider.Bar {
	n, ok := rangeLengths[rangeKey]
	if !ok || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
