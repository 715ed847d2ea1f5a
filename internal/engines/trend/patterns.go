package trend

import (
	"sort"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

// MaxPatternPeriods caps the peak and low period lists.
const MaxPatternPeriods = 3

// PeakAndLow returns the highest and lowest utilization periods of series,
// up to a quarter of the series and at most MaxPatternPeriods each. Ties
// keep chronological order.
func PeakAndLow(series []v1alpha1.PeriodUtilization) (peaks, lows []v1alpha1.PeriodUtilization) {
	if len(series) == 0 {
		return nil, nil
	}
	k := min(MaxPatternPeriods, max(1, len(series)/4))

	idx := make([]int, len(series))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return series[idx[i]].AverageUtilization > series[idx[j]].AverageUtilization
	})
	for _, i := range idx[:k] {
		peaks = append(peaks, series[i])
	}

	sort.SliceStable(idx, func(i, j int) bool {
		a, b := series[idx[i]], series[idx[j]]
		if a.AverageUtilization != b.AverageUtilization {
			return a.AverageUtilization < b.AverageUtilization
		}
		return idx[i] < idx[j]
	})
	for _, i := range idx[:k] {
		lows = append(lows, series[i])
	}
	return peaks, lows
}
