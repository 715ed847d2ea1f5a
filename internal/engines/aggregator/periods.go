/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package aggregator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

// MaxHorizonPeriods bounds horizons parsed by ParseHorizon.
const MaxHorizonPeriods = 3660

// PeriodStart returns the start of the period containing t, in UTC.
// Weeks start on Monday.
func PeriodStart(t time.Time, g v1alpha1.Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case v1alpha1.GranularityWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case v1alpha1.GranularityMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// PeriodAt returns the period starting at start.
func PeriodAt(start time.Time, g v1alpha1.Granularity) v1alpha1.Period {
	var end time.Time
	switch g {
	case v1alpha1.GranularityWeekly:
		end = start.AddDate(0, 0, 7)
	case v1alpha1.GranularityMonthly:
		end = start.AddDate(0, 1, 0)
	default:
		end = start.AddDate(0, 0, 1)
	}
	return v1alpha1.Period{Label: Label(start, g), Start: start, End: end}
}

// Next returns the period following p.
func Next(p v1alpha1.Period, g v1alpha1.Granularity) v1alpha1.Period {
	return PeriodAt(p.End, g)
}

// Label formats a period start: 2025-01-31 (daily), 2025-W05 (ISO week), 2025-01 (monthly).
func Label(start time.Time, g v1alpha1.Granularity) string {
	switch g {
	case v1alpha1.GranularityWeekly:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case v1alpha1.GranularityMonthly:
		return start.Format("2006-01")
	default:
		return start.Format(time.DateOnly)
	}
}

// Partition splits [from, to) into aligned periods. The first period contains
// from; the last one contains the instant before to.
func Partition(from, to time.Time, g v1alpha1.Granularity) []v1alpha1.Period {
	if !to.After(from) {
		return nil
	}
	var out []v1alpha1.Period
	for p := PeriodAt(PeriodStart(from, g), g); p.Start.Before(to); p = Next(p, g) {
		out = append(out, p)
	}
	return out
}

// ParseHorizon converts a horizon such as "3m" into a number of periods at g.
// Units are d (days), w (weeks), m (months) and y (years).
func ParseHorizon(h string, g v1alpha1.Granularity) (int, error) {
	h = strings.TrimSpace(strings.ToLower(h))
	if len(h) < 2 {
		return 0, fmt.Errorf("invalid horizon %q: want <n><d|w|m|y>", h)
	}
	n, err := strconv.Atoi(h[:len(h)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid horizon %q: count must be a positive integer", h)
	}

	days := map[byte]float64{'d': 1, 'w': 7, 'm': 30, 'y': 365}
	unitDays, ok := days[h[len(h)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid horizon %q: unknown unit %q", h, h[len(h)-1:])
	}

	var periods float64
	switch {
	case g == v1alpha1.GranularityMonthly && h[len(h)-1] == 'y':
		periods = float64(n) * 12
	case g == v1alpha1.GranularityMonthly:
		periods = float64(n) * unitDays / 30
	case g == v1alpha1.GranularityWeekly && h[len(h)-1] == 'y':
		periods = float64(n) * 52
	case g == v1alpha1.GranularityWeekly:
		periods = float64(n) * unitDays / 7
	case g == v1alpha1.GranularityDaily:
		periods = float64(n) * unitDays
	default:
		return 0, fmt.Errorf("unknown granularity %q", g)
	}

	out := int(math.Ceil(periods - 1e-9))
	if out > MaxHorizonPeriods {
		return 0, fmt.Errorf("horizon %q exceeds %d periods", h, MaxHorizonPeriods)
	}
	return max(1, out), nil
}

// Lookback returns the range covering the period containing now and the
// preceding periods, so that the range spans the given horizon at g.
func Lookback(now time.Time, horizon string, g v1alpha1.Granularity) (from, to time.Time, err error) {
	n, err := ParseHorizon(horizon, g)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	current := PeriodAt(PeriodStart(now, g), g)
	from = current.Start
	for i := 1; i < n; i++ {
		from = PeriodStart(from.Add(-time.Nanosecond), g)
	}
	return from, current.End, nil
}
