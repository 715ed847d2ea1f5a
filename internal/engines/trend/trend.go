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

// Package trend derives direction, rate, seasonality and anomalies from
// utilization series.
package trend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/stat"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
)

// Unexplained is the cause recorded for anomalies with no concurrent bottleneck.
const Unexplained = "unexplained"

// Analyzer computes TrendResults. It holds no per-request state.
type Analyzer struct {
	cfg config.TrendConfig
}

// New creates an Analyzer.
func New(cfg config.TrendConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze fits a linear trend to the utilization of series and reports
// seasonality and anomalies. Anomaly causes are "unexplained" until
// ExplainAnomalies is applied.
func (a *Analyzer) Analyze(series []v1alpha1.PeriodUtilization, g v1alpha1.Granularity) v1alpha1.TrendResult {
	values := Utilization(series)
	fit := Fit(values, 1, a.cfg)

	result := v1alpha1.TrendResult{
		Direction:      a.direction(fit.Slope),
		Rate:           fit.Slope,
		Intercept:      fit.Intercept,
		Confidence:     fit.Confidence,
		ResidualStdDev: fit.ResidualStdDev,
		Periods:        fit.N,
	}
	if fit.N < 2 {
		return result
	}
	result.Seasonality = a.seasonality(series, fit, g)
	result.Anomalies = a.anomalies(series, fit)
	return result
}

// AnalyzeProfile analyzes the overall series and every department series.
func (a *Analyzer) AnalyzeProfile(ctx context.Context, profile *v1alpha1.UtilizationProfile) (v1alpha1.TrendSummary, error) {
	logger := logr.FromContextOrDiscard(ctx)
	if profile.IsEmpty() {
		return v1alpha1.TrendSummary{Overall: v1alpha1.TrendResult{Direction: v1alpha1.TrendStable}}, nil
	}

	summary := v1alpha1.TrendSummary{
		Overall:     a.Analyze(profile.Overall, profile.Granularity),
		Departments: make(map[string]v1alpha1.TrendResult, len(profile.Departments)),
	}
	for _, dept := range sortedSeriesKeys(profile.Departments) {
		if err := ctx.Err(); err != nil {
			return v1alpha1.TrendSummary{}, err
		}
		summary.Departments[dept] = a.Analyze(profile.Departments[dept], profile.Granularity)
	}

	logger.V(logging.DEBUG).Info("Analyzed trends",
		"scope", profile.ScopeID,
		"direction", summary.Overall.Direction,
		"rate", summary.Overall.Rate,
		"confidence", summary.Overall.Confidence,
		"anomalies", len(summary.Overall.Anomalies))
	return summary, nil
}

func (a *Analyzer) direction(slope float64) v1alpha1.TrendDirection {
	switch {
	case math.Abs(slope) < a.cfg.StableThreshold:
		return v1alpha1.TrendStable
	case slope > 0:
		return v1alpha1.TrendIncreasing
	default:
		return v1alpha1.TrendDecreasing
	}
}

// seasonality groups detrended values by sub-period and reports the spread of
// the group means. Detection needs at least two groups and at least one group
// observed more than once.
func (a *Analyzer) seasonality(series []v1alpha1.PeriodUtilization, fit LinearFit, g v1alpha1.Granularity) v1alpha1.Seasonality {
	level := stat.Mean(Utilization(series), nil)

	groups := map[string][]float64{}
	order := map[string]int{}
	for i, p := range series {
		name, rank := subPeriod(p.Period.Start, g)
		groups[name] = append(groups[name], fit.Residuals[i]+level)
		order[name] = rank
	}
	repeated := false
	for _, vs := range groups {
		if len(vs) > 1 {
			repeated = true
		}
	}
	if len(groups) < 2 || !repeated {
		return v1alpha1.Seasonality{}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return order[names[i]] < order[names[j]] })

	means := make([]float64, len(names))
	for i, name := range names {
		means[i] = stat.Mean(groups[name], nil)
	}
	mean, std := stat.MeanStdDev(means, nil)
	if mean <= 0 {
		return v1alpha1.Seasonality{}
	}
	strength := std / mean

	peak, low := means[0], means[0]
	for _, m := range means {
		peak = max(peak, m)
		low = min(low, m)
	}
	var peaks, lows []string
	for i, m := range means {
		if m == peak {
			peaks = append(peaks, names[i])
		}
		if m == low {
			lows = append(lows, names[i])
		}
	}
	return v1alpha1.Seasonality{
		Detected:    strength > a.cfg.SeasonalityThreshold,
		PeakPeriods: peaks,
		LowPeriods:  lows,
		Strength:    strength,
	}
}

// subPeriod names the seasonal group of a period start: the weekday for daily
// series and the month for weekly and monthly series.
func subPeriod(t time.Time, g v1alpha1.Granularity) (string, int) {
	if g == v1alpha1.GranularityDaily {
		return t.Weekday().String(), (int(t.Weekday()) + 6) % 7
	}
	return t.Month().String(), int(t.Month())
}

func (a *Analyzer) anomalies(series []v1alpha1.PeriodUtilization, fit LinearFit) []v1alpha1.Anomaly {
	if fit.ResidualStdDev == 0 {
		return nil
	}
	var out []v1alpha1.Anomaly
	for i, r := range fit.Residuals {
		z := r / fit.ResidualStdDev
		if math.Abs(z) <= a.cfg.AnomalyStdDevs {
			continue
		}
		out = append(out, v1alpha1.Anomaly{
			Period:      series[i].Period,
			Utilization: series[i].AverageUtilization,
			Expected:    fit.At(float64(i)),
			Deviation:   z,
			Causes:      []string{Unexplained},
		})
	}
	return out
}

// ExplainAnomalies returns copies of anomalies whose causes reference the
// bottlenecks whose window overlaps the anomalous period. Anomalies with no
// such bottleneck keep the single cause "unexplained".
func ExplainAnomalies(anomalies []v1alpha1.Anomaly, bottlenecks []v1alpha1.Bottleneck) []v1alpha1.Anomaly {
	if anomalies == nil {
		return nil
	}
	out := make([]v1alpha1.Anomaly, len(anomalies))
	for i, an := range anomalies {
		out[i] = an
		var causes []string
		for _, b := range bottlenecks {
			if b.Window.Overlaps(an.Period) {
				causes = append(causes, fmt.Sprintf("%s bottleneck on %s (%s, id %s)",
					b.Type, b.AffectedResource, b.Severity, b.ID))
			}
		}
		if len(causes) == 0 {
			causes = []string{Unexplained}
		}
		out[i].Causes = causes
	}
	return out
}

// Utilization extracts the utilization values of a series.
func Utilization(series []v1alpha1.PeriodUtilization) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.AverageUtilization
	}
	return out
}

func sortedSeriesKeys(m map[string][]v1alpha1.PeriodUtilization) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
