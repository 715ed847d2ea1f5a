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

// Package bottleneck detects capacity shortfalls in utilization profiles and
// forecasts, along the skill, department, resource and time dimensions.
package bottleneck

import (
	"context"
	"sort"
	"time"

	"github.com/go-logr/logr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/common"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
)

// Options narrows a detection run.
type Options struct {
	// MinSeverity drops bottlenecks below the tier. Empty keeps everything.
	MinSeverity v1alpha1.Severity

	// Predictions are forecast periods for the profile's overall series.
	// Only realistic predictions are used.
	Predictions []v1alpha1.Prediction
}

// Detector finds bottlenecks. It holds no per-request state.
type Detector struct {
	cfg       config.BottleneckConfig
	overrides config.DepartmentOverrides
}

// New creates a Detector. Overrides may be nil.
func New(cfg config.BottleneckConfig, overrides config.DepartmentOverrides) *Detector {
	return &Detector{cfg: cfg, overrides: overrides}
}

// Score returns the severity score and tier of a shortfall:
// shortfall as a percentage of available hours plus weight per affected project.
// A shortfall against zero availability scores as 100%.
func Score(shortfall, available float64, projects int, bp config.SeverityBreakpoints, weight float64) (float64, v1alpha1.Severity) {
	if shortfall <= 0 {
		return 0, v1alpha1.SeverityLow
	}
	pct := 100.0
	if available > 0 {
		pct = 100 * shortfall / available
	}
	score := pct + weight*float64(projects)
	return score, bp.Classify(score)
}

// Detect scans every dimension of profile for runs of consecutive shortfall
// periods. The run ending at the latest period is current; earlier runs are
// historical. Predicted bottlenecks come from opts.Predictions.
func (d *Detector) Detect(ctx context.Context, profile *v1alpha1.UtilizationProfile, opts Options) (v1alpha1.BottleneckReport, error) {
	logger := logr.FromContextOrDiscard(ctx)
	report := v1alpha1.BottleneckReport{
		Current:    []v1alpha1.Bottleneck{},
		Predicted:  []v1alpha1.Bottleneck{},
		Historical: []v1alpha1.Bottleneck{},
	}
	if profile.IsEmpty() {
		return report, nil
	}

	for _, kind := range v1alpha1.BottleneckTypes {
		series := d.seriesFor(profile, kind)
		for _, resource := range sortedKeys(series) {
			if err := ctx.Err(); err != nil {
				return v1alpha1.BottleneckReport{}, err
			}
			current, historical := d.scan(kind, resource, series[resource])
			if current != nil {
				report.Current = append(report.Current, *current)
			}
			report.Historical = append(report.Historical, historical...)
		}
	}
	report.Predicted = d.Predicted(profile, opts.Predictions, opts.MinSeverity)

	report.Current = filter(report.Current, opts.MinSeverity)
	report.Historical = filter(report.Historical, opts.MinSeverity)
	common.SortBottlenecks(report.Current)
	common.SortBottlenecks(report.Historical)

	logger.V(logging.DEBUG).Info("Detected bottlenecks",
		"scope", profile.ScopeID,
		"current", len(report.Current),
		"predicted", len(report.Predicted),
		"historical", len(report.Historical),
		"minSeverity", opts.MinSeverity)
	return report, nil
}

// seriesFor maps a dimension onto the profile series it is evaluated on.
// The time dimension uses the overall series, keyed by scope.
func (d *Detector) seriesFor(profile *v1alpha1.UtilizationProfile, kind v1alpha1.BottleneckType) map[string][]v1alpha1.PeriodUtilization {
	switch kind {
	case v1alpha1.BottleneckSkill:
		return profile.Skills
	case v1alpha1.BottleneckDepartment:
		return profile.Departments
	case v1alpha1.BottleneckResource:
		return profile.Resources
	case v1alpha1.BottleneckTime:
		return map[string][]v1alpha1.PeriodUtilization{profile.ScopeID: profile.Overall}
	}
	return nil
}

// scoring returns the breakpoints and project weight for a resource.
// Department overrides only apply to department bottlenecks; every other
// dimension uses the "default" entry.
func (d *Detector) scoring(kind v1alpha1.BottleneckType, resource string) (config.SeverityBreakpoints, float64) {
	if kind == v1alpha1.BottleneckDepartment {
		return d.overrides.Resolve(resource, d.cfg)
	}
	return d.overrides.Resolve("", d.cfg)
}

// scan splits series into shortfall runs.
func (d *Detector) scan(kind v1alpha1.BottleneckType, resource string, series []v1alpha1.PeriodUtilization) (*v1alpha1.Bottleneck, []v1alpha1.Bottleneck) {
	var (
		current    *v1alpha1.Bottleneck
		historical []v1alpha1.Bottleneck
	)
	last := len(series) - 1
	for start := 0; start <= last; {
		if series[start].Shortfall() <= 0 {
			start++
			continue
		}
		end := start
		for end < last && series[end+1].Shortfall() > 0 {
			end++
		}
		run := series[start : end+1]
		if end == last {
			status := v1alpha1.BottleneckActive
			if len(run) > 1 && run[len(run)-1].Shortfall() < run[len(run)-2].Shortfall() {
				status = v1alpha1.BottleneckMitigated
			}
			b := d.build(kind, resource, run, status)
			current = &b
		} else {
			historical = append(historical, d.build(kind, resource, run, v1alpha1.BottleneckResolved))
		}
		start = end + 1
	}
	return current, historical
}

// build evaluates a run at its last period.
func (d *Detector) build(kind v1alpha1.BottleneckType, resource string, run []v1alpha1.PeriodUtilization, status v1alpha1.BottleneckStatus) v1alpha1.Bottleneck {
	at := run[len(run)-1]
	projects := projectsOf(run)
	bp, weight := d.scoring(kind, resource)
	shortfall := at.Shortfall()
	_, severity := Score(shortfall, at.TotalAvailable, len(projects), bp, weight)

	window := windowOf(run[0].Period, at.Period)
	remediation := common.RemediationFor(kind)
	return v1alpha1.Bottleneck{
		ID:                 common.StableID(string(kind), resource, window.Start.Format(time.RFC3339)),
		Type:               kind,
		AffectedResource:   resource,
		Severity:           severity,
		ImpactScore:        shortfall,
		ShortfallHours:     shortfall,
		ShortfallPerEntity: shortfall / float64(contributors(at)),
		Utilization:        at.AverageUtilization,
		AffectedProjects:   projects,
		EstimatedDuration:  window.End.Sub(window.Start),
		Window:             window,
		RootCauses:         remediation.RootCauses,
		RecommendedActions: remediation.Actions,
		Status:             status,
	}
}

// Predicted turns runs of at least PersistencePeriods realistic shortfall
// predictions into time bottlenecks on the profile's scope, each evaluated
// at its worst period. The result is never nil.
func (d *Detector) Predicted(profile *v1alpha1.UtilizationProfile, predictions []v1alpha1.Prediction, minSeverity v1alpha1.Severity) []v1alpha1.Bottleneck {
	var realistic []v1alpha1.Prediction
	for _, p := range predictions {
		if p.Scenario == v1alpha1.ScenarioRealistic {
			realistic = append(realistic, p)
		}
	}
	sort.SliceStable(realistic, func(i, j int) bool { return realistic[i].PeriodsAhead < realistic[j].PeriodsAhead })

	var projects []string
	if latest, ok := profile.Latest(); ok {
		projects = latest.Projects
	}
	persistence := max(1, d.cfg.PersistencePeriods)
	bp, weight := d.scoring(v1alpha1.BottleneckTime, profile.ScopeID)

	out := []v1alpha1.Bottleneck{}
	for start := 0; start < len(realistic); {
		if realistic[start].Shortfall() <= 0 {
			start++
			continue
		}
		end := start
		for end+1 < len(realistic) && realistic[end+1].Shortfall() > 0 {
			end++
		}
		run := realistic[start : end+1]
		start = end + 1
		if len(run) < persistence {
			continue
		}

		worst := run[0]
		for _, p := range run[1:] {
			if p.Shortfall() > worst.Shortfall() {
				worst = p
			}
		}
		_, severity := Score(worst.Shortfall(), worst.PredictedCapacity, len(projects), bp, weight)
		window := windowOf(run[0].Period, run[len(run)-1].Period)
		remediation := common.RemediationFor(v1alpha1.BottleneckTime)
		out = append(out, v1alpha1.Bottleneck{
			ID:                 common.StableID("predicted", string(v1alpha1.BottleneckTime), profile.ScopeID, window.Start.Format(time.RFC3339)),
			Type:               v1alpha1.BottleneckTime,
			AffectedResource:   profile.ScopeID,
			Severity:           severity,
			ImpactScore:        worst.Shortfall(),
			ShortfallHours:     worst.Shortfall(),
			ShortfallPerEntity: worst.Shortfall(),
			Utilization:        worst.UtilizationRate,
			AffectedProjects:   append([]string(nil), projects...),
			EstimatedDuration:  window.End.Sub(window.Start),
			Window:             window,
			RootCauses:         append(remediation.RootCauses, "forecast demand exceeds forecast capacity"),
			RecommendedActions: remediation.Actions,
			Status:             v1alpha1.BottleneckActive,
		})
	}
	if entities := latestEntities(profile); entities > 1 {
		for i := range out {
			out[i].ShortfallPerEntity = out[i].ShortfallHours / float64(entities)
		}
	}
	out = filter(out, minSeverity)
	common.SortBottlenecks(out)
	return out
}

func windowOf(first, last v1alpha1.Period) v1alpha1.Period {
	label := first.Label
	if last.Label != first.Label {
		label = first.Label + ".." + last.Label
	}
	return v1alpha1.Period{Label: label, Start: first.Start, End: last.End}
}

// contributors counts the entities whose availability was observed, at least 1.
func contributors(p v1alpha1.PeriodUtilization) int {
	if n := p.EntityCount - p.ExcludedEntities; n > 0 {
		return n
	}
	return max(1, p.EntityCount)
}

func latestEntities(profile *v1alpha1.UtilizationProfile) int {
	latest, ok := profile.Latest()
	if !ok {
		return 0
	}
	return contributors(latest)
}

func projectsOf(run []v1alpha1.PeriodUtilization) []string {
	set := map[string]struct{}{}
	for _, p := range run {
		for _, id := range p.Projects {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func filter(bs []v1alpha1.Bottleneck, floor v1alpha1.Severity) []v1alpha1.Bottleneck {
	if floor == "" {
		return bs
	}
	out := bs[:0]
	for _, b := range bs {
		if b.Severity.AtLeast(floor) {
			out = append(out, b)
		}
	}
	return out
}

func sortedKeys(m map[string][]v1alpha1.PeriodUtilization) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
