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

// Package scenario simulates hypothetical change sets against a baseline
// utilization profile and reports what they would change.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/bottleneck"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/common"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/forecast"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/recommendation"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
)

// Baseline is the unmodified state a scenario is compared against.
type Baseline struct {
	Profile *v1alpha1.UtilizationProfile

	// Horizon is forecast for both the baseline and the modified profile.
	Horizon string

	// DepartmentID is the requested department, if any.
	DepartmentID string
}

// Simulator runs scenarios. It holds no per-request state and is safe for
// concurrent use.
type Simulator struct {
	cfg         config.ScenarioConfig
	detector    *bottleneck.Detector
	forecaster  *forecast.Engine
	recommender *recommendation.Generator
}

// New creates a Simulator from the stages it re-runs.
func New(cfg config.ScenarioConfig, detector *bottleneck.Detector, forecaster *forecast.Engine, recommender *recommendation.Generator) *Simulator {
	return &Simulator{cfg: cfg, detector: detector, forecaster: forecaster, recommender: recommender}
}

type appliedChange struct {
	index  int
	kind   v1alpha1.ChangeKind
	effect Effect
}

// Simulate applies the scenario's changes in order to a copy of the baseline
// profile and diffs the re-run bottleneck and forecast stages. Invalid
// changes are clamped or skipped with a note. The only error returned is
// the context error.
func (s *Simulator) Simulate(ctx context.Context, baseline Baseline, sc v1alpha1.Scenario, opts v1alpha1.AnalysisOptions) (*v1alpha1.ScenarioResult, error) {
	logger := logr.FromContextOrDiscard(ctx)
	base := baseline.Profile
	if base == nil {
		base = &v1alpha1.UtilizationProfile{}
	}
	result := &v1alpha1.ScenarioResult{ScenarioName: sc.Name}

	_, baseReport, err := s.evaluate(ctx, base, baseline.Horizon, result)
	if err != nil {
		return nil, err
	}

	modified := base.DeepCopy()
	var applied []appliedChange
	for i, change := range sc.Changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := Normalize(change)
		if c == nil {
			result.Notes = append(result.Notes, fmt.Sprintf("change %d: empty change skipped", i))
			continue
		}
		applier, err := NewApplier(c.Kind())
		if err != nil {
			result.Notes = append(result.Notes, fmt.Sprintf("change %d: %v; skipped", i, err))
			continue
		}
		effect, notes := applier.Apply(modified, c)
		for _, n := range notes {
			result.Notes = append(result.Notes, fmt.Sprintf("change %d: %s", i, n))
		}
		applied = append(applied, appliedChange{index: i, kind: c.Kind(), effect: effect})
	}

	modPreds, modReport, err := s.evaluate(ctx, modified, baseline.Horizon, result)
	if err != nil {
		return nil, err
	}
	result.Predictions = modPreds
	result.NewBottlenecks, result.ResolvedBottlenecks = Diff(baseReport, modReport)
	result.CapacityDelta = Delta(base.Overall, modified.Overall)
	result.DepartmentDeltas = departmentDeltas(base, modified)

	if opts.IncludeRiskAnalysis {
		result.RiskAssessment = s.assess(result.NewBottlenecks, applied)
	}
	if opts.IncludeCostImpact {
		result.CostImpact = s.cost(applied)
	}
	if opts.IncludeOptimizations {
		recs, err := s.recommender.Generate(ctx, recommendation.Input{
			Bottlenecks:  result.NewBottlenecks,
			Predictions:  modPreds,
			ScopeID:      modified.ScopeID,
			DepartmentID: baseline.DepartmentID,
		})
		if err != nil {
			return nil, err
		}
		result.Recommendations = recs
	}

	logger.V(logging.DEBUG).Info("Simulated scenario",
		"scenario", sc.Name,
		"changes", len(sc.Changes),
		"newBottlenecks", len(result.NewBottlenecks),
		"resolvedBottlenecks", len(result.ResolvedBottlenecks),
		"availableDelta", result.CapacityDelta.AvailableHours,
		"demandDelta", result.CapacityDelta.DemandHours,
		"notes", len(result.Notes))
	return result, nil
}

// evaluate forecasts and detects bottlenecks on profile. A forecast that
// fails for any reason other than cancellation is skipped with a note.
func (s *Simulator) evaluate(ctx context.Context, profile *v1alpha1.UtilizationProfile, horizon string, result *v1alpha1.ScenarioResult) ([]v1alpha1.Prediction, v1alpha1.BottleneckReport, error) {
	preds, err := s.forecaster.Forecast(ctx, profile, horizon)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, v1alpha1.BottleneckReport{}, err
		}
		result.Notes = appendOnce(result.Notes, fmt.Sprintf("forecast skipped: %v", err))
		preds = nil
	}
	report, err := s.detector.Detect(ctx, profile, bottleneck.Options{Predictions: preds})
	if err != nil {
		return nil, v1alpha1.BottleneckReport{}, err
	}
	return preds, report, nil
}

// Diff compares current and predicted bottlenecks by key. New bottlenecks
// exist only in modified; resolved ones only in base.
func Diff(base, modified v1alpha1.BottleneckReport) (added, resolved []v1alpha1.Bottleneck) {
	baseSet := byKey(base)
	modSet := byKey(modified)
	added, resolved = []v1alpha1.Bottleneck{}, []v1alpha1.Bottleneck{}
	for _, k := range sortedKeys(modSet) {
		if _, ok := baseSet[k]; !ok {
			added = append(added, modSet[k].DeepCopy())
		}
	}
	for _, k := range sortedKeys(baseSet) {
		if _, ok := modSet[k]; !ok {
			resolved = append(resolved, baseSet[k].DeepCopy())
		}
	}
	common.SortBottlenecks(added)
	common.SortBottlenecks(resolved)
	return added, resolved
}

// byKey indexes current then predicted bottlenecks; the first per key wins.
func byKey(r v1alpha1.BottleneckReport) map[string]v1alpha1.Bottleneck {
	out := map[string]v1alpha1.Bottleneck{}
	for _, set := range [][]v1alpha1.Bottleneck{r.Current, r.Predicted} {
		for _, b := range set {
			if _, ok := out[b.Key()]; !ok {
				out[b.Key()] = b
			}
		}
	}
	return out
}

// Delta is modified minus base: hours summed over all periods and
// utilization at the latest period.
func Delta(base, modified []v1alpha1.PeriodUtilization) v1alpha1.CapacityDelta {
	var d v1alpha1.CapacityDelta
	for _, p := range modified {
		d.AvailableHours += p.TotalAvailable
		d.DemandHours += p.TotalAllocated
	}
	for _, p := range base {
		d.AvailableHours -= p.TotalAvailable
		d.DemandHours -= p.TotalAllocated
	}
	d.UtilizationChange = latestUtilization(modified) - latestUtilization(base)
	return d
}

func latestUtilization(series []v1alpha1.PeriodUtilization) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1].AverageUtilization
}

func departmentDeltas(base, modified *v1alpha1.UtilizationProfile) map[string]v1alpha1.CapacityDelta {
	keys := map[string]struct{}{}
	for k := range base.Departments {
		keys[k] = struct{}{}
	}
	for k := range modified.Departments {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]v1alpha1.CapacityDelta, len(keys))
	for k := range keys {
		out[k] = Delta(base.Departments[k], modified.Departments[k])
	}
	return out
}

func (s *Simulator) assess(added []v1alpha1.Bottleneck, applied []appliedChange) *v1alpha1.RiskAssessment {
	risks := []v1alpha1.Risk{}
	for _, b := range added {
		r := common.BottleneckRisk(b)
		r.Description = "new " + r.Description
		risks = append(risks, r)
	}
	for _, a := range applied {
		if a.effect.Ratio <= s.cfg.VolatilityThreshold {
			continue
		}
		risks = append(risks, v1alpha1.Risk{
			Description: fmt.Sprintf("%s changes %s %s hours by %.0f%%", a.kind, a.effect.Dimension, a.effect.Target, 100*a.effect.Ratio),
			Source:      fmt.Sprintf("change %d", a.index),
			Probability: common.VolatilityProbability(a.effect.Ratio, s.cfg.VolatilityThreshold),
			Impact:      fmt.Sprintf("available %+.1f hours, demand %+.1f hours", a.effect.AvailableHours, a.effect.DemandHours),
			Mitigation:  common.RemediationFor(a.effect.Dimension).Mitigation,
		})
	}
	return &v1alpha1.RiskAssessment{Level: common.RiskLevel(risks), Risks: risks}
}

// cost prices the net capacity added by resource changes at the hourly rate.
func (s *Simulator) cost(applied []appliedChange) *decimal.Decimal {
	hours := 0.0
	for _, a := range applied {
		if a.kind == v1alpha1.ChangeKindAddResources || a.kind == v1alpha1.ChangeKindRemoveResources {
			hours += a.effect.AvailableHours
		}
	}
	c := decimal.NewFromFloat(hours).Mul(decimal.NewFromFloat(s.cfg.HourlyRate)).Round(2)
	return &c
}

func appendOnce(notes []string, n string) []string {
	for _, existing := range notes {
		if existing == n {
			return notes
		}
	}
	return append(notes, n)
}

func sortedKeys(m map[string]v1alpha1.Bottleneck) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
