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

// Package recommendation turns bottlenecks, skill gaps and forecasts into
// ranked remediation actions with cost, impact and ROI estimates.
package recommendation

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/common"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
)

// costEpsilon is the smallest cost ROI is divided by.
var costEpsilon = decimal.RequireFromString("0.01")

// Input is everything a recommendation run considers.
type Input struct {
	Bottlenecks []v1alpha1.Bottleneck
	SkillGaps   []v1alpha1.SkillDemand
	Predictions []v1alpha1.Prediction

	// ScopeID and DepartmentID describe where forecast-driven actions apply.
	ScopeID      string
	DepartmentID string
}

// Generator ranks recommendations. It holds no per-request state.
type Generator struct {
	cfg         config.RecommendationConfig
	breakpoints config.SeverityBreakpoints
}

// New creates a Generator. Breakpoints tier skill gaps and forecast shortfalls.
func New(cfg config.RecommendationConfig, breakpoints config.SeverityBreakpoints) *Generator {
	return &Generator{cfg: cfg, breakpoints: breakpoints}
}

// Generate builds candidates from every input and ranks them by ROI,
// priority and implementation days, with ID as the final tie-break.
func (g *Generator) Generate(ctx context.Context, in Input) ([]v1alpha1.Recommendation, error) {
	logger := logr.FromContextOrDiscard(ctx)
	byID := map[string]v1alpha1.Recommendation{}
	add := func(r v1alpha1.Recommendation) {
		if _, dup := byID[r.ID]; !dup {
			byID[r.ID] = r
		}
	}

	for _, b := range in.Bottlenecks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, r := range g.fromBottleneck(b) {
			add(r)
		}
	}
	for _, gap := range in.SkillGaps {
		for _, r := range g.fromSkillGap(gap) {
			add(r)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range g.fromForecast(in) {
		add(r)
	}

	out := make([]v1alpha1.Recommendation, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	Rank(out)

	logger.V(logging.DEBUG).Info("Generated recommendations",
		"bottlenecks", len(in.Bottlenecks),
		"skillGaps", len(in.SkillGaps),
		"predictions", len(in.Predictions),
		"recommendations", len(out))
	return out, nil
}

// Rank sorts recommendations by ROI and priority, both descending, then by
// implementation days ascending and ID.
func Rank(recs []v1alpha1.Recommendation) {
	slices.SortFunc(recs, func(a, b v1alpha1.Recommendation) int {
		if c := cmp.Compare(b.ROI, a.ROI); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ImplementationDays, b.ImplementationDays); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Estimate prices an action against a shortfall in hours per period:
// impact = resolution factor * hours * hourly value * impact horizon.
func (g *Generator) Estimate(action v1alpha1.ActionType, hours float64) (impact, cost decimal.Decimal, days int, roi float64) {
	rate := g.cfg.Rate(action)
	impact = decimal.NewFromFloat(rate.ResolutionFactor).
		Mul(decimal.NewFromFloat(max(0, hours))).
		Mul(decimal.NewFromFloat(g.cfg.HourlyValue)).
		Mul(decimal.NewFromInt(int64(g.cfg.ImpactHorizonPeriods))).
		Round(2)
	cost = decimal.NewFromFloat(rate.Cost).Round(2)
	roi = ROI(impact, cost)
	return impact, cost, rate.Days, roi
}

// ROI is (impact - cost) / max(cost, 0.01), rounded to four places.
func ROI(impact, cost decimal.Decimal) float64 {
	denom := cost
	if denom.LessThan(costEpsilon) {
		denom = costEpsilon
	}
	return impact.Sub(cost).DivRound(denom, 4).InexactFloat64()
}

func (g *Generator) fromBottleneck(b v1alpha1.Bottleneck) []v1alpha1.Recommendation {
	var out []v1alpha1.Recommendation
	for _, action := range b.RecommendedActions {
		impact, cost, days, roi := g.Estimate(action, b.ShortfallHours)
		r := v1alpha1.Recommendation{
			ID:                 common.StableID("recommendation", b.ID, string(action)),
			Type:               action,
			Priority:           b.Severity,
			Description:        fmt.Sprintf("%s for the %s bottleneck on %s (%.1f hours short per period)", describe(action), b.Type, b.AffectedResource, b.ShortfallHours),
			ExpectedImpact:     impact,
			ImplementationCost: cost,
			ImplementationDays: days,
			SuccessMetrics: []string{
				fmt.Sprintf("%s utilization at or below 100%%", b.AffectedResource),
				fmt.Sprintf("shortfall on %s reduced by %.1f hours per period", b.AffectedResource, g.cfg.Rate(action).ResolutionFactor*b.ShortfallHours),
			},
			ROI:      roi,
			SourceID: b.ID,
		}
		switch b.Type {
		case v1alpha1.BottleneckDepartment:
			r.AffectedDepartments = []string{b.AffectedResource}
		case v1alpha1.BottleneckSkill:
			r.AffectedSkills = []string{b.AffectedResource}
		}
		out = append(out, r)
	}
	return out
}

func (g *Generator) fromSkillGap(gap v1alpha1.SkillDemand) []v1alpha1.Recommendation {
	if gap.GapHours <= 0 {
		return nil
	}
	pct := 100.0
	if gap.ForecastSupply > 0 {
		pct = 100 * gap.GapHours / gap.ForecastSupply
	}
	priority := g.breakpoints.Classify(pct)
	name := gap.Name
	if name == "" {
		name = gap.SkillID
	}

	var out []v1alpha1.Recommendation
	for _, action := range []v1alpha1.ActionType{v1alpha1.ActionTraining, v1alpha1.ActionHiring} {
		impact, cost, days, roi := g.Estimate(action, gap.GapHours)
		out = append(out, v1alpha1.Recommendation{
			ID:                 common.StableID("recommendation", "skill-gap", gap.SkillID, string(action)),
			Type:               action,
			Priority:           priority,
			Description:        fmt.Sprintf("%s to close the %s skill gap (%.1f hours per period)", describe(action), name, gap.GapHours),
			ExpectedImpact:     impact,
			ImplementationCost: cost,
			ImplementationDays: days,
			AffectedSkills:     []string{gap.SkillID},
			SuccessMetrics: []string{
				fmt.Sprintf("%s supply covers forecast demand", name),
			},
			ROI:      roi,
			SourceID: gap.SkillID,
		})
	}
	return out
}

// fromForecast looks for SustainedPeriods consecutive realistic predictions
// above OverUtilization (hiring) or below UnderUtilization (reallocation).
func (g *Generator) fromForecast(in Input) []v1alpha1.Recommendation {
	var realistic []v1alpha1.Prediction
	for _, p := range in.Predictions {
		if p.Scenario == v1alpha1.ScenarioRealistic {
			realistic = append(realistic, p)
		}
	}
	slices.SortStableFunc(realistic, func(a, b v1alpha1.Prediction) int { return cmp.Compare(a.PeriodsAhead, b.PeriodsAhead) })

	sustained := max(1, g.cfg.SustainedPeriods)
	var out []v1alpha1.Recommendation
	if run := firstRun(realistic, sustained, func(p v1alpha1.Prediction) bool {
		return p.UtilizationRate > g.cfg.OverUtilization
	}); run != nil {
		hours, capacity := 0.0, 0.0
		for _, p := range run {
			hours += p.DemandForecast - p.PredictedCapacity*g.cfg.OverUtilization
			capacity += p.PredictedCapacity
		}
		hours /= float64(len(run))
		pct := 100.0
		if capacity > 0 {
			pct = 100 * hours * float64(len(run)) / capacity
		}
		out = append(out, g.forecastRecommendation(in, run, v1alpha1.ActionHiring, hours, g.breakpoints.Classify(pct),
			fmt.Sprintf("forecast demand exceeds capacity for %d periods from %s", len(run), run[0].Period.Label)))
	}
	if run := firstRun(realistic, sustained, func(p v1alpha1.Prediction) bool {
		return p.PredictedCapacity > 0 && p.UtilizationRate < g.cfg.UnderUtilization
	}); run != nil {
		hours := 0.0
		for _, p := range run {
			hours += p.PredictedCapacity*g.cfg.UnderUtilization - p.DemandForecast
		}
		hours /= float64(len(run))
		out = append(out, g.forecastRecommendation(in, run, v1alpha1.ActionReallocation, hours, v1alpha1.SeverityLow,
			fmt.Sprintf("forecast capacity is under-used for %d periods from %s", len(run), run[0].Period.Label)))
	}
	return out
}

func (g *Generator) forecastRecommendation(in Input, run []v1alpha1.Prediction, action v1alpha1.ActionType,
	hours float64, priority v1alpha1.Severity, reason string) v1alpha1.Recommendation {
	impact, cost, days, roi := g.Estimate(action, hours)
	sourceID := common.StableID("forecast", in.ScopeID, run[0].Period.Label)
	r := v1alpha1.Recommendation{
		ID:                 common.StableID("recommendation", sourceID, string(action)),
		Type:               action,
		Priority:           priority,
		Description:        fmt.Sprintf("%s: %s (%.1f hours per period)", describe(action), reason, hours),
		ExpectedImpact:     impact,
		ImplementationCost: cost,
		ImplementationDays: days,
		SuccessMetrics: []string{
			fmt.Sprintf("forecast utilization between %.0f%% and %.0f%%", 100*g.cfg.UnderUtilization, 100*g.cfg.OverUtilization),
		},
		ROI:      roi,
		SourceID: sourceID,
	}
	if in.DepartmentID != "" {
		r.AffectedDepartments = []string{in.DepartmentID}
	}
	return r
}

func firstRun(ps []v1alpha1.Prediction, length int, match func(v1alpha1.Prediction) bool) []v1alpha1.Prediction {
	start := -1
	for i, p := range ps {
		if !match(p) {
			start = -1
			continue
		}
		if start < 0 {
			start = i
		}
		if i-start+1 >= length {
			end := i
			for end+1 < len(ps) && match(ps[end+1]) {
				end++
			}
			return ps[start : end+1]
		}
	}
	return nil
}

func describe(a v1alpha1.ActionType) string {
	switch a {
	case v1alpha1.ActionHiring:
		return "Hire additional staff"
	case v1alpha1.ActionTraining:
		return "Train existing staff"
	case v1alpha1.ActionReallocation:
		return "Reallocate work"
	case v1alpha1.ActionProcessChange:
		return "Change the delivery process"
	case v1alpha1.ActionScheduleShift:
		return "Shift the schedule"
	}
	return string(a)
}
