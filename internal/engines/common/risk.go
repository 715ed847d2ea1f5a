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

package common

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	return min(1, max(0, v))
}

// SeverityProbability is the heuristic probability that a bottleneck of the
// given severity materializes.
func SeverityProbability(s v1alpha1.Severity) float64 {
	switch s {
	case v1alpha1.SeverityCritical:
		return 0.85
	case v1alpha1.SeverityHigh:
		return 0.65
	case v1alpha1.SeverityMedium:
		return 0.45
	case v1alpha1.SeverityLow:
		return 0.25
	}
	return 0
}

// VolatilityProbability maps a relative change against the volatility threshold
// onto a probability: 0.5 at the threshold, growing with the excess and capped at 0.95.
func VolatilityProbability(ratio, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return min(0.95, Clamp01(0.5*ratio/threshold))
}

// RiskLevel summarizes risks by their highest probability.
func RiskLevel(risks []v1alpha1.Risk) v1alpha1.Severity {
	highest := 0.0
	for _, r := range risks {
		highest = max(highest, r.Probability)
	}
	switch {
	case highest >= 0.75:
		return v1alpha1.SeverityCritical
	case highest >= 0.55:
		return v1alpha1.SeverityHigh
	case highest >= 0.35:
		return v1alpha1.SeverityMedium
	default:
		return v1alpha1.SeverityLow
	}
}

// SortBottlenecks orders by severity, then impact, both descending, then by key.
func SortBottlenecks(bs []v1alpha1.Bottleneck) {
	slices.SortStableFunc(bs, func(a, b v1alpha1.Bottleneck) int {
		if c := cmp.Compare(b.Severity.Rank(), a.Severity.Rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.ImpactScore, a.ImpactScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Key(), b.Key()); c != 0 {
			return c
		}
		return a.Window.Start.Compare(b.Window.Start)
	})
}

// BottleneckRisk describes the risk that b persists, with the remediation
// table's mitigation.
func BottleneckRisk(b v1alpha1.Bottleneck) v1alpha1.Risk {
	return v1alpha1.Risk{
		Description: fmt.Sprintf("%s %s bottleneck on %s", b.Severity, b.Type, b.AffectedResource),
		Source:      b.ID,
		Probability: SeverityProbability(b.Severity),
		Impact:      fmt.Sprintf("%.1f hours short per period at %.0f%% utilization", b.ShortfallHours, 100*b.Utilization),
		Mitigation:  RemediationFor(b.Type).Mitigation,
	}
}
