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

// Package common holds helpers shared by the engine stages: the remediation
// table keyed by bottleneck type, severity ordering, risk heuristics and
// deterministic identifiers.
package common

import (
	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

// Remediation is the fixed response to one kind of bottleneck.
type Remediation struct {
	RootCauses []string
	Actions    []v1alpha1.ActionType
	Mitigation string
}

var remediations = map[v1alpha1.BottleneckType]Remediation{
	v1alpha1.BottleneckSkill: {
		RootCauses: []string{
			"too few employees hold the skill",
			"skill demand grew faster than supply",
		},
		Actions:    []v1alpha1.ActionType{v1alpha1.ActionTraining, v1alpha1.ActionHiring},
		Mitigation: "cross-train adjacent staff and open requisitions for the skill",
	},
	v1alpha1.BottleneckDepartment: {
		RootCauses: []string{
			"department headcount below allocated demand",
			"project intake exceeds department capacity",
		},
		Actions:    []v1alpha1.ActionType{v1alpha1.ActionHiring, v1alpha1.ActionReallocation},
		Mitigation: "move work to under-utilized departments or add headcount",
	},
	v1alpha1.BottleneckResource: {
		RootCauses: []string{
			"employee allocated beyond availability",
			"work concentrated on a single person",
		},
		Actions:    []v1alpha1.ActionType{v1alpha1.ActionReallocation, v1alpha1.ActionProcessChange},
		Mitigation: "rebalance assignments and reduce single-person dependencies",
	},
	v1alpha1.BottleneckTime: {
		RootCauses: []string{
			"demand peak concentrated in a short window",
			"overlapping project deadlines",
		},
		Actions:    []v1alpha1.ActionType{v1alpha1.ActionReallocation, v1alpha1.ActionScheduleShift},
		Mitigation: "shift non-critical work out of the peak window",
	},
}

// RemediationFor returns a copy of the table entry for t. Unknown types get
// an empty remediation.
func RemediationFor(t v1alpha1.BottleneckType) Remediation {
	r, ok := remediations[t]
	if !ok {
		return Remediation{}
	}
	return Remediation{
		RootCauses: append([]string(nil), r.RootCauses...),
		Actions:    append([]v1alpha1.ActionType(nil), r.Actions...),
		Mitigation: r.Mitigation,
	}
}
