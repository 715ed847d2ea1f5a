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

package v1alpha1

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ChangeKind discriminates scenario changes on the wire.
type ChangeKind string

const (
	ChangeKindAddProject      ChangeKind = "add_project"
	ChangeKindAddResources    ChangeKind = "add_resources"
	ChangeKindRemoveResources ChangeKind = "remove_resources"
	ChangeKindDemand          ChangeKind = "change_demand"
)

// Change is one hypothetical modification in a scenario.
// The set of implementations is closed: AddProject, AddResources,
// RemoveResources and ChangeDemand.
type Change interface {
	Kind() ChangeKind
	isChange()
}

// DateRange bounds a change, both ends inclusive. A nil range applies the
// change to every period of the baseline.
type DateRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Overlaps reports whether the range intersects the period.
func (r *DateRange) Overlaps(p Period) bool {
	if r == nil {
		return true
	}
	return r.Start.Before(p.End) && !r.End.Before(p.Start)
}

// AddProject adds project demand to a department.
type AddProject struct {
	ProjectID    string `json:"projectId" yaml:"projectId"`
	DepartmentID string `json:"departmentId,omitempty" yaml:"departmentId,omitempty"`
	SkillID      string `json:"skillId,omitempty" yaml:"skillId,omitempty"`

	// HoursPerPeriod is the demand added to each affected period.
	HoursPerPeriod float64    `json:"hoursPerPeriod" yaml:"hoursPerPeriod"`
	Window         *DateRange `json:"window,omitempty" yaml:"window,omitempty"`
}

// AddResources adds headcount to a department.
type AddResources struct {
	DepartmentID string `json:"departmentId,omitempty" yaml:"departmentId,omitempty"`
	SkillID      string `json:"skillId,omitempty" yaml:"skillId,omitempty"`
	Count        int    `json:"count" yaml:"count"`

	// HoursPerResource is the availability of each added person per period.
	// Missing means the scope's average availability per entity.
	HoursPerResource *float64  `json:"hoursPerResource,omitempty" yaml:"hoursPerResource,omitempty"`
	Window           *DateRange `json:"window,omitempty" yaml:"window,omitempty"`
}

// RemoveResources removes headcount from a department. Their allocated
// demand stays in the scope.
type RemoveResources struct {
	DepartmentID string     `json:"departmentId,omitempty" yaml:"departmentId,omitempty"`
	SkillID      string     `json:"skillId,omitempty" yaml:"skillId,omitempty"`
	Count        int        `json:"count" yaml:"count"`
	Window       *DateRange `json:"window,omitempty" yaml:"window,omitempty"`
}

// ChangeDemand scales demand by a percentage (+20 means x1.2).
type ChangeDemand struct {
	DepartmentID string     `json:"departmentId,omitempty" yaml:"departmentId,omitempty"`
	SkillID      string     `json:"skillId,omitempty" yaml:"skillId,omitempty"`
	Percent      float64    `json:"percent" yaml:"percent"`
	Window       *DateRange `json:"window,omitempty" yaml:"window,omitempty"`
}

func (AddProject) Kind() ChangeKind      { return ChangeKindAddProject }
func (AddResources) Kind() ChangeKind    { return ChangeKindAddResources }
func (RemoveResources) Kind() ChangeKind { return ChangeKindRemoveResources }
func (ChangeDemand) Kind() ChangeKind    { return ChangeKindDemand }

func (AddProject) isChange()      {}
func (AddResources) isChange()    {}
func (RemoveResources) isChange() {}
func (ChangeDemand) isChange()    {}

// newChange returns a pointer to the zero value of the change for kind.
func newChange(kind ChangeKind) (any, error) {
	switch kind {
	case ChangeKindAddProject:
		return &AddProject{}, nil
	case ChangeKindAddResources:
		return &AddResources{}, nil
	case ChangeKindRemoveResources:
		return &RemoveResources{}, nil
	case ChangeKindDemand:
		return &ChangeDemand{}, nil
	default:
		return nil, fmt.Errorf("unknown change kind %q", kind)
	}
}

// deref turns the pointer from newChange back into a Change value.
func deref(v any) Change {
	switch c := v.(type) {
	case *AddProject:
		return *c
	case *AddResources:
		return *c
	case *RemoveResources:
		return *c
	case *ChangeDemand:
		return *c
	}
	return nil
}

// ChangeList is an ordered list of changes encoded with a "kind" field.
type ChangeList []Change

type kindEnvelope struct {
	Kind ChangeKind `json:"kind" yaml:"kind"`
}

// UnmarshalJSON decodes each element by its kind.
func (l *ChangeList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ChangeList, 0, len(raw))
	for i, item := range raw {
		var env kindEnvelope
		if err := json.Unmarshal(item, &env); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
		target, err := newChange(env.Kind)
		if err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
		if err := json.Unmarshal(item, target); err != nil {
			return fmt.Errorf("change %d (%s): %w", i, env.Kind, err)
		}
		out = append(out, deref(target))
	}
	*l = out
	return nil
}

// MarshalJSON encodes each element with its kind.
func (l ChangeList) MarshalJSON() ([]byte, error) {
	items := make([]map[string]any, 0, len(l))
	for _, c := range l {
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		fields["kind"] = c.Kind()
		items = append(items, fields)
	}
	return json.Marshal(items)
}

// UnmarshalYAML decodes each element by its kind.
func (l *ChangeList) UnmarshalYAML(value *yaml.Node) error {
	var nodes []yaml.Node
	if err := value.Decode(&nodes); err != nil {
		return err
	}
	out := make(ChangeList, 0, len(nodes))
	for i := range nodes {
		var env kindEnvelope
		if err := nodes[i].Decode(&env); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
		target, err := newChange(env.Kind)
		if err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
		if err := nodes[i].Decode(target); err != nil {
			return fmt.Errorf("change %d (%s): %w", i, env.Kind, err)
		}
		out = append(out, deref(target))
	}
	*l = out
	return nil
}

// Scenario is a named, ordered set of hypothetical changes.
type Scenario struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Changes     ChangeList `json:"changes" yaml:"changes"`
}

// AnalysisOptions selects optional parts of a scenario result.
type AnalysisOptions struct {
	IncludeRiskAnalysis  bool `json:"includeRiskAnalysis" yaml:"includeRiskAnalysis"`
	IncludeOptimizations bool `json:"includeOptimizations" yaml:"includeOptimizations"`
	IncludeCostImpact    bool `json:"includeCostImpact" yaml:"includeCostImpact"`

	// Horizon is forecast for the baseline and the modified profile.
	// Empty uses the configured default.
	Horizon string `json:"horizon,omitempty" yaml:"horizon,omitempty"`
}

// CapacityDelta is modified minus baseline, summed over all periods.
type CapacityDelta struct {
	AvailableHours float64 `json:"availableHours" yaml:"availableHours"`
	DemandHours    float64 `json:"demandHours" yaml:"demandHours"`

	// UtilizationChange compares the latest period.
	UtilizationChange float64 `json:"utilizationChange" yaml:"utilizationChange"`
}

// ScenarioResult is the outcome of simulating a scenario against a baseline.
type ScenarioResult struct {
	ScenarioName        string                   `json:"scenarioName" yaml:"scenarioName"`
	CapacityDelta       CapacityDelta            `json:"capacityDelta" yaml:"capacityDelta"`
	DepartmentDeltas    map[string]CapacityDelta `json:"departmentDeltas,omitempty" yaml:"departmentDeltas,omitempty"`
	NewBottlenecks      []Bottleneck             `json:"newBottlenecks" yaml:"newBottlenecks"`
	ResolvedBottlenecks []Bottleneck             `json:"resolvedBottlenecks" yaml:"resolvedBottlenecks"`
	Predictions         []Prediction             `json:"predictions,omitempty" yaml:"predictions,omitempty"`
	Recommendations     []Recommendation         `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	RiskAssessment      *RiskAssessment          `json:"riskAssessment,omitempty" yaml:"riskAssessment,omitempty"`
	CostImpact          *decimal.Decimal         `json:"costImpact,omitempty" yaml:"costImpact,omitempty"`

	// Notes record clamps and other adjustments made while applying changes.
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// DeepCopy returns an independent copy of the result.
func (r *ScenarioResult) DeepCopy() *ScenarioResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.DepartmentDeltas != nil {
		out.DepartmentDeltas = make(map[string]CapacityDelta, len(r.DepartmentDeltas))
		for k, v := range r.DepartmentDeltas {
			out.DepartmentDeltas[k] = v
		}
	}
	out.NewBottlenecks = copyBottlenecks(r.NewBottlenecks)
	out.ResolvedBottlenecks = copyBottlenecks(r.ResolvedBottlenecks)
	out.Predictions = DeepCopyPredictions(r.Predictions)
	if r.Recommendations != nil {
		out.Recommendations = make([]Recommendation, len(r.Recommendations))
		for i, rec := range r.Recommendations {
			out.Recommendations[i] = rec.DeepCopy()
		}
	}
	if r.RiskAssessment != nil {
		ra := *r.RiskAssessment
		ra.Risks = append([]Risk(nil), r.RiskAssessment.Risks...)
		out.RiskAssessment = &ra
	}
	if r.CostImpact != nil {
		c := *r.CostImpact
		out.CostImpact = &c
	}
	out.Notes = copyStrings(r.Notes)
	return &out
}

func copyBottlenecks(in []Bottleneck) []Bottleneck {
	if in == nil {
		return nil
	}
	out := make([]Bottleneck, len(in))
	for i, b := range in {
		out[i] = b.DeepCopy()
	}
	return out
}
