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

package scenario

import (
	"fmt"
	"sort"

	"k8s.io/utils/ptr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

// Effect summarizes what one applied change did to its reference series.
type Effect struct {
	// AvailableHours and DemandHours are the summed hour deltas.
	AvailableHours float64
	DemandHours    float64

	// Ratio is the largest relative change of the reference series'
	// available or demand hours over the affected periods.
	Ratio float64

	// Dimension is where the change applies: department, skill or time.
	Dimension v1alpha1.BottleneckType
	Target    string
}

// Applier transforms a profile in place for one kind of change and returns
// the effect plus notes for every clamp it made. The change must be the
// value type of the applier's kind; see Normalize.
type Applier interface {
	Apply(profile *v1alpha1.UtilizationProfile, change v1alpha1.Change) (Effect, []string)
}

// NewApplier is a factory that returns the Applier for a change kind.
func NewApplier(kind v1alpha1.ChangeKind) (Applier, error) {
	switch kind {
	case v1alpha1.ChangeKindAddProject:
		return addProject{}, nil
	case v1alpha1.ChangeKindAddResources:
		return addResources{}, nil
	case v1alpha1.ChangeKindRemoveResources:
		return removeResources{}, nil
	case v1alpha1.ChangeKindDemand:
		return changeDemand{}, nil
	default:
		return nil, fmt.Errorf("unsupported change kind: %q", kind)
	}
}

// Normalize dereferences pointer changes. Nil pointers become nil.
func Normalize(c v1alpha1.Change) v1alpha1.Change {
	switch v := c.(type) {
	case *v1alpha1.AddProject:
		if v != nil {
			return *v
		}
		return nil
	case *v1alpha1.AddResources:
		if v != nil {
			return *v
		}
		return nil
	case *v1alpha1.RemoveResources:
		if v != nil {
			return *v
		}
		return nil
	case *v1alpha1.ChangeDemand:
		if v != nil {
			return *v
		}
		return nil
	}
	return c
}

// delta is the per-period hour and headcount change, applied to every target series.
type delta struct {
	available float64
	demand    float64
	entities  int
	project   string
}

// targets resolves the series a change touches. The reference series is the
// most specific one: department, then skill, then overall. Missing
// department or skill series are created with zero hours when create is set;
// otherwise the change has nothing to act on and is not applied.
type targets struct {
	reference []v1alpha1.PeriodUtilization
	series    [][]v1alpha1.PeriodUtilization
	dimension v1alpha1.BottleneckType
	target    string
	missing   bool
}

func resolve(profile *v1alpha1.UtilizationProfile, departmentID, skillID string, create bool) (targets, []string) {
	var notes []string
	t := targets{
		reference: profile.Overall,
		series:    [][]v1alpha1.PeriodUtilization{profile.Overall},
		dimension: v1alpha1.BottleneckTime,
		target:    profile.ScopeID,
	}
	lookup := func(m *map[string][]v1alpha1.PeriodUtilization, id, kind string) []v1alpha1.PeriodUtilization {
		if s, ok := (*m)[id]; ok {
			return s
		}
		if !create {
			t.missing = true
			notes = append(notes, fmt.Sprintf("%s %q is not in the baseline; change not applied", kind, id))
			return nil
		}
		if *m == nil {
			*m = map[string][]v1alpha1.PeriodUtilization{}
		}
		s := emptyLike(profile.Overall)
		(*m)[id] = s
		notes = append(notes, fmt.Sprintf("%s %q is not in the baseline; created with zero baseline hours", kind, id))
		return s
	}
	if skillID != "" {
		if s := lookup(&profile.Skills, skillID, "skill"); s != nil {
			t.series = append(t.series, s)
			t.reference, t.dimension, t.target = s, v1alpha1.BottleneckSkill, skillID
		}
	}
	if departmentID != "" {
		if s := lookup(&profile.Departments, departmentID, "department"); s != nil {
			t.series = append(t.series, s)
			t.reference, t.dimension, t.target = s, v1alpha1.BottleneckDepartment, departmentID
		}
	}
	return t, notes
}

// apply adds d(i, ref) to period i of every target series within window and
// returns the summed effect. A missing target is left untouched.
func (t targets) apply(window *v1alpha1.DateRange, d func(i int, ref v1alpha1.PeriodUtilization) delta) Effect {
	effect := Effect{Dimension: t.dimension, Target: t.target}
	if t.missing {
		return effect
	}
	var baseAvailable, baseDemand float64
	for i, ref := range t.reference {
		if !window.Overlaps(ref.Period) {
			continue
		}
		change := d(i, ref)
		baseAvailable += ref.TotalAvailable
		baseDemand += ref.TotalAllocated
		effect.AvailableHours += change.available
		effect.DemandHours += change.demand
		for _, s := range t.series {
			p := &s[i]
			p.TotalAvailable = max(0, p.TotalAvailable+change.available)
			p.TotalAllocated = max(0, p.TotalAllocated+change.demand)
			p.EntityCount = max(0, p.EntityCount+change.entities)
			if change.project != "" {
				p.Projects = withProject(p.Projects, change.project)
			}
			p.Recompute()
		}
	}
	effect.Ratio = max(relative(effect.AvailableHours, baseAvailable), relative(effect.DemandHours, baseDemand))
	return effect
}

type addProject struct{}

func (addProject) Apply(profile *v1alpha1.UtilizationProfile, change v1alpha1.Change) (Effect, []string) {
	c := change.(v1alpha1.AddProject)
	t, notes := resolve(profile, c.DepartmentID, c.SkillID, true)
	hours := c.HoursPerPeriod
	if hours < 0 {
		notes = append(notes, fmt.Sprintf("add_project %q: hoursPerPeriod %.2f clamped to 0", c.ProjectID, hours))
		hours = 0
	}
	effect := t.apply(c.Window, func(int, v1alpha1.PeriodUtilization) delta {
		return delta{demand: hours, project: c.ProjectID}
	})
	return effect, notes
}

type addResources struct{}

func (addResources) Apply(profile *v1alpha1.UtilizationProfile, change v1alpha1.Change) (Effect, []string) {
	c := change.(v1alpha1.AddResources)
	t, notes := resolve(profile, c.DepartmentID, c.SkillID, true)
	count := c.Count
	if count < 0 {
		notes = append(notes, fmt.Sprintf("add_resources: count %d clamped to 0", count))
		count = 0
	}
	perResource := c.HoursPerResource
	if h := ptr.Deref(perResource, 0); h < 0 {
		notes = append(notes, fmt.Sprintf("add_resources: hoursPerResource %.2f clamped to 0", h))
		perResource = ptr.To(0.0)
	}
	var usedScope, unstaffed bool
	effect := t.apply(c.Window, func(i int, ref v1alpha1.PeriodUtilization) delta {
		if perResource != nil {
			return delta{available: float64(count) * *perResource, entities: count}
		}
		hours := averageAvailable(ref)
		if contributors(ref) == 0 {
			if scope := averageAvailable(profile.Overall[i]); scope > 0 {
				hours, usedScope = scope, true
			}
		}
		if hours == 0 {
			unstaffed = true
		}
		return delta{available: float64(count) * hours, entities: count}
	})
	if usedScope && count > 0 {
		notes = append(notes, fmt.Sprintf("add_resources: no availability observed for %s; hoursPerResource defaults to the scope average", t.target))
	}
	if unstaffed && count > 0 {
		notes = append(notes, fmt.Sprintf("add_resources: no availability observed to default hoursPerResource; %d resources add 0 hours in some periods", count))
	}
	return effect, notes
}

type removeResources struct{}

func (removeResources) Apply(profile *v1alpha1.UtilizationProfile, change v1alpha1.Change) (Effect, []string) {
	c := change.(v1alpha1.RemoveResources)
	t, notes := resolve(profile, c.DepartmentID, c.SkillID, false)
	count := c.Count
	if count < 0 {
		notes = append(notes, fmt.Sprintf("remove_resources: count %d clamped to 0", count))
		count = 0
	}
	clamped := false
	effect := t.apply(c.Window, func(_ int, ref v1alpha1.PeriodUtilization) delta {
		n := count
		if available := contributors(ref); n > available {
			if !clamped {
				notes = append(notes, fmt.Sprintf("remove_resources: count %d exceeds %d entities in %s; clamped", count, available, ref.Period.Label))
				clamped = true
			}
			n = available
		}
		return delta{available: -float64(n) * averageAvailable(ref), entities: -n}
	})
	return effect, notes
}

type changeDemand struct{}

func (changeDemand) Apply(profile *v1alpha1.UtilizationProfile, change v1alpha1.Change) (Effect, []string) {
	c := change.(v1alpha1.ChangeDemand)
	t, notes := resolve(profile, c.DepartmentID, c.SkillID, false)
	pct := c.Percent
	if pct < -100 {
		notes = append(notes, fmt.Sprintf("change_demand: percent %.2f clamped to -100", pct))
		pct = -100
	}
	effect := t.apply(c.Window, func(_ int, ref v1alpha1.PeriodUtilization) delta {
		return delta{demand: ref.TotalAllocated * pct / 100}
	})
	return effect, notes
}

// contributors counts entities with observed availability in the period.
func contributors(p v1alpha1.PeriodUtilization) int {
	return max(0, p.EntityCount-p.ExcludedEntities)
}

// averageAvailable is the mean availability per contributing entity, 0 if none.
func averageAvailable(p v1alpha1.PeriodUtilization) float64 {
	if n := contributors(p); n > 0 {
		return p.TotalAvailable / float64(n)
	}
	return 0
}

func relative(change, base float64) float64 {
	if change < 0 {
		change = -change
	}
	if base <= 0 {
		if change > 0 {
			return 1
		}
		return 0
	}
	return change / base
}

func emptyLike(series []v1alpha1.PeriodUtilization) []v1alpha1.PeriodUtilization {
	out := make([]v1alpha1.PeriodUtilization, len(series))
	for i, p := range series {
		out[i] = v1alpha1.PeriodUtilization{Period: p.Period}
	}
	return out
}

func withProject(projects []string, id string) []string {
	i := sort.SearchStrings(projects, id)
	if i < len(projects) && projects[i] == id {
		return projects
	}
	out := make([]string, 0, len(projects)+1)
	out = append(out, projects[:i]...)
	out = append(out, id)
	return append(out, projects[i:]...)
}
