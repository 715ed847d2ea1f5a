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

// Package aggregator reduces raw allocation and capacity records into
// per-period utilization series.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/ptr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/collector"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
)

// UnassignedDepartment groups employees whose records carry no department.
const UnassignedDepartment = "unassigned"

// Aggregator builds UtilizationProfiles. It holds no per-request state.
type Aggregator struct {
	cfg config.AggregatorConfig
}

// New creates an Aggregator.
func New(cfg config.AggregatorConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// employeeCell is one employee's contribution to one period.
type employeeCell struct {
	department  string
	available   float64
	allocated   float64
	hasSnapshot bool
	projects    map[string]struct{}
}

// bucket accumulates employee cells into one PeriodUtilization.
type bucket struct {
	available, allocated float64
	entities, excluded   int
	projects             map[string]struct{}
}

func (b *bucket) add(c *employeeCell) {
	b.entities++
	if !c.hasSnapshot {
		b.excluded++
	}
	b.available += c.available
	b.allocated += c.allocated
	if b.projects == nil {
		b.projects = make(map[string]struct{})
	}
	for p := range c.projects {
		b.projects[p] = struct{}{}
	}
}

func (b *bucket) result(p v1alpha1.Period) v1alpha1.PeriodUtilization {
	out := v1alpha1.PeriodUtilization{Period: p}
	if b == nil {
		return out
	}
	out.TotalAvailable = b.available
	out.TotalAllocated = b.allocated
	out.EntityCount = b.entities
	out.ExcludedEntities = b.excluded
	out.Projects = sortedKeys(b.projects)
	out.Recompute()
	return out
}

// Aggregate validates the records in data and reduces them into a profile
// over scope. Optional hours default to zero. Employees without a snapshot
// in a period count as entities but contribute no hours. Leading and
// trailing periods without any snapshot are unobserved and left out of
// every series; LastPeriod still records the end of the scope.
func (a *Aggregator) Aggregate(ctx context.Context, scope collector.Scope, data *collector.DataSet) (*v1alpha1.UtilizationProfile, error) {
	logger := logr.FromContextOrDiscard(ctx)

	profile := &v1alpha1.UtilizationProfile{
		ScopeID:     scope.ID(),
		Granularity: scope.Granularity,
	}
	periods := Partition(scope.From, scope.To, scope.Granularity)
	if len(periods) > 0 {
		last := periods[len(periods)-1]
		profile.LastPeriod = &last
	}
	if data == nil {
		return profile, nil
	}
	if err := validate(data); err != nil {
		return nil, err
	}
	profile.EntriesCount = len(data.Allocations) + len(data.Snapshots)

	holders := a.holders(data.Skills)
	allocations, snapshots := data.Allocations, data.Snapshots
	if scope.SkillID != "" {
		allowed := holders[scope.SkillID]
		allocations = filter(allocations, func(r v1alpha1.AllocationRecord) bool { return has(allowed, r.EmployeeID) })
		snapshots = filter(snapshots, func(s v1alpha1.CapacitySnapshot) bool { return has(allowed, s.EmployeeID) })
	}
	if len(allocations) == 0 && len(snapshots) == 0 {
		logger.V(logging.DEBUG).Info("Empty scope, returning empty profile", "scope", profile.ScopeID)
		return profile, nil
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("scope %s has an empty date range", profile.ScopeID)
	}

	cells := make([]map[string]*employeeCell, len(periods))
	first, last := -1, -1
	for i, period := range periods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells[i] = cellsFor(period, allocations, snapshots)
		if observed(cells[i]) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		logger.V(logging.DEBUG).Info("No snapshots in scope, returning empty profile", "scope", profile.ScopeID)
		return profile, nil
	}
	total := len(periods)
	periods, cells = periods[first:last+1], cells[first:last+1]

	departments := map[string][]v1alpha1.PeriodUtilization{}
	resources := map[string][]v1alpha1.PeriodUtilization{}
	skills := map[string][]v1alpha1.PeriodUtilization{}
	deptBuckets := make([]map[string]*bucket, len(periods))
	resBuckets := make([]map[string]*bucket, len(periods))
	skillBuckets := make([]map[string]*bucket, len(periods))

	for i, period := range periods {
		var overall bucket
		deptBuckets[i] = map[string]*bucket{}
		resBuckets[i] = map[string]*bucket{}
		skillBuckets[i] = map[string]*bucket{}
		// Sorted order keeps floating point sums reproducible.
		for _, emp := range sortedKeys(keysOf(cells[i])) {
			c := cells[i][emp]
			overall.add(c)
			addTo(deptBuckets[i], c.department, c)
			addTo(resBuckets[i], emp, c)
			for skill, members := range holders {
				if scope.SkillID != "" && skill != scope.SkillID {
					continue
				}
				if has(members, emp) {
					addTo(skillBuckets[i], skill, c)
				}
			}
		}
		profile.Overall = append(profile.Overall, overall.result(period))
		markKeys(departments, deptBuckets[i])
		markKeys(resources, resBuckets[i])
		markKeys(skills, skillBuckets[i])
	}

	fill(departments, periods, deptBuckets)
	fill(resources, periods, resBuckets)
	fill(skills, periods, skillBuckets)
	profile.Departments = departments
	profile.Resources = resources
	profile.Skills = skills

	logger.V(logging.DEBUG).Info("Aggregated utilization",
		"scope", profile.ScopeID,
		"periods", len(periods),
		"unobserved", total-len(periods),
		"entries", profile.EntriesCount,
		"departments", len(departments),
		"skills", len(skills))
	return profile, nil
}

// observed reports whether any employee has a snapshot in the period.
func observed(cells map[string]*employeeCell) bool {
	for _, c := range cells {
		if c.hasSnapshot {
			return true
		}
	}
	return false
}

// holders returns, per skill ID, the employees at or above the minimum proficiency.
func (a *Aggregator) holders(skills []v1alpha1.SkillRecord) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(skills))
	for _, sk := range skills {
		members := make(map[string]struct{})
		for emp, level := range sk.Proficiency {
			if level >= a.cfg.MinSkillProficiency {
				members[emp] = struct{}{}
			}
		}
		out[sk.ID] = members
	}
	return out
}

// Holders counts employees holding each skill at the minimum proficiency.
func (a *Aggregator) Holders(skills []v1alpha1.SkillRecord) map[string]int {
	out := make(map[string]int, len(skills))
	for id, members := range a.holders(skills) {
		out[id] = len(members)
	}
	return out
}

func validate(data *collector.DataSet) error {
	for _, r := range data.Allocations {
		if err := r.Validate(); err != nil {
			return &ValidationError{RecordKind: "allocation", RecordID: r.ID, Reason: err.Error()}
		}
	}
	for _, s := range data.Snapshots {
		if err := s.Validate(); err != nil {
			id := s.EmployeeID + "@" + s.Date.Format(time.DateOnly)
			return &ValidationError{RecordKind: "snapshot", RecordID: id, Reason: err.Error()}
		}
	}
	return nil
}

func cellsFor(period v1alpha1.Period, allocations []v1alpha1.AllocationRecord, snapshots []v1alpha1.CapacitySnapshot) map[string]*employeeCell {
	cells := map[string]*employeeCell{}
	cell := func(emp, dept string) *employeeCell {
		c, ok := cells[emp]
		if !ok {
			c = &employeeCell{projects: map[string]struct{}{}}
			cells[emp] = c
		}
		if c.department == "" && dept != "" {
			c.department = dept
		}
		return c
	}

	for _, s := range snapshots {
		if !period.Contains(s.Date) {
			continue
		}
		c := cell(s.EmployeeID, s.DepartmentID)
		c.hasSnapshot = true
		c.available += ptr.Deref(s.AvailableHours, 0)
		c.allocated += ptr.Deref(s.AllocatedHours, 0)
	}
	for _, r := range allocations {
		if !r.Overlaps(period.Start, period.End) {
			continue
		}
		c := cell(r.EmployeeID, r.DepartmentID)
		if r.AttributesProjects() && r.ProjectID != "" {
			c.projects[r.ProjectID] = struct{}{}
		}
	}
	for _, c := range cells {
		if c.department == "" {
			c.department = UnassignedDepartment
		}
	}
	return cells
}

func addTo(buckets map[string]*bucket, key string, c *employeeCell) {
	b, ok := buckets[key]
	if !ok {
		b = &bucket{}
		buckets[key] = b
	}
	b.add(c)
}

func markKeys(series map[string][]v1alpha1.PeriodUtilization, buckets map[string]*bucket) {
	for k := range buckets {
		if _, ok := series[k]; !ok {
			series[k] = nil
		}
	}
}

// fill gives every series one entry per period, zero where the key was absent.
func fill(series map[string][]v1alpha1.PeriodUtilization, periods []v1alpha1.Period, buckets []map[string]*bucket) {
	for k := range series {
		out := make([]v1alpha1.PeriodUtilization, len(periods))
		for i, p := range periods {
			out[i] = buckets[i][k].result(p)
		}
		series[k] = out
	}
}

func filter[T any](in []T, keep func(T) bool) []T {
	var out []T
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func keysOf[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func has(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
