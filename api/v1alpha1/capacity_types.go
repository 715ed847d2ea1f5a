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

// Package v1alpha1 contains the input records read from the workforce data layer
// and the derived analytics types produced by the capacity intelligence engine.
package v1alpha1

import (
	"fmt"
	"time"

	"k8s.io/utils/ptr"
)

// Granularity is the period size used to partition a date range.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// IsValid returns true if the granularity is a known value.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// AllocationStatus is the lifecycle state of an allocation in the data layer.
type AllocationStatus string

const (
	AllocationPlanned   AllocationStatus = "planned"
	AllocationActive    AllocationStatus = "active"
	AllocationCompleted AllocationStatus = "completed"
	AllocationCancelled AllocationStatus = "cancelled"
)

// AllocationRecord assigns an employee to a project for a date range.
type AllocationRecord struct {
	// ID identifies the record in validation errors.
	ID string `json:"id" yaml:"id"`

	// EmployeeID references the allocated employee.
	EmployeeID string `json:"employeeId" yaml:"employeeId"`

	// DepartmentID is the employee's department at allocation time.
	DepartmentID string `json:"departmentId,omitempty" yaml:"departmentId,omitempty"`

	// ProjectID references the project the hours are allocated to.
	ProjectID string `json:"projectId" yaml:"projectId"`

	// AllocatedHours is the total hours of the allocation. Missing means zero.
	AllocatedHours *float64 `json:"allocatedHours,omitempty" yaml:"allocatedHours,omitempty"`

	// StartDate and EndDate bound the allocation, both inclusive. EndDate must not precede StartDate.
	StartDate time.Time `json:"startDate" yaml:"startDate"`
	EndDate   time.Time `json:"endDate" yaml:"endDate"`

	Status AllocationStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// Validate checks the record invariants.
func (a AllocationRecord) Validate() error {
	if a.EmployeeID == "" {
		return fmt.Errorf("employeeId is required")
	}
	if a.EndDate.Before(a.StartDate) {
		return fmt.Errorf("endDate %s is before startDate %s",
			a.EndDate.Format(time.DateOnly), a.StartDate.Format(time.DateOnly))
	}
	if h := ptr.Deref(a.AllocatedHours, 0); h < 0 {
		return fmt.Errorf("allocatedHours must be >= 0, got %.2f", h)
	}
	return nil
}

// Overlaps reports whether the allocation is active at any point of [start, end).
func (a AllocationRecord) Overlaps(start, end time.Time) bool {
	allocEnd := a.EndDate.AddDate(0, 0, 1)
	return a.StartDate.Before(end) && allocEnd.After(start)
}

// AttributesProjects reports whether the allocation should count toward project attribution.
func (a AllocationRecord) AttributesProjects() bool {
	return a.Status != AllocationCancelled
}

// CapacitySnapshot is one employee's availability and allocation on a date.
type CapacitySnapshot struct {
	EmployeeID   string    `json:"employeeId" yaml:"employeeId"`
	DepartmentID string    `json:"departmentId,omitempty" yaml:"departmentId,omitempty"`
	Date         time.Time `json:"date" yaml:"date"`

	// AvailableHours and AllocatedHours default to zero when missing.
	AvailableHours *float64 `json:"availableHours,omitempty" yaml:"availableHours,omitempty"`
	AllocatedHours *float64 `json:"allocatedHours,omitempty" yaml:"allocatedHours,omitempty"`
}

// Validate checks the snapshot invariants.
func (s CapacitySnapshot) Validate() error {
	if s.EmployeeID == "" {
		return fmt.Errorf("employeeId is required")
	}
	if h := ptr.Deref(s.AvailableHours, 0); h < 0 {
		return fmt.Errorf("availableHours must be >= 0, got %.2f", h)
	}
	if h := ptr.Deref(s.AllocatedHours, 0); h < 0 {
		return fmt.Errorf("allocatedHours must be >= 0, got %.2f", h)
	}
	return nil
}

// UtilizationRate returns allocated/available for the snapshot.
func (s CapacitySnapshot) UtilizationRate() float64 {
	return UtilizationRate(ptr.Deref(s.AllocatedHours, 0), ptr.Deref(s.AvailableHours, 0))
}

// UtilizationRate divides allocated by available hours. Zero or negative
// availability yields 0. Over-allocation (> 1.0) is preserved.
func UtilizationRate(allocated, available float64) float64 {
	if available <= 0 {
		return 0
	}
	return allocated / available
}

// SkillRecord describes a skill and which employees hold it.
type SkillRecord struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Proficiency maps employee ID to a proficiency level (1-5).
	Proficiency map[string]int `json:"proficiency,omitempty" yaml:"proficiency,omitempty"`
}

// Period is a half-open time window [Start, End).
type Period struct {
	Label string    `json:"label" yaml:"label"`
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Overlaps reports whether two periods share any instant.
func (p Period) Overlaps(o Period) bool {
	return p.Start.Before(o.End) && o.Start.Before(p.End)
}

// PeriodUtilization is the aggregate of one scope over one period.
type PeriodUtilization struct {
	Period             Period  `json:"period" yaml:"period"`
	AverageUtilization float64 `json:"averageUtilization" yaml:"averageUtilization"`
	TotalAvailable     float64 `json:"totalAvailable" yaml:"totalAvailable"`
	TotalAllocated     float64 `json:"totalAllocated" yaml:"totalAllocated"`

	// EntityCount counts employees with a snapshot in the period or an allocation overlapping it.
	EntityCount int `json:"entityCount" yaml:"entityCount"`

	// ExcludedEntities counts employees in EntityCount that had no snapshot,
	// and therefore contribute nothing to TotalAvailable.
	ExcludedEntities int `json:"excludedEntities,omitempty" yaml:"excludedEntities,omitempty"`

	// Projects are the distinct projects with non-cancelled allocations in the period, sorted.
	Projects []string `json:"projects,omitempty" yaml:"projects,omitempty"`
}

// Shortfall returns demand in excess of available capacity, never negative.
func (p PeriodUtilization) Shortfall() float64 {
	if d := p.TotalAllocated - p.TotalAvailable; d > 0 {
		return d
	}
	return 0
}

// Recompute refreshes AverageUtilization from the totals.
func (p *PeriodUtilization) Recompute() {
	p.AverageUtilization = UtilizationRate(p.TotalAllocated, p.TotalAvailable)
}

// UtilizationProfile is the aggregator output for one scope.
type UtilizationProfile struct {
	ScopeID     string      `json:"scopeId" yaml:"scopeId"`
	Granularity Granularity `json:"granularity" yaml:"granularity"`

	// Overall is the scope-wide series, one entry per period in order.
	Overall []PeriodUtilization `json:"overall" yaml:"overall"`

	// Departments, Resources and Skills hold the same periods broken down by
	// department ID, employee ID and skill ID.
	Departments map[string][]PeriodUtilization `json:"departments,omitempty" yaml:"departments,omitempty"`
	Resources   map[string][]PeriodUtilization `json:"resources,omitempty" yaml:"resources,omitempty"`
	Skills      map[string][]PeriodUtilization `json:"skills,omitempty" yaml:"skills,omitempty"`

	// EntriesCount is the number of input records ingested, including those
	// that contributed no hours.
	EntriesCount int `json:"entriesCount" yaml:"entriesCount"`

	// LastPeriod is the final period of the requested scope, observed or not.
	// Forecasts of a profile without observed periods start after it.
	LastPeriod *Period `json:"lastPeriod,omitempty" yaml:"lastPeriod,omitempty"`
}

// IsEmpty returns true if the profile has no periods.
func (p *UtilizationProfile) IsEmpty() bool {
	return p == nil || len(p.Overall) == 0
}

// Latest returns the last overall period, if any.
func (p *UtilizationProfile) Latest() (PeriodUtilization, bool) {
	if p.IsEmpty() {
		return PeriodUtilization{}, false
	}
	return p.Overall[len(p.Overall)-1], true
}

// DeepCopy returns an independent copy of the profile.
func (p *UtilizationProfile) DeepCopy() *UtilizationProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Overall = copySeries(p.Overall)
	out.Departments = copySeriesMap(p.Departments)
	out.Resources = copySeriesMap(p.Resources)
	out.Skills = copySeriesMap(p.Skills)
	if p.LastPeriod != nil {
		last := *p.LastPeriod
		out.LastPeriod = &last
	}
	return &out
}

func copySeries(in []PeriodUtilization) []PeriodUtilization {
	if in == nil {
		return nil
	}
	out := make([]PeriodUtilization, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Projects = copyStrings(p.Projects)
	}
	return out
}

func copySeriesMap(in map[string][]PeriodUtilization) map[string][]PeriodUtilization {
	if in == nil {
		return nil
	}
	out := make(map[string][]PeriodUtilization, len(in))
	for k, v := range in {
		out[k] = copySeries(v)
	}
	return out
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
