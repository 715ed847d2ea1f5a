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

package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

// Scope selects the records a request analyses.
type Scope struct {
	// DepartmentID restricts records to one department. Empty means all.
	DepartmentID string

	// SkillID restricts employees to holders of one skill. Empty means all.
	SkillID string

	// From and To bound the analysed range as [From, To).
	From time.Time
	To   time.Time

	Granularity v1alpha1.Granularity
}

// ID returns a stable identifier for the scope, e.g. "department=eng,skill=go".
func (s Scope) ID() string {
	parts := make([]string, 0, 2)
	if s.DepartmentID != "" {
		parts = append(parts, "department="+s.DepartmentID)
	}
	if s.SkillID != "" {
		parts = append(parts, "skill="+s.SkillID)
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ",")
}

// Key returns the scope ID plus range and granularity, for cache keys.
func (s Scope) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", s.ID(),
		s.From.UTC().Format(time.RFC3339), s.To.UTC().Format(time.RFC3339), s.Granularity)
}

// Validate checks the date range and granularity.
func (s Scope) Validate() error {
	if s.From.IsZero() || s.To.IsZero() {
		return fmt.Errorf("scope date range is required")
	}
	if !s.To.After(s.From) {
		return fmt.Errorf("scope end %s must be after start %s",
			s.To.Format(time.DateOnly), s.From.Format(time.DateOnly))
	}
	if !s.Granularity.IsValid() {
		return fmt.Errorf("unknown granularity %q", s.Granularity)
	}
	return nil
}

// MatchesDepartment reports whether a record in department id is in scope.
func (s Scope) MatchesDepartment(id string) bool {
	return s.DepartmentID == "" || s.DepartmentID == id
}

// MatchesAllocation reports whether an allocation is in scope.
func (s Scope) MatchesAllocation(a v1alpha1.AllocationRecord) bool {
	return s.MatchesDepartment(a.DepartmentID) && a.Overlaps(s.From, s.To)
}

// MatchesSnapshot reports whether a snapshot is in scope.
func (s Scope) MatchesSnapshot(c v1alpha1.CapacitySnapshot) bool {
	return s.MatchesDepartment(c.DepartmentID) && !c.Date.Before(s.From) && c.Date.Before(s.To)
}

// MatchesSkill reports whether a skill record is in scope.
func (s Scope) MatchesSkill(sk v1alpha1.SkillRecord) bool {
	return s.SkillID == "" || s.SkillID == sk.ID
}

// DataSet holds every record fetched for one scope.
type DataSet struct {
	Allocations []v1alpha1.AllocationRecord
	Snapshots   []v1alpha1.CapacitySnapshot
	Skills      []v1alpha1.SkillRecord
}

// Len returns the number of records in the set.
func (d *DataSet) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Allocations) + len(d.Snapshots) + len(d.Skills)
}

// FetchAll reads allocations, snapshots and skills for scope concurrently.
// The first failure cancels the remaining reads and is returned unmodified.
func FetchAll(ctx context.Context, src DataSource, scope Scope) (*DataSet, error) {
	var data DataSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := src.FetchAllocations(gctx, scope)
		data.Allocations = out
		return err
	})
	g.Go(func() error {
		out, err := src.FetchCapacitySnapshots(gctx, scope)
		data.Snapshots = out
		return err
	})
	g.Go(func() error {
		out, err := src.FetchSkills(gctx, scope)
		data.Skills = out
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &data, nil
}
