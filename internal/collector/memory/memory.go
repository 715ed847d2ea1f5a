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

// Package memory provides an in-process collector.DataSource.
package memory

import (
	"context"
	"maps"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/collector"
)

// SourceName is the name reported by Source.
const SourceName = "memory"

// Source serves records held in memory. The slices are never modified after
// construction, so a Source is safe for concurrent use.
type Source struct {
	allocations []v1alpha1.AllocationRecord
	snapshots   []v1alpha1.CapacitySnapshot
	skills      []v1alpha1.SkillRecord
}

var _ collector.DataSource = (*Source)(nil)

// New copies the given records into a Source.
func New(allocations []v1alpha1.AllocationRecord, snapshots []v1alpha1.CapacitySnapshot, skills []v1alpha1.SkillRecord) *Source {
	s := &Source{
		allocations: append([]v1alpha1.AllocationRecord(nil), allocations...),
		snapshots:   append([]v1alpha1.CapacitySnapshot(nil), snapshots...),
		skills:      make([]v1alpha1.SkillRecord, len(skills)),
	}
	for i, sk := range skills {
		s.skills[i] = sk
		s.skills[i].Proficiency = maps.Clone(sk.Proficiency)
	}
	return s
}

func (s *Source) Name() string { return SourceName }

func (s *Source) FetchAllocations(ctx context.Context, scope collector.Scope) ([]v1alpha1.AllocationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []v1alpha1.AllocationRecord
	for _, a := range s.allocations {
		if scope.MatchesAllocation(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Source) FetchCapacitySnapshots(ctx context.Context, scope collector.Scope) ([]v1alpha1.CapacitySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []v1alpha1.CapacitySnapshot
	for _, c := range s.snapshots {
		if scope.MatchesSnapshot(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Source) FetchSkills(ctx context.Context, scope collector.Scope) ([]v1alpha1.SkillRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []v1alpha1.SkillRecord
	for _, sk := range s.skills {
		if scope.MatchesSkill(sk) {
			sk.Proficiency = maps.Clone(sk.Proficiency)
			out = append(out, sk)
		}
	}
	return out, nil
}
