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

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

// DataSource is the interface for pluggable workforce data sources.
// Implementations include the memory, fixture and SQL sources.
//
// All methods are read-only. A failing backend must return an error that
// matches ErrDataUnavailable.
type DataSource interface {
	// Name returns the unique name of this source (e.g., "memory", "sqlite3").
	Name() string

	// FetchAllocations returns allocations overlapping the scope's date range.
	FetchAllocations(ctx context.Context, scope Scope) ([]v1alpha1.AllocationRecord, error)

	// FetchCapacitySnapshots returns snapshots dated inside the scope's date range.
	FetchCapacitySnapshots(ctx context.Context, scope Scope) ([]v1alpha1.CapacitySnapshot, error)

	// FetchSkills returns skill records with their proficiency mapping.
	FetchSkills(ctx context.Context, scope Scope) ([]v1alpha1.SkillRecord, error)
}
