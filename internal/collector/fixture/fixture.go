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

// Package fixture loads workforce records from YAML files.
//
// A fixture file has three top-level lists:
//
//	allocations:
//	  - id: a1
//	    employeeId: e1
//	    departmentId: eng
//	    projectId: p1
//	    allocatedHours: 200
//	    startDate: 2025-01-01
//	    endDate: 2025-01-31
//	snapshots:
//	  - employeeId: e1
//	    departmentId: eng
//	    date: 2025-01-01
//	    availableHours: 160
//	    allocatedHours: 200
//	skills:
//	  - id: go
//	    name: Go
//	    proficiency: {e1: 4}
package fixture

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/collector/memory"
)

// File is the decoded layout of a fixture file.
type File struct {
	Allocations []v1alpha1.AllocationRecord `yaml:"allocations"`
	Snapshots   []v1alpha1.CapacitySnapshot `yaml:"snapshots"`
	Skills      []v1alpha1.SkillRecord      `yaml:"skills"`
}

// Parse decodes fixture YAML. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}
	return &f, nil
}

// Load reads the fixture at path and returns it as a memory source.
func Load(path string) (*memory.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Source(), nil
}

// Source returns the records as a memory source.
func (f *File) Source() *memory.Source {
	return memory.New(f.Allocations, f.Snapshots, f.Skills)
}
