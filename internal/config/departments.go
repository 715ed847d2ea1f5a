package config

import (
	"fmt"
	"sort"

	"github.com/go-logr/logr"

	"github.com/workforce-planning/capacity-intelligence/internal/logging"
)

// GlobalDefaultsKey names the entry that applies to every department.
const GlobalDefaultsKey = "default"

// DepartmentConfig overrides bottleneck severity scoring for one department.
// Zero values inherit from the "default" entry and then from the engine config.
type DepartmentConfig struct {
	// DepartmentID is the department identifier (only used in override entries).
	DepartmentID string `mapstructure:"departmentId" yaml:"departmentId,omitempty"`

	Breakpoints   SeverityBreakpoints `mapstructure:"breakpoints" yaml:"breakpoints,omitempty"`
	ProjectWeight float64             `mapstructure:"projectWeight" yaml:"projectWeight,omitempty"`
}

// Validate checks for invalid override values. Unset breakpoints are allowed.
func (c *DepartmentConfig) Validate() error {
	b := c.Breakpoints
	if b.Medium < 0 || b.High < 0 || b.Critical < 0 {
		return fmt.Errorf("breakpoints must be >= 0")
	}
	if b.Medium != 0 && b.High != 0 && b.High <= b.Medium {
		return fmt.Errorf("high breakpoint (%.2f) must exceed medium (%.2f)", b.High, b.Medium)
	}
	if b.High != 0 && b.Critical != 0 && b.Critical <= b.High {
		return fmt.Errorf("critical breakpoint (%.2f) must exceed high (%.2f)", b.Critical, b.High)
	}
	if c.ProjectWeight < 0 {
		return fmt.Errorf("projectWeight must be >= 0, got %.2f", c.ProjectWeight)
	}
	return nil
}

// DepartmentOverrides maps department ID (or GlobalDefaultsKey) to its override.
type DepartmentOverrides map[string]DepartmentConfig

// ParseDepartmentOverrides indexes override entries by department ID.
// Entries are visited in key order; invalid entries and entries without a
// departmentId are skipped, and the first entry for a department wins.
func ParseDepartmentOverrides(logger logr.Logger, entries map[string]DepartmentConfig) DepartmentOverrides {
	out := make(DepartmentOverrides)
	if entries == nil {
		return out
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	winners := make(map[string]string)
	for _, key := range keys {
		entry := entries[key]
		if err := entry.Validate(); err != nil {
			logger.Info("Invalid department override, skipping", "key", key, "error", err)
			continue
		}

		if key == GlobalDefaultsKey {
			out[GlobalDefaultsKey] = entry
			continue
		}

		if entry.DepartmentID == "" {
			logger.Info("Skipping department override without departmentId field", "key", key)
			continue
		}
		if winner, exists := winners[entry.DepartmentID]; exists {
			logger.Info("Duplicate departmentId in department overrides - first key wins",
				"departmentId", entry.DepartmentID,
				"winningKey", winner,
				"duplicateKey", key)
			continue
		}
		winners[entry.DepartmentID] = key
		out[entry.DepartmentID] = entry
	}

	logger.V(logging.DEBUG).Info("Parsed department overrides", "departmentCount", len(out))
	return out
}

// Resolve returns the effective breakpoints and project weight for a department.
// Department values override the "default" entry, which overrides base.
func (o DepartmentOverrides) Resolve(departmentID string, base BottleneckConfig) (SeverityBreakpoints, float64) {
	breakpoints, weight := base.Breakpoints, base.ProjectWeight
	apply := func(c DepartmentConfig) {
		if c.Breakpoints.Medium != 0 {
			breakpoints.Medium = c.Breakpoints.Medium
		}
		if c.Breakpoints.High != 0 {
			breakpoints.High = c.Breakpoints.High
		}
		if c.Breakpoints.Critical != 0 {
			breakpoints.Critical = c.Breakpoints.Critical
		}
		if c.ProjectWeight != 0 {
			weight = c.ProjectWeight
		}
	}
	if defaults, ok := o[GlobalDefaultsKey]; ok {
		apply(defaults)
	}
	if departmentID != "" {
		if dept, ok := o[departmentID]; ok {
			apply(dept)
		}
	}
	return breakpoints, weight
}
