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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TrendDirection is the classified direction of a utilization series.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Seasonality describes recurring sub-period variation in a series.
type Seasonality struct {
	Detected bool `json:"detected" yaml:"detected"`

	// PeakPeriods and LowPeriods name the sub-period groups (e.g. "March", "Monday")
	// with the highest and lowest mean detrended utilization.
	PeakPeriods []string `json:"peakPeriods,omitempty" yaml:"peakPeriods,omitempty"`
	LowPeriods  []string `json:"lowPeriods,omitempty" yaml:"lowPeriods,omitempty"`

	// Strength is the coefficient of variation across group means.
	Strength float64 `json:"strength" yaml:"strength"`
}

// Anomaly is a period whose utilization deviates from the trend line.
type Anomaly struct {
	Period      Period  `json:"period" yaml:"period"`
	Utilization float64 `json:"utilization" yaml:"utilization"`
	Expected    float64 `json:"expected" yaml:"expected"`

	// Deviation is the signed residual in standard deviations.
	Deviation float64 `json:"deviation" yaml:"deviation"`

	// Causes reference concurrent bottlenecks, or hold "unexplained".
	Causes []string `json:"causes" yaml:"causes"`
}

// TrendResult is the Trend Analyzer output for one series.
type TrendResult struct {
	Direction TrendDirection `json:"direction" yaml:"direction"`

	// Rate is the least-squares slope of utilization per period.
	Rate      float64 `json:"rate" yaml:"rate"`
	Intercept float64 `json:"intercept" yaml:"intercept"`

	// Confidence is in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	ResidualStdDev float64     `json:"residualStdDev" yaml:"residualStdDev"`
	Periods        int         `json:"periods" yaml:"periods"`
	Seasonality    Seasonality `json:"seasonality" yaml:"seasonality"`
	Anomalies      []Anomaly   `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}

// BottleneckType is the dimension along which a shortfall was detected.
type BottleneckType string

const (
	BottleneckSkill      BottleneckType = "skill"
	BottleneckDepartment BottleneckType = "department"
	BottleneckResource   BottleneckType = "resource"
	BottleneckTime       BottleneckType = "time"
)

// BottleneckTypes lists every dimension in detection order.
var BottleneckTypes = []BottleneckType{
	BottleneckSkill,
	BottleneckDepartment,
	BottleneckResource,
	BottleneckTime,
}

// Severity is an ordered tier for bottlenecks, priorities and risk levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: low=1 ... critical=4, unknown=0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is at or above floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Rank() >= floor.Rank()
}

// ParseSeverity converts a string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if sev.Rank() == 0 {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// BottleneckStatus is the lifecycle state of a detected bottleneck.
type BottleneckStatus string

const (
	BottleneckActive    BottleneckStatus = "active"
	BottleneckMitigated BottleneckStatus = "mitigated"
	BottleneckResolved  BottleneckStatus = "resolved"
)

// Bottleneck is a capacity shortfall along one dimension.
type Bottleneck struct {
	ID               string         `json:"id" yaml:"id"`
	Type             BottleneckType `json:"type" yaml:"type"`
	AffectedResource string         `json:"affectedResource" yaml:"affectedResource"`
	Severity         Severity       `json:"severity" yaml:"severity"`

	// ImpactScore is the shortfall in hours per period at the evaluated period.
	ImpactScore float64 `json:"impactScore" yaml:"impactScore"`

	// ShortfallHours is demand minus available hours at the evaluated period.
	ShortfallHours float64 `json:"shortfallHours" yaml:"shortfallHours"`

	// ShortfallPerEntity is ShortfallHours divided by the entity count.
	ShortfallPerEntity float64 `json:"shortfallPerEntity" yaml:"shortfallPerEntity"`

	// Utilization is allocated/available at the evaluated period.
	Utilization float64 `json:"utilization" yaml:"utilization"`

	AffectedProjects  []string      `json:"affectedProjects,omitempty" yaml:"affectedProjects,omitempty"`
	EstimatedDuration time.Duration `json:"estimatedDuration" yaml:"estimatedDuration"`

	// Window spans the consecutive shortfall periods.
	Window Period `json:"window" yaml:"window"`

	RootCauses         []string         `json:"rootCauses" yaml:"rootCauses"`
	RecommendedActions []ActionType     `json:"recommendedActions" yaml:"recommendedActions"`
	Status             BottleneckStatus `json:"status" yaml:"status"`
}

// Key identifies the bottleneck independent of when it was observed.
func (b Bottleneck) Key() string {
	return string(b.Type) + "/" + b.AffectedResource
}

// DeepCopy returns an independent copy.
func (b Bottleneck) DeepCopy() Bottleneck {
	out := b
	out.AffectedProjects = copyStrings(b.AffectedProjects)
	out.RootCauses = copyStrings(b.RootCauses)
	if b.RecommendedActions != nil {
		out.RecommendedActions = append([]ActionType(nil), b.RecommendedActions...)
	}
	return out
}

// BottleneckReport groups bottlenecks by when they occur.
type BottleneckReport struct {
	Current    []Bottleneck `json:"current" yaml:"current"`
	Predicted  []Bottleneck `json:"predicted" yaml:"predicted"`
	Historical []Bottleneck `json:"historical" yaml:"historical"`
}

// ForecastScenario tags a prediction variant.
type ForecastScenario string

const (
	ScenarioOptimistic  ForecastScenario = "optimistic"
	ScenarioRealistic   ForecastScenario = "realistic"
	ScenarioPessimistic ForecastScenario = "pessimistic"
)

// ForecastScenarios lists every variant in output order.
var ForecastScenarios = []ForecastScenario{ScenarioOptimistic, ScenarioRealistic, ScenarioPessimistic}

// IsValid returns true if the scenario is a known value.
func (s ForecastScenario) IsValid() bool {
	switch s {
	case ScenarioOptimistic, ScenarioRealistic, ScenarioPessimistic:
		return true
	}
	return false
}

// Prediction is one projected period under one scenario.
type Prediction struct {
	Period            Period           `json:"period" yaml:"period"`
	PeriodsAhead      int              `json:"periodsAhead" yaml:"periodsAhead"`
	PredictedCapacity float64          `json:"predictedCapacity" yaml:"predictedCapacity"`
	DemandForecast    float64          `json:"demandForecast" yaml:"demandForecast"`
	UtilizationRate   float64          `json:"utilizationRate" yaml:"utilizationRate"`
	Confidence        float64          `json:"confidence" yaml:"confidence"`
	Scenario          ForecastScenario `json:"scenario" yaml:"scenario"`
	Factors           []string         `json:"factors,omitempty" yaml:"factors,omitempty"`

	InsufficientHistory      bool `json:"insufficientHistory,omitempty" yaml:"insufficientHistory,omitempty"`
	MeetsConfidenceThreshold bool `json:"meetsConfidenceThreshold" yaml:"meetsConfidenceThreshold"`
}

// Shortfall returns forecast demand in excess of forecast capacity.
func (p Prediction) Shortfall() float64 {
	if d := p.DemandForecast - p.PredictedCapacity; d > 0 {
		return d
	}
	return 0
}

// DeepCopyPredictions copies a prediction slice.
func DeepCopyPredictions(in []Prediction) []Prediction {
	if in == nil {
		return nil
	}
	out := make([]Prediction, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Factors = copyStrings(p.Factors)
	}
	return out
}

// ActionType is a kind of remediation.
type ActionType string

const (
	ActionHiring        ActionType = "hiring"
	ActionTraining      ActionType = "training"
	ActionReallocation  ActionType = "reallocation"
	ActionProcessChange ActionType = "process_change"
	ActionScheduleShift ActionType = "schedule_shift"
)

// Recommendation is a prioritized remediation with cost and ROI estimates.
type Recommendation struct {
	ID          string     `json:"id" yaml:"id"`
	Type        ActionType `json:"type" yaml:"type"`
	Priority    Severity   `json:"priority" yaml:"priority"`
	Description string     `json:"description" yaml:"description"`

	ExpectedImpact     decimal.Decimal `json:"expectedImpact" yaml:"expectedImpact"`
	ImplementationCost decimal.Decimal `json:"implementationCost" yaml:"implementationCost"`
	ImplementationDays int             `json:"implementationDays" yaml:"implementationDays"`

	AffectedDepartments []string `json:"affectedDepartments,omitempty" yaml:"affectedDepartments,omitempty"`
	AffectedSkills      []string `json:"affectedSkills,omitempty" yaml:"affectedSkills,omitempty"`
	SuccessMetrics      []string `json:"successMetrics,omitempty" yaml:"successMetrics,omitempty"`

	// ROI is (ExpectedImpact - ImplementationCost) / max(ImplementationCost, epsilon).
	ROI float64 `json:"roi" yaml:"roi"`

	// SourceID references the bottleneck, skill or forecast that produced the recommendation.
	SourceID string `json:"sourceId,omitempty" yaml:"sourceId,omitempty"`
}

// DeepCopy returns an independent copy.
func (r Recommendation) DeepCopy() Recommendation {
	out := r
	out.AffectedDepartments = copyStrings(r.AffectedDepartments)
	out.AffectedSkills = copyStrings(r.AffectedSkills)
	out.SuccessMetrics = copyStrings(r.SuccessMetrics)
	return out
}

// Risk is one enumerated risk with a heuristic probability.
type Risk struct {
	Description string `json:"description" yaml:"description"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`

	// Probability is in [0,1].
	Probability float64 `json:"probability" yaml:"probability"`
	Impact      string  `json:"impact" yaml:"impact"`
	Mitigation  string  `json:"mitigation" yaml:"mitigation"`
}

// RiskAssessment summarizes risks under a single level.
type RiskAssessment struct {
	Level Severity `json:"level" yaml:"level"`
	Risks []Risk   `json:"risks" yaml:"risks"`
}

// SkillDemand is the supply/demand balance of one skill.
type SkillDemand struct {
	SkillID  string `json:"skillId" yaml:"skillId"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Holders counts employees at or above the minimum proficiency.
	Holders int `json:"holders" yaml:"holders"`

	CurrentSupply  float64 `json:"currentSupply" yaml:"currentSupply"`
	CurrentDemand  float64 `json:"currentDemand" yaml:"currentDemand"`
	ForecastSupply float64 `json:"forecastSupply" yaml:"forecastSupply"`
	ForecastDemand float64 `json:"forecastDemand" yaml:"forecastDemand"`

	// GapHours is ForecastDemand - ForecastSupply; positive means a shortage.
	GapHours float64 `json:"gapHours" yaml:"gapHours"`

	// GapRatio is GapHours relative to ForecastSupply.
	GapRatio            float64 `json:"gapRatio" yaml:"gapRatio"`
	Confidence          float64 `json:"confidence" yaml:"confidence"`
	InsufficientHistory bool    `json:"insufficientHistory,omitempty" yaml:"insufficientHistory,omitempty"`
}

// SkillDemandForecast is the result of a skill demand forecast.
type SkillDemandForecast struct {
	Horizon         string           `json:"horizon" yaml:"horizon"`
	Skills          []SkillDemand    `json:"skills" yaml:"skills"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
}

// UtilizationSummary is the latest observed period of a scope.
type UtilizationSummary struct {
	Overall     PeriodUtilization            `json:"overall" yaml:"overall"`
	Departments map[string]PeriodUtilization `json:"departments,omitempty" yaml:"departments,omitempty"`
}

// TrendSummary holds trends for the scope and each department.
type TrendSummary struct {
	Overall     TrendResult            `json:"overall" yaml:"overall"`
	Departments map[string]TrendResult `json:"departments,omitempty" yaml:"departments,omitempty"`
}

// CapacityIntelligence is the composite view over a scope.
type CapacityIntelligence struct {
	ScopeID            string             `json:"scopeId" yaml:"scopeId"`
	GeneratedAt        time.Time          `json:"generatedAt" yaml:"generatedAt"`
	CurrentUtilization UtilizationSummary `json:"currentUtilization" yaml:"currentUtilization"`
	Trends             TrendSummary       `json:"trends" yaml:"trends"`
	Bottlenecks        BottleneckReport   `json:"bottlenecks" yaml:"bottlenecks"`
	Predictions        []Prediction       `json:"predictions" yaml:"predictions"`
	Recommendations    []Recommendation   `json:"recommendations" yaml:"recommendations"`
	RiskFactors        []Risk             `json:"riskFactors" yaml:"riskFactors"`

	InsufficientHistory bool `json:"insufficientHistory,omitempty" yaml:"insufficientHistory,omitempty"`
}

// UtilizationPatterns summarizes the shape of a utilization series.
type UtilizationPatterns struct {
	Granularity        Granularity         `json:"granularity" yaml:"granularity"`
	AverageUtilization float64             `json:"averageUtilization" yaml:"averageUtilization"`
	PeakPeriods        []PeriodUtilization `json:"peakPeriods" yaml:"peakPeriods"`
	LowPeriods         []PeriodUtilization `json:"lowPeriods" yaml:"lowPeriods"`
	Seasonality        Seasonality         `json:"seasonality" yaml:"seasonality"`
	Trend              TrendResult         `json:"trend" yaml:"trend"`
	Anomalies          []Anomaly           `json:"anomalies" yaml:"anomalies"`
}

// DeepCopy returns an independent copy.
func (c *CapacityIntelligence) DeepCopy() *CapacityIntelligence {
	if c == nil {
		return nil
	}
	out := *c
	out.CurrentUtilization.Overall.Projects = copyStrings(c.CurrentUtilization.Overall.Projects)
	if c.CurrentUtilization.Departments != nil {
		out.CurrentUtilization.Departments = make(map[string]PeriodUtilization, len(c.CurrentUtilization.Departments))
		for k, v := range c.CurrentUtilization.Departments {
			v.Projects = copyStrings(v.Projects)
			out.CurrentUtilization.Departments[k] = v
		}
	}
	out.Trends.Overall = c.Trends.Overall.DeepCopy()
	if c.Trends.Departments != nil {
		out.Trends.Departments = make(map[string]TrendResult, len(c.Trends.Departments))
		for k, v := range c.Trends.Departments {
			out.Trends.Departments[k] = v.DeepCopy()
		}
	}
	out.Bottlenecks = c.Bottlenecks.DeepCopy()
	out.Predictions = DeepCopyPredictions(c.Predictions)
	if c.Recommendations != nil {
		out.Recommendations = make([]Recommendation, len(c.Recommendations))
		for i, r := range c.Recommendations {
			out.Recommendations[i] = r.DeepCopy()
		}
	}
	if c.RiskFactors != nil {
		out.RiskFactors = append([]Risk(nil), c.RiskFactors...)
	}
	return &out
}

// DeepCopy returns an independent copy.
func (t TrendResult) DeepCopy() TrendResult {
	out := t
	out.Seasonality.PeakPeriods = copyStrings(t.Seasonality.PeakPeriods)
	out.Seasonality.LowPeriods = copyStrings(t.Seasonality.LowPeriods)
	if t.Anomalies != nil {
		out.Anomalies = make([]Anomaly, len(t.Anomalies))
		for i, a := range t.Anomalies {
			out.Anomalies[i] = a
			out.Anomalies[i].Causes = copyStrings(a.Causes)
		}
	}
	return out
}

// DeepCopy returns an independent copy.
func (r BottleneckReport) DeepCopy() BottleneckReport {
	return BottleneckReport{
		Current:    copyBottlenecks(r.Current),
		Predicted:  copyBottlenecks(r.Predicted),
		Historical: copyBottlenecks(r.Historical),
	}
}
