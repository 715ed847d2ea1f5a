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

// Package config holds the tunable constants of every engine stage.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

// AggregatorConfig tunes the Data Aggregator.
type AggregatorConfig struct {
	// MinSkillProficiency is the lowest proficiency counted as holding a skill.
	MinSkillProficiency int `mapstructure:"minSkillProficiency" yaml:"minSkillProficiency"`
}

// TrendConfig tunes the Trend Analyzer.
type TrendConfig struct {
	// StableThreshold is the |slope| per period below which a series is stable.
	StableThreshold float64 `mapstructure:"stableThreshold" yaml:"stableThreshold"`

	// FullConfidencePeriods is the series length at which length stops limiting confidence.
	FullConfidencePeriods int `mapstructure:"fullConfidencePeriods" yaml:"fullConfidencePeriods"`

	// VarianceSensitivity scales how quickly residual variance erodes confidence.
	VarianceSensitivity float64 `mapstructure:"varianceSensitivity" yaml:"varianceSensitivity"`

	// SeasonalityThreshold is the coefficient of variation of group means above
	// which seasonality is reported.
	SeasonalityThreshold float64 `mapstructure:"seasonalityThreshold" yaml:"seasonalityThreshold"`

	// AnomalyStdDevs is the residual distance, in standard deviations, that flags an anomaly.
	AnomalyStdDevs float64 `mapstructure:"anomalyStdDevs" yaml:"anomalyStdDevs"`
}

// SeverityBreakpoints are the minimum scores of each tier above low.
type SeverityBreakpoints struct {
	Medium   float64 `mapstructure:"medium" yaml:"medium"`
	High     float64 `mapstructure:"high" yaml:"high"`
	Critical float64 `mapstructure:"critical" yaml:"critical"`
}

// Validate checks the breakpoints are positive and strictly increasing.
func (b SeverityBreakpoints) Validate() error {
	if b.Medium <= 0 {
		return fmt.Errorf("medium breakpoint must be > 0, got %.2f", b.Medium)
	}
	if b.High <= b.Medium || b.Critical <= b.High {
		return fmt.Errorf("breakpoints must increase: medium=%.2f high=%.2f critical=%.2f",
			b.Medium, b.High, b.Critical)
	}
	return nil
}

// Classify maps a severity score onto a tier.
func (b SeverityBreakpoints) Classify(score float64) v1alpha1.Severity {
	switch {
	case score >= b.Critical:
		return v1alpha1.SeverityCritical
	case score >= b.High:
		return v1alpha1.SeverityHigh
	case score >= b.Medium:
		return v1alpha1.SeverityMedium
	default:
		return v1alpha1.SeverityLow
	}
}

// BottleneckConfig tunes the Bottleneck Detector.
type BottleneckConfig struct {
	Breakpoints SeverityBreakpoints `mapstructure:"breakpoints" yaml:"breakpoints"`

	// ProjectWeight is the score added per affected project.
	ProjectWeight float64 `mapstructure:"projectWeight" yaml:"projectWeight"`

	// PersistencePeriods is how many consecutive forecast shortfall periods make
	// a predicted bottleneck.
	PersistencePeriods int `mapstructure:"persistencePeriods" yaml:"persistencePeriods"`
}

// Multipliers scale the realistic forecast into a scenario variant.
type Multipliers struct {
	Capacity float64 `mapstructure:"capacity" yaml:"capacity"`
	Demand   float64 `mapstructure:"demand" yaml:"demand"`
}

// ForecastConfig tunes the Forecast Engine.
type ForecastConfig struct {
	// DefaultHorizon is used when a request omits the horizon, e.g. "3m".
	DefaultHorizon string `mapstructure:"defaultHorizon" yaml:"defaultHorizon"`

	// ConfidenceThreshold marks predictions with MeetsConfidenceThreshold.
	ConfidenceThreshold float64 `mapstructure:"confidenceThreshold" yaml:"confidenceThreshold"`

	// DecayFactor is applied once per period ahead.
	DecayFactor float64 `mapstructure:"decayFactor" yaml:"decayFactor"`

	// MinHistoryPeriods is the shortest history that is not flagged as insufficient.
	MinHistoryPeriods int `mapstructure:"minHistoryPeriods" yaml:"minHistoryPeriods"`

	// InsufficientHistoryConfidence is the confidence ceiling with insufficient history.
	InsufficientHistoryConfidence float64 `mapstructure:"insufficientHistoryConfidence" yaml:"insufficientHistoryConfidence"`

	Optimistic  Multipliers `mapstructure:"optimistic" yaml:"optimistic"`
	Pessimistic Multipliers `mapstructure:"pessimistic" yaml:"pessimistic"`
}

// MultipliersFor returns the multipliers of a scenario. Realistic is the identity.
func (c ForecastConfig) MultipliersFor(s v1alpha1.ForecastScenario) Multipliers {
	switch s {
	case v1alpha1.ScenarioOptimistic:
		return c.Optimistic
	case v1alpha1.ScenarioPessimistic:
		return c.Pessimistic
	default:
		return Multipliers{Capacity: 1, Demand: 1}
	}
}

// ScenarioConfig tunes the Scenario Simulator.
type ScenarioConfig struct {
	// VolatilityThreshold is the relative change of a scope's hours above which
	// a change is reported as a risk.
	VolatilityThreshold float64 `mapstructure:"volatilityThreshold" yaml:"volatilityThreshold"`

	// HourlyRate prices added and removed hours for cost impact.
	HourlyRate float64 `mapstructure:"hourlyRate" yaml:"hourlyRate"`
}

// ActionRate is the cost model of one action type.
type ActionRate struct {
	Cost float64 `mapstructure:"cost" yaml:"cost"`
	Days int     `mapstructure:"days" yaml:"days"`

	// ResolutionFactor is the share of a shortfall the action is expected to resolve.
	ResolutionFactor float64 `mapstructure:"resolutionFactor" yaml:"resolutionFactor"`
}

// RecommendationConfig tunes the Recommendation Generator.
type RecommendationConfig struct {
	// HourlyValue is the value of one resolved shortfall hour.
	HourlyValue float64 `mapstructure:"hourlyValue" yaml:"hourlyValue"`

	// ImpactHorizonPeriods is the number of periods an action's benefit is counted for.
	ImpactHorizonPeriods int `mapstructure:"impactHorizonPeriods" yaml:"impactHorizonPeriods"`

	// SustainedPeriods is how many forecast periods must agree before a
	// forecast produces a recommendation.
	SustainedPeriods int `mapstructure:"sustainedPeriods" yaml:"sustainedPeriods"`

	// OverUtilization and UnderUtilization bound the healthy forecast utilization.
	OverUtilization  float64 `mapstructure:"overUtilization" yaml:"overUtilization"`
	UnderUtilization float64 `mapstructure:"underUtilization" yaml:"underUtilization"`

	Actions map[v1alpha1.ActionType]ActionRate `mapstructure:"actions" yaml:"actions"`
}

// TimeframeConfig sets the analysed range when a request omits it.
type TimeframeConfig struct {
	// Lookback is a horizon string counted back from now, e.g. "6m".
	Lookback    string               `mapstructure:"lookback" yaml:"lookback"`
	Granularity v1alpha1.Granularity `mapstructure:"granularity" yaml:"granularity"`
}

// CacheConfig enables result memoization.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxEntries int           `mapstructure:"maxEntries" yaml:"maxEntries"`
}

// EngineConfig is the full engine configuration.
type EngineConfig struct {
	Aggregator     AggregatorConfig     `mapstructure:"aggregator" yaml:"aggregator"`
	Trend          TrendConfig          `mapstructure:"trend" yaml:"trend"`
	Bottleneck     BottleneckConfig     `mapstructure:"bottleneck" yaml:"bottleneck"`
	Forecast       ForecastConfig       `mapstructure:"forecast" yaml:"forecast"`
	Scenario       ScenarioConfig       `mapstructure:"scenario" yaml:"scenario"`
	Recommendation RecommendationConfig `mapstructure:"recommendation" yaml:"recommendation"`
	Timeframe      TimeframeConfig      `mapstructure:"timeframe" yaml:"timeframe"`
	Cache          CacheConfig          `mapstructure:"cache" yaml:"cache"`

	// Departments holds per-department severity overrides keyed by entry name.
	// The "default" entry applies to every department.
	Departments map[string]DepartmentConfig `mapstructure:"departments" yaml:"departments"`
}

// Default returns the built-in configuration.
func Default() *EngineConfig {
	return &EngineConfig{
		Aggregator: AggregatorConfig{MinSkillProficiency: 1},
		Trend: TrendConfig{
			StableThreshold:       0.01,
			FullConfidencePeriods: 12,
			VarianceSensitivity:   10,
			SeasonalityThreshold:  0.15,
			AnomalyStdDevs:        2,
		},
		Bottleneck: BottleneckConfig{
			Breakpoints:        SeverityBreakpoints{Medium: 5, High: 10, Critical: 20},
			ProjectWeight:      1,
			PersistencePeriods: 2,
		},
		Forecast: ForecastConfig{
			DefaultHorizon:                "3m",
			ConfidenceThreshold:           0.5,
			DecayFactor:                   0.9,
			MinHistoryPeriods:             3,
			InsufficientHistoryConfidence: 0.2,
			Optimistic:                    Multipliers{Capacity: 1.15, Demand: 0.90},
			Pessimistic:                   Multipliers{Capacity: 0.85, Demand: 1.10},
		},
		Scenario: ScenarioConfig{
			VolatilityThreshold: 0.25,
			HourlyRate:          75,
		},
		Recommendation: RecommendationConfig{
			HourlyValue:          75,
			ImpactHorizonPeriods: 6,
			SustainedPeriods:     3,
			OverUtilization:      1.0,
			UnderUtilization:     0.6,
			Actions:              DefaultActionRates(),
		},
		Timeframe: TimeframeConfig{Lookback: "6m", Granularity: v1alpha1.GranularityMonthly},
		Cache:     CacheConfig{TTL: 5 * time.Minute, MaxEntries: 256},
	}
}

// DefaultActionRates returns the built-in cost model per action type.
func DefaultActionRates() map[v1alpha1.ActionType]ActionRate {
	return map[v1alpha1.ActionType]ActionRate{
		v1alpha1.ActionHiring:        {Cost: 15000, Days: 60, ResolutionFactor: 0.8},
		v1alpha1.ActionTraining:      {Cost: 3000, Days: 30, ResolutionFactor: 0.6},
		v1alpha1.ActionReallocation:  {Cost: 500, Days: 7, ResolutionFactor: 0.5},
		v1alpha1.ActionProcessChange: {Cost: 2000, Days: 21, ResolutionFactor: 0.3},
		v1alpha1.ActionScheduleShift: {Cost: 300, Days: 5, ResolutionFactor: 0.4},
	}
}

var errNilConfig = errors.New("config cannot be nil")

// Validate checks for invalid configuration values.
func (c *EngineConfig) Validate() error {
	if c == nil {
		return errNilConfig
	}
	if c.Aggregator.MinSkillProficiency < 0 {
		return fmt.Errorf("aggregator.minSkillProficiency must be >= 0, got %d", c.Aggregator.MinSkillProficiency)
	}
	if c.Trend.StableThreshold < 0 {
		return fmt.Errorf("trend.stableThreshold must be >= 0, got %.4f", c.Trend.StableThreshold)
	}
	if c.Trend.FullConfidencePeriods < 1 {
		return fmt.Errorf("trend.fullConfidencePeriods must be >= 1, got %d", c.Trend.FullConfidencePeriods)
	}
	if c.Trend.VarianceSensitivity < 0 {
		return fmt.Errorf("trend.varianceSensitivity must be >= 0, got %.2f", c.Trend.VarianceSensitivity)
	}
	if c.Trend.AnomalyStdDevs <= 0 {
		return fmt.Errorf("trend.anomalyStdDevs must be > 0, got %.2f", c.Trend.AnomalyStdDevs)
	}
	if err := c.Bottleneck.Breakpoints.Validate(); err != nil {
		return fmt.Errorf("bottleneck.breakpoints: %w", err)
	}
	if c.Bottleneck.ProjectWeight < 0 {
		return fmt.Errorf("bottleneck.projectWeight must be >= 0, got %.2f", c.Bottleneck.ProjectWeight)
	}
	if c.Bottleneck.PersistencePeriods < 1 {
		return fmt.Errorf("bottleneck.persistencePeriods must be >= 1, got %d", c.Bottleneck.PersistencePeriods)
	}
	if err := c.Forecast.validate(); err != nil {
		return err
	}
	if c.Scenario.VolatilityThreshold <= 0 {
		return fmt.Errorf("scenario.volatilityThreshold must be > 0, got %.2f", c.Scenario.VolatilityThreshold)
	}
	if c.Scenario.HourlyRate < 0 {
		return fmt.Errorf("scenario.hourlyRate must be >= 0, got %.2f", c.Scenario.HourlyRate)
	}
	if err := c.Recommendation.validate(); err != nil {
		return err
	}
	if !c.Timeframe.Granularity.IsValid() {
		return fmt.Errorf("timeframe.granularity %q is not one of daily, weekly, monthly", c.Timeframe.Granularity)
	}
	if c.Timeframe.Lookback == "" {
		return fmt.Errorf("timeframe.lookback is required")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0 when the cache is enabled")
	}
	return nil
}

func (c ForecastConfig) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("forecast.confidenceThreshold must be between 0 and 1, got %.2f", c.ConfidenceThreshold)
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return fmt.Errorf("forecast.decayFactor must be in (0, 1], got %.2f", c.DecayFactor)
	}
	if c.MinHistoryPeriods < 1 {
		return fmt.Errorf("forecast.minHistoryPeriods must be >= 1, got %d", c.MinHistoryPeriods)
	}
	if c.InsufficientHistoryConfidence < 0 || c.InsufficientHistoryConfidence > 1 {
		return fmt.Errorf("forecast.insufficientHistoryConfidence must be between 0 and 1, got %.2f",
			c.InsufficientHistoryConfidence)
	}
	for name, m := range map[string]Multipliers{"optimistic": c.Optimistic, "pessimistic": c.Pessimistic} {
		if m.Capacity <= 0 || m.Demand <= 0 {
			return fmt.Errorf("forecast.%s multipliers must be > 0, got capacity=%.2f demand=%.2f",
				name, m.Capacity, m.Demand)
		}
	}
	return nil
}

func (c RecommendationConfig) validate() error {
	if c.HourlyValue < 0 {
		return fmt.Errorf("recommendation.hourlyValue must be >= 0, got %.2f", c.HourlyValue)
	}
	if c.ImpactHorizonPeriods < 1 {
		return fmt.Errorf("recommendation.impactHorizonPeriods must be >= 1, got %d", c.ImpactHorizonPeriods)
	}
	if c.SustainedPeriods < 1 {
		return fmt.Errorf("recommendation.sustainedPeriods must be >= 1, got %d", c.SustainedPeriods)
	}
	if c.UnderUtilization >= c.OverUtilization {
		return fmt.Errorf("recommendation.underUtilization (%.2f) must be below overUtilization (%.2f)",
			c.UnderUtilization, c.OverUtilization)
	}
	for action, rate := range c.Actions {
		if rate.Cost < 0 || rate.Days < 0 {
			return fmt.Errorf("recommendation.actions.%s: cost and days must be >= 0", action)
		}
		if rate.ResolutionFactor < 0 || rate.ResolutionFactor > 1 {
			return fmt.Errorf("recommendation.actions.%s: resolutionFactor must be between 0 and 1, got %.2f",
				action, rate.ResolutionFactor)
		}
	}
	return nil
}

// Rate returns the cost model for an action, falling back to the built-in rate.
func (c RecommendationConfig) Rate(action v1alpha1.ActionType) ActionRate {
	if r, ok := c.Actions[action]; ok {
		return r
	}
	return DefaultActionRates()[action]
}
