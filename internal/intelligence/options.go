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

package intelligence

import (
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/metrics"
)

var (
	// ErrInvalidRequest is matched by every error caused by malformed filters or options.
	ErrInvalidRequest = errors.New("invalid request")

	errNilSource = errors.New("data source cannot be nil")
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to resolve lookback timeframes, stamp
// reports and expire cache entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRecorder records stage durations and outcomes on r.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLogger attaches logger to every request context. Without it the
// engine logs to whatever logger the caller's context carries.
func WithLogger(logger logr.Logger) Option {
	return func(e *Engine) { e.logger = &logger }
}

// Filters select the analysed scope.
type Filters struct {
	// DepartmentID restricts the analysis to one department. Empty means all.
	DepartmentID string

	// SkillID restricts the analysis to holders of one skill. Empty means all.
	SkillID string

	// Timeframe is a lookback such as "6m" ending with the current period.
	// Empty uses the configured lookback.
	Timeframe string

	// Granularity defaults to the configured granularity.
	Granularity v1alpha1.Granularity

	// From and To set an explicit [From, To) range instead of Timeframe.
	From time.Time
	To   time.Time
}

// PredictionOptions select a capacity forecast.
type PredictionOptions struct {
	Filters

	// Horizon such as "3m". Empty uses the configured default.
	Horizon string

	// Confidence replaces the configured threshold that marks predictions
	// with MeetsConfidenceThreshold. Predictions are never dropped.
	Confidence *float64

	// Scenarios restricts the returned scenarios. Empty returns all three.
	Scenarios []v1alpha1.ForecastScenario
}

// BottleneckOptions select a bottleneck report.
type BottleneckOptions struct {
	Filters

	// MinSeverity drops bottlenecks below the given tier. Empty keeps all.
	MinSeverity v1alpha1.Severity

	// Horizon bounds predicted bottlenecks. Empty uses the configured default.
	Horizon string
}
