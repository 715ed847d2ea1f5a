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

// Package metrics provides Prometheus metrics for the capacity intelligence engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
)

const namespace = "capacity_intelligence"

// Stage names used as the "stage" label.
const (
	StageFetch          = "fetch"
	StageAggregate      = "aggregate"
	StageTrend          = "trend"
	StageBottleneck     = "bottleneck"
	StageForecast       = "forecast"
	StageScenario       = "scenario"
	StageRecommendation = "recommendation"
)

// Recorder records engine metrics on a caller-supplied registerer.
// A nil *Recorder records nothing.
type Recorder struct {
	stageDuration       *prometheus.HistogramVec
	bottlenecks         *prometheus.GaugeVec
	scenarioRuns        *prometheus.CounterVec
	insufficientHistory *prometheus.CounterVec
	fetchFailures       *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
}

// NewRecorder registers the engine metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time taken by each engine stage",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		bottlenecks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bottlenecks",
			Help:      "Bottlenecks found by the last analysis, by timing and severity",
		}, []string{"timing", "severity"}),
		scenarioRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenario_runs_total",
			Help:      "Scenario simulations by outcome",
		}, []string{"outcome"}),
		insufficientHistory: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_history_total",
			Help:      "Forecasts produced from insufficient history, by operation",
		}, []string{"operation"}),
		fetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_fetch_failures_total",
			Help:      "Failed reads from the data source, by source",
		}, []string{"source"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveStage records the duration of one stage run.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetBottlenecks replaces the bottleneck gauges with the counts in report.
func (r *Recorder) SetBottlenecks(report v1alpha1.BottleneckReport) {
	if r == nil {
		return
	}
	for timing, set := range map[string][]v1alpha1.Bottleneck{
		"current":    report.Current,
		"predicted":  report.Predicted,
		"historical": report.Historical,
	} {
		counts := map[v1alpha1.Severity]int{}
		for _, b := range set {
			counts[b.Severity]++
		}
		for _, sev := range []v1alpha1.Severity{
			v1alpha1.SeverityLow, v1alpha1.SeverityMedium, v1alpha1.SeverityHigh, v1alpha1.SeverityCritical,
		} {
			r.bottlenecks.WithLabelValues(timing, string(sev)).Set(float64(counts[sev]))
		}
	}
}

// IncScenarioRun counts one scenario simulation.
func (r *Recorder) IncScenarioRun(outcome string) {
	if r == nil {
		return
	}
	r.scenarioRuns.WithLabelValues(outcome).Inc()
}

// IncInsufficientHistory counts one forecast made from insufficient history.
func (r *Recorder) IncInsufficientHistory(operation string) {
	if r == nil {
		return
	}
	r.insufficientHistory.WithLabelValues(operation).Inc()
}

// IncFetchFailure counts one failed data source read.
func (r *Recorder) IncFetchFailure(source string) {
	if r == nil {
		return
	}
	r.fetchFailures.WithLabelValues(source).Inc()
}

// IncCacheLookup counts one result cache lookup as a hit or miss.
func (r *Recorder) IncCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}
