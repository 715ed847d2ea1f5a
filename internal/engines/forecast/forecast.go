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

// Package forecast projects capacity and demand over a horizon under the
// optimistic, realistic and pessimistic scenarios.
package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/stat"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/aggregator"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/common"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/trend"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
)

// Engine produces predictions. It holds no per-request state.
type Engine struct {
	cfg      config.ForecastConfig
	trendCfg config.TrendConfig
}

// New creates an Engine. trendCfg tunes the fit confidence.
func New(cfg config.ForecastConfig, trendCfg config.TrendConfig) *Engine {
	return &Engine{cfg: cfg, trendCfg: trendCfg}
}

// Forecast extrapolates the overall series of profile over horizon. A
// profile with no observed periods projects zero hours from its LastPeriod
// at the insufficient-history confidence.
func (e *Engine) Forecast(ctx context.Context, profile *v1alpha1.UtilizationProfile, horizon string) ([]v1alpha1.Prediction, error) {
	if profile == nil {
		return []v1alpha1.Prediction{}, nil
	}
	if profile.IsEmpty() && profile.LastPeriod != nil {
		return e.project(ctx, nil, *profile.LastPeriod, profile.Granularity, horizon)
	}
	return e.ForecastSeries(ctx, profile.Overall, profile.Granularity, horizon)
}

// ForecastSeries fits capacity and demand of series separately and projects
// both over horizon, an "Nd", "Nw", "Nm" or "Ny" string; empty means the
// configured default. Predictions are ordered by periods ahead, then by
// scenario. An empty series has no period to start from and yields no predictions.
func (e *Engine) ForecastSeries(ctx context.Context, series []v1alpha1.PeriodUtilization, g v1alpha1.Granularity, horizon string) ([]v1alpha1.Prediction, error) {
	if len(series) == 0 {
		if _, err := e.horizon(horizon, g); err != nil {
			return nil, err
		}
		return []v1alpha1.Prediction{}, nil
	}
	return e.project(ctx, series, series[len(series)-1].Period, g, horizon)
}

func (e *Engine) horizon(horizon string, g v1alpha1.Granularity) (int, error) {
	if horizon == "" {
		horizon = e.cfg.DefaultHorizon
	}
	return aggregator.ParseHorizon(horizon, g)
}

// project extrapolates series over the periods following last.
func (e *Engine) project(ctx context.Context, series []v1alpha1.PeriodUtilization, last v1alpha1.Period, g v1alpha1.Granularity, horizon string) ([]v1alpha1.Prediction, error) {
	logger := logr.FromContextOrDiscard(ctx)
	if horizon == "" {
		horizon = e.cfg.DefaultHorizon
	}
	periods, err := e.horizon(horizon, g)
	if err != nil {
		return nil, err
	}
	out := []v1alpha1.Prediction{}
	n := len(series)

	capacity := make([]float64, n)
	demand := make([]float64, n)
	for i, p := range series {
		capacity[i] = p.TotalAvailable
		demand[i] = p.TotalAllocated
	}
	var capFit, demFit trend.LinearFit
	if n > 0 {
		capFit = trend.Fit(capacity, stat.Mean(capacity, nil), e.trendCfg)
		demFit = trend.Fit(demand, stat.Mean(demand, nil), e.trendCfg)
	}
	insufficient := n < e.cfg.MinHistoryPeriods
	base := math.Sqrt(capFit.Confidence * demFit.Confidence)

	factors := []string{
		fmt.Sprintf("capacity trend %+.2f hours/period", capFit.Slope),
		fmt.Sprintf("demand trend %+.2f hours/period", demFit.Slope),
	}
	if insufficient {
		factors = append(factors, fmt.Sprintf("insufficient history: %d of %d periods", n, e.cfg.MinHistoryPeriods))
	}

	period := last
	for k := 1; k <= periods; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		period = aggregator.Next(period, g)
		x := float64(n - 1 + k)
		realCapacity := max(0, capFit.At(x))
		realDemand := max(0, demFit.At(x))
		confidence := e.confidence(base, k, insufficient)

		for _, s := range v1alpha1.ForecastScenarios {
			m := e.cfg.MultipliersFor(s)
			p := v1alpha1.Prediction{
				Period:                   period,
				PeriodsAhead:             k,
				PredictedCapacity:        realCapacity * m.Capacity,
				DemandForecast:           realDemand * m.Demand,
				Confidence:               confidence,
				Scenario:                 s,
				Factors:                  append([]string(nil), factors...),
				InsufficientHistory:      insufficient,
				MeetsConfidenceThreshold: confidence >= e.cfg.ConfidenceThreshold,
			}
			p.UtilizationRate = v1alpha1.UtilizationRate(p.DemandForecast, p.PredictedCapacity)
			if s != v1alpha1.ScenarioRealistic {
				p.Factors = append(p.Factors, fmt.Sprintf("%s multipliers: capacity x%.2f, demand x%.2f", s, m.Capacity, m.Demand))
			}
			out = append(out, p)
		}
	}

	logger.V(logging.DEBUG).Info("Forecast computed",
		"history", n,
		"horizon", horizon,
		"periods", periods,
		"baseConfidence", base,
		"insufficientHistory", insufficient)
	return out, nil
}

// confidence decays once per period ahead. Insufficient history starts at
// the configured floor instead of the fit confidence.
func (e *Engine) confidence(base float64, ahead int, insufficient bool) float64 {
	if insufficient {
		return common.Clamp01(e.cfg.InsufficientHistoryConfidence * math.Pow(e.cfg.DecayFactor, float64(ahead-1)))
	}
	return common.Clamp01(base * math.Pow(e.cfg.DecayFactor, float64(ahead)))
}

// Scenario returns the predictions of one scenario, in order.
func Scenario(predictions []v1alpha1.Prediction, s v1alpha1.ForecastScenario) []v1alpha1.Prediction {
	var out []v1alpha1.Prediction
	for _, p := range predictions {
		if p.Scenario == s {
			out = append(out, p)
		}
	}
	return out
}

// AnyInsufficient reports whether any prediction was made from insufficient history.
func AnyInsufficient(predictions []v1alpha1.Prediction) bool {
	for _, p := range predictions {
		if p.InsufficientHistory {
			return true
		}
	}
	return false
}
