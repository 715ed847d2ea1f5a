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
	"cmp"
	"context"
	"slices"

	"github.com/go-logr/logr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/forecast"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
	"github.com/workforce-planning/capacity-intelligence/internal/metrics"
)

// skillDemand forecasts every in-scope skill series over horizon and
// compares the realistic supply and demand at the end of the horizon.
// Skills are ordered by gap, largest first, then by ID.
func (e *Engine) skillDemand(ctx context.Context, req *request, horizon string) ([]v1alpha1.SkillDemand, error) {
	defer e.timed(metrics.StageForecast)()
	logger := logr.FromContextOrDiscard(ctx)

	holders := e.aggregator.Holders(req.data.Skills)
	records := slices.Clone(req.data.Skills)
	slices.SortFunc(records, func(a, b v1alpha1.SkillRecord) int { return cmp.Compare(a.ID, b.ID) })

	out := make([]v1alpha1.SkillDemand, 0, len(records))
	for _, sk := range records {
		if !req.scope.MatchesSkill(sk) {
			continue
		}
		series := req.profile.Skills[sk.ID]
		d := v1alpha1.SkillDemand{
			SkillID:  sk.ID,
			Name:     sk.Name,
			Category: sk.Category,
			Holders:  holders[sk.ID],
		}
		if n := len(series); n > 0 {
			d.CurrentSupply = series[n-1].TotalAvailable
			d.CurrentDemand = series[n-1].TotalAllocated
		}

		predictions, err := e.forecaster.ForecastSeries(ctx, series, req.scope.Granularity, horizon)
		if err != nil {
			return nil, err
		}
		realistic := forecast.Scenario(predictions, v1alpha1.ScenarioRealistic)
		if n := len(realistic); n > 0 {
			last := realistic[n-1]
			d.ForecastSupply = last.PredictedCapacity
			d.ForecastDemand = last.DemandForecast
			d.Confidence = last.Confidence
			d.InsufficientHistory = last.InsufficientHistory
		} else {
			d.InsufficientHistory = true
		}

		d.GapHours = d.ForecastDemand - d.ForecastSupply
		switch {
		case d.ForecastSupply > 0:
			d.GapRatio = d.GapHours / d.ForecastSupply
		case d.GapHours > 0:
			d.GapRatio = 1
		}
		out = append(out, d)
	}

	slices.SortStableFunc(out, func(a, b v1alpha1.SkillDemand) int {
		if c := cmp.Compare(b.GapHours, a.GapHours); c != 0 {
			return c
		}
		return cmp.Compare(a.SkillID, b.SkillID)
	})

	logger.V(logging.DEBUG).Info("Forecast skill demand",
		"scope", req.profile.ScopeID,
		"horizon", horizon,
		"skills", len(out))
	return out, nil
}
