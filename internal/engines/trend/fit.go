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

package trend

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/common"
)

// residualTolerance is the residual, relative to the scale, below which a
// fit is treated as exact.
const residualTolerance = 1e-9

// LinearFit is a least-squares line over period index 0..n-1.
type LinearFit struct {
	Intercept float64
	Slope     float64

	// Residuals are observed minus fitted values, in period order.
	Residuals      []float64
	ResidualStdDev float64

	// Confidence is in [0,1]; zero for fewer than two points.
	Confidence float64
	N          int
}

// At returns the fitted value at period index x.
func (f LinearFit) At(x float64) float64 {
	return f.Intercept + f.Slope*x
}

// Fit runs a least-squares fit of values against their index.
//
// Confidence = min(1, n/FullConfidencePeriods) / (1 + VarianceSensitivity*v),
// where v is the residual variance divided by scale squared. Rate series use
// a scale of 1; hour series pass their mean so confidence does not depend on units.
func Fit(values []float64, scale float64, cfg config.TrendConfig) LinearFit {
	n := len(values)
	fit := LinearFit{N: n}
	switch n {
	case 0:
		return fit
	case 1:
		fit.Intercept = values[0]
		fit.Residuals = []float64{0}
		return fit
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	fit.Intercept, fit.Slope = stat.LinearRegression(xs, values, nil, false)

	tolerance := residualTolerance * max(1, math.Abs(scale))
	fit.Residuals = make([]float64, n)
	for i, y := range values {
		if r := y - fit.At(xs[i]); math.Abs(r) > tolerance {
			fit.Residuals[i] = r
		}
	}
	_, fit.ResidualStdDev = stat.MeanStdDev(fit.Residuals, nil)
	if fit.ResidualStdDev < tolerance {
		fit.ResidualStdDev = 0
	}

	variance := fit.ResidualStdDev * fit.ResidualStdDev
	if scale > 0 {
		variance /= scale * scale
	}
	lengthFactor := min(1, float64(n)/float64(max(1, cfg.FullConfidencePeriods)))
	fit.Confidence = common.Clamp01(lengthFactor / (1 + cfg.VarianceSensitivity*variance))
	return fit
}
