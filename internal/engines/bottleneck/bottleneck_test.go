package bottleneck

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/collector"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/aggregator"
)

var jan = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// monthlySeries builds one period per shortfall value against 100 available hours.
func monthlySeries(shortfalls ...float64) []v1alpha1.PeriodUtilization {
	out := make([]v1alpha1.PeriodUtilization, len(shortfalls))
	p := aggregator.PeriodAt(jan, v1alpha1.GranularityMonthly)
	for i, s := range shortfalls {
		out[i] = v1alpha1.PeriodUtilization{Period: p, TotalAvailable: 100, TotalAllocated: 100 + s, EntityCount: 1}
		out[i].Recompute()
		p = aggregator.Next(p, v1alpha1.GranularityMonthly)
	}
	return out
}

func newDetector() *Detector {
	return New(config.Default().Bottleneck, nil)
}

func TestScoreMonotonic(t *testing.T) {
	bp := config.Default().Bottleneck.Breakpoints
	prev := 0
	for shortfall := 0.0; shortfall <= 200; shortfall += 2.5 {
		_, sev := Score(shortfall, 320, 2, bp, 1)
		assert.GreaterOrEqual(t, sev.Rank(), prev, "shortfall %.1f", shortfall)
		prev = sev.Rank()
	}
	assert.Equal(t, v1alpha1.SeverityCritical.Rank(), prev)

	score, sev := Score(10, 0, 0, bp, 1)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, v1alpha1.SeverityCritical, sev)
}

func TestDepartmentShortfallIsCritical(t *testing.T) {
	data := &collector.DataSet{
		Snapshots: []v1alpha1.CapacitySnapshot{
			{EmployeeID: "e1", DepartmentID: "eng", Date: jan, AvailableHours: ptr.To(160.0), AllocatedHours: ptr.To(200.0)},
			{EmployeeID: "e2", DepartmentID: "eng", Date: jan, AvailableHours: ptr.To(160.0), AllocatedHours: ptr.To(200.0)},
		},
	}
	scope := collector.Scope{From: jan, To: jan.AddDate(0, 1, 0), Granularity: v1alpha1.GranularityMonthly}
	profile, err := aggregator.New(config.Default().Aggregator).Aggregate(context.Background(), scope, data)
	require.NoError(t, err)

	report, err := newDetector().Detect(context.Background(), profile, Options{})
	require.NoError(t, err)

	var dept *v1alpha1.Bottleneck
	for i := range report.Current {
		if report.Current[i].Key() == "department/eng" {
			dept = &report.Current[i]
		}
	}
	require.NotNil(t, dept, "department bottleneck is reported")
	assert.Equal(t, v1alpha1.SeverityCritical, dept.Severity)
	assert.Equal(t, 80.0, dept.ShortfallHours)
	assert.Equal(t, 40.0, dept.ShortfallPerEntity)
	assert.Equal(t, 80.0, dept.ImpactScore)
	assert.Equal(t, v1alpha1.BottleneckActive, dept.Status)
	assert.Equal(t, []v1alpha1.ActionType{v1alpha1.ActionHiring, v1alpha1.ActionReallocation}, dept.RecommendedActions)
	assert.NotEmpty(t, dept.RootCauses)
	assert.Empty(t, report.Historical)
}

func TestRunsAndStatus(t *testing.T) {
	tests := []struct {
		name           string
		shortfalls     []float64
		wantCurrent    v1alpha1.BottleneckStatus
		wantHistorical int
		wantWindow     string
	}{
		{name: "growing", shortfalls: []float64{0, 5, 15}, wantCurrent: v1alpha1.BottleneckActive, wantWindow: "2025-02..2025-03"},
		{name: "shrinking", shortfalls: []float64{10, 0, 20, 10}, wantCurrent: v1alpha1.BottleneckMitigated, wantHistorical: 1, wantWindow: "2025-03..2025-04"},
		{name: "single period", shortfalls: []float64{0, 0, 30}, wantCurrent: v1alpha1.BottleneckActive, wantWindow: "2025-03"},
		{name: "resolved", shortfalls: []float64{30, 20, 0}, wantHistorical: 1},
		{name: "none", shortfalls: []float64{0, -10, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := &v1alpha1.UtilizationProfile{
				ScopeID:     "all",
				Granularity: v1alpha1.GranularityMonthly,
				Departments: map[string][]v1alpha1.PeriodUtilization{"eng": monthlySeries(tt.shortfalls...)},
				Overall:     monthlySeries(make([]float64, len(tt.shortfalls))...),
			}
			report, err := newDetector().Detect(context.Background(), profile, Options{})
			require.NoError(t, err)

			require.Len(t, report.Historical, tt.wantHistorical)
			for _, b := range report.Historical {
				assert.Equal(t, v1alpha1.BottleneckResolved, b.Status)
			}
			if tt.wantCurrent == "" {
				assert.Empty(t, report.Current)
				return
			}
			require.Len(t, report.Current, 1)
			got := report.Current[0]
			assert.Equal(t, tt.wantCurrent, got.Status)
			assert.Equal(t, tt.wantWindow, got.Window.Label)
			assert.Equal(t, tt.shortfalls[len(tt.shortfalls)-1], got.ShortfallHours)
			assert.Equal(t, got.Window.End.Sub(got.Window.Start), got.EstimatedDuration)
		})
	}
}

func TestPredicted(t *testing.T) {
	profile := &v1alpha1.UtilizationProfile{
		ScopeID:     "department=eng",
		Granularity: v1alpha1.GranularityMonthly,
		Overall:     monthlySeries(0, 0),
	}
	next := aggregator.Next(profile.Overall[1].Period, v1alpha1.GranularityMonthly)
	var predictions []v1alpha1.Prediction
	for i, demand := range []float64{120, 140, 90, 150} {
		for _, s := range v1alpha1.ForecastScenarios {
			predictions = append(predictions, v1alpha1.Prediction{
				Period: next, PeriodsAhead: i + 1, Scenario: s,
				PredictedCapacity: 100, DemandForecast: demand,
			})
		}
		next = aggregator.Next(next, v1alpha1.GranularityMonthly)
	}

	report, err := newDetector().Detect(context.Background(), profile, Options{Predictions: predictions})
	require.NoError(t, err)
	assert.Empty(t, report.Current)
	require.Len(t, report.Predicted, 1, "a single shortfall period does not persist")

	got := report.Predicted[0]
	assert.Equal(t, "time/department=eng", got.Key())
	assert.Equal(t, 40.0, got.ShortfallHours, "evaluated at the worst period")
	assert.Equal(t, "2025-03..2025-04", got.Window.Label)
	assert.Equal(t, v1alpha1.SeverityCritical, got.Severity)
}

func TestMinSeverity(t *testing.T) {
	profile := &v1alpha1.UtilizationProfile{
		ScopeID:     "all",
		Granularity: v1alpha1.GranularityMonthly,
		Resources: map[string][]v1alpha1.PeriodUtilization{
			"e1": monthlySeries(2),
			"e2": monthlySeries(7),
			"e3": monthlySeries(12),
			"e4": monthlySeries(40),
		},
		Overall: monthlySeries(0),
	}

	all, err := newDetector().Detect(context.Background(), profile, Options{})
	require.NoError(t, err)
	require.Len(t, all.Current, 4)
	assert.Equal(t, "resource/e4", all.Current[0].Key(), "ordered by severity")
	assert.Equal(t, v1alpha1.SeverityLow, all.Current[3].Severity)

	high, err := newDetector().Detect(context.Background(), profile, Options{MinSeverity: v1alpha1.SeverityHigh})
	require.NoError(t, err)
	require.Len(t, high.Current, 2)
	for _, b := range high.Current {
		assert.True(t, b.Severity.AtLeast(v1alpha1.SeverityHigh))
	}
}

func TestDepartmentOverrides(t *testing.T) {
	overrides := config.ParseDepartmentOverrides(logr.Discard(), map[string]config.DepartmentConfig{
		"eng": {DepartmentID: "eng", Breakpoints: config.SeverityBreakpoints{Medium: 50, High: 80, Critical: 120}},
	})
	profile := &v1alpha1.UtilizationProfile{
		ScopeID:     "all",
		Granularity: v1alpha1.GranularityMonthly,
		Departments: map[string][]v1alpha1.PeriodUtilization{
			"eng": monthlySeries(25),
			"ops": monthlySeries(25),
		},
		Overall: monthlySeries(0),
	}
	report, err := New(config.Default().Bottleneck, overrides).Detect(context.Background(), profile, Options{})
	require.NoError(t, err)
	require.Len(t, report.Current, 2)
	bySev := map[string]v1alpha1.Severity{}
	for _, b := range report.Current {
		bySev[b.AffectedResource] = b.Severity
	}
	assert.Equal(t, v1alpha1.SeverityLow, bySev["eng"])
	assert.Equal(t, v1alpha1.SeverityCritical, bySev["ops"])
}

func TestDetectDeterministic(t *testing.T) {
	profile := &v1alpha1.UtilizationProfile{
		ScopeID:     "all",
		Granularity: v1alpha1.GranularityMonthly,
		Overall:     monthlySeries(10, 20),
		Skills:      map[string][]v1alpha1.PeriodUtilization{"go": monthlySeries(5, 5)},
	}
	a, err := newDetector().Detect(context.Background(), profile, Options{})
	require.NoError(t, err)
	b, err := newDetector().Detect(context.Background(), profile, Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a.Current, 2)
	assert.NotEqual(t, a.Current[0].ID, a.Current[1].ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newDetector().Detect(ctx, profile, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectEmpty(t *testing.T) {
	report, err := newDetector().Detect(context.Background(), &v1alpha1.UtilizationProfile{}, Options{})
	require.NoError(t, err)
	assert.NotNil(t, report.Current)
	assert.Empty(t, report.Current)
	assert.Empty(t, report.Predicted)
	assert.Empty(t, report.Historical)
}
