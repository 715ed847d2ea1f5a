package intelligence

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/utils/ptr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/collector"
	"github.com/workforce-planning/capacity-intelligence/internal/collector/memory"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/aggregator"
	"github.com/workforce-planning/capacity-intelligence/internal/metrics"
)

var (
	now    = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	jan    = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	months = []time.Time{jan, jan.AddDate(0, 1, 0), jan.AddDate(0, 2, 0)}
)

// workforce has two overbooked engineers (160 available, 200 allocated each
// month) and one half-booked operator, January through March 2025.
func workforce(extra ...v1alpha1.CapacitySnapshot) *memory.Source {
	var snapshots []v1alpha1.CapacitySnapshot
	for _, m := range months {
		day := m.AddDate(0, 0, 4)
		snapshots = append(snapshots,
			v1alpha1.CapacitySnapshot{EmployeeID: "e1", DepartmentID: "eng", Date: day, AvailableHours: ptr.To(160.0), AllocatedHours: ptr.To(200.0)},
			v1alpha1.CapacitySnapshot{EmployeeID: "e2", DepartmentID: "eng", Date: day, AvailableHours: ptr.To(160.0), AllocatedHours: ptr.To(200.0)},
			v1alpha1.CapacitySnapshot{EmployeeID: "e3", DepartmentID: "ops", Date: day, AvailableHours: ptr.To(160.0), AllocatedHours: ptr.To(80.0)},
		)
	}
	snapshots = append(snapshots, extra...)
	end := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	allocations := []v1alpha1.AllocationRecord{
		{ID: "a1", EmployeeID: "e1", DepartmentID: "eng", ProjectID: "p1", AllocatedHours: ptr.To(200.0), StartDate: jan, EndDate: end, Status: v1alpha1.AllocationActive},
		{ID: "a2", EmployeeID: "e2", DepartmentID: "eng", ProjectID: "p1", AllocatedHours: ptr.To(200.0), StartDate: jan, EndDate: end, Status: v1alpha1.AllocationActive},
		{ID: "a3", EmployeeID: "e3", DepartmentID: "ops", ProjectID: "p2", AllocatedHours: ptr.To(80.0), StartDate: jan, EndDate: end, Status: v1alpha1.AllocationActive},
	}
	skills := []v1alpha1.SkillRecord{
		{ID: "go", Name: "Go", Category: "engineering", Proficiency: map[string]int{"e1": 3, "e2": 2}},
		{ID: "sre", Name: "SRE", Category: "operations", Proficiency: map[string]int{"e3": 2}},
	}
	return memory.New(allocations, snapshots, skills)
}

// countingSource counts fetch rounds and can fail every allocation read.
type countingSource struct {
	collector.DataSource
	fetches atomic.Int32
	fail    error
}

func (s *countingSource) FetchAllocations(ctx context.Context, scope collector.Scope) ([]v1alpha1.AllocationRecord, error) {
	s.fetches.Add(1)
	if s.fail != nil {
		return nil, s.fail
	}
	return s.DataSource.FetchAllocations(ctx, scope)
}

func newEngine(source collector.DataSource, cfg *config.EngineConfig, opts ...Option) *Engine {
	GinkgoHelper()
	opts = append([]Option{WithClock(func() time.Time { return now }), WithLogger(GinkgoLogr)}, opts...)
	engine, err := NewEngine(source, cfg, opts...)
	Expect(err).NotTo(HaveOccurred())
	return engine
}

func keys(bs []v1alpha1.Bottleneck) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.Key())
	}
	return out
}

func find(bs []v1alpha1.Bottleneck, key string) v1alpha1.Bottleneck {
	GinkgoHelper()
	for _, b := range bs {
		if b.Key() == key {
			return b
		}
	}
	Fail("no bottleneck " + key)
	return v1alpha1.Bottleneck{}
}

func counter(reg *prometheus.Registry, name, label, value string) float64 {
	GinkgoHelper()
	families, err := reg.Gather()
	Expect(err).NotTo(HaveOccurred())
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if labelOf(m, label) == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelOf(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

var _ = Describe("NewEngine", func() {
	It("rejects a nil source", func() {
		_, err := NewEngine(nil, config.Default())
		Expect(err).To(HaveOccurred())
	})

	It("rejects a nil or invalid config", func() {
		_, err := NewEngine(workforce(), nil)
		Expect(err).To(HaveOccurred())

		cfg := config.Default()
		cfg.Bottleneck.PersistencePeriods = 0
		_, err = NewEngine(workforce(), cfg)
		Expect(err).To(MatchError(ContainSubstring("persistencePeriods")))
	})
})

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		engine *Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		engine = newEngine(workforce(), config.Default())
	})

	Describe("IdentifyBottlenecks", func() {
		It("reports an overbooked department as critical", func() {
			report, err := engine.IdentifyBottlenecks(ctx, BottleneckOptions{})
			Expect(err).NotTo(HaveOccurred())

			eng := find(report.Current, "department/eng")
			Expect(eng.Severity).To(Equal(v1alpha1.SeverityCritical))
			Expect(eng.ShortfallHours).To(BeNumerically("~", 80, 1e-9))
			Expect(eng.ShortfallPerEntity).To(BeNumerically("~", 40, 1e-9))
			Expect(eng.Status).To(Equal(v1alpha1.BottleneckActive))
			Expect(eng.AffectedProjects).To(Equal([]string{"p1"}))
			Expect(keys(report.Current)).To(ContainElements("skill/go", "resource/e1", "resource/e2"))
			Expect(keys(report.Current)).NotTo(ContainElement("department/ops"))
			Expect(report.Historical).To(BeEmpty())
			Expect(report.Predicted).To(BeEmpty())
		})

		It("filters by minimum severity", func() {
			report, err := engine.IdentifyBottlenecks(ctx, BottleneckOptions{MinSeverity: v1alpha1.SeverityCritical})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Current).NotTo(BeEmpty())
			for _, b := range report.Current {
				Expect(b.Severity).To(Equal(v1alpha1.SeverityCritical))
			}
		})

		It("restricts the scope to one department", func() {
			report, err := engine.IdentifyBottlenecks(ctx, BottleneckOptions{Filters: Filters{DepartmentID: "ops"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Current).To(BeEmpty())
		})

		It("rejects an unknown severity", func() {
			_, err := engine.IdentifyBottlenecks(ctx, BottleneckOptions{MinSeverity: "urgent"})
			Expect(err).To(MatchError(ErrInvalidRequest))
		})
	})

	Describe("GetCapacityIntelligence", func() {
		It("composes every stage", func() {
			report, err := engine.GetCapacityIntelligence(ctx, Filters{})
			Expect(err).NotTo(HaveOccurred())

			Expect(report.ScopeID).To(Equal("all"))
			Expect(report.GeneratedAt).To(Equal(now))
			Expect(report.CurrentUtilization.Overall.TotalAvailable).To(BeNumerically("~", 480, 1e-9))
			Expect(report.CurrentUtilization.Departments).To(HaveKey("eng"))
			Expect(report.CurrentUtilization.Departments["eng"].AverageUtilization).To(BeNumerically("~", 1.25, 1e-9))
			Expect(report.Trends.Departments).To(HaveKey("ops"))
			Expect(report.Predictions).To(HaveLen(9))
			Expect(report.InsufficientHistory).To(BeFalse())
			Expect(keys(report.Bottlenecks.Current)).To(ContainElement("department/eng"))
			Expect(report.Recommendations).NotTo(BeEmpty())

			var skills []string
			for _, r := range report.Recommendations {
				skills = append(skills, r.AffectedSkills...)
			}
			Expect(skills).To(ContainElement("go"))

			Expect(report.RiskFactors).NotTo(BeEmpty())
			Expect(report.RiskFactors[0].Probability).To(BeNumerically("~", 0.85, 1e-9))
			for i := 1; i < len(report.RiskFactors); i++ {
				Expect(report.RiskFactors[i].Probability).To(BeNumerically("<=", report.RiskFactors[i-1].Probability))
			}
		})

		It("flags insufficient history", func() {
			report, err := engine.GetCapacityIntelligence(ctx, Filters{Timeframe: "2m"})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.InsufficientHistory).To(BeTrue())
			Expect(report.RiskFactors).To(ContainElement(HaveField("Source", "forecast")))
		})

		It("rejects malformed filters", func() {
			_, err := engine.GetCapacityIntelligence(ctx, Filters{Granularity: "hourly"})
			Expect(err).To(MatchError(ErrInvalidRequest))

			_, err = engine.GetCapacityIntelligence(ctx, Filters{Timeframe: "soon"})
			Expect(err).To(MatchError(ErrInvalidRequest))

			_, err = engine.GetCapacityIntelligence(ctx, Filters{From: now, To: jan})
			Expect(err).To(MatchError(ErrInvalidRequest))
		})

		It("rejects invalid records", func() {
			bad := v1alpha1.CapacitySnapshot{EmployeeID: "e9", DepartmentID: "eng", Date: jan.AddDate(0, 0, 10), AvailableHours: ptr.To(-1.0)}
			engine = newEngine(workforce(bad), config.Default())

			_, err := engine.GetCapacityIntelligence(ctx, Filters{})
			var verr *aggregator.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.RecordKind).To(Equal("snapshot"))
		})

		It("stops on cancellation", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := engine.GetCapacityIntelligence(cancelled, Filters{})
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("GetCapacityPredictions", func() {
		It("returns every scenario over the horizon", func() {
			predictions, err := engine.GetCapacityPredictions(ctx, PredictionOptions{Horizon: "2m"})
			Expect(err).NotTo(HaveOccurred())
			Expect(predictions).To(HaveLen(6))
			Expect(predictions[0].PeriodsAhead).To(Equal(1))
		})

		It("filters scenarios and applies the requested confidence", func() {
			predictions, err := engine.GetCapacityPredictions(ctx, PredictionOptions{
				Scenarios:  []v1alpha1.ForecastScenario{v1alpha1.ScenarioRealistic},
				Confidence: ptr.To(0.0),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(predictions).To(HaveLen(3))
			for _, p := range predictions {
				Expect(p.Scenario).To(Equal(v1alpha1.ScenarioRealistic))
				Expect(p.MeetsConfidenceThreshold).To(BeTrue())
				Expect(p.PredictedCapacity).To(BeNumerically("~", 480, 1e-6))
			}

			predictions, err = engine.GetCapacityPredictions(ctx, PredictionOptions{Confidence: ptr.To(1.0)})
			Expect(err).NotTo(HaveOccurred())
			Expect(predictions).To(HaveLen(9))
			for _, p := range predictions {
				Expect(p.MeetsConfidenceThreshold).To(BeFalse())
			}
		})

		It("lowers confidence below the floor with two periods of history", func() {
			floor := config.Default().Forecast.InsufficientHistoryConfidence
			predictions, err := engine.GetCapacityPredictions(ctx, PredictionOptions{Filters: Filters{Timeframe: "2m"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(predictions).NotTo(BeEmpty())
			for _, p := range predictions {
				Expect(p.InsufficientHistory).To(BeTrue())
				Expect(p.Confidence).To(BeNumerically("<=", floor))
			}
		})

		It("ignores the unobserved start of a long lookback", func() {
			predictions, err := engine.GetCapacityPredictions(ctx, PredictionOptions{
				Filters:   Filters{Timeframe: "12m"},
				Scenarios: []v1alpha1.ForecastScenario{v1alpha1.ScenarioRealistic},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(predictions).To(HaveLen(3))
			Expect(predictions[0].Period.Label).To(Equal("2025-04"))
			for _, p := range predictions {
				Expect(p.PredictedCapacity).To(BeNumerically("~", 480, 1e-6))
				Expect(p.DemandForecast).To(BeNumerically("~", 480, 1e-6))
				Expect(p.InsufficientHistory).To(BeFalse())
			}

			patterns, err := engine.AnalyzeUtilizationPatterns(ctx, Filters{Timeframe: "12m"})
			Expect(err).NotTo(HaveOccurred())
			Expect(patterns.Trend.Periods).To(Equal(3))
			Expect(patterns.Trend.Direction).To(Equal(v1alpha1.TrendStable))
		})

		It("projects from the end of a window without snapshots", func() {
			window := Filters{From: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)}
			predictions, err := engine.GetCapacityPredictions(ctx, PredictionOptions{Filters: window})
			Expect(err).NotTo(HaveOccurred())
			Expect(predictions).To(HaveLen(9))
			Expect(predictions[0].Period.Label).To(Equal("2024-09"))
			for _, p := range predictions {
				Expect(p.InsufficientHistory).To(BeTrue())
				Expect(p.Confidence).To(BeNumerically("<=", config.Default().Forecast.InsufficientHistoryConfidence))
			}

			report, err := engine.GetCapacityIntelligence(ctx, window)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.InsufficientHistory).To(BeTrue())
			Expect(report.RiskFactors).To(ContainElement(HaveField("Source", "forecast")))
		})

		DescribeTable("rejects malformed options",
			func(opts PredictionOptions) {
				_, err := engine.GetCapacityPredictions(ctx, opts)
				Expect(err).To(MatchError(ErrInvalidRequest))
			},
			Entry("confidence above one", PredictionOptions{Confidence: ptr.To(1.5)}),
			Entry("negative confidence", PredictionOptions{Confidence: ptr.To(-0.1)}),
			Entry("unknown scenario", PredictionOptions{Scenarios: []v1alpha1.ForecastScenario{"wild"}}),
			Entry("bad horizon", PredictionOptions{Horizon: "3q"}),
		)
	})

	Describe("RunScenarioAnalysis", func() {
		addOps := v1alpha1.Scenario{Name: "ops project", Changes: v1alpha1.ChangeList{
			v1alpha1.AddProject{ProjectID: "p3", DepartmentID: "ops", HoursPerPeriod: 100},
		}}

		It("reports bottlenecks created by a new project", func() {
			result, err := engine.RunScenarioAnalysis(ctx, Filters{}, addOps,
				v1alpha1.AnalysisOptions{IncludeRiskAnalysis: true, IncludeCostImpact: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.ScenarioName).To(Equal("ops project"))
			Expect(result.CapacityDelta.AvailableHours).To(BeNumerically("~", 0, 1e-9))
			Expect(result.CapacityDelta.DemandHours).To(BeNumerically("~", 300, 1e-9))
			Expect(keys(result.NewBottlenecks)).To(ContainElement("department/ops"))
			Expect(result.RiskAssessment).NotTo(BeNil())
			Expect(result.CostImpact).NotTo(BeNil())
			Expect(result.CostImpact.IsZero()).To(BeTrue())
		})

		It("compares scenarios in input order", func() {
			relieve := v1alpha1.Scenario{Name: "hire", Changes: v1alpha1.ChangeList{
				v1alpha1.AddResources{DepartmentID: "eng", Count: 1, HoursPerResource: ptr.To(160.0)},
			}}
			results, err := engine.CompareScenarios(ctx, Filters{}, []v1alpha1.Scenario{relieve, addOps}, v1alpha1.AnalysisOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ScenarioName).To(Equal("hire"))
			Expect(keys(results[0].ResolvedBottlenecks)).To(ContainElement("department/eng"))
			Expect(results[1].ScenarioName).To(Equal("ops project"))
		})

		It("counts runs on the recorder", func() {
			reg := prometheus.NewRegistry()
			engine = newEngine(workforce(), config.Default(), WithRecorder(metrics.NewRecorder(reg)))
			_, err := engine.RunScenarioAnalysis(ctx, Filters{}, addOps, v1alpha1.AnalysisOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(counter(reg, "capacity_intelligence_scenario_runs_total", "outcome", "ok")).To(Equal(1.0))
		})
	})

	Describe("AnalyzeUtilizationPatterns", func() {
		It("summarizes the overall series", func() {
			patterns, err := engine.AnalyzeUtilizationPatterns(ctx, Filters{})
			Expect(err).NotTo(HaveOccurred())
			Expect(patterns.Granularity).To(Equal(v1alpha1.GranularityMonthly))
			Expect(patterns.AverageUtilization).To(BeNumerically("~", 1.0, 1e-9))
			Expect(patterns.PeakPeriods).To(HaveLen(1))
			Expect(patterns.LowPeriods).To(HaveLen(1))
			Expect(patterns.Trend.Direction).To(Equal(v1alpha1.TrendStable))
			Expect(patterns.Trend.Periods).To(Equal(3))
			Expect(patterns.Anomalies).NotTo(BeNil())
			Expect(patterns.Anomalies).To(BeEmpty())
		})

		It("honours the requested granularity", func() {
			var weekly []v1alpha1.CapacitySnapshot
			for _, day := range []time.Time{jan.AddDate(0, 1, 17), jan.AddDate(0, 1, 24), jan.AddDate(0, 2, 10)} {
				weekly = append(weekly, v1alpha1.CapacitySnapshot{
					EmployeeID: "e1", DepartmentID: "eng", Date: day,
					AvailableHours: ptr.To(40.0), AllocatedHours: ptr.To(50.0),
				})
			}
			engine = newEngine(workforce(weekly...), config.Default())
			patterns, err := engine.AnalyzeUtilizationPatterns(ctx, Filters{Timeframe: "4w", Granularity: v1alpha1.GranularityWeekly})
			Expect(err).NotTo(HaveOccurred())
			Expect(patterns.Granularity).To(Equal(v1alpha1.GranularityWeekly))
			Expect(patterns.Trend.Periods).To(Equal(4))
		})
	})

	Describe("ForecastSkillDemand", func() {
		It("orders skills by forecast gap and recommends for the gap", func() {
			forecast, err := engine.ForecastSkillDemand(ctx, Filters{}, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(forecast.Horizon).To(Equal("3m"))
			Expect(forecast.Skills).To(HaveLen(2))

			goSkill := forecast.Skills[0]
			Expect(goSkill.SkillID).To(Equal("go"))
			Expect(goSkill.Holders).To(Equal(2))
			Expect(goSkill.CurrentSupply).To(BeNumerically("~", 320, 1e-9))
			Expect(goSkill.CurrentDemand).To(BeNumerically("~", 400, 1e-9))
			Expect(goSkill.GapHours).To(BeNumerically("~", 80, 1e-6))
			Expect(goSkill.GapRatio).To(BeNumerically("~", 0.25, 1e-6))
			Expect(goSkill.InsufficientHistory).To(BeFalse())

			sre := forecast.Skills[1]
			Expect(sre.SkillID).To(Equal("sre"))
			Expect(sre.GapHours).To(BeNumerically("~", -80, 1e-6))

			var actions []v1alpha1.ActionType
			for _, r := range forecast.Recommendations {
				Expect(r.AffectedSkills).To(Equal([]string{"go"}))
				actions = append(actions, r.Type)
			}
			Expect(actions).To(ConsistOf(v1alpha1.ActionTraining, v1alpha1.ActionHiring))
		})

		It("restricts to one skill", func() {
			forecast, err := engine.ForecastSkillDemand(ctx, Filters{SkillID: "sre"}, "1m")
			Expect(err).NotTo(HaveOccurred())
			Expect(forecast.Skills).To(HaveLen(1))
			Expect(forecast.Skills[0].SkillID).To(Equal("sre"))
			Expect(forecast.Recommendations).To(BeEmpty())
		})
	})
})

var _ = Describe("Data source failures", func() {
	It("returns the source error unmodified and counts it", func() {
		down := collector.Unavailable("broken", "fetch allocations", errors.New("connection refused"))
		source := &countingSource{DataSource: workforce(), fail: down}
		reg := prometheus.NewRegistry()
		engine := newEngine(source, config.Default(), WithRecorder(metrics.NewRecorder(reg)))

		_, err := engine.IdentifyBottlenecks(context.Background(), BottleneckOptions{})
		Expect(err).To(BeIdenticalTo(down))
		Expect(err).To(MatchError(collector.ErrDataUnavailable))
		Expect(counter(reg, "capacity_intelligence_data_fetch_failures_total", "source", memory.SourceName)).To(Equal(1.0))
	})
})

var _ = Describe("Result cache", func() {
	var (
		ctx    context.Context
		source *countingSource
		engine *Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		source = &countingSource{DataSource: workforce()}
		cfg := config.Default()
		cfg.Cache.Enabled = true
		engine = newEngine(source, cfg)
	})

	It("serves repeated reports from the cache as independent copies", func() {
		first, err := engine.GetCapacityIntelligence(ctx, Filters{})
		Expect(err).NotTo(HaveOccurred())
		first.Recommendations = nil
		first.Bottlenecks.Current[0].Severity = v1alpha1.SeverityLow

		second, err := engine.GetCapacityIntelligence(ctx, Filters{})
		Expect(err).NotTo(HaveOccurred())
		Expect(source.fetches.Load()).To(Equal(int32(1)))
		Expect(second.Recommendations).NotTo(BeEmpty())
		Expect(second.Bottlenecks.Current[0].Severity).To(Equal(v1alpha1.SeverityCritical))
	})

	It("keys scenarios by their changes", func() {
		sc := v1alpha1.Scenario{Name: "grow", Changes: v1alpha1.ChangeList{v1alpha1.ChangeDemand{Percent: 10}}}
		_, err := engine.RunScenarioAnalysis(ctx, Filters{}, sc, v1alpha1.AnalysisOptions{})
		Expect(err).NotTo(HaveOccurred())
		_, err = engine.RunScenarioAnalysis(ctx, Filters{}, sc, v1alpha1.AnalysisOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(source.fetches.Load()).To(Equal(int32(1)))

		sc.Changes = v1alpha1.ChangeList{v1alpha1.ChangeDemand{Percent: 20}}
		_, err = engine.RunScenarioAnalysis(ctx, Filters{}, sc, v1alpha1.AnalysisOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(source.fetches.Load()).To(Equal(int32(2)))
	})

	It("refetches after invalidation", func() {
		_, err := engine.GetCapacityIntelligence(ctx, Filters{})
		Expect(err).NotTo(HaveOccurred())

		removed, err := engine.InvalidateScope(Filters{DepartmentID: "eng"})
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(0))

		removed, err = engine.InvalidateScope(Filters{})
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(1))
		Expect(engine.Invalidate()).To(Equal(0))

		_, err = engine.GetCapacityIntelligence(ctx, Filters{})
		Expect(err).NotTo(HaveOccurred())
		Expect(source.fetches.Load()).To(Equal(int32(2)))
	})
})
