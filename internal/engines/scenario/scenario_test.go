package scenario

import (
	"context"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"k8s.io/utils/ptr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/aggregator"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/bottleneck"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/forecast"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/recommendation"
)

// twoPeople is a scope of two employees in one department over two months.
func twoPeople(allocated float64) *v1alpha1.UtilizationProfile {
	series := func() []v1alpha1.PeriodUtilization {
		var out []v1alpha1.PeriodUtilization
		p := aggregator.PeriodAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), v1alpha1.GranularityMonthly)
		for range 2 {
			pu := v1alpha1.PeriodUtilization{Period: p, TotalAvailable: 320, TotalAllocated: allocated, EntityCount: 2, Projects: []string{"p1"}}
			pu.Recompute()
			out = append(out, pu)
			p = aggregator.Next(p, v1alpha1.GranularityMonthly)
		}
		return out
	}
	return &v1alpha1.UtilizationProfile{
		ScopeID:     "all",
		Granularity: v1alpha1.GranularityMonthly,
		Overall:     series(),
		Departments: map[string][]v1alpha1.PeriodUtilization{"eng": series()},
	}
}

func newSimulator() *Simulator {
	cfg := config.Default()
	return New(cfg.Scenario,
		bottleneck.New(cfg.Bottleneck, nil),
		forecast.New(cfg.Forecast, cfg.Trend),
		recommendation.New(cfg.Recommendation, cfg.Bottleneck.Breakpoints))
}

func keys(bs []v1alpha1.Bottleneck) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.Key())
	}
	return out
}

var allOptions = v1alpha1.AnalysisOptions{IncludeRiskAnalysis: true, IncludeOptimizations: true, IncludeCostImpact: true}

var _ = Describe("Simulate", func() {
	var (
		ctx context.Context
		sim *Simulator
	)

	BeforeEach(func() {
		ctx = context.Background()
		sim = newSimulator()
	})

	Context("adding a project without resources", func() {
		var (
			baseline *v1alpha1.UtilizationProfile
			result   *v1alpha1.ScenarioResult
		)

		BeforeEach(func() {
			baseline = twoPeople(240)
			sc := v1alpha1.Scenario{Name: "new project", Changes: v1alpha1.ChangeList{
				v1alpha1.AddProject{ProjectID: "p2", DepartmentID: "eng", HoursPerPeriod: 100},
			}}
			var err error
			result, err = sim.Simulate(ctx, Baseline{Profile: baseline, Horizon: "2m"}, sc, allOptions)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should leave available hours unchanged", func() {
			Expect(result.CapacityDelta.AvailableHours).To(BeZero())
			Expect(result.CapacityDelta.DemandHours).To(BeNumerically("~", 200, 1e-9))
			Expect(result.CapacityDelta.UtilizationChange).To(BeNumerically("~", 100.0/320.0, 1e-9))
			Expect(result.DepartmentDeltas).To(HaveKey("eng"))
			Expect(result.DepartmentDeltas["eng"].AvailableHours).To(BeZero())
		})

		It("should report new bottlenecks", func() {
			Expect(result.NewBottlenecks).NotTo(BeEmpty())
			Expect(keys(result.NewBottlenecks)).To(ContainElements("department/eng", "time/all"))
			Expect(result.ResolvedBottlenecks).To(BeEmpty())
		})

		It("should not modify the baseline", func() {
			Expect(cmp.Diff(twoPeople(240), baseline)).To(BeEmpty())
		})

		It("should assess the new bottlenecks and the demand jump", func() {
			Expect(result.RiskAssessment).NotTo(BeNil())
			var sources []string
			for _, r := range result.RiskAssessment.Risks {
				Expect(r.Probability).To(And(BeNumerically(">=", 0), BeNumerically("<=", 1)))
				Expect(r.Mitigation).NotTo(BeEmpty())
				sources = append(sources, r.Source)
			}
			Expect(sources).To(ContainElement("change 0"))
			Expect(result.RiskAssessment.Level).To(Equal(v1alpha1.SeverityCritical))
		})

		It("should price no capacity change and recommend actions", func() {
			Expect(result.CostImpact).NotTo(BeNil())
			Expect(result.CostImpact.IsZero()).To(BeTrue())
			Expect(result.Recommendations).NotTo(BeEmpty())
			Expect(result.Predictions).NotTo(BeEmpty())
		})
	})

	It("should resolve a bottleneck by adding resources", func() {
		sc := v1alpha1.Scenario{Name: "hire", Changes: v1alpha1.ChangeList{
			v1alpha1.AddResources{DepartmentID: "eng", Count: 1},
		}}
		result, err := sim.Simulate(ctx, Baseline{Profile: twoPeople(360), Horizon: "2m"}, sc, allOptions)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys(result.ResolvedBottlenecks)).To(ContainElements("department/eng", "time/all"))
		Expect(result.NewBottlenecks).To(BeEmpty())
		Expect(result.CapacityDelta.AvailableHours).To(BeNumerically("~", 320, 1e-9))
		Expect(result.CostImpact.Equal(decimal.NewFromInt(24000))).To(BeTrue())
	})

	It("should honor explicit hours and windows", func() {
		p := twoPeople(240)
		window := &v1alpha1.DateRange{Start: p.Overall[1].Period.Start, End: p.Overall[1].Period.End.Add(-time.Hour)}
		sc := v1alpha1.Scenario{Name: "contractor", Changes: v1alpha1.ChangeList{
			&v1alpha1.AddResources{DepartmentID: "eng", Count: 2, HoursPerResource: ptr.To(80.0), Window: window},
		}}
		result, err := sim.Simulate(ctx, Baseline{Profile: p, Horizon: "1m"}, sc, v1alpha1.AnalysisOptions{IncludeCostImpact: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CapacityDelta.AvailableHours).To(BeNumerically("~", 160, 1e-9))
		Expect(result.CostImpact.Equal(decimal.NewFromInt(12000))).To(BeTrue())
		Expect(result.RiskAssessment).To(BeNil())
		Expect(result.Recommendations).To(BeNil())
	})

	DescribeTable("clamping invalid changes",
		func(change v1alpha1.Change, wantNote string, wantAvailable, wantDemand float64) {
			sc := v1alpha1.Scenario{Name: "clamp", Changes: v1alpha1.ChangeList{change}}
			result, err := sim.Simulate(ctx, Baseline{Profile: twoPeople(240), Horizon: "1m"}, sc, v1alpha1.AnalysisOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Notes).To(ContainElement(ContainSubstring(wantNote)))
			Expect(result.CapacityDelta.AvailableHours).To(BeNumerically("~", wantAvailable, 1e-9))
			Expect(result.CapacityDelta.DemandHours).To(BeNumerically("~", wantDemand, 1e-9))
		},
		Entry("removing more people than exist",
			v1alpha1.RemoveResources{DepartmentID: "eng", Count: 5}, "exceeds 2 entities", -640.0, 0.0),
		Entry("negative headcount",
			v1alpha1.AddResources{DepartmentID: "eng", Count: -3}, "count -3 clamped to 0", 0.0, 0.0),
		Entry("negative hours per resource",
			v1alpha1.AddResources{DepartmentID: "eng", Count: 1, HoursPerResource: ptr.To(-10.0)}, "hoursPerResource -10.00 clamped to 0", 0.0, 0.0),
		Entry("negative project hours",
			v1alpha1.AddProject{ProjectID: "p9", DepartmentID: "eng", HoursPerPeriod: -50}, "hoursPerPeriod -50.00 clamped to 0", 0.0, 0.0),
		Entry("demand cut beyond 100%",
			v1alpha1.ChangeDemand{DepartmentID: "eng", Percent: -150}, "percent -150.00 clamped to -100", 0.0, -480.0),
		Entry("removing from an unknown department",
			v1alpha1.RemoveResources{DepartmentID: "ops", Count: 1}, `department "ops" is not in the baseline; change not applied`, 0.0, 0.0),
		Entry("removing an unknown skill",
			v1alpha1.RemoveResources{SkillID: "rust", Count: 2}, `skill "rust" is not in the baseline; change not applied`, 0.0, 0.0),
		Entry("scaling demand of an unknown department",
			v1alpha1.ChangeDemand{DepartmentID: "ops", Percent: 50}, `department "ops" is not in the baseline; change not applied`, 0.0, 0.0),
		Entry("empty change",
			v1alpha1.Change(nil), "empty change skipped", 0.0, 0.0),
	)

	It("should leave the baseline alone when every target is unknown", func() {
		sc := v1alpha1.Scenario{Name: "ghosts", Changes: v1alpha1.ChangeList{
			v1alpha1.RemoveResources{DepartmentID: "ghost", Count: 2},
			v1alpha1.ChangeDemand{DepartmentID: "ghost2", Percent: 50},
		}}
		result, err := sim.Simulate(ctx, Baseline{Profile: twoPeople(240), Horizon: "1m"}, sc, allOptions)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CapacityDelta.AvailableHours).To(BeZero())
		Expect(result.CapacityDelta.DemandHours).To(BeZero())
		Expect(result.NewBottlenecks).To(BeEmpty())
		Expect(result.Notes).To(ContainElements(
			ContainSubstring(`change 0: department "ghost" is not in the baseline; change not applied`),
			ContainSubstring(`change 1: department "ghost2" is not in the baseline; change not applied`),
		))
	})

	It("should staff a new department at the scope average", func() {
		sc := v1alpha1.Scenario{Name: "new team", Changes: v1alpha1.ChangeList{
			v1alpha1.AddResources{DepartmentID: "ops", Count: 1},
		}}
		result, err := sim.Simulate(ctx, Baseline{Profile: twoPeople(240), Horizon: "1m"}, sc, v1alpha1.AnalysisOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.CapacityDelta.AvailableHours).To(BeNumerically("~", 320, 1e-9))
		Expect(result.DepartmentDeltas).To(HaveKey("ops"))
		Expect(result.DepartmentDeltas["ops"].AvailableHours).To(BeNumerically("~", 320, 1e-9))
		Expect(result.Notes).To(ContainElement(ContainSubstring(`department "ops" is not in the baseline; created with zero baseline hours`)))
		Expect(result.Notes).To(ContainElement(ContainSubstring("defaults to the scope average")))
	})

	It("should apply changes in order", func() {
		sc := v1alpha1.Scenario{Name: "ordered", Changes: v1alpha1.ChangeList{
			v1alpha1.ChangeDemand{Percent: 50},
			v1alpha1.AddProject{ProjectID: "p2", HoursPerPeriod: 40},
		}}
		result, err := sim.Simulate(ctx, Baseline{Profile: twoPeople(200), Horizon: "1m"}, sc, v1alpha1.AnalysisOptions{})
		Expect(err).NotTo(HaveOccurred())
		// (200 * 1.5 + 40) - 200 per period.
		Expect(result.CapacityDelta.DemandHours).To(BeNumerically("~", 280, 1e-9))
	})

	It("should be deterministic", func() {
		sc := v1alpha1.Scenario{Name: "repeat", Changes: v1alpha1.ChangeList{
			v1alpha1.AddProject{ProjectID: "p2", DepartmentID: "eng", HoursPerPeriod: 100},
			v1alpha1.RemoveResources{DepartmentID: "eng", Count: 1},
		}}
		first, err := sim.Simulate(ctx, Baseline{Profile: twoPeople(240), Horizon: "3m"}, sc, allOptions)
		Expect(err).NotTo(HaveOccurred())
		second, err := sim.Simulate(ctx, Baseline{Profile: twoPeople(240), Horizon: "3m"}, sc, allOptions)
		Expect(err).NotTo(HaveOccurred())
		Expect(cmp.Diff(first, second)).To(BeEmpty())
	})

	It("should note an invalid horizon instead of failing", func() {
		result, err := sim.Simulate(ctx, Baseline{Profile: twoPeople(240), Horizon: "soon"}, v1alpha1.Scenario{Name: "empty"}, v1alpha1.AnalysisOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Notes).To(ContainElement(ContainSubstring("forecast skipped")))
		Expect(result.Predictions).To(BeEmpty())
	})

	It("should stop when the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := sim.Simulate(cancelled, Baseline{Profile: twoPeople(240), Horizon: "1m"}, v1alpha1.Scenario{Name: "x"}, v1alpha1.AnalysisOptions{})
		Expect(err).To(MatchError(context.Canceled))
	})
})
