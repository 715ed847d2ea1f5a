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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/collector"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/aggregator"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/bottleneck"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/common"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/forecast"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/recommendation"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/scenario"
	"github.com/workforce-planning/capacity-intelligence/internal/engines/trend"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
	"github.com/workforce-planning/capacity-intelligence/internal/metrics"
	"github.com/workforce-planning/capacity-intelligence/internal/resultcache"
)

// Engine answers capacity intelligence requests against one data source.
// It keeps no per-request state and is safe for concurrent use.
type Engine struct {
	source collector.DataSource
	cfg    *config.EngineConfig

	aggregator  *aggregator.Aggregator
	trends      *trend.Analyzer
	detector    *bottleneck.Detector
	forecaster  *forecast.Engine
	recommender *recommendation.Generator
	simulator   *scenario.Simulator

	recorder *metrics.Recorder
	logger   *logr.Logger
	now      func() time.Time

	// Nil when caching is disabled.
	reports   *resultcache.Cache[*v1alpha1.CapacityIntelligence]
	scenarios *resultcache.Cache[*v1alpha1.ScenarioResult]
}

// NewEngine validates cfg and wires the stages. cfg must not be modified
// afterwards.
func NewEngine(source collector.DataSource, cfg *config.EngineConfig, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errNilSource
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{source: source, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	logger := logr.Discard()
	if e.logger != nil {
		logger = *e.logger
	}
	overrides := config.ParseDepartmentOverrides(logger, cfg.Departments)

	e.aggregator = aggregator.New(cfg.Aggregator)
	e.trends = trend.New(cfg.Trend)
	e.detector = bottleneck.New(cfg.Bottleneck, overrides)
	e.forecaster = forecast.New(cfg.Forecast, cfg.Trend)
	e.recommender = recommendation.New(cfg.Recommendation, cfg.Bottleneck.Breakpoints)
	e.simulator = scenario.New(cfg.Scenario, e.detector, e.forecaster, e.recommender)

	if cfg.Cache.Enabled {
		e.reports = resultcache.New(cfg.Cache, (*v1alpha1.CapacityIntelligence).DeepCopy, e.now)
		e.scenarios = resultcache.New(cfg.Cache, (*v1alpha1.ScenarioResult).DeepCopy, e.now)
	}
	return e, nil
}

// request is the fetched and aggregated state of one scope.
type request struct {
	scope   collector.Scope
	data    *collector.DataSet
	profile *v1alpha1.UtilizationProfile
}

// GetCapacityIntelligence returns the composite view of a scope: current
// utilization, trends, bottlenecks, realistic and alternative predictions over
// the default horizon, ranked recommendations and risk factors.
func (e *Engine) GetCapacityIntelligence(ctx context.Context, f Filters) (*v1alpha1.CapacityIntelligence, error) {
	ctx = e.context(ctx)
	logger := logr.FromContextOrDiscard(ctx)

	scope, err := e.scope(f)
	if err != nil {
		return nil, err
	}
	horizon, err := e.horizon("", scope.Granularity)
	if err != nil {
		return nil, err
	}
	key := resultcache.Key{Scope: scope.Key(), Horizon: horizon}
	if cached, ok := lookup(e, e.reports, key); ok {
		logger.V(logging.DEBUG).Info("Serving cached capacity intelligence", "key", key.String())
		return cached, nil
	}

	req, err := e.fetch(ctx, scope)
	if err != nil {
		return nil, err
	}

	var (
		trends      v1alpha1.TrendSummary
		report      v1alpha1.BottleneckReport
		predictions []v1alpha1.Prediction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer e.timed(metrics.StageTrend)()
		var err error
		trends, err = e.trends.AnalyzeProfile(gctx, req.profile)
		return err
	})
	g.Go(func() error {
		var err error
		report, predictions, err = e.bottlenecks(gctx, req.profile, horizon, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	explainTrends(&trends, report)

	skills, err := e.skillDemand(ctx, req, horizon)
	if err != nil {
		return nil, err
	}
	recs, err := e.recommend(ctx, recommendation.Input{
		Bottlenecks:  append(slices.Clone(report.Current), report.Predicted...),
		SkillGaps:    skills,
		Predictions:  predictions,
		ScopeID:      req.profile.ScopeID,
		DepartmentID: scope.DepartmentID,
	})
	if err != nil {
		return nil, err
	}

	out := &v1alpha1.CapacityIntelligence{
		ScopeID:             req.profile.ScopeID,
		GeneratedAt:         e.now(),
		CurrentUtilization:  summarize(req.profile),
		Trends:              trends,
		Bottlenecks:         report,
		Predictions:         predictions,
		Recommendations:     recs,
		RiskFactors:         riskFactors(report, predictions),
		InsufficientHistory: forecast.AnyInsufficient(predictions),
	}
	if out.InsufficientHistory {
		e.recorder.IncInsufficientHistory("intelligence")
	}
	e.recorder.SetBottlenecks(report)
	if e.reports != nil {
		e.reports.Put(key, out)
	}

	logger.Info("Generated capacity intelligence",
		"scope", out.ScopeID,
		"periods", len(req.profile.Overall),
		"currentBottlenecks", len(report.Current),
		"predictedBottlenecks", len(report.Predicted),
		"recommendations", len(recs),
		"insufficientHistory", out.InsufficientHistory)
	return out, nil
}

// GetCapacityPredictions forecasts the scope's overall capacity and demand.
func (e *Engine) GetCapacityPredictions(ctx context.Context, opts PredictionOptions) ([]v1alpha1.Prediction, error) {
	ctx = e.context(ctx)
	if c := opts.Confidence; c != nil && (*c < 0 || *c > 1) {
		return nil, fmt.Errorf("%w: confidence must be between 0 and 1, got %.2f", ErrInvalidRequest, *c)
	}
	for _, s := range opts.Scenarios {
		if !s.IsValid() {
			return nil, fmt.Errorf("%w: unknown forecast scenario %q", ErrInvalidRequest, s)
		}
	}
	scope, err := e.scope(opts.Filters)
	if err != nil {
		return nil, err
	}
	horizon, err := e.horizon(opts.Horizon, scope.Granularity)
	if err != nil {
		return nil, err
	}
	req, err := e.fetch(ctx, scope)
	if err != nil {
		return nil, err
	}

	done := e.timed(metrics.StageForecast)
	predictions, err := e.forecaster.Forecast(ctx, req.profile, horizon)
	done()
	if err != nil {
		return nil, err
	}

	out := make([]v1alpha1.Prediction, 0, len(predictions))
	for _, p := range predictions {
		if len(opts.Scenarios) > 0 && !slices.Contains(opts.Scenarios, p.Scenario) {
			continue
		}
		if opts.Confidence != nil {
			p.MeetsConfidenceThreshold = p.Confidence >= *opts.Confidence
		}
		out = append(out, p)
	}
	if forecast.AnyInsufficient(out) {
		e.recorder.IncInsufficientHistory("predictions")
	}

	logr.FromContextOrDiscard(ctx).V(logging.DEBUG).Info("Forecast capacity",
		"scope", req.profile.ScopeID,
		"horizon", horizon,
		"history", len(req.profile.Overall),
		"predictions", len(out))
	return out, nil
}

// IdentifyBottlenecks reports current, predicted and historical bottlenecks
// at or above opts.MinSeverity.
func (e *Engine) IdentifyBottlenecks(ctx context.Context, opts BottleneckOptions) (v1alpha1.BottleneckReport, error) {
	ctx = e.context(ctx)
	if opts.MinSeverity != "" && opts.MinSeverity.Rank() == 0 {
		return v1alpha1.BottleneckReport{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidRequest, opts.MinSeverity)
	}
	scope, err := e.scope(opts.Filters)
	if err != nil {
		return v1alpha1.BottleneckReport{}, err
	}
	horizon, err := e.horizon(opts.Horizon, scope.Granularity)
	if err != nil {
		return v1alpha1.BottleneckReport{}, err
	}
	req, err := e.fetch(ctx, scope)
	if err != nil {
		return v1alpha1.BottleneckReport{}, err
	}

	report, _, err := e.bottlenecks(ctx, req.profile, horizon, opts.MinSeverity)
	if err != nil {
		return v1alpha1.BottleneckReport{}, err
	}
	e.recorder.SetBottlenecks(report)
	return report, nil
}

// RunScenarioAnalysis simulates sc against the scope's baseline.
func (e *Engine) RunScenarioAnalysis(ctx context.Context, f Filters, sc v1alpha1.Scenario, opts v1alpha1.AnalysisOptions) (*v1alpha1.ScenarioResult, error) {
	results, err := e.CompareScenarios(ctx, f, []v1alpha1.Scenario{sc}, opts)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// CompareScenarios simulates every scenario against one shared baseline in
// parallel. Results are in input order.
func (e *Engine) CompareScenarios(ctx context.Context, f Filters, scenarios []v1alpha1.Scenario, opts v1alpha1.AnalysisOptions) ([]*v1alpha1.ScenarioResult, error) {
	ctx = e.context(ctx)
	logger := logr.FromContextOrDiscard(ctx)

	scope, err := e.scope(f)
	if err != nil {
		return nil, err
	}
	horizon, err := e.horizon(opts.Horizon, scope.Granularity)
	if err != nil {
		return nil, err
	}

	results := make([]*v1alpha1.ScenarioResult, len(scenarios))
	keys := make([]resultcache.Key, len(scenarios))
	pending := 0
	for i, sc := range scenarios {
		hash, err := resultcache.HashScenario(sc, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		keys[i] = resultcache.Key{Scope: scope.Key(), Horizon: horizon, ChangeSet: hash}
		if cached, ok := lookup(e, e.scenarios, keys[i]); ok {
			results[i] = cached
			continue
		}
		pending++
	}
	if pending == 0 {
		return results, nil
	}

	req, err := e.fetch(ctx, scope)
	if err != nil {
		return nil, err
	}
	baseline := scenario.Baseline{Profile: req.profile, Horizon: horizon, DepartmentID: scope.DepartmentID}

	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range scenarios {
		if results[i] != nil {
			continue
		}
		g.Go(func() error {
			done := e.timed(metrics.StageScenario)
			result, err := e.simulator.Simulate(gctx, baseline, sc, opts)
			done()
			if err != nil {
				e.recorder.IncScenarioRun("error")
				return fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
			e.recorder.IncScenarioRun("ok")
			if e.scenarios != nil {
				e.scenarios.Put(keys[i], result)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.V(logging.DEBUG).Info("Compared scenarios",
		"scope", req.profile.ScopeID,
		"scenarios", len(scenarios),
		"simulated", pending,
		"horizon", horizon)
	return results, nil
}

// AnalyzeUtilizationPatterns reports peak and low periods, seasonality, the
// overall trend and explained anomalies of the scope.
func (e *Engine) AnalyzeUtilizationPatterns(ctx context.Context, f Filters) (*v1alpha1.UtilizationPatterns, error) {
	ctx = e.context(ctx)
	scope, err := e.scope(f)
	if err != nil {
		return nil, err
	}
	req, err := e.fetch(ctx, scope)
	if err != nil {
		return nil, err
	}
	series := req.profile.Overall

	var (
		result v1alpha1.TrendResult
		report v1alpha1.BottleneckReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer e.timed(metrics.StageTrend)()
		result = e.trends.Analyze(series, scope.Granularity)
		return gctx.Err()
	})
	g.Go(func() error {
		defer e.timed(metrics.StageBottleneck)()
		var err error
		report, err = e.detector.Detect(gctx, req.profile, bottleneck.Options{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Anomalies = trend.ExplainAnomalies(result.Anomalies, append(slices.Clone(report.Current), report.Historical...))
	peaks, lows := trend.PeakAndLow(series)

	var allocated, available float64
	for _, p := range series {
		allocated += p.TotalAllocated
		available += p.TotalAvailable
	}
	return &v1alpha1.UtilizationPatterns{
		Granularity:        scope.Granularity,
		AverageUtilization: v1alpha1.UtilizationRate(allocated, available),
		PeakPeriods:        nonNil(peaks),
		LowPeriods:         nonNil(lows),
		Seasonality:        result.Seasonality,
		Trend:              result,
		Anomalies:          nonNil(result.Anomalies),
	}, nil
}

// ForecastSkillDemand forecasts supply and demand per skill and recommends
// training or hiring for every forecast gap.
func (e *Engine) ForecastSkillDemand(ctx context.Context, f Filters, horizon string) (*v1alpha1.SkillDemandForecast, error) {
	ctx = e.context(ctx)
	scope, err := e.scope(f)
	if err != nil {
		return nil, err
	}
	horizon, err = e.horizon(horizon, scope.Granularity)
	if err != nil {
		return nil, err
	}
	req, err := e.fetch(ctx, scope)
	if err != nil {
		return nil, err
	}

	skills, err := e.skillDemand(ctx, req, horizon)
	if err != nil {
		return nil, err
	}
	if slices.ContainsFunc(skills, func(d v1alpha1.SkillDemand) bool { return d.InsufficientHistory }) {
		e.recorder.IncInsufficientHistory("skills")
	}
	recs, err := e.recommend(ctx, recommendation.Input{
		SkillGaps:    skills,
		ScopeID:      req.profile.ScopeID,
		DepartmentID: scope.DepartmentID,
	})
	if err != nil {
		return nil, err
	}
	return &v1alpha1.SkillDemandForecast{Horizon: horizon, Skills: skills, Recommendations: recs}, nil
}

// Invalidate drops every cached result and returns how many were removed.
func (e *Engine) Invalidate() int {
	removed := 0
	if e.reports != nil {
		removed += e.reports.Invalidate("")
	}
	if e.scenarios != nil {
		removed += e.scenarios.Invalidate("")
	}
	return removed
}

// InvalidateScope drops the cached results of the scope f resolves to now.
func (e *Engine) InvalidateScope(f Filters) (int, error) {
	scope, err := e.scope(f)
	if err != nil {
		return 0, err
	}
	removed := 0
	if e.reports != nil {
		removed += e.reports.Invalidate(scope.Key())
	}
	if e.scenarios != nil {
		removed += e.scenarios.Invalidate(scope.Key())
	}
	return removed, nil
}

// bottlenecks detects current and historical bottlenecks while forecasting
// the overall series, then derives predicted bottlenecks from the forecast.
func (e *Engine) bottlenecks(ctx context.Context, profile *v1alpha1.UtilizationProfile, horizon string, minSeverity v1alpha1.Severity) (v1alpha1.BottleneckReport, []v1alpha1.Prediction, error) {
	var (
		report      v1alpha1.BottleneckReport
		predictions []v1alpha1.Prediction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer e.timed(metrics.StageBottleneck)()
		var err error
		report, err = e.detector.Detect(gctx, profile, bottleneck.Options{MinSeverity: minSeverity})
		return err
	})
	g.Go(func() error {
		defer e.timed(metrics.StageForecast)()
		var err error
		predictions, err = e.forecaster.Forecast(gctx, profile, horizon)
		return err
	})
	if err := g.Wait(); err != nil {
		return v1alpha1.BottleneckReport{}, nil, err
	}
	report.Predicted = e.detector.Predicted(profile, predictions, minSeverity)
	return report, predictions, nil
}

func (e *Engine) recommend(ctx context.Context, in recommendation.Input) ([]v1alpha1.Recommendation, error) {
	defer e.timed(metrics.StageRecommendation)()
	return e.recommender.Generate(ctx, in)
}

// scope resolves filters into a validated scope. An explicit range wins over
// the timeframe.
func (e *Engine) scope(f Filters) (collector.Scope, error) {
	g := cmp.Or(f.Granularity, e.cfg.Timeframe.Granularity)
	if !g.IsValid() {
		return collector.Scope{}, fmt.Errorf("%w: unknown granularity %q", ErrInvalidRequest, g)
	}
	s := collector.Scope{DepartmentID: f.DepartmentID, SkillID: f.SkillID, From: f.From, To: f.To, Granularity: g}
	if f.From.IsZero() && f.To.IsZero() {
		from, to, err := aggregator.Lookback(e.now(), cmp.Or(f.Timeframe, e.cfg.Timeframe.Lookback), g)
		if err != nil {
			return collector.Scope{}, fmt.Errorf("%w: timeframe: %w", ErrInvalidRequest, err)
		}
		s.From, s.To = from, to
	}
	if err := s.Validate(); err != nil {
		return collector.Scope{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return s, nil
}

// horizon applies the default horizon and checks it parses at g.
func (e *Engine) horizon(h string, g v1alpha1.Granularity) (string, error) {
	h = cmp.Or(h, e.cfg.Forecast.DefaultHorizon)
	if _, err := aggregator.ParseHorizon(h, g); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return h, nil
}

// fetch reads the scope's records once and aggregates them. Source errors
// are returned unmodified.
func (e *Engine) fetch(ctx context.Context, scope collector.Scope) (*request, error) {
	done := e.timed(metrics.StageFetch)
	data, err := collector.FetchAll(ctx, e.source, scope)
	done()
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			e.recorder.IncFetchFailure(e.source.Name())
		}
		return nil, err
	}

	done = e.timed(metrics.StageAggregate)
	profile, err := e.aggregator.Aggregate(ctx, scope, data)
	done()
	if err != nil {
		return nil, err
	}
	return &request{scope: scope, data: data, profile: profile}, nil
}

func (e *Engine) context(ctx context.Context) context.Context {
	if e.logger != nil {
		return logr.NewContext(ctx, *e.logger)
	}
	return ctx
}

// timed returns a func that records the wall time of stage since the call.
func (e *Engine) timed(stage string) func() {
	start := time.Now()
	return func() { e.recorder.ObserveStage(stage, time.Since(start)) }
}

func lookup[V any](e *Engine, c *resultcache.Cache[V], key resultcache.Key) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	v, ok := c.Get(key)
	e.recorder.IncCacheLookup(ok)
	return v, ok
}

// explainTrends attaches concurrent bottlenecks to every anomaly.
func explainTrends(trends *v1alpha1.TrendSummary, report v1alpha1.BottleneckReport) {
	known := append(slices.Clone(report.Current), report.Historical...)
	trends.Overall.Anomalies = trend.ExplainAnomalies(trends.Overall.Anomalies, known)
	for dept, t := range trends.Departments {
		t.Anomalies = trend.ExplainAnomalies(t.Anomalies, known)
		trends.Departments[dept] = t
	}
}

// summarize returns the latest period overall and per department.
func summarize(profile *v1alpha1.UtilizationProfile) v1alpha1.UtilizationSummary {
	var s v1alpha1.UtilizationSummary
	if latest, ok := profile.Latest(); ok {
		s.Overall = latest
	}
	for dept, series := range profile.Departments {
		if len(series) == 0 {
			continue
		}
		if s.Departments == nil {
			s.Departments = make(map[string]v1alpha1.PeriodUtilization, len(profile.Departments))
		}
		s.Departments[dept] = series[len(series)-1]
	}
	return s
}

// riskFactors lists current and predicted bottlenecks and low-confidence
// forecasts, most probable first.
func riskFactors(report v1alpha1.BottleneckReport, predictions []v1alpha1.Prediction) []v1alpha1.Risk {
	risks := []v1alpha1.Risk{}
	for _, b := range report.Current {
		risks = append(risks, common.BottleneckRisk(b))
	}
	for _, b := range report.Predicted {
		r := common.BottleneckRisk(b)
		r.Description = "predicted " + r.Description
		risks = append(risks, r)
	}
	if forecast.AnyInsufficient(predictions) {
		highest := 0.0
		for _, p := range forecast.Scenario(predictions, v1alpha1.ScenarioRealistic) {
			highest = max(highest, p.Confidence)
		}
		risks = append(risks, v1alpha1.Risk{
			Description: "forecast based on insufficient history",
			Source:      "forecast",
			Probability: common.Clamp01(1 - highest),
			Impact:      fmt.Sprintf("realistic forecast confidence at most %.2f", highest),
			Mitigation:  "extend the analysed timeframe or record more capacity snapshots",
		})
	}
	slices.SortStableFunc(risks, func(a, b v1alpha1.Risk) int {
		return cmp.Compare(b.Probability, a.Probability)
	})
	return risks
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
