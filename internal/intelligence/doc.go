// Package intelligence composes the engine stages behind one request-scoped API.
//
// An Engine is built once with its data source and configuration and is safe
// for concurrent use. Every call resolves a collector.Scope from its Filters,
// fetches the scope's records once and runs the stages on the derived
// utilization profile:
//
//	engine, err := intelligence.NewEngine(source, config.Default(),
//		intelligence.WithRecorder(metrics.NewRecorder(prometheus.DefaultRegisterer)))
//	report, err := engine.GetCapacityIntelligence(ctx, intelligence.Filters{DepartmentID: "eng"})
//
// # Stage order
//
// Trend analysis runs concurrently with bottleneck detection, which itself
// runs alongside the forecast so that predicted bottlenecks can be derived
// from the realistic predictions. Recommendations are generated last.
// Scenario comparisons share one baseline and run in parallel.
//
// # Caching
//
// When config.CacheConfig.Enabled is set, composite reports and scenario
// results are memoized per scope, horizon and scenario hash. Cached values
// are deep copies; callers may modify what they receive. The engine never
// invalidates on its own beyond the TTL: call Invalidate or InvalidateScope
// after the underlying data changes.
//
// # Errors
//
// Requests with malformed filters fail with an error matching
// ErrInvalidRequest. Data source failures are returned unmodified and match
// collector.ErrDataUnavailable. Invalid records fail with
// *aggregator.ValidationError.
package intelligence
