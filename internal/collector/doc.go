// Package collector defines the read-only data-access contract consumed by the
// capacity intelligence engine.
//
// The engine never talks to a database directly. Every request fetches the raw
// records for one scope up front through a DataSource:
//
//	data, err := collector.FetchAll(ctx, source, scope)
//	if err != nil {
//		// errors.Is(err, collector.ErrDataUnavailable)
//	}
//
// # Implementations
//
//   - memory: in-process records, used by tests and embedding callers (memory/)
//   - fixture: YAML files decoded into a memory source (fixture/)
//   - sqlsource: database/sql over sqlite3 or postgres (sqlsource/)
//
// # Scope semantics
//
// Sources filter allocations and snapshots by department and date range.
// Skill restriction is applied by the aggregator from the skill records, so
// FetchSkills returns only the requested skill when Scope.SkillID is set and
// every skill otherwise.
//
// # Error Handling
//
// Source failures are returned as *UnavailableError, which matches
// ErrDataUnavailable. The engine does not retry; retry policy belongs to the
// source.
package collector
