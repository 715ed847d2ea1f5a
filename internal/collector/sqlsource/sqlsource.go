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

// Package sqlsource reads workforce records from a SQL database.
//
// Expected tables (see testdata/schema.sql):
//
//	allocations(id, employee_id, department_id, project_id, allocated_hours, start_date, end_date, status)
//	capacity_snapshots(employee_id, department_id, snapshot_date, available_hours, allocated_hours)
//	skills(id, name, category)
//	employee_skills(skill_id, employee_id, proficiency)
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"k8s.io/utils/ptr"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/collector"
	"github.com/workforce-planning/capacity-intelligence/internal/logging"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Source is a collector.DataSource over database/sql.
type Source struct {
	db     *sql.DB
	driver string
}

var _ collector.DataSource = (*Source)(nil)

// Open opens a database with one of the supported drivers and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Source, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, collector.Unavailable(driver, "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, collector.Unavailable(driver, "ping", err)
	}
	return &Source{db: db, driver: driver}, nil
}

// New wraps an already opened database.
func New(db *sql.DB, driver string) (*Source, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return &Source{db: db, driver: driver}, nil
}

// Close closes the underlying database.
func (s *Source) Close() error { return s.db.Close() }

func (s *Source) Name() string { return s.driver }

// args collects query arguments and renders driver-specific placeholders.
type args struct {
	driver string
	values []any
}

func (a *args) add(v any) string {
	a.values = append(a.values, v)
	if a.driver == DriverPostgres {
		return fmt.Sprintf("$%d", len(a.values))
	}
	return "?"
}

func (s *Source) FetchAllocations(ctx context.Context, scope collector.Scope) ([]v1alpha1.AllocationRecord, error) {
	q := &args{driver: s.driver}
	where := []string{
		"start_date < " + q.add(scope.To),
		"end_date >= " + q.add(scope.From),
	}
	if scope.DepartmentID != "" {
		where = append(where, "department_id = "+q.add(scope.DepartmentID))
	}
	query := `SELECT id, employee_id, department_id, project_id, allocated_hours, start_date, end_date, status
		FROM allocations WHERE ` + strings.Join(where, " AND ") + ` ORDER BY start_date, id`

	rows, err := s.db.QueryContext(ctx, query, q.values...)
	if err != nil {
		return nil, collector.Unavailable(s.driver, "fetch allocations", err)
	}
	defer rows.Close()

	var out []v1alpha1.AllocationRecord
	for rows.Next() {
		var (
			a      v1alpha1.AllocationRecord
			hours  sql.NullFloat64
			status sql.NullString
			dept   sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.EmployeeID, &dept, &a.ProjectID, &hours, &a.StartDate, &a.EndDate, &status); err != nil {
			return nil, collector.Unavailable(s.driver, "scan allocation", err)
		}
		a.DepartmentID = dept.String
		a.AllocatedHours = nullable(hours)
		a.Status = v1alpha1.AllocationStatus(status.String)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, collector.Unavailable(s.driver, "fetch allocations", err)
	}
	s.log(ctx, "allocations", len(out))
	return out, nil
}

func (s *Source) FetchCapacitySnapshots(ctx context.Context, scope collector.Scope) ([]v1alpha1.CapacitySnapshot, error) {
	q := &args{driver: s.driver}
	where := []string{
		"snapshot_date >= " + q.add(scope.From),
		"snapshot_date < " + q.add(scope.To),
	}
	if scope.DepartmentID != "" {
		where = append(where, "department_id = "+q.add(scope.DepartmentID))
	}
	query := `SELECT employee_id, department_id, snapshot_date, available_hours, allocated_hours
		FROM capacity_snapshots WHERE ` + strings.Join(where, " AND ") + ` ORDER BY snapshot_date, employee_id`

	rows, err := s.db.QueryContext(ctx, query, q.values...)
	if err != nil {
		return nil, collector.Unavailable(s.driver, "fetch snapshots", err)
	}
	defer rows.Close()

	var out []v1alpha1.CapacitySnapshot
	for rows.Next() {
		var (
			c                    v1alpha1.CapacitySnapshot
			dept                 sql.NullString
			available, allocated sql.NullFloat64
		)
		if err := rows.Scan(&c.EmployeeID, &dept, &c.Date, &available, &allocated); err != nil {
			return nil, collector.Unavailable(s.driver, "scan snapshot", err)
		}
		c.DepartmentID = dept.String
		c.AvailableHours = nullable(available)
		c.AllocatedHours = nullable(allocated)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, collector.Unavailable(s.driver, "fetch snapshots", err)
	}
	s.log(ctx, "snapshots", len(out))
	return out, nil
}

func (s *Source) FetchSkills(ctx context.Context, scope collector.Scope) ([]v1alpha1.SkillRecord, error) {
	q := &args{driver: s.driver}
	query := `SELECT s.id, s.name, s.category, es.employee_id, es.proficiency
		FROM skills s LEFT JOIN employee_skills es ON es.skill_id = s.id`
	if scope.SkillID != "" {
		query += " WHERE s.id = " + q.add(scope.SkillID)
	}
	query += " ORDER BY s.id, es.employee_id"

	rows, err := s.db.QueryContext(ctx, query, q.values...)
	if err != nil {
		return nil, collector.Unavailable(s.driver, "fetch skills", err)
	}
	defer rows.Close()

	var out []v1alpha1.SkillRecord
	for rows.Next() {
		var (
			id, name    string
			category    sql.NullString
			employee    sql.NullString
			proficiency sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &category, &employee, &proficiency); err != nil {
			return nil, collector.Unavailable(s.driver, "scan skill", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, v1alpha1.SkillRecord{ID: id, Name: name, Category: category.String})
		}
		if employee.Valid {
			sk := &out[len(out)-1]
			if sk.Proficiency == nil {
				sk.Proficiency = make(map[string]int)
			}
			sk.Proficiency[employee.String] = int(proficiency.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, collector.Unavailable(s.driver, "fetch skills", err)
	}
	s.log(ctx, "skills", len(out))
	return out, nil
}

func (s *Source) log(ctx context.Context, kind string, n int) {
	logr.FromContextOrDiscard(ctx).V(logging.TRACE).Info("Fetched records",
		"source", s.driver, "kind", kind, "count", n)
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return ptr.To(v.Float64)
}
