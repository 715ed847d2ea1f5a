package sqlsource

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/workforce-planning/capacity-intelligence/internal/collector"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "capacity-test.db")
	db, err := sql.Open(DriverSQLite, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("testdata", "schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	exec := func(query string, args ...any) {
		_, err := db.Exec(query, args...)
		require.NoError(t, err)
	}
	exec(`INSERT INTO allocations VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"a1", "e1", "eng", "p1", 200.0, date(2025, 1, 1), date(2025, 1, 31), "active")
	exec(`INSERT INTO allocations VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"a2", "e2", "ops", "p2", nil, date(2025, 2, 1), date(2025, 2, 28), nil)
	exec(`INSERT INTO allocations VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"a3", "e1", "eng", "p3", 10.0, date(2024, 6, 1), date(2024, 6, 30), "completed")

	exec(`INSERT INTO capacity_snapshots VALUES (?, ?, ?, ?, ?)`, "e1", "eng", date(2025, 1, 1), 160.0, 200.0)
	exec(`INSERT INTO capacity_snapshots VALUES (?, ?, ?, ?, ?)`, "e2", "ops", date(2025, 2, 1), nil, 20.0)

	exec(`INSERT INTO skills VALUES (?, ?, ?)`, "go", "Go", "engineering")
	exec(`INSERT INTO skills VALUES (?, ?, ?)`, "sql", "SQL", nil)
	exec(`INSERT INTO employee_skills VALUES (?, ?, ?)`, "go", "e1", 4)
	exec(`INSERT INTO employee_skills VALUES (?, ?, ?)`, "go", "e2", 2)
}

func TestSourceFetch(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	src, err := New(db, DriverSQLite)
	require.NoError(t, err)
	ctx := context.Background()

	scope := collector.Scope{From: date(2025, 1, 1), To: date(2025, 3, 1)}

	allocations, err := src.FetchAllocations(ctx, scope)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, "a1", allocations[0].ID)
	assert.Equal(t, 200.0, ptr.Deref(allocations[0].AllocatedHours, -1))
	assert.True(t, allocations[0].EndDate.Equal(date(2025, 1, 31)))
	assert.Nil(t, allocations[1].AllocatedHours)

	snapshots, err := src.FetchCapacitySnapshots(ctx, scope)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Nil(t, snapshots[1].AvailableHours)
	assert.Equal(t, 20.0, ptr.Deref(snapshots[1].AllocatedHours, 0))

	skills, err := src.FetchSkills(ctx, scope)
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, map[string]int{"e1": 4, "e2": 2}, skills[0].Proficiency)
	assert.Empty(t, skills[1].Proficiency)
}

func TestSourceScopeFilters(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	src, err := New(db, DriverSQLite)
	require.NoError(t, err)
	ctx := context.Background()

	scope := collector.Scope{DepartmentID: "eng", SkillID: "go", From: date(2025, 1, 1), To: date(2025, 3, 1)}
	data, err := collector.FetchAll(ctx, src, scope)
	require.NoError(t, err)
	assert.Len(t, data.Allocations, 1)
	assert.Len(t, data.Snapshots, 1)
	require.Len(t, data.Skills, 1)
	assert.Equal(t, "go", data.Skills[0].ID)
}

func TestSourceUnavailable(t *testing.T) {
	db := newTestDB(t)
	src, err := New(db, DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = src.FetchAllocations(context.Background(), collector.Scope{From: date(2025, 1, 1), To: date(2025, 2, 1)})
	assert.ErrorIs(t, err, collector.ErrDataUnavailable)
}

func TestPlaceholders(t *testing.T) {
	pg := &args{driver: DriverPostgres}
	assert.Equal(t, "$1", pg.add("x"))
	assert.Equal(t, "$2", pg.add("y"))

	lite := &args{driver: DriverSQLite}
	assert.Equal(t, "?", lite.add("x"))
	assert.Len(t, lite.values, 1)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(&sql.DB{}, "mysql")
	assert.Error(t, err)
	_, err = New(nil, DriverSQLite)
	assert.Error(t, err)
}
