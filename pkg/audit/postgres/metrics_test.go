package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/config-service/pkg/audit"
)

var breakdownColumns = []string{"dimension", "count", "success_rate", "avg_duration_ms"}

func TestBreakdown_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	now := time.Now()
	start := now.Add(-time.Hour)

	rows := sqlmock.NewRows(breakdownColumns).
		AddRow("billing", 12, 0.75, 3.5).
		AddRow("search", 4, 1.0, 1.2)
	mock.ExpectQuery("SELECT COALESCE\\(service, ''\\) AS dimension.+ LIMIT 10$").
		WithArgs(start, now).
		WillReturnRows(rows)

	entries, err := store.Breakdown(context.Background(), audit.BreakdownFilter{
		GroupBy:   audit.BreakdownByService,
		StartTime: &start,
		EndTime:   &now,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "billing", entries[0].Dimension)
	assert.Equal(t, 12, entries[0].Count)
	assert.InDelta(t, 0.75, entries[0].SuccessRate, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBreakdown_InvalidDimension(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	_, err = store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: "payload; DROP TABLE x"})
	assert.ErrorContains(t, err, "invalid breakdown dimension")
}

func TestBreakdown_EmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(breakdownColumns))

	entries, err := store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByOperation})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestBreakdown_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectQuery("SELECT").WillReturnError(fmt.Errorf("db error"))

	_, err = store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByErrorKind})
	assert.ErrorContains(t, err, "querying breakdown")
}

func TestClampBreakdownLimit(t *testing.T) {
	assert.Equal(t, defaultBreakdownLimit, clampBreakdownLimit(0))
	assert.Equal(t, defaultBreakdownLimit, clampBreakdownLimit(-3))
	assert.Equal(t, 25, clampBreakdownLimit(25))
	assert.Equal(t, maxBreakdownLimit, clampBreakdownLimit(maxBreakdownLimit+1))
}

func TestOverview_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	rows := sqlmock.NewRows([]string{
		"total_operations", "success_rate", "avg_duration_ms",
		"unique_services", "saves", "conflicts", "error_count",
	}).AddRow(100, 0.9, 4.2, 7, 30, 2, 10)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total_operations").WillReturnRows(rows)

	o, err := store.Overview(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, o.TotalOperations)
	assert.Equal(t, 7, o.UniqueServices)
	assert.Equal(t, 30, o.Saves)
	assert.Equal(t, 2, o.Conflicts)
	assert.Equal(t, 10, o.ErrorCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverview_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectQuery("SELECT").WillReturnError(fmt.Errorf("db error"))

	_, err = store.Overview(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "querying overview")
}

func TestDefaultTimeRange(t *testing.T) {
	start, end := defaultTimeRange(nil, nil)
	assert.InDelta(t, defaultMetricsWindow.Seconds(), end.Sub(start).Seconds(), 1)

	s := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := s.Add(time.Hour)
	start, end = defaultTimeRange(&s, &e)
	assert.Equal(t, s, start)
	assert.Equal(t, e, end)
}
