package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradingPeriodRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradingPeriodRepository(db)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "course_id", "title", "start_date", "end_date"}).
		AddRow("gp-1", "course-1", "Quarter 1", start, start.AddDate(0, 3, 0)).
		AddRow("gp-2", "course-1", "Quarter 2", start.AddDate(0, 3, 0), nil)
	mock.ExpectQuery(`FROM grading_periods\s+WHERE course_id = \$1 ORDER BY start_date`).
		WithArgs("course-1").
		WillReturnRows(rows)

	periods, err := repo.ListByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, "Quarter 1", periods[0].Title)
	assert.False(t, periods[0].IsAllPeriods)
	assert.Nil(t, periods[1].EndDate)
	require.NoError(t, mock.ExpectationsWereMet())
}
