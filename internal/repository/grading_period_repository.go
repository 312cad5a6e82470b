package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-grades-api/internal/models"
)

// GradingPeriodRepository reads the grading periods of a course.
type GradingPeriodRepository struct {
	db *sqlx.DB
}

// NewGradingPeriodRepository constructs the repository.
func NewGradingPeriodRepository(db *sqlx.DB) *GradingPeriodRepository {
	return &GradingPeriodRepository{db: db}
}

// ListByCourse returns the periods of a course in chronological order.
func (r *GradingPeriodRepository) ListByCourse(ctx context.Context, courseID string) ([]models.GradingPeriod, error) {
	const query = `SELECT id, course_id, title, start_date, end_date FROM grading_periods
        WHERE course_id = $1 ORDER BY start_date ASC NULLS LAST, position ASC`
	var periods []models.GradingPeriod
	if err := r.db.SelectContext(ctx, &periods, query, courseID); err != nil {
		return nil, fmt.Errorf("list grading periods: %w", err)
	}
	return periods, nil
}
