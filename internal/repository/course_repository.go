package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/course-grades-api/internal/models"
)

// CourseRepository reads course grading settings.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

type courseRow struct {
	models.Course
	RestrictQuantitativeData bool           `db:"restrict_quantitative_data"`
	GradingScheme            types.NullJSONText `db:"grading_scheme"`
}

func (r courseRow) toModel() (*models.Course, error) {
	course := r.Course
	course.Settings.RestrictQuantitativeData = r.RestrictQuantitativeData
	if r.GradingScheme.Valid {
		var scheme models.GradingScheme
		if err := json.Unmarshal(r.GradingScheme.JSONText, &scheme); err != nil {
			return nil, fmt.Errorf("decode grading scheme for course %s: %w", r.ID, err)
		}
		course.GradingScheme = scheme
	}
	return &course, nil
}

// FindByID returns a course with its settings. Enrollments are not loaded.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT c.id, c.name, c.restrict_quantitative_data, c.grading_scheme,
        c.apply_assignment_group_weights, c.weighted_grading_periods, c.hide_final_grades,
        c.totals_for_all_grading_periods_enabled,
        EXISTS (SELECT 1 FROM grading_periods gp WHERE gp.course_id = c.id) AS has_grading_periods
        FROM courses c WHERE c.id = $1`
	var row courseRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return row.toModel()
}
