package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-grades-api/internal/models"
)

// EnrollmentRepository reads course enrollments and their server computed grades.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

type enrollmentRow struct {
	models.Enrollment
	CurrentScore *float64 `db:"current_score"`
	FinalScore   *float64 `db:"final_score"`
	CurrentGrade *string  `db:"current_grade"`
	FinalGrade   *string  `db:"final_grade"`
	Locked       bool     `db:"grades_locked"`
	HasGrades    bool     `db:"has_grades"`
}

func (r enrollmentRow) toModel() models.Enrollment {
	enrollment := r.Enrollment
	if r.HasGrades {
		enrollment.Grades = &models.EnrollmentGrade{
			CurrentScore: r.CurrentScore,
			FinalScore:   r.FinalScore,
			CurrentGrade: r.CurrentGrade,
			FinalGrade:   r.FinalGrade,
			Locked:       r.Locked,
		}
	}
	return enrollment
}

// enrollmentSelect renders the shared projection; grades selects the grade columns.
func enrollmentSelect(grades, joins, where string) string {
	return fmt.Sprintf(`SELECT e.id, e.course_id, e.user_id, e.role, e.observed_user_id,
        EXISTS (SELECT 1 FROM grading_periods gp WHERE gp.course_id = e.course_id) AS multiple_grading_periods_enabled,
        cp.id AS current_grading_period_id, cp.title AS current_grading_period_title,
        %s
        FROM enrollments e
        LEFT JOIN LATERAL (SELECT gp.id, gp.title FROM grading_periods gp
            WHERE gp.course_id = e.course_id AND gp.start_date <= NOW() AND gp.end_date > NOW()
            ORDER BY gp.start_date DESC LIMIT 1) cp ON TRUE
        %s
        WHERE e.workflow_state = 'active' AND %s
        ORDER BY e.role ASC, e.id ASC`, grades, joins, where)
}

func (r *EnrollmentRepository) list(ctx context.Context, label, query string, args ...interface{}) ([]models.Enrollment, error) {
	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	enrollments := make([]models.Enrollment, len(rows))
	for i, row := range rows {
		enrollments[i] = row.toModel()
	}
	return enrollments, nil
}

// ListForUserInCourse returns the user's active enrollments in a course with the
// course level grades.
func (r *EnrollmentRepository) ListForUserInCourse(ctx context.Context, courseID, userID string) ([]models.Enrollment, error) {
	query := enrollmentSelect(
		`e.current_score, e.final_score, e.current_grade, e.final_grade, e.grades_locked, TRUE AS has_grades`,
		"",
		"e.course_id = $1 AND e.user_id = $2",
	)
	return r.list(ctx, "list course enrollments", query, courseID, userID)
}

// ListForGradingPeriod returns the user's enrollments with the grades computed for one
// grading period. Enrollments without a period score carry no grades.
func (r *EnrollmentRepository) ListForGradingPeriod(ctx context.Context, courseID, userID, gradingPeriodID string) ([]models.Enrollment, error) {
	query := enrollmentSelect(
		`gps.current_score, gps.final_score, gps.current_grade, gps.final_grade,
        COALESCE(gps.locked, FALSE) AS grades_locked, gps.enrollment_id IS NOT NULL AS has_grades`,
		"LEFT JOIN grading_period_scores gps ON gps.enrollment_id = e.id AND gps.grading_period_id = $3",
		"e.course_id = $1 AND e.user_id = $2",
	)
	return r.list(ctx, "list grading period enrollments", query, courseID, userID, gradingPeriodID)
}

// ListObservees returns the observer enrollments of a user that point at a student,
// carrying the observed student's course grades.
func (r *EnrollmentRepository) ListObservees(ctx context.Context, observerID string) ([]models.Enrollment, error) {
	query := enrollmentSelect(
		`se.current_score, se.final_score, se.current_grade, se.final_grade,
        COALESCE(se.grades_locked, FALSE) AS grades_locked, se.id IS NOT NULL AS has_grades`,
		`LEFT JOIN enrollments se ON se.course_id = e.course_id AND se.user_id = e.observed_user_id
            AND se.role = 'student' AND se.workflow_state = 'active'`,
		"e.user_id = $1 AND e.role = 'observer' AND e.observed_user_id IS NOT NULL",
	)
	return r.list(ctx, "list observee enrollments", query, observerID)
}
