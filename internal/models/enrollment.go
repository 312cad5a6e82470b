package models

// EnrollmentRole is the role a user holds in a course.
type EnrollmentRole string

// Enrollment roles known to the grade engine.
const (
	EnrollmentRoleStudent  EnrollmentRole = "student"
	EnrollmentRoleObserver EnrollmentRole = "observer"
	EnrollmentRoleTeacher  EnrollmentRole = "teacher"
	EnrollmentRoleTA       EnrollmentRole = "ta"
	EnrollmentRoleDesigner EnrollmentRole = "designer"
)

// EnrollmentGrade is a grade computed server side for an enrollment.
type EnrollmentGrade struct {
	CurrentScore *float64 `db:"current_score" json:"current_score,omitempty"`
	FinalScore   *float64 `db:"final_score" json:"final_score,omitempty"`
	CurrentGrade *string  `db:"current_grade" json:"current_grade,omitempty"`
	FinalGrade   *string  `db:"final_grade" json:"final_grade,omitempty"`
	Locked       bool     `db:"locked" json:"locked"`
}

// Enrollment captures a user's membership in a course.
type Enrollment struct {
	ID                            string           `db:"id" json:"id"`
	CourseID                      string           `db:"course_id" json:"course_id"`
	UserID                        string           `db:"user_id" json:"user_id"`
	Role                          EnrollmentRole   `db:"role" json:"role"`
	ObservedUserID                *string          `db:"observed_user_id" json:"observed_user_id,omitempty"`
	MultipleGradingPeriodsEnabled bool             `db:"multiple_grading_periods_enabled" json:"multiple_grading_periods_enabled"`
	CurrentGradingPeriodID        *string          `db:"current_grading_period_id" json:"current_grading_period_id,omitempty"`
	CurrentGradingPeriodTitle     *string          `db:"current_grading_period_title" json:"current_grading_period_title,omitempty"`
	Grades                        *EnrollmentGrade `db:"-" json:"grades,omitempty"`
}

// IsStudent reports whether the enrollment is a student enrollment.
func (e Enrollment) IsStudent() bool {
	return e.Role == EnrollmentRoleStudent
}

// IsObserver reports whether the enrollment is an observer enrollment.
func (e Enrollment) IsObserver() bool {
	return e.Role == EnrollmentRoleObserver
}
