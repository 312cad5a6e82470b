package models

import "time"

// AllGradingPeriodsTitle labels the synthetic "no filter" grading period.
const AllGradingPeriodsTitle = "All Grading Periods"

// GradingPeriod is a course-defined term subdivision.
type GradingPeriod struct {
	ID           string     `db:"id" json:"id"`
	CourseID     string     `db:"course_id" json:"-"`
	Title        string     `db:"title" json:"title"`
	StartDate    *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate      *time.Time `db:"end_date" json:"end_date,omitempty"`
	IsAllPeriods bool       `db:"-" json:"is_all_periods"`
}

// AllGradingPeriods returns the sentinel period meaning "no filter".
func AllGradingPeriods() GradingPeriod {
	return GradingPeriod{Title: AllGradingPeriodsTitle, IsAllPeriods: true}
}
