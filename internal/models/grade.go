package models

// GradeSourceState identifies which upstream source produced the displayed grade.
type GradeSourceState string

const (
	GradeSourceUninitialized                 GradeSourceState = "UNINITIALIZED"
	GradeSourceAllPeriodsAggregate           GradeSourceState = "ALL_PERIODS_AGGREGATE"
	GradeSourceSpecificPeriodEnrollmentGrade GradeSourceState = "SPECIFIC_PERIOD_ENROLLMENT_GRADE"
	GradeSourceObserverAggregate             GradeSourceState = "OBSERVER_AGGREGATE"
)

// CourseGradeResult is the computed course grade handed to the presentation layer.
type CourseGradeResult struct {
	CurrentScore             *float64 `json:"current_score,omitempty"`
	HasFinalGradeString      bool     `json:"has_final_grade_string"`
	Locked                   bool     `json:"locked"`
	RestrictQuantitativeData bool     `json:"restrict_quantitative_data"`
}

// GradeView is the full state of a grade session as seen by a client.
type GradeView struct {
	SessionID               string            `json:"session_id"`
	CourseID                string            `json:"course_id"`
	CourseName              string            `json:"course_name"`
	State                   GradeSourceState  `json:"state"`
	DisplayedGrade          *string           `json:"displayed_grade"`
	Grade                   CourseGradeResult `json:"grade"`
	Locked                  bool              `json:"locked"`
	GradingPeriods          []GradingPeriod   `json:"grading_periods"`
	SelectedGradingPeriodID string            `json:"selected_grading_period_id"`
	AssignmentGroups        []AssignmentGroup `json:"assignment_groups"`
	WhatIfActive            bool              `json:"what_if_active"`
	WhatIfAllowed           bool              `json:"what_if_allowed"`
	WhatIfOverrides         []WhatIfOverride  `json:"what_if_overrides"`
	GradedOnly              bool              `json:"graded_only"`
	Loading                 bool              `json:"loading"`
}

// GradeRecomputedEvent is emitted after a what-if write recomputes the grade.
type GradeRecomputedEvent struct {
	SessionID       string  `json:"session_id"`
	CourseID        string  `json:"course_id"`
	// ChangedPosition is the 0-based row of the changed assignment in the list where each
	// group is preceded by a header row.
	ChangedPosition *int    `json:"changed_position,omitempty"`
	DisplayedGrade  *string `json:"displayed_grade,omitempty"`
}
