package models

import "time"

// GradingType enumerates how an assignment is graded.
type GradingType string

const (
	GradingTypePoints      GradingType = "points"
	GradingTypePercent     GradingType = "percent"
	GradingTypeLetterGrade GradingType = "letter_grade"
	GradingTypePassFail    GradingType = "pass_fail"
	GradingTypeGPAScale    GradingType = "gpa_scale"
	GradingTypeNotGraded   GradingType = "not_graded"
)

// SubmissionWorkflowState mirrors the lifecycle of a submission.
type SubmissionWorkflowState string

const (
	SubmissionStateUnsubmitted   SubmissionWorkflowState = "unsubmitted"
	SubmissionStateSubmitted     SubmissionWorkflowState = "submitted"
	SubmissionStateGraded        SubmissionWorkflowState = "graded"
	SubmissionStatePendingReview SubmissionWorkflowState = "pending_review"
)

// Assignment is a gradable item inside an assignment group.
type Assignment struct {
	ID                 string      `db:"id" json:"id"`
	AssignmentGroupID  string      `db:"assignment_group_id" json:"assignment_group_id"`
	GradingPeriodID    *string     `db:"grading_period_id" json:"grading_period_id,omitempty"`
	Name               string      `db:"name" json:"name"`
	Position           int         `db:"position" json:"position"`
	PointsPossible     float64     `db:"points_possible" json:"points_possible"`
	SubmissionTypes    []string    `db:"-" json:"submission_types"`
	GradingType        GradingType `db:"grading_type" json:"grading_type"`
	OmitFromFinalGrade bool        `db:"omit_from_final_grade" json:"omit_from_final_grade"`
	DueAt              *time.Time  `db:"due_at" json:"due_at,omitempty"`
	Submission         *Submission `db:"-" json:"submission,omitempty"`
}

// IsGradable reports whether the assignment accepts submissions.
func (a Assignment) IsGradable() bool {
	return len(a.SubmissionTypes) > 0
}

// Clone returns a deep copy of the assignment, including its submission.
func (a Assignment) Clone() Assignment {
	out := a
	if a.SubmissionTypes != nil {
		out.SubmissionTypes = append([]string(nil), a.SubmissionTypes...)
	}
	if a.GradingPeriodID != nil {
		id := *a.GradingPeriodID
		out.GradingPeriodID = &id
	}
	if a.DueAt != nil {
		due := *a.DueAt
		out.DueAt = &due
	}
	if a.Submission != nil {
		sub := a.Submission.Clone()
		out.Submission = &sub
	}
	return out
}

// GroupRule marks an assignment group as carrying grading rules such as drop lowest.
// Rule evaluation happens server side; the engine only checks for its presence.
type GroupRule struct {
	DropLowest  int      `json:"drop_lowest,omitempty"`
	DropHighest int      `json:"drop_highest,omitempty"`
	NeverDrop   []string `json:"never_drop,omitempty"`
}

// AssignmentGroup is a weighted bucket of assignments.
type AssignmentGroup struct {
	ID          string       `db:"id" json:"id"`
	CourseID    string       `db:"course_id" json:"course_id"`
	Name        string       `db:"name" json:"name"`
	Position    int          `db:"position" json:"position"`
	GroupWeight float64      `db:"group_weight" json:"group_weight"`
	Rules       *GroupRule   `db:"-" json:"rules,omitempty"`
	Assignments []Assignment `db:"-" json:"assignments"`
}

// Clone returns a deep copy of the group.
func (g AssignmentGroup) Clone() AssignmentGroup {
	out := g
	if g.Rules != nil {
		rules := *g.Rules
		rules.NeverDrop = append([]string(nil), g.Rules.NeverDrop...)
		out.Rules = &rules
	}
	out.Assignments = make([]Assignment, len(g.Assignments))
	for i := range g.Assignments {
		out.Assignments[i] = g.Assignments[i].Clone()
	}
	return out
}

// CloneGroups deep copies a slice of assignment groups.
func CloneGroups(groups []AssignmentGroup) []AssignmentGroup {
	if groups == nil {
		return nil
	}
	out := make([]AssignmentGroup, len(groups))
	for i := range groups {
		out[i] = groups[i].Clone()
	}
	return out
}

// Submission is a student's graded (or not yet graded) work for an assignment.
type Submission struct {
	ID            string                  `db:"id" json:"id,omitempty"`
	AssignmentID  string                  `db:"assignment_id" json:"assignment_id"`
	UserID        string                  `db:"user_id" json:"user_id,omitempty"`
	Score         *float64                `db:"score" json:"score,omitempty"`
	Grade         *string                 `db:"grade" json:"grade,omitempty"`
	WorkflowState SubmissionWorkflowState `db:"workflow_state" json:"workflow_state,omitempty"`
	Excused       bool                    `db:"excused" json:"excused"`
	Late          bool                    `db:"late" json:"late"`
}

// IsGraded reports whether a grade has been posted.
func (s *Submission) IsGraded() bool {
	return s != nil && s.Grade != nil
}

// Clone returns a deep copy of the submission.
func (s Submission) Clone() Submission {
	out := s
	if s.Score != nil {
		score := *s.Score
		out.Score = &score
	}
	if s.Grade != nil {
		grade := *s.Grade
		out.Grade = &grade
	}
	return out
}

// WhatIfOverride is a hypothetical score entered by the student.
type WhatIfOverride struct {
	AssignmentID string   `json:"assignment_id"`
	Score        *float64 `json:"score"`
}
