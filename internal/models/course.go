package models

import "sort"

// CourseSettings carries display restrictions configured on the course.
type CourseSettings struct {
	RestrictQuantitativeData bool `db:"restrict_quantitative_data" json:"restrict_quantitative_data"`
}

// GradingSchemeEntry maps a lower score bound (0..1) to a letter.
type GradingSchemeEntry struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// GradingScheme converts percentages to letters.
type GradingScheme []GradingSchemeEntry

// Letter returns the scheme letter for a percentage score. Scores below every bound get
// the lowest entry; an empty scheme returns "".
func (s GradingScheme) Letter(percent float64) string {
	if len(s) == 0 {
		return ""
	}
	entries := append(GradingScheme(nil), s...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Value > entries[j].Value })
	for _, entry := range entries {
		if percent >= entry.Value*100 {
			return entry.Name
		}
	}
	return entries[len(entries)-1].Name
}

// Course holds the course flags and the caller's enrollments.
type Course struct {
	ID                                string         `db:"id" json:"id"`
	Name                              string         `db:"name" json:"name"`
	Settings                          CourseSettings `db:"-" json:"settings"`
	GradingScheme                     GradingScheme  `db:"-" json:"grading_scheme,omitempty"`
	ApplyAssignmentGroupWeights       bool           `db:"apply_assignment_group_weights" json:"apply_assignment_group_weights"`
	WeightedGradingPeriods            bool           `db:"weighted_grading_periods" json:"weighted_grading_periods"`
	HideFinalGrades                   bool           `db:"hide_final_grades" json:"hide_final_grades"`
	TotalsForAllGradingPeriodsEnabled bool           `db:"totals_for_all_grading_periods_enabled" json:"totals_for_all_grading_periods_enabled"`
	HasGradingPeriods                 bool           `db:"has_grading_periods" json:"has_grading_periods"`
	Enrollments                       []Enrollment   `db:"-" json:"enrollments"`
}

// EnrollmentFor returns the first enrollment of the user with the given role.
func (c Course) EnrollmentFor(userID string, role EnrollmentRole) (Enrollment, bool) {
	for _, enrollment := range c.Enrollments {
		if enrollment.UserID == userID && enrollment.Role == role {
			return enrollment, true
		}
	}
	return Enrollment{}, false
}
