package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-grades-api/internal/models"
)

func TestResolveGradeSource(t *testing.T) {
	period := models.GradingPeriod{ID: "gp1", Title: "Q1"}
	all := models.AllGradingPeriods()

	cases := []struct {
		name string
		in   SelectorInput
		want models.GradeSourceState
	}{
		{"all periods sentinel", SelectorInput{Role: models.EnrollmentRoleStudent, MultipleGradingPeriods: true, SelectedPeriod: all}, models.GradeSourceAllPeriodsAggregate},
		{"single term course", SelectorInput{Role: models.EnrollmentRoleStudent, SelectedPeriod: period}, models.GradeSourceAllPeriodsAggregate},
		{"student concrete period", SelectorInput{Role: models.EnrollmentRoleStudent, MultipleGradingPeriods: true, SelectedPeriod: period}, models.GradeSourceSpecificPeriodEnrollmentGrade},
		{"observer", SelectorInput{Role: models.EnrollmentRoleObserver, MultipleGradingPeriods: true, SelectedPeriod: period}, models.GradeSourceObserverAggregate},
		{"teacher concrete period", SelectorInput{Role: models.EnrollmentRoleTeacher, MultipleGradingPeriods: true, SelectedPeriod: period}, models.GradeSourceAllPeriodsAggregate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.in))
		})
	}
}

func TestSelectorResetReturnsToUninitialized(t *testing.T) {
	selector := NewSelector()
	assert.Equal(t, models.GradeSourceUninitialized, selector.State())

	selector.Enter(SelectorInput{Role: models.EnrollmentRoleObserver})
	assert.Equal(t, models.GradeSourceObserverAggregate, selector.State())

	selector.Reset()
	assert.Equal(t, models.GradeSourceUninitialized, selector.State())
}

func TestIsLockedPrecedence(t *testing.T) {
	all := models.AllGradingPeriods()
	period := models.GradingPeriod{ID: "gp1"}

	hidden := models.Course{HideFinalGrades: true, HasGradingPeriods: true, TotalsForAllGradingPeriodsEnabled: true}
	assert.True(t, IsLocked(hidden, all, false))

	noTotals := models.Course{HasGradingPeriods: true}
	assert.True(t, IsLocked(noTotals, all, false))
	assert.False(t, IsLocked(noTotals, period, false))

	singleTerm := models.Course{}
	assert.False(t, IsLocked(singleTerm, all, false))

	assert.True(t, IsLocked(singleTerm, period, true))
}

func TestWhatIfAllowed(t *testing.T) {
	groups := []models.AssignmentGroup{{ID: "a"}}
	assert.True(t, WhatIfAllowed(models.Course{}, groups, false))
	assert.False(t, WhatIfAllowed(models.Course{}, groups, true))
	assert.False(t, WhatIfAllowed(models.Course{WeightedGradingPeriods: true}, groups, false))
	assert.False(t, WhatIfAllowed(models.Course{Settings: models.CourseSettings{RestrictQuantitativeData: true}}, groups, false))

	ruled := []models.AssignmentGroup{{ID: "a", Rules: &models.GroupRule{DropLowest: 1}}}
	assert.False(t, WhatIfAllowed(models.Course{}, ruled, false))
}

func TestFormatGrade(t *testing.T) {
	assert.Nil(t, FormatGrade(nil, "A", false))
	assert.Equal(t, "85.5%", *FormatGrade(ptrFloat(85.5), "", false))
	assert.Equal(t, "66.67% D", *FormatGrade(ptrFloat(66.666), "D", false))
	assert.Equal(t, "B", *FormatGrade(ptrFloat(85), "B", true))
	assert.Nil(t, FormatGrade(ptrFloat(85), "", true))
}

func TestListPosition(t *testing.T) {
	groups := []models.AssignmentGroup{
		{ID: "g1", Assignments: []models.Assignment{{ID: "a1"}, {ID: "a2"}}},
		{ID: "g2", Assignments: []models.Assignment{{ID: "b1"}}},
	}

	pos, gi, ok := ListPosition(groups, "b1")
	assert.True(t, ok)
	assert.Equal(t, 4, pos)
	assert.Equal(t, 1, gi)

	pos, gi, ok = ListPosition(groups, "a1")
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 0, gi)

	_, _, ok = ListPosition(groups, "missing")
	assert.False(t, ok)
}
