package grading

import "github.com/noah-isme/course-grades-api/internal/models"

// SelectorInput is what the selector needs to pick a grade source.
type SelectorInput struct {
	Role                   models.EnrollmentRole
	MultipleGradingPeriods bool
	SelectedPeriod         models.GradingPeriod
}

// Resolve returns the grade source for the given role and selection.
func Resolve(in SelectorInput) models.GradeSourceState {
	switch {
	case in.Role == models.EnrollmentRoleObserver:
		return models.GradeSourceObserverAggregate
	case in.SelectedPeriod.IsAllPeriods || !in.MultipleGradingPeriods:
		return models.GradeSourceAllPeriodsAggregate
	case in.Role == models.EnrollmentRoleStudent:
		return models.GradeSourceSpecificPeriodEnrollmentGrade
	default:
		return models.GradeSourceAllPeriodsAggregate
	}
}

// Selector tracks the grade source of a session. A selection change resets it to
// Uninitialized before the next source is entered.
type Selector struct {
	state models.GradeSourceState
}

// NewSelector returns an uninitialized selector.
func NewSelector() *Selector {
	return &Selector{state: models.GradeSourceUninitialized}
}

// State returns the current source.
func (s *Selector) State() models.GradeSourceState {
	return s.state
}

// Reset returns the selector to Uninitialized.
func (s *Selector) Reset() {
	s.state = models.GradeSourceUninitialized
}

// Enter resolves and records the grade source.
func (s *Selector) Enter(in SelectorInput) models.GradeSourceState {
	s.state = Resolve(in)
	return s.state
}

// IsLocked decides whether the numeric grade must be hidden.
func IsLocked(course models.Course, selected models.GradingPeriod, sourceLocked bool) bool {
	if course.HideFinalGrades || sourceLocked {
		return true
	}
	return selected.IsAllPeriods && course.HasGradingPeriods && !course.TotalsForAllGradingPeriodsEnabled
}

// WhatIfAllowed reports whether what-if grading may be enabled for the course view.
func WhatIfAllowed(course models.Course, groups []models.AssignmentGroup, locked bool) bool {
	if locked || course.WeightedGradingPeriods || course.Settings.RestrictQuantitativeData {
		return false
	}
	for _, group := range groups {
		if group.Rules != nil {
			return false
		}
	}
	return true
}
