package grading

import (
	"sort"
	"strconv"

	"github.com/noah-isme/course-grades-api/internal/models"
)

// OverrideStore holds hypothetical what-if scores keyed by assignment.
// It is owned by a single grade session and is not safe for concurrent use.
type OverrideStore struct {
	enabled   bool
	overrides map[string]float64
}

// NewOverrideStore returns a disabled, empty store.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{overrides: make(map[string]float64)}
}

// SetEnabled records the caller's what-if mode. Disabling drops every override.
func (s *OverrideStore) SetEnabled(enabled bool) {
	s.enabled = enabled
	if !enabled {
		s.Clear()
	}
}

// IsActive reports whether what-if mode is on.
func (s *OverrideStore) IsActive() bool {
	return s.enabled
}

// Set stores a hypothetical score; nil clears it. Writes received while disabled are
// ignored and reported as false.
func (s *OverrideStore) Set(assignmentID string, score *float64) bool {
	if !s.enabled || assignmentID == "" {
		return false
	}
	if score == nil {
		delete(s.overrides, assignmentID)
		return true
	}
	s.overrides[assignmentID] = *score
	return true
}

// Score returns the override for an assignment.
func (s *OverrideStore) Score(assignmentID string) (float64, bool) {
	score, ok := s.overrides[assignmentID]
	return score, ok
}

// Clear removes every override.
func (s *OverrideStore) Clear() {
	for id := range s.overrides {
		delete(s.overrides, id)
	}
}

// Len returns the number of stored overrides.
func (s *OverrideStore) Len() int {
	return len(s.overrides)
}

// Overrides returns the stored overrides ordered by assignment ID.
func (s *OverrideStore) Overrides() []models.WhatIfOverride {
	out := make([]models.WhatIfOverride, 0, len(s.overrides))
	for id, score := range s.overrides {
		value := score
		out = append(out, models.WhatIfOverride{AssignmentID: id, Score: &value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out
}

// Effective merges the real submission with an override. The real submission is never
// modified; without an override it is returned as is. An ungraded assignment with an
// override gets a synthesized submission carrying only the score and grade.
func (s *OverrideStore) Effective(assignment models.Assignment, real *models.Submission) *models.Submission {
	score, ok := s.overrides[assignment.ID]
	if !ok {
		return real
	}
	var merged models.Submission
	if real != nil {
		merged = real.Clone()
	} else {
		merged = models.Submission{AssignmentID: assignment.ID}
	}
	grade := strconv.FormatFloat(score, 'f', -1, 64)
	merged.Score = &score
	merged.Grade = &grade
	return &merged
}

// Lookup returns a SubmissionLookup that applies overrides on top of bundled submissions.
func (s *OverrideStore) Lookup() SubmissionLookup {
	return func(assignment models.Assignment) *models.Submission {
		return s.Effective(assignment, assignment.Submission)
	}
}
