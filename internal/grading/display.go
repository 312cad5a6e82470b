package grading

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/course-grades-api/internal/models"
)

// FormatGrade renders the displayed course grade. A nil score renders nothing; with
// restricted quantitative data only the letter is shown.
func FormatGrade(score *float64, letter string, restrictQuantitativeData bool) *string {
	if score == nil {
		return nil
	}
	if restrictQuantitativeData {
		if letter == "" {
			return nil
		}
		return &letter
	}
	out := decimal.NewFromFloat(*score).Round(2).String() + "%"
	if letter != "" {
		out += " " + letter
	}
	return &out
}

// ListPosition returns the 0-based row of an assignment in the flattened list where every
// group contributes a header row followed by its assignments. The first group's header is
// row 0, so the first assignment is row 1.
func ListPosition(groups []models.AssignmentGroup, assignmentID string) (position, groupIndex int, ok bool) {
	row := 0
	for gi, group := range groups {
		row++
		for _, assignment := range group.Assignments {
			if assignment.ID == assignmentID {
				return row, gi, true
			}
			row++
		}
	}
	return 0, 0, false
}
