package grading

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/course-grades-api/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Policy selects which of the four accumulation algorithms is applied.
type Policy struct {
	Weighted   bool
	GradedOnly bool
}

// SubmissionLookup resolves the submission aggregated for an assignment.
type SubmissionLookup func(assignment models.Assignment) *models.Submission

// RealSubmission returns the submission bundled with the assignment.
func RealSubmission(assignment models.Assignment) *models.Submission {
	return assignment.Submission
}

// GroupTally is the accumulation of one assignment group.
type GroupTally struct {
	GroupID     string
	Weight      decimal.Decimal
	Earned      decimal.Decimal
	Possible    decimal.Decimal
	AssignCount int
}

// ComputeGrade reduces assignment groups into a course percentage rounded half-up to
// two decimals. Zero possible or zero earned points yield 0, never NaN.
func ComputeGrade(groups []models.AssignmentGroup, policy Policy, lookup SubmissionLookup) float64 {
	tallies := make([]GroupTally, 0, len(groups))
	for _, group := range groups {
		tallies = append(tallies, TallyGroup(group, policy, lookup))
	}
	return Reduce(tallies, policy)
}

// TallyGroup sums earned and possible points over the eligible assignments of a group.
func TallyGroup(group models.AssignmentGroup, policy Policy, lookup SubmissionLookup) GroupTally {
	if lookup == nil {
		lookup = RealSubmission
	}
	tally := GroupTally{
		GroupID:  group.ID,
		Weight:   decimal.NewFromFloat(group.GroupWeight),
		Earned:   decimal.Zero,
		Possible: decimal.Zero,
	}
	for _, assignment := range group.Assignments {
		submission := lookup(assignment)
		if !Eligible(assignment, submission, policy.GradedOnly) {
			continue
		}
		if submission != nil && submission.Score != nil {
			tally.Earned = tally.Earned.Add(decimal.NewFromFloat(*submission.Score))
		}
		tally.Possible = tally.Possible.Add(decimal.NewFromFloat(assignment.PointsPossible))
		tally.AssignCount++
	}
	return tally
}

// Reduce folds group tallies into the course percentage.
func Reduce(tallies []GroupTally, policy Policy) float64 {
	var total decimal.Decimal
	if policy.Weighted {
		total = reduceWeighted(tallies, policy.GradedOnly)
	} else {
		total = reducePooled(tallies)
	}
	return total.Round(2).InexactFloat64()
}

// Eligible reports whether an assignment counts toward totals.
func Eligible(assignment models.Assignment, submission *models.Submission, gradedOnly bool) bool {
	if assignment.OmitFromFinalGrade || assignment.GradingType == models.GradingTypeNotGraded {
		return false
	}
	if submission != nil && submission.Excused {
		return false
	}
	if !submission.IsGraded() && !assignment.IsGradable() {
		return false
	}
	if gradedOnly {
		if !submission.IsGraded() || submission.WorkflowState == models.SubmissionStatePendingReview {
			return false
		}
	}
	return true
}

func reduceWeighted(tallies []GroupTally, gradedOnly bool) decimal.Decimal {
	total := decimal.Zero
	totalWeight := decimal.Zero
	for _, tally := range tallies {
		if tally.Possible.IsPositive() && !tally.Earned.IsZero() {
			total = total.Add(tally.Earned.Div(tally.Possible).Mul(tally.Weight))
		}
		if gradedOnly && tally.AssignCount > 0 {
			totalWeight = totalWeight.Add(tally.Weight)
		}
	}
	// Rescale to the weight that actually has graded work behind it.
	if gradedOnly && totalWeight.LessThan(hundred) && totalWeight.IsPositive() && !total.IsZero() {
		total = total.Div(totalWeight).Mul(hundred)
	}
	return total
}

func reducePooled(tallies []GroupTally) decimal.Decimal {
	earned := decimal.Zero
	possible := decimal.Zero
	for _, tally := range tallies {
		earned = earned.Add(tally.Earned)
		possible = possible.Add(tally.Possible)
	}
	if !possible.IsPositive() || earned.IsZero() {
		return decimal.Zero
	}
	return earned.Div(possible).Mul(hundred)
}
