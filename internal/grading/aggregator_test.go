package grading

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-grades-api/internal/models"
)

func ptrFloat(v float64) *float64 {
	return &v
}

func ptrString(v string) *string {
	return &v
}

func gradedAssignment(id string, earned, possible float64) models.Assignment {
	return models.Assignment{
		ID:              id,
		PointsPossible:  possible,
		SubmissionTypes: []string{"online_upload"},
		GradingType:     models.GradingTypePoints,
		Submission: &models.Submission{
			AssignmentID:  id,
			Score:         ptrFloat(earned),
			Grade:         ptrString("graded"),
			WorkflowState: models.SubmissionStateGraded,
		},
	}
}

func ungradedAssignment(id string, possible float64) models.Assignment {
	return models.Assignment{
		ID:              id,
		PointsPossible:  possible,
		SubmissionTypes: []string{"online_text_entry"},
		GradingType:     models.GradingTypePoints,
	}
}

func TestComputeGradeWeightedGradedOnlyRescales(t *testing.T) {
	groups := []models.AssignmentGroup{
		{ID: "a", GroupWeight: 40, Assignments: []models.Assignment{gradedAssignment("a1", 8, 10)}},
		{ID: "b", GroupWeight: 60, Assignments: []models.Assignment{ungradedAssignment("b1", 10)}},
	}
	policy := Policy{Weighted: true, GradedOnly: true}

	tallies := []GroupTally{TallyGroup(groups[0], policy, nil), TallyGroup(groups[1], policy, nil)}
	assert.Equal(t, 1, tallies[0].AssignCount)
	assert.Equal(t, 0, tallies[1].AssignCount)

	assert.Equal(t, 80.0, ComputeGrade(groups, policy, nil))
}

func TestComputeGradeWeightedAllAssignments(t *testing.T) {
	groups := []models.AssignmentGroup{
		{ID: "a", GroupWeight: 40, Assignments: []models.Assignment{gradedAssignment("a1", 8, 10)}},
		{ID: "b", GroupWeight: 60, Assignments: []models.Assignment{ungradedAssignment("b1", 10)}},
	}

	// 8/10*40 with group b contributing nothing and no rescale.
	assert.Equal(t, 32.0, ComputeGrade(groups, Policy{Weighted: true}, nil))
}

func TestComputeGradeUnweightedAllRoundsHalfUp(t *testing.T) {
	groups := []models.AssignmentGroup{
		{ID: "a", Assignments: []models.Assignment{gradedAssignment("a1", 5, 10)}},
		{ID: "b", Assignments: []models.Assignment{gradedAssignment("b1", 15, 20)}},
	}

	assert.Equal(t, 66.67, ComputeGrade(groups, Policy{}, nil))
}

func TestComputeGradeUnweightedGradedOnlyExcludesPendingReview(t *testing.T) {
	pending := gradedAssignment("a2", 0, 90)
	pending.Submission.WorkflowState = models.SubmissionStatePendingReview
	groups := []models.AssignmentGroup{
		{ID: "a", GroupWeight: 10, Assignments: []models.Assignment{gradedAssignment("a1", 9, 10), pending}},
	}

	assert.Equal(t, 90.0, ComputeGrade(groups, Policy{GradedOnly: true}, nil))
	assert.Equal(t, 9.0, ComputeGrade(groups, Policy{}, nil))
}

func TestComputeGradeEmptyGroupsReturnZero(t *testing.T) {
	for _, policy := range []Policy{{}, {Weighted: true}, {GradedOnly: true}, {Weighted: true, GradedOnly: true}} {
		assert.Equal(t, 0.0, ComputeGrade(nil, policy, nil))
	}
}

func TestComputeGradeZeroPossibleContributesNothing(t *testing.T) {
	groups := []models.AssignmentGroup{
		{ID: "bonus", GroupWeight: 50, Assignments: []models.Assignment{gradedAssignment("x", 5, 0)}},
		{ID: "main", GroupWeight: 50, Assignments: []models.Assignment{gradedAssignment("y", 10, 10)}},
	}

	for _, policy := range []Policy{{Weighted: true}, {Weighted: true, GradedOnly: true}} {
		result := ComputeGrade(groups, policy, nil)
		assert.False(t, math.IsNaN(result))
		assert.False(t, math.IsInf(result, 0))
	}
	assert.Equal(t, 50.0, ComputeGrade(groups, Policy{Weighted: true}, nil))
	// Both groups have graded work, so the full 100 weight applies and no rescale happens.
	assert.Equal(t, 50.0, ComputeGrade(groups, Policy{Weighted: true, GradedOnly: true}, nil))

	onlyBonus := groups[:1]
	assert.Equal(t, 0.0, ComputeGrade(onlyBonus, Policy{}, nil))
	assert.Equal(t, 0.0, ComputeGrade(onlyBonus, Policy{Weighted: true}, nil))
}

func TestComputeGradeZeroEarnedReturnsZero(t *testing.T) {
	groups := []models.AssignmentGroup{
		{ID: "a", GroupWeight: 100, Assignments: []models.Assignment{gradedAssignment("a1", 0, 10)}},
	}

	assert.Equal(t, 0.0, ComputeGrade(groups, Policy{}, nil))
	assert.Equal(t, 0.0, ComputeGrade(groups, Policy{Weighted: true, GradedOnly: true}, nil))
}

func TestEligibleExclusions(t *testing.T) {
	omitted := gradedAssignment("o", 10, 10)
	omitted.OmitFromFinalGrade = true
	assert.False(t, Eligible(omitted, omitted.Submission, false))

	notGraded := gradedAssignment("n", 10, 10)
	notGraded.GradingType = models.GradingTypeNotGraded
	assert.False(t, Eligible(notGraded, notGraded.Submission, false))

	excused := gradedAssignment("e", 10, 10)
	excused.Submission.Excused = true
	assert.False(t, Eligible(excused, excused.Submission, false))

	notYetGradable := models.Assignment{ID: "p", PointsPossible: 10}
	assert.False(t, Eligible(notYetGradable, nil, false))

	paperGraded := models.Assignment{ID: "p", PointsPossible: 10}
	sub := &models.Submission{AssignmentID: "p", Score: ptrFloat(7), Grade: ptrString("7")}
	assert.True(t, Eligible(paperGraded, sub, true))

	ungraded := ungradedAssignment("u", 10)
	assert.True(t, Eligible(ungraded, nil, false))
	assert.False(t, Eligible(ungraded, nil, true))
}

func TestComputeGradeOmittedAssignmentsNeverCount(t *testing.T) {
	omitted := gradedAssignment("o", 0, 100)
	omitted.OmitFromFinalGrade = true
	groups := []models.AssignmentGroup{
		{ID: "a", GroupWeight: 100, Assignments: []models.Assignment{gradedAssignment("a1", 10, 10), omitted}},
	}

	assert.Equal(t, 100.0, ComputeGrade(groups, Policy{}, nil))
	assert.Equal(t, 100.0, ComputeGrade(groups, Policy{Weighted: true}, nil))
}

func TestReduceMatchesComputeGrade(t *testing.T) {
	groups := []models.AssignmentGroup{
		{ID: "a", GroupWeight: 25, Assignments: []models.Assignment{gradedAssignment("a1", 3, 7)}},
		{ID: "b", GroupWeight: 35, Assignments: []models.Assignment{gradedAssignment("b1", 11, 13), ungradedAssignment("b2", 5)}},
	}
	policy := Policy{Weighted: true, GradedOnly: true}
	tallies := []GroupTally{TallyGroup(groups[0], policy, RealSubmission), TallyGroup(groups[1], policy, RealSubmission)}

	assert.Equal(t, ComputeGrade(groups, policy, nil), Reduce(tallies, policy))
}
