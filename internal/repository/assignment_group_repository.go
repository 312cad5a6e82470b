package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/course-grades-api/internal/models"
)

// AssignmentGroupRepository reads assignment groups together with their assignments.
type AssignmentGroupRepository struct {
	db *sqlx.DB
}

// NewAssignmentGroupRepository constructs the repository.
func NewAssignmentGroupRepository(db *sqlx.DB) *AssignmentGroupRepository {
	return &AssignmentGroupRepository{db: db}
}

type assignmentGroupRow struct {
	models.AssignmentGroup
	Rules types.NullJSONText `db:"rules"`
}

type assignmentRow struct {
	models.Assignment
	SubmissionTypes pq.StringArray `db:"submission_types"`
}

// ListWithAssignments returns the groups of a course ordered by position. When
// gradingPeriodID is set only assignments of that period are attached; groups are
// always returned so the list layout stays stable across periods.
func (r *AssignmentGroupRepository) ListWithAssignments(ctx context.Context, courseID, gradingPeriodID string) ([]models.AssignmentGroup, error) {
	const groupQuery = `SELECT id, course_id, name, position, group_weight, rules FROM assignment_groups
        WHERE course_id = $1 ORDER BY position ASC, id ASC`
	var groupRows []assignmentGroupRow
	if err := r.db.SelectContext(ctx, &groupRows, groupQuery, courseID); err != nil {
		return nil, fmt.Errorf("list assignment groups: %w", err)
	}
	if len(groupRows) == 0 {
		return []models.AssignmentGroup{}, nil
	}

	groups := make([]models.AssignmentGroup, len(groupRows))
	index := make(map[string]int, len(groupRows))
	groupIDs := make([]string, len(groupRows))
	for i, row := range groupRows {
		group := row.AssignmentGroup
		if row.Rules.Valid {
			var rule models.GroupRule
			if err := json.Unmarshal(row.Rules.JSONText, &rule); err != nil {
				return nil, fmt.Errorf("decode rules for group %s: %w", row.ID, err)
			}
			group.Rules = &rule
		}
		group.Assignments = []models.Assignment{}
		groups[i] = group
		index[row.ID] = i
		groupIDs[i] = row.ID
	}

	conditions := []string{"assignment_group_id = ANY($1)", "workflow_state = 'published'"}
	args := []interface{}{pq.Array(groupIDs)}
	if gradingPeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("grading_period_id = $%d", len(args)+1))
		args = append(args, gradingPeriodID)
	}
	assignmentQuery := fmt.Sprintf(`SELECT id, assignment_group_id, grading_period_id, name, position, points_possible,
        submission_types, grading_type, omit_from_final_grade, due_at
        FROM assignments WHERE %s ORDER BY position ASC, id ASC`, strings.Join(conditions, " AND "))

	var assignmentRows []assignmentRow
	if err := r.db.SelectContext(ctx, &assignmentRows, assignmentQuery, args...); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	for _, row := range assignmentRows {
		i, ok := index[row.AssignmentGroupID]
		if !ok {
			continue
		}
		assignment := row.Assignment
		assignment.SubmissionTypes = []string(row.SubmissionTypes)
		groups[i].Assignments = append(groups[i].Assignments, assignment)
	}
	return groups, nil
}
