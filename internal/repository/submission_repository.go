package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-grades-api/internal/models"
)

// SubmissionRepository reads student submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// ListForAssignments returns the user's submissions for the given assignments.
func (r *SubmissionRepository) ListForAssignments(ctx context.Context, userID string, assignmentIDs []string) ([]models.Submission, error) {
	if len(assignmentIDs) == 0 {
		return []models.Submission{}, nil
	}
	const query = `SELECT id, assignment_id, user_id, score, grade, workflow_state, excused, late
        FROM submissions WHERE user_id = $1 AND assignment_id = ANY($2)`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, userID, pq.Array(assignmentIDs)); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}
