package dto

import "github.com/noah-isme/course-grades-api/internal/models"

// SelectGradingPeriodRequest captures PUT /grade-sessions/:id/grading-period. An empty
// ID selects all grading periods.
type SelectGradingPeriodRequest struct {
	GradingPeriodID string `json:"grading_period_id" validate:"max=64"`
}

// ToggleRequest switches a session mode on or off.
type ToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// WhatIfScoreRequest sets a hypothetical score; a null score clears it.
type WhatIfScoreRequest struct {
	Score *float64 `json:"score" validate:"omitempty,gte=0"`
}

// WhatIfScoreResponse returns the recomputed view and the change notification.
type WhatIfScoreResponse struct {
	View  models.GradeView             `json:"view"`
	Event *models.GradeRecomputedEvent `json:"event,omitempty"`
}

// ExportQuery selects the export format.
type ExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
