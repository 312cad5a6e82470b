package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-grades-api/internal/dto"
	"github.com/noah-isme/course-grades-api/internal/grading"
	"github.com/noah-isme/course-grades-api/internal/models"
	"github.com/noah-isme/course-grades-api/internal/service"
	appErrors "github.com/noah-isme/course-grades-api/pkg/errors"
	"github.com/noah-isme/course-grades-api/pkg/response"
)

type gradeSessionService interface {
	Create(ctx context.Context, userID, courseID string) (models.GradeView, error)
	Get(userID, sessionID string) (models.GradeView, error)
	SelectGradingPeriod(ctx context.Context, userID, sessionID string, req dto.SelectGradingPeriodRequest) (models.GradeView, error)
	Refresh(ctx context.Context, userID, sessionID string) (models.GradeView, error)
	SetWhatIfMode(userID, sessionID string, req dto.ToggleRequest) (models.GradeView, error)
	SetGradedOnly(userID, sessionID string, req dto.ToggleRequest) (models.GradeView, error)
	SetWhatIfScore(userID, sessionID, assignmentID string, req dto.WhatIfScoreRequest) (dto.WhatIfScoreResponse, error)
	Close(userID, sessionID string) error
}

type gradeExporter interface {
	Export(userID, sessionID, format string) (*service.ExportFile, error)
}

// GradeSessionHandler exposes the interactive grade view endpoints.
type GradeSessionHandler struct {
	sessions gradeSessionService
	exporter gradeExporter
}

// NewGradeSessionHandler builds a new handler.
func NewGradeSessionHandler(sessions gradeSessionService, exporter gradeExporter) *GradeSessionHandler {
	return &GradeSessionHandler{sessions: sessions, exporter: exporter}
}

// Create godoc
// @Summary Open a grade session for a course
// @Tags GradeSessions
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /courses/{courseId}/grade-sessions [post]
func (h *GradeSessionHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	view, err := h.sessions.Create(c.Request.Context(), userID, c.Param("courseId"))
	if errors.Is(err, grading.ErrCancelled) {
		response.JSON(c, http.StatusCreated, view, supersededMeta())
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get the current grade view of a session
// @Tags GradeSessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grade-sessions/{sessionId} [get]
func (h *GradeSessionHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	view, err := h.sessions.Get(userID, c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// SelectGradingPeriod godoc
// @Summary Switch the grading period shown by a session
// @Tags GradeSessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body dto.SelectGradingPeriodRequest true "Grading period; empty for all periods"
// @Success 200 {object} response.Envelope
// @Router /grade-sessions/{sessionId}/grading-period [put]
func (h *GradeSessionHandler) SelectGradingPeriod(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.SelectGradingPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grading period payload"))
		return
	}
	view, err := h.sessions.SelectGradingPeriod(c.Request.Context(), userID, c.Param("sessionId"), req)
	h.respondView(c, view, err)
}

// Refresh godoc
// @Summary Reload a session from the source of record
// @Tags GradeSessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /grade-sessions/{sessionId}/refresh [post]
func (h *GradeSessionHandler) Refresh(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	view, err := h.sessions.Refresh(c.Request.Context(), userID, c.Param("sessionId"))
	h.respondView(c, view, err)
}

// SetWhatIfMode godoc
// @Summary Turn what-if grading on or off
// @Tags GradeSessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body dto.ToggleRequest true "Toggle payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /grade-sessions/{sessionId}/what-if [put]
func (h *GradeSessionHandler) SetWhatIfMode(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid what-if payload"))
		return
	}
	view, err := h.sessions.SetWhatIfMode(userID, c.Param("sessionId"), req)
	h.respondView(c, view, err)
}

// SetGradedOnly godoc
// @Summary Toggle totals over graded assignments only
// @Tags GradeSessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body dto.ToggleRequest true "Toggle payload"
// @Success 200 {object} response.Envelope
// @Router /grade-sessions/{sessionId}/graded-only [put]
func (h *GradeSessionHandler) SetGradedOnly(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid graded-only payload"))
		return
	}
	view, err := h.sessions.SetGradedOnly(userID, c.Param("sessionId"), req)
	h.respondView(c, view, err)
}

// SetWhatIfScore godoc
// @Summary Set or clear a hypothetical score for an assignment
// @Tags GradeSessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param assignmentId path string true "Assignment ID"
// @Param payload body dto.WhatIfScoreRequest true "Score payload; null clears the score"
// @Success 200 {object} response.Envelope
// @Router /grade-sessions/{sessionId}/what-if/{assignmentId} [put]
func (h *GradeSessionHandler) SetWhatIfScore(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.WhatIfScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid what-if score payload"))
		return
	}
	result, err := h.sessions.SetWhatIfScore(userID, c.Param("sessionId"), c.Param("assignmentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Close godoc
// @Summary Close a grade session
// @Tags GradeSessions
// @Param sessionId path string true "Session ID"
// @Success 204
// @Router /grade-sessions/{sessionId} [delete]
func (h *GradeSessionHandler) Close(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(userID, c.Param("sessionId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Download the session's grades as CSV or PDF
// @Tags GradeSessions
// @Produce text/csv
// @Produce application/pdf
// @Param sessionId path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /grade-sessions/{sessionId}/export [get]
func (h *GradeSessionHandler) Export(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.exporter.Export(userID, c.Param("sessionId"), query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.ContentType, file.Filename, file.Body)
}

// respondView reports a superseded operation as a successful response carrying the
// state that was current when it was abandoned.
func (h *GradeSessionHandler) respondView(c *gin.Context, view models.GradeView, err error) {
	if errors.Is(err, grading.ErrCancelled) {
		response.JSON(c, http.StatusOK, view, supersededMeta())
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

func supersededMeta() map[string]interface{} {
	return map[string]interface{}{"superseded": true}
}
