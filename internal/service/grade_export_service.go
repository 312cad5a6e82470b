package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-grades-api/internal/models"
	appErrors "github.com/noah-isme/course-grades-api/pkg/errors"
	"github.com/noah-isme/course-grades-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type gradeViewReader interface {
	Get(userID, sessionID string) (models.GradeView, error)
}

type sheetRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
}

// ExportFile is a rendered grade sheet.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// GradeExportService renders the current view of a session as CSV or PDF.
type GradeExportService struct {
	sessions gradeViewReader
	csv      sheetRenderer
	pdf      sheetRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewGradeExportService constructs the export service.
func NewGradeExportService(sessions gradeViewReader, csv, pdf sheetRenderer, logger *zap.Logger) *GradeExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeExportService{sessions: sessions, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export renders the session in the requested format. An empty format means CSV.
func (s *GradeExportService) Export(userID, sessionID, format string) (*ExportFile, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	var renderer sheetRenderer
	contentType := ""
	switch format {
	case ExportFormatCSV:
		renderer, contentType = s.csv, "text/csv"
	case ExportFormatPDF:
		renderer, contentType = s.pdf, "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	view, err := s.sessions.Get(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if view.Loading && len(view.AssignmentGroups) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grades are still loading")
	}

	body, err := renderer.Render(BuildGradeSheet(view))
	if err != nil {
		s.logger.Error("grade export failed", zap.String("session_id", sessionID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("grades-%s-%s.%s", view.CourseID, s.now().UTC().Format("20060102"), format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

// BuildGradeSheet flattens a view into a table of assignments under a summary block.
func BuildGradeSheet(view models.GradeView) export.Sheet {
	restricted := view.Grade.RestrictQuantitativeData
	overrides := make(map[string]float64, len(view.WhatIfOverrides))
	for _, override := range view.WhatIfOverrides {
		if override.Score != nil {
			overrides[override.AssignmentID] = *override.Score
		}
	}

	sheet := export.Sheet{
		Title:   view.CourseName,
		Summary: gradeSummary(view),
		Headers: []string{"Group", "Assignment", "Score", "Points Possible", "Status"},
	}
	if sheet.Title == "" {
		sheet.Title = "Course grades"
	}
	for _, group := range view.AssignmentGroups {
		for _, assignment := range group.Assignments {
			score, status := assignmentCells(assignment, overrides, restricted)
			possible := formatNumber(assignment.PointsPossible)
			if restricted {
				possible = "-"
			}
			sheet.Rows = append(sheet.Rows, []string{group.Name, assignment.Name, score, possible, status})
		}
	}
	return sheet
}

func gradeSummary(view models.GradeView) []export.SummaryLine {
	period := models.AllGradingPeriodsTitle
	for _, p := range view.GradingPeriods {
		if p.ID == view.SelectedGradingPeriodID && !p.IsAllPeriods {
			period = p.Title
		}
	}
	grade := "-"
	switch {
	case view.Locked:
		grade = "Locked"
	case view.DisplayedGrade != nil:
		grade = *view.DisplayedGrade
	}
	mode := "All assignments"
	if view.GradedOnly {
		mode = "Graded assignments only"
	}
	lines := []export.SummaryLine{
		{Label: "Grading period", Value: period},
		{Label: "Total", Value: grade},
		{Label: "Calculation", Value: mode},
	}
	if view.WhatIfActive {
		lines = append(lines, export.SummaryLine{Label: "What-if", Value: "Hypothetical scores included"})
	}
	return lines
}

func assignmentCells(assignment models.Assignment, overrides map[string]float64, restricted bool) (string, string) {
	if score, ok := overrides[assignment.ID]; ok {
		if restricted {
			return "-", "what-if"
		}
		return formatNumber(score), "what-if"
	}

	submission := assignment.Submission
	var statuses []string
	switch {
	case submission == nil:
	case submission.Excused:
		statuses = append(statuses, "excused")
	case submission.WorkflowState == models.SubmissionStatePendingReview:
		statuses = append(statuses, "pending review")
	case submission.IsGraded():
		statuses = append(statuses, "graded")
	}
	if submission != nil && submission.Late {
		statuses = append(statuses, "late")
	}
	if assignment.OmitFromFinalGrade {
		statuses = append(statuses, "not counted")
	}

	score := "-"
	if submission.IsGraded() {
		switch {
		case restricted:
			score = *submission.Grade
		case submission.Score != nil:
			score = formatNumber(*submission.Score)
		}
	}
	return score, strings.Join(statuses, ", ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
