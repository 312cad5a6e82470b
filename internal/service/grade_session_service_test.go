package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-grades-api/internal/dto"
	"github.com/noah-isme/course-grades-api/internal/models"
	appErrors "github.com/noah-isme/course-grades-api/pkg/errors"
)

type failingCourseSource struct {
	*fakeGradeSource
	err error
}

func (f failingCourseSource) FetchCourseWithGrade(ctx context.Context, courseID, userID string, forceNetwork bool) (*models.Course, error) {
	return nil, f.err
}

func newTestSessionService(source GradeDataSource, now func() time.Time) *GradeSessionService {
	return NewGradeSessionService(GradeSessionServiceParams{
		Source:   source,
		Metrics:  NewMetricsService(),
		IdleTTL:  10 * time.Minute,
		MaxScore: 500,
		Now:      now,
	})
}

func boolPtr(v bool) *bool {
	return &v
}

func TestGradeSessionServiceCreateAndGet(t *testing.T) {
	svc := newTestSessionService(studentSource(), nil)

	view, err := svc.Create(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.NotEmpty(t, view.SessionID)
	assert.Equal(t, "Biology", view.CourseName)
	assert.Equal(t, 1, svc.Count())

	again, err := svc.Get("user-1", view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, view.DisplayedGrade, again.DisplayedGrade)
}

func TestGradeSessionServiceHidesOtherUsersSessions(t *testing.T) {
	svc := newTestSessionService(studentSource(), nil)
	view, err := svc.Create(context.Background(), "user-1", "course-1")
	require.NoError(t, err)

	_, err = svc.Get("intruder", view.SessionID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGradeSessionServiceDiscardsFailedCreate(t *testing.T) {
	source := failingCourseSource{fakeGradeSource: studentSource(), err: errors.New("timeout")}
	svc := newTestSessionService(source, nil)

	_, err := svc.Create(context.Background(), "user-1", "course-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrLoadFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, svc.Count())
}

func TestGradeSessionServiceNotFoundCourse(t *testing.T) {
	source := failingCourseSource{fakeGradeSource: studentSource(), err: appErrors.Clone(appErrors.ErrNotFound, "course not found")}
	svc := newTestSessionService(source, nil)

	_, err := svc.Create(context.Background(), "user-1", "course-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGradeSessionServiceValidatesWhatIfScores(t *testing.T) {
	svc := newTestSessionService(studentSource(), nil)
	view, err := svc.Create(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	_, err = svc.SetWhatIfMode("user-1", view.SessionID, dto.ToggleRequest{Enabled: boolPtr(true)})
	require.NoError(t, err)

	cases := map[string]float64{
		"negative":  -1,
		"too large": 501,
		"nan":       math.NaN(),
		"infinite":  math.Inf(1),
	}
	for name, score := range cases {
		t.Run(name, func(t *testing.T) {
			value := score
			_, err := svc.SetWhatIfScore("user-1", view.SessionID, "a-2", dto.WhatIfScoreRequest{Score: &value})
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}

	current, err := svc.Get("user-1", view.SessionID)
	require.NoError(t, err)
	assert.Empty(t, current.WhatIfOverrides)
}

func TestGradeSessionServiceWhatIfScore(t *testing.T) {
	svc := newTestSessionService(studentSource(), nil)
	view, err := svc.Create(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	_, err = svc.SetWhatIfMode("user-1", view.SessionID, dto.ToggleRequest{Enabled: boolPtr(true)})
	require.NoError(t, err)

	score := 10.0
	resp, err := svc.SetWhatIfScore("user-1", view.SessionID, "a-2", dto.WhatIfScoreRequest{Score: &score})
	require.NoError(t, err)
	require.NotNil(t, resp.Event)
	assert.Equal(t, "92%", *resp.View.DisplayedGrade)
}

func TestGradeSessionServiceToggleRequiresValue(t *testing.T) {
	svc := newTestSessionService(studentSource(), nil)
	view, err := svc.Create(context.Background(), "user-1", "course-1")
	require.NoError(t, err)

	_, err = svc.SetGradedOnly("user-1", view.SessionID, dto.ToggleRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGradeSessionServiceSweepsIdleSessions(t *testing.T) {
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc := newTestSessionService(studentSource(), func() time.Time { return clock })

	stale, err := svc.Create(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	clock = clock.Add(8 * time.Minute)
	fresh, err := svc.Create(context.Background(), "user-1", "course-1")
	require.NoError(t, err)

	clock = clock.Add(5 * time.Minute)
	assert.Equal(t, 1, svc.Sweep())

	_, err = svc.Get("user-1", stale.SessionID)
	assert.Error(t, err)
	_, err = svc.Get("user-1", fresh.SessionID)
	assert.NoError(t, err)
}

func TestGradeSessionServiceClose(t *testing.T) {
	svc := newTestSessionService(studentSource(), nil)
	view, err := svc.Create(context.Background(), "user-1", "course-1")
	require.NoError(t, err)

	require.NoError(t, svc.Close("user-1", view.SessionID))
	assert.Equal(t, 0, svc.Count())
	assert.Error(t, svc.Close("user-1", view.SessionID))
}
