package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-grades-api/internal/models"
	appErrors "github.com/noah-isme/course-grades-api/pkg/errors"
)

type memoryCacheRepo struct {
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

type stubCourseRepo struct {
	course *models.Course
	err    error
	calls  int
}

func (s *stubCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	course := *s.course
	return &course, nil
}

type stubPeriodRepo struct {
	periods []models.GradingPeriod
	calls   int
}

func (s *stubPeriodRepo) ListByCourse(ctx context.Context, courseID string) ([]models.GradingPeriod, error) {
	s.calls++
	return s.periods, nil
}

type stubGroupRepo struct {
	groups []models.AssignmentGroup
	scopes []string
}

func (s *stubGroupRepo) ListWithAssignments(ctx context.Context, courseID, gradingPeriodID string) ([]models.AssignmentGroup, error) {
	s.scopes = append(s.scopes, gradingPeriodID)
	return models.CloneGroups(s.groups), nil
}

type stubEnrollmentRepo struct {
	course    []models.Enrollment
	period    []models.Enrollment
	observees []models.Enrollment
}

func (s *stubEnrollmentRepo) ListForUserInCourse(ctx context.Context, courseID, userID string) ([]models.Enrollment, error) {
	return s.course, nil
}

func (s *stubEnrollmentRepo) ListForGradingPeriod(ctx context.Context, courseID, userID, gradingPeriodID string) ([]models.Enrollment, error) {
	return s.period, nil
}

func (s *stubEnrollmentRepo) ListObservees(ctx context.Context, observerID string) ([]models.Enrollment, error) {
	return s.observees, nil
}

type stubSubmissionRepo struct {
	submissions []models.Submission
	requested   [][]string
	err         error
}

func (s *stubSubmissionRepo) ListForAssignments(ctx context.Context, userID string, assignmentIDs []string) ([]models.Submission, error) {
	s.requested = append(s.requested, assignmentIDs)
	if s.err != nil {
		return nil, s.err
	}
	return s.submissions, nil
}

func newTestDataService(courses *stubCourseRepo, groups *stubGroupRepo, enrollments *stubEnrollmentRepo, submissions *stubSubmissionRepo) (*CourseDataService, *stubPeriodRepo, *memoryCacheRepo) {
	cacheRepo := newMemoryCacheRepo()
	periods := &stubPeriodRepo{periods: []models.GradingPeriod{{ID: "gp-1", Title: "Quarter 1"}}}
	svc := NewCourseDataService(CourseDataServiceParams{
		Courses:        courses,
		GradingPeriods: periods,
		Groups:         groups,
		Enrollments:    enrollments,
		Submissions:    submissions,
		Cache:          NewCacheService(cacheRepo, NewMetricsService(), time.Minute, nil, true),
	})
	return svc, periods, cacheRepo
}

func TestCourseDataServiceCachesCourse(t *testing.T) {
	courses := &stubCourseRepo{course: &models.Course{ID: "course-1", Name: "Biology", HasGradingPeriods: true}}
	enrollments := &stubEnrollmentRepo{course: []models.Enrollment{{ID: "enr-1", UserID: "user-1", Role: models.EnrollmentRoleStudent}}}
	svc, _, _ := newTestDataService(courses, &stubGroupRepo{}, enrollments, &stubSubmissionRepo{})

	first, err := svc.FetchCourseWithGrade(context.Background(), "course-1", "user-1", false)
	require.NoError(t, err)
	require.Len(t, first.Enrollments, 1)

	second, err := svc.FetchCourseWithGrade(context.Background(), "course-1", "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, courses.calls)

	_, err = svc.FetchCourseWithGrade(context.Background(), "course-1", "user-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, courses.calls)
}

func TestCourseDataServiceCourseNotFound(t *testing.T) {
	courses := &stubCourseRepo{err: sql.ErrNoRows}
	svc, _, _ := newTestDataService(courses, &stubGroupRepo{}, &stubEnrollmentRepo{}, &stubSubmissionRepo{})

	_, err := svc.FetchCourseWithGrade(context.Background(), "missing", "user-1", false)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCourseDataServiceRequiresEnrollment(t *testing.T) {
	courses := &stubCourseRepo{course: &models.Course{ID: "course-1"}}
	svc, _, _ := newTestDataService(courses, &stubGroupRepo{}, &stubEnrollmentRepo{}, &stubSubmissionRepo{})

	_, err := svc.FetchCourseWithGrade(context.Background(), "course-1", "stranger", false)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCourseDataServiceGradingPeriodsForceNetwork(t *testing.T) {
	svc, periods, _ := newTestDataService(&stubCourseRepo{}, &stubGroupRepo{}, &stubEnrollmentRepo{}, &stubSubmissionRepo{})

	_, err := svc.FetchGradingPeriods(context.Background(), "course-1", false)
	require.NoError(t, err)
	_, err = svc.FetchGradingPeriods(context.Background(), "course-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, periods.calls)

	_, err = svc.FetchGradingPeriods(context.Background(), "course-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, periods.calls)
}

func TestCourseDataServiceBundlesSubmissions(t *testing.T) {
	groups := &stubGroupRepo{groups: []models.AssignmentGroup{{
		ID: "g-1",
		Assignments: []models.Assignment{
			{ID: "a-1", PointsPossible: 10},
			{ID: "a-2", PointsPossible: 10},
		},
	}}}
	grade := "8"
	score := 8.0
	submissions := &stubSubmissionRepo{submissions: []models.Submission{{AssignmentID: "a-1", Score: &score, Grade: &grade}}}
	svc, _, cacheRepo := newTestDataService(&stubCourseRepo{}, groups, &stubEnrollmentRepo{}, submissions)

	result, err := svc.FetchAssignmentGroups(context.Background(), "course-1", "user-1", "gp-1", false)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.NotNil(t, result[0].Assignments[0].Submission)
	assert.Equal(t, 8.0, *result[0].Assignments[0].Submission.Score)
	assert.Nil(t, result[0].Assignments[1].Submission)
	assert.Equal(t, [][]string{{"a-1", "a-2"}}, submissions.requested)
	assert.Equal(t, []string{"gp-1"}, groups.scopes)

	// Cached groups never carry submissions.
	var cached []models.AssignmentGroup
	require.NoError(t, cacheRepo.Get(context.Background(), CacheKey("course", "course-1", "assignment_groups", "gp-1"), &cached))
	assert.Nil(t, cached[0].Assignments[0].Submission)
}

func TestCourseDataServiceUnbundledGroups(t *testing.T) {
	groups := &stubGroupRepo{groups: []models.AssignmentGroup{{ID: "g-1", Assignments: []models.Assignment{{ID: "a-1"}}}}}
	submissions := &stubSubmissionRepo{}
	svc, _, _ := newTestDataService(&stubCourseRepo{}, groups, &stubEnrollmentRepo{}, submissions)

	result, err := svc.FetchAssignmentGroups(context.Background(), "course-1", "", "", false)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Empty(t, submissions.requested)
	assert.Equal(t, []string{""}, groups.scopes)
}

func TestCourseDataServicePropagatesSubmissionErrors(t *testing.T) {
	groups := &stubGroupRepo{groups: []models.AssignmentGroup{{ID: "g-1", Assignments: []models.Assignment{{ID: "a-1"}}}}}
	boom := errors.New("db down")
	svc, _, _ := newTestDataService(&stubCourseRepo{}, groups, &stubEnrollmentRepo{}, &stubSubmissionRepo{err: boom})

	_, err := svc.FetchSubmissionsForAssignments(context.Background(), "student-1", "course-1", []string{"a-1"}, false)
	assert.ErrorIs(t, err, boom)
}
