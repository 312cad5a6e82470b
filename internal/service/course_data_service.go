package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-grades-api/internal/models"
	appErrors "github.com/noah-isme/course-grades-api/pkg/errors"
)

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type gradingPeriodReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.GradingPeriod, error)
}

type assignmentGroupReader interface {
	ListWithAssignments(ctx context.Context, courseID, gradingPeriodID string) ([]models.AssignmentGroup, error)
}

type enrollmentLister interface {
	ListForUserInCourse(ctx context.Context, courseID, userID string) ([]models.Enrollment, error)
	ListForGradingPeriod(ctx context.Context, courseID, userID, gradingPeriodID string) ([]models.Enrollment, error)
	ListObservees(ctx context.Context, observerID string) ([]models.Enrollment, error)
}

type submissionLister interface {
	ListForAssignments(ctx context.Context, userID string, assignmentIDs []string) ([]models.Submission, error)
}

// CourseDataServiceParams groups the collaborators of CourseDataService.
type CourseDataServiceParams struct {
	Courses        courseReader
	GradingPeriods gradingPeriodReader
	Groups         assignmentGroupReader
	Enrollments    enrollmentLister
	Submissions    submissionLister
	Cache          *CacheService
	CacheTTL       time.Duration
	Logger         *zap.Logger
}

// CourseDataService serves course grade data from Postgres with a Redis cache in front
// of the slow changing parts. Submissions and enrollment grades are always read live.
type CourseDataService struct {
	courses     courseReader
	periods     gradingPeriodReader
	groups      assignmentGroupReader
	enrollments enrollmentLister
	submissions submissionLister
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewCourseDataService constructs the data service.
func NewCourseDataService(params CourseDataServiceParams) *CourseDataService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseDataService{
		courses:     params.Courses,
		periods:     params.GradingPeriods,
		groups:      params.Groups,
		enrollments: params.Enrollments,
		submissions: params.Submissions,
		cache:       params.Cache,
		cacheTTL:    params.CacheTTL,
		logger:      logger,
	}
}

// FetchCourseWithGrade returns the course with the caller's enrollments. A course the
// user is not enrolled in is reported as not found.
func (s *CourseDataService) FetchCourseWithGrade(ctx context.Context, courseID, userID string, forceNetwork bool) (*models.Course, error) {
	key := CacheKey("course", courseID, "user", userID)
	if !forceNetwork {
		var cached models.Course
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, err
	}
	enrollments, err := s.enrollments.ListForUserInCourse(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if len(enrollments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	course.Enrollments = enrollments

	s.store(ctx, key, course)
	return course, nil
}

// FetchGradingPeriods returns the course's grading periods.
func (s *CourseDataService) FetchGradingPeriods(ctx context.Context, courseID string, forceNetwork bool) ([]models.GradingPeriod, error) {
	key := CacheKey("course", courseID, "grading_periods")
	if !forceNetwork {
		var cached []models.GradingPeriod
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	periods, err := s.periods.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, periods)
	return periods, nil
}

// FetchAssignmentGroups returns the course's groups, scoped to a grading period when
// gradingPeriodID is set. With a userID the user's submissions are bundled into the
// assignments; without one assignments carry no submission.
func (s *CourseDataService) FetchAssignmentGroups(ctx context.Context, courseID, userID, gradingPeriodID string, forceNetwork bool) ([]models.AssignmentGroup, error) {
	scope := gradingPeriodID
	if scope == "" {
		scope = "all"
	}
	key := CacheKey("course", courseID, "assignment_groups", scope)

	var groups []models.AssignmentGroup
	hit := false
	if !forceNetwork {
		hit, _ = s.cache.Get(ctx, key, &groups)
	}
	if !hit {
		loaded, err := s.groups.ListWithAssignments(ctx, courseID, gradingPeriodID)
		if err != nil {
			return nil, err
		}
		groups = loaded
		s.store(ctx, key, groups)
	}
	if userID == "" {
		return groups, nil
	}

	ids := assignmentIDs(groups)
	if len(ids) == 0 {
		return groups, nil
	}
	submissions, err := s.submissions.ListForAssignments(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	return mergeSubmissions(groups, submissions), nil
}

// FetchUserEnrollmentsForGradingPeriod returns the user's enrollments carrying the grades
// computed for one grading period.
func (s *CourseDataService) FetchUserEnrollmentsForGradingPeriod(ctx context.Context, courseID, userID, gradingPeriodID string, forceNetwork bool) ([]models.Enrollment, error) {
	return s.enrollments.ListForGradingPeriod(ctx, courseID, userID, gradingPeriodID)
}

// FetchObserveeEnrollments returns the observer's enrollments that point at a student.
func (s *CourseDataService) FetchObserveeEnrollments(ctx context.Context, observerID string, forceNetwork bool) ([]models.Enrollment, error) {
	return s.enrollments.ListObservees(ctx, observerID)
}

// FetchSubmissionsForAssignments returns a student's submissions for the given assignments.
func (s *CourseDataService) FetchSubmissionsForAssignments(ctx context.Context, studentID, courseID string, assignmentIDs []string, forceNetwork bool) ([]models.Submission, error) {
	submissions, err := s.submissions.ListForAssignments(ctx, studentID, assignmentIDs)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("submissions batch loaded",
		zap.String("course_id", courseID),
		zap.Int("requested", len(assignmentIDs)),
		zap.Int("found", len(submissions)))
	return submissions, nil
}

func (s *CourseDataService) store(ctx context.Context, key string, value interface{}) {
	// Cache failures are logged by the cache service and never fail a fetch.
	_ = s.cache.Set(ctx, key, value, s.cacheTTL)
}

func assignmentIDs(groups []models.AssignmentGroup) []string {
	var ids []string
	for _, group := range groups {
		for _, assignment := range group.Assignments {
			ids = append(ids, assignment.ID)
		}
	}
	return ids
}

// mergeSubmissions attaches submissions to their assignments and returns new groups.
func mergeSubmissions(groups []models.AssignmentGroup, submissions []models.Submission) []models.AssignmentGroup {
	byAssignment := make(map[string]models.Submission, len(submissions))
	for _, submission := range submissions {
		byAssignment[submission.AssignmentID] = submission
	}
	merged := models.CloneGroups(groups)
	for gi := range merged {
		for ai := range merged[gi].Assignments {
			assignment := &merged[gi].Assignments[ai]
			if submission, ok := byAssignment[assignment.ID]; ok {
				sub := submission.Clone()
				assignment.Submission = &sub
			} else {
				assignment.Submission = nil
			}
		}
	}
	return merged
}
