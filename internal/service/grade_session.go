package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/course-grades-api/internal/grading"
	"github.com/noah-isme/course-grades-api/internal/models"
	appErrors "github.com/noah-isme/course-grades-api/pkg/errors"
)

// GradeDataSource provides the course data a grade session needs. An empty
// gradingPeriodID means unscoped; an empty userID returns assignments without submissions.
type GradeDataSource interface {
	FetchCourseWithGrade(ctx context.Context, courseID, userID string, forceNetwork bool) (*models.Course, error)
	FetchGradingPeriods(ctx context.Context, courseID string, forceNetwork bool) ([]models.GradingPeriod, error)
	FetchAssignmentGroups(ctx context.Context, courseID, userID, gradingPeriodID string, forceNetwork bool) ([]models.AssignmentGroup, error)
	FetchUserEnrollmentsForGradingPeriod(ctx context.Context, courseID, userID, gradingPeriodID string, forceNetwork bool) ([]models.Enrollment, error)
	FetchObserveeEnrollments(ctx context.Context, observerID string, forceNetwork bool) ([]models.Enrollment, error)
	FetchSubmissionsForAssignments(ctx context.Context, studentID, courseID string, assignmentIDs []string, forceNetwork bool) ([]models.Submission, error)
}

type gradeEventPublisher interface {
	Publish(event models.GradeRecomputedEvent)
}

const (
	recomputeTriggerLoad       = "load"
	recomputeTriggerWhatIf     = "what_if"
	recomputeTriggerWhatIfMode = "what_if_mode"
	recomputeTriggerGradedOnly = "graded_only"
)

var errSessionClosed = appErrors.Clone(appErrors.ErrNotFound, "grade session not found")

// sourceGrade is what the selected grade source reports besides the assignment list.
type sourceGrade struct {
	score  *float64
	letter *string
	locked bool
	// empty marks an observer without a resolvable student.
	empty bool
}

// gradeSnapshot is the outcome of one load cycle, assembled off the session lock.
type gradeSnapshot struct {
	course    models.Course
	role      models.EnrollmentRole
	multiple  bool
	periods   []models.GradingPeriod
	selected  models.GradingPeriod
	groups    []models.AssignmentGroup
	grade     sourceGrade
	studentID string
}

type loadRequest struct {
	force   bool
	period  *models.GradingPeriod
	periods []models.GradingPeriod
}

// GradeSessionParams groups the collaborators of a GradeSession.
type GradeSessionParams struct {
	ID       string
	CourseID string
	UserID   string
	Source   GradeDataSource
	Events   gradeEventPublisher
	Metrics  *MetricsService
	Logger   *zap.Logger
	Now      func() time.Time
}

// GradeSession owns the grade state of one course screen. All state is guarded by mu;
// fetches run without the lock and their results are applied only while their
// generation is current.
type GradeSession struct {
	id       string
	courseID string
	userID   string
	data     GradeDataSource
	events   gradeEventPublisher
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
	tasks    *grading.TaskRegistry

	mu         sync.Mutex
	selector   *grading.Selector
	whatIf     *grading.OverrideStore
	gradedOnly bool
	loaded     bool
	loading    bool
	closed     bool
	lastUsed   time.Time

	course    models.Course
	role      models.EnrollmentRole
	multiple  bool
	periods   []models.GradingPeriod
	selected  models.GradingPeriod
	groups    []models.AssignmentGroup
	tallies   []grading.GroupTally
	grade     sourceGrade
	studentID string
	locked    bool
	result    models.CourseGradeResult
	displayed *string
}

// NewGradeSession builds an unloaded session.
func NewGradeSession(params GradeSessionParams) *GradeSession {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &GradeSession{
		id:       params.ID,
		courseID: params.CourseID,
		userID:   params.UserID,
		data:     params.Source,
		events:   params.Events,
		metrics:  params.Metrics,
		logger:   logger.With(zap.String("session_id", params.ID), zap.String("course_id", params.CourseID)),
		now:      now,
		tasks:    grading.NewTaskRegistry(),
		selector: grading.NewSelector(),
		whatIf:   grading.NewOverrideStore(),
		selected: models.AllGradingPeriods(),
		lastUsed: now(),
	}
}

// ID returns the session identifier.
func (s *GradeSession) ID() string {
	return s.id
}

// UserID returns the owner of the session.
func (s *GradeSession) UserID() string {
	return s.userID
}

// LastUsed returns the time of the last client interaction.
func (s *GradeSession) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Load fetches course data and computes the grade for the current selection. The first
// load picks the default grading period.
func (s *GradeSession) Load(ctx context.Context) (models.GradeView, error) {
	return s.reload(ctx, false)
}

// Refresh reloads the current selection bypassing caches. The displayed state stays
// in place until the new data arrives.
func (s *GradeSession) Refresh(ctx context.Context) (models.GradeView, error) {
	return s.reload(ctx, true)
}

func (s *GradeSession) reload(ctx context.Context, force bool) (models.GradeView, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.GradeView{}, errSessionClosed
	}
	s.touchLocked()
	req := loadRequest{force: force, periods: s.periods}
	if s.loaded {
		selected := s.selected
		req.period = &selected
	}
	gen := s.tasks.Advance()
	s.loading = true
	s.mu.Unlock()

	return s.run(ctx, gen, req)
}

// SelectGradingPeriod switches the grading period. An empty ID selects all periods.
// Every fetch of the previous selection is cancelled and retained data is cleared
// before the new fetch begins.
func (s *GradeSession) SelectGradingPeriod(ctx context.Context, gradingPeriodID string) (models.GradeView, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.GradeView{}, errSessionClosed
	}
	s.touchLocked()
	if !s.loaded {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, appErrors.Clone(appErrors.ErrValidation, "grades are still loading")
	}
	target, ok := s.periodLocked(gradingPeriodID)
	if !ok {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, appErrors.Clone(appErrors.ErrValidation, "unknown grading period")
	}

	s.resetLocked()
	s.selected = target
	gen := s.tasks.Advance()
	s.loading = true
	req := loadRequest{period: &target, periods: s.periods}
	s.mu.Unlock()

	return s.run(ctx, gen, req)
}

// SetWhatIfMode turns what-if grading on or off. Turning it off drops every override.
func (s *GradeSession) SetWhatIfMode(enabled bool) (models.GradeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.GradeView{}, errSessionClosed
	}
	s.touchLocked()
	if enabled {
		if !s.loaded {
			return s.viewLocked(), appErrors.Clone(appErrors.ErrValidation, "grades are still loading")
		}
		if !grading.WhatIfAllowed(s.course, s.groups, s.locked) {
			return s.viewLocked(), appErrors.Clone(appErrors.ErrForbidden, "what-if grading is not available for this course")
		}
	}
	if s.whatIf.IsActive() == enabled {
		return s.viewLocked(), nil
	}
	s.whatIf.SetEnabled(enabled)
	if s.loaded {
		s.recomputeLocked(recomputeTriggerWhatIfMode)
	}
	return s.viewLocked(), nil
}

// SetGradedOnly switches between counting only graded work and counting everything.
func (s *GradeSession) SetGradedOnly(gradedOnly bool) (models.GradeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.GradeView{}, errSessionClosed
	}
	s.touchLocked()
	if s.gradedOnly == gradedOnly {
		return s.viewLocked(), nil
	}
	s.gradedOnly = gradedOnly
	if s.loaded {
		s.recomputeLocked(recomputeTriggerGradedOnly)
	}
	return s.viewLocked(), nil
}

// SetWhatIfScore stores or clears (nil score) a hypothetical score and recomputes the
// grade from the affected group. Writes while what-if mode is off are ignored and
// return no event.
func (s *GradeSession) SetWhatIfScore(assignmentID string, score *float64) (models.GradeView, *models.GradeRecomputedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.GradeView{}, nil, errSessionClosed
	}
	s.touchLocked()
	if !s.whatIf.IsActive() {
		return s.viewLocked(), nil, nil
	}
	position, groupIndex, ok := grading.ListPosition(s.groups, assignmentID)
	if !ok {
		return s.viewLocked(), nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	if !s.whatIf.Set(assignmentID, score) {
		return s.viewLocked(), nil, nil
	}

	s.tallies[groupIndex] = grading.TallyGroup(s.groups[groupIndex], s.policyLocked(), s.whatIf.Lookup())
	s.refreshResultLocked()
	s.metrics.RecordRecompute(recomputeTriggerWhatIf)

	event := models.GradeRecomputedEvent{
		SessionID:       s.id,
		CourseID:        s.courseID,
		ChangedPosition: &position,
		DisplayedGrade:  copyString(s.displayed),
	}
	if s.events != nil {
		s.events.Publish(event)
	}
	return s.viewLocked(), &event, nil
}

// View returns a deep copy of the current state.
func (s *GradeSession) View() models.GradeView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	return s.viewLocked()
}

// Close cancels every in-flight fetch. Results arriving afterwards are discarded.
func (s *GradeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.tasks.CancelAll()
	s.loading = false
	s.groups = nil
	s.tallies = nil
}

func (s *GradeSession) run(ctx context.Context, gen uint64, req loadRequest) (models.GradeView, error) {
	snap, err := s.fetch(ctx, gen, req)
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.tasks.Current(gen) {
		return s.viewLocked(), grading.ErrCancelled
	}
	s.applyLocked(snap)
	s.recomputeLocked(recomputeTriggerLoad)
	s.loading = false
	return s.viewLocked(), nil
}

func (s *GradeSession) fail(gen uint64, err error) (models.GradeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := !s.closed && s.tasks.Current(gen)
	if current {
		s.loading = false
	}
	if !current || errors.Is(err, grading.ErrCancelled) {
		return s.viewLocked(), grading.ErrCancelled
	}

	s.logger.Warn("grade load failed", zap.Error(err))
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return s.viewLocked(), appErr
	}
	return s.viewLocked(), appErrors.Wrap(err, appErrors.ErrLoadFailed.Code, appErrors.ErrLoadFailed.Status, appErrors.ErrLoadFailed.Message)
}

// step runs one fetch under a registered task. A result that arrives after the task
// was superseded is reported as ErrCancelled regardless of its error.
func (s *GradeSession) step(ctx context.Context, gen uint64, stream grading.Stream, fetch func(ctx context.Context) error) error {
	task, err := s.tasks.Start(ctx, stream, gen)
	if err != nil {
		return err
	}
	defer task.Done()

	start := time.Now()
	err = fetch(task.Context())
	if !task.Live() {
		s.metrics.ObserveFetch(string(stream), FetchOutcomeCancelled, time.Since(start))
		return grading.ErrCancelled
	}
	if err != nil {
		s.metrics.ObserveFetch(string(stream), FetchOutcomeError, time.Since(start))
		return err
	}
	s.metrics.ObserveFetch(string(stream), FetchOutcomeSuccess, time.Since(start))
	return nil
}

func (s *GradeSession) fetch(ctx context.Context, gen uint64, req loadRequest) (*gradeSnapshot, error) {
	var course *models.Course
	err := s.step(ctx, gen, grading.StreamCourse, func(ctx context.Context) error {
		var err error
		course, err = s.data.FetchCourseWithGrade(ctx, s.courseID, s.userID, req.force)
		return err
	})
	if err != nil {
		return nil, err
	}

	enrollment := primaryEnrollment(*course, s.userID)
	snap := &gradeSnapshot{
		course:   *course,
		role:     enrollment.Role,
		multiple: enrollment.MultipleGradingPeriodsEnabled,
	}

	switch {
	case !course.HasGradingPeriods:
		snap.periods = []models.GradingPeriod{}
	case req.periods != nil && !req.force:
		snap.periods = req.periods
	default:
		err := s.step(ctx, gen, grading.StreamGradingPeriods, func(ctx context.Context) error {
			var err error
			snap.periods, err = s.data.FetchGradingPeriods(ctx, s.courseID, req.force)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	snap.selected = defaultGradingPeriod(enrollment, snap.periods)
	if req.period != nil {
		if period, ok := findGradingPeriod(snap.periods, *req.period); ok {
			snap.selected = period
		}
	}

	periodID := ""
	if !snap.selected.IsAllPeriods {
		periodID = snap.selected.ID
	}
	state := grading.Resolve(grading.SelectorInput{Role: snap.role, MultipleGradingPeriods: snap.multiple, SelectedPeriod: snap.selected})

	if state == models.GradeSourceObserverAggregate {
		err = s.fetchObserved(ctx, gen, snap, periodID, req.force)
	} else {
		err = s.fetchOwn(ctx, gen, snap, enrollment, state, periodID, req.force)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// fetchOwn loads the caller's own assignments and, for a specific period, the period
// grade in parallel.
func (s *GradeSession) fetchOwn(ctx context.Context, gen uint64, snap *gradeSnapshot, enrollment models.Enrollment, state models.GradeSourceState, periodID string, force bool) error {
	var groups []models.AssignmentGroup
	var periodEnrollments []models.Enrollment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.step(gctx, gen, grading.StreamAssignmentGroups, func(ctx context.Context) error {
			var err error
			groups, err = s.data.FetchAssignmentGroups(ctx, s.courseID, s.userID, periodID, force)
			return err
		})
	})
	if state == models.GradeSourceSpecificPeriodEnrollmentGrade {
		g.Go(func() error {
			return s.step(gctx, gen, grading.StreamPeriodEnrollments, func(ctx context.Context) error {
				var err error
				periodEnrollments, err = s.data.FetchUserEnrollmentsForGradingPeriod(ctx, s.courseID, s.userID, periodID, force)
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	snap.groups = groups
	snap.studentID = s.userID
	if state == models.GradeSourceSpecificPeriodEnrollmentGrade {
		snap.grade = periodGrade(periodEnrollments, s.userID)
	} else {
		snap.grade = enrollmentGrade(enrollment)
	}
	return nil
}

// fetchObserved resolves the observed student, then loads assignments without
// submissions and merges the student's submissions fetched in one batch.
func (s *GradeSession) fetchObserved(ctx context.Context, gen uint64, snap *gradeSnapshot, periodID string, force bool) error {
	var observees []models.Enrollment
	err := s.step(ctx, gen, grading.StreamObservee, func(ctx context.Context) error {
		var err error
		observees, err = s.data.FetchObserveeEnrollments(ctx, s.userID, force)
		return err
	})
	if err != nil {
		return err
	}

	observed, ok := resolveObservee(observees, s.courseID)
	if !ok {
		snap.groups = []models.AssignmentGroup{}
		snap.grade = sourceGrade{locked: true, empty: true}
		return nil
	}
	snap.studentID = *observed.ObservedUserID

	var groups []models.AssignmentGroup
	err = s.step(ctx, gen, grading.StreamAssignmentGroups, func(ctx context.Context) error {
		var err error
		groups, err = s.data.FetchAssignmentGroups(ctx, s.courseID, "", periodID, force)
		return err
	})
	if err != nil {
		return err
	}

	if ids := assignmentIDs(groups); len(ids) > 0 {
		var submissions []models.Submission
		err = s.step(ctx, gen, grading.StreamSubmissions, func(ctx context.Context) error {
			var err error
			submissions, err = s.data.FetchSubmissionsForAssignments(ctx, snap.studentID, s.courseID, ids, force)
			return err
		})
		if err != nil {
			return err
		}
		groups = mergeSubmissions(groups, submissions)
	}

	snap.groups = groups
	snap.grade = enrollmentGrade(observed)
	return nil
}

func (s *GradeSession) applyLocked(snap *gradeSnapshot) {
	s.course = snap.course
	s.role = snap.role
	s.multiple = snap.multiple
	s.periods = snap.periods
	s.selected = snap.selected
	s.groups = snap.groups
	if s.groups == nil {
		s.groups = []models.AssignmentGroup{}
	}
	s.grade = snap.grade
	s.studentID = snap.studentID
	s.loaded = true
	s.selector.Enter(grading.SelectorInput{Role: s.role, MultipleGradingPeriods: s.multiple, SelectedPeriod: s.selected})

	for _, override := range s.whatIf.Overrides() {
		if _, _, ok := grading.ListPosition(s.groups, override.AssignmentID); !ok {
			s.whatIf.Set(override.AssignmentID, nil)
		}
	}
}

// resetLocked drops everything retained from the previous selection.
func (s *GradeSession) resetLocked() {
	s.selector.Reset()
	s.groups = []models.AssignmentGroup{}
	s.tallies = nil
	s.grade = sourceGrade{}
	s.studentID = ""
	s.whatIf.Clear()
	s.result = models.CourseGradeResult{}
	s.displayed = nil
}

// recomputeLocked re-tallies every group. Lock state is settled first so what-if can
// be suppressed before any override is applied.
func (s *GradeSession) recomputeLocked(trigger string) {
	s.locked = grading.IsLocked(s.course, s.selected, s.grade.locked)
	if s.whatIf.IsActive() && !grading.WhatIfAllowed(s.course, s.groups, s.locked) {
		s.whatIf.SetEnabled(false)
	}

	policy := s.policyLocked()
	lookup := s.whatIf.Lookup()
	s.tallies = make([]grading.GroupTally, len(s.groups))
	for i := range s.groups {
		s.tallies[i] = grading.TallyGroup(s.groups[i], policy, lookup)
	}
	s.refreshResultLocked()
	s.metrics.RecordRecompute(trigger)
}

func (s *GradeSession) refreshResultLocked() {
	var score *float64
	letter := ""
	switch {
	case s.grade.empty, s.selector.State() == models.GradeSourceUninitialized:
	case s.selector.State() == models.GradeSourceSpecificPeriodEnrollmentGrade && !s.whatIf.IsActive():
		score = copyFloat(s.grade.score)
		if s.grade.letter != nil {
			letter = *s.grade.letter
		} else if score != nil {
			letter = s.course.GradingScheme.Letter(*score)
		}
	default:
		value := grading.Reduce(s.tallies, s.policyLocked())
		score = &value
		letter = s.course.GradingScheme.Letter(value)
	}

	restrict := s.course.Settings.RestrictQuantitativeData
	s.result = models.CourseGradeResult{
		HasFinalGradeString:      letter != "",
		Locked:                   s.locked,
		RestrictQuantitativeData: restrict,
	}
	if s.locked {
		s.displayed = nil
		return
	}
	if !restrict {
		s.result.CurrentScore = copyFloat(score)
	}
	s.displayed = grading.FormatGrade(score, letter, restrict)
}

func (s *GradeSession) policyLocked() grading.Policy {
	return grading.Policy{Weighted: s.course.ApplyAssignmentGroupWeights, GradedOnly: s.gradedOnly}
}

func (s *GradeSession) periodLocked(id string) (models.GradingPeriod, bool) {
	if id == "" {
		return models.AllGradingPeriods(), true
	}
	for _, period := range s.periods {
		if period.ID == id {
			return period, true
		}
	}
	return models.GradingPeriod{}, false
}

func (s *GradeSession) touchLocked() {
	s.lastUsed = s.now()
}

func (s *GradeSession) viewLocked() models.GradeView {
	periods := []models.GradingPeriod{}
	if s.course.HasGradingPeriods && len(s.periods) > 0 {
		periods = append(periods, models.AllGradingPeriods())
		for _, period := range s.periods {
			periods = append(periods, clonePeriod(period))
		}
	}
	groups := models.CloneGroups(s.groups)
	if groups == nil {
		groups = []models.AssignmentGroup{}
	}
	result := s.result
	result.CurrentScore = copyFloat(s.result.CurrentScore)

	return models.GradeView{
		SessionID:               s.id,
		CourseID:                s.courseID,
		CourseName:              s.course.Name,
		State:                   s.selector.State(),
		DisplayedGrade:          copyString(s.displayed),
		Grade:                   result,
		Locked:                  s.locked,
		GradingPeriods:          periods,
		SelectedGradingPeriodID: s.selected.ID,
		AssignmentGroups:        groups,
		WhatIfActive:            s.whatIf.IsActive(),
		WhatIfAllowed:           s.loaded && grading.WhatIfAllowed(s.course, s.groups, s.locked),
		WhatIfOverrides:         s.whatIf.Overrides(),
		GradedOnly:              s.gradedOnly,
		Loading:                 s.loading,
	}
}

// primaryEnrollment picks the enrollment that decides the session role: student first,
// then observer, then anything else the user holds.
func primaryEnrollment(course models.Course, userID string) models.Enrollment {
	if enrollment, ok := course.EnrollmentFor(userID, models.EnrollmentRoleStudent); ok {
		return enrollment
	}
	if enrollment, ok := course.EnrollmentFor(userID, models.EnrollmentRoleObserver); ok {
		return enrollment
	}
	for _, enrollment := range course.Enrollments {
		if enrollment.UserID == userID {
			return enrollment
		}
	}
	return models.Enrollment{UserID: userID}
}

// resolveObservee returns the first observer enrollment in the course that points at a student.
func resolveObservee(enrollments []models.Enrollment, courseID string) (models.Enrollment, bool) {
	for _, enrollment := range enrollments {
		if enrollment.CourseID == courseID && enrollment.ObservedUserID != nil && *enrollment.ObservedUserID != "" {
			return enrollment, true
		}
	}
	return models.Enrollment{}, false
}

func defaultGradingPeriod(enrollment models.Enrollment, periods []models.GradingPeriod) models.GradingPeriod {
	if enrollment.MultipleGradingPeriodsEnabled && enrollment.CurrentGradingPeriodID != nil {
		for _, period := range periods {
			if period.ID == *enrollment.CurrentGradingPeriodID {
				return period
			}
		}
	}
	return models.AllGradingPeriods()
}

func findGradingPeriod(periods []models.GradingPeriod, want models.GradingPeriod) (models.GradingPeriod, bool) {
	if want.IsAllPeriods {
		return models.AllGradingPeriods(), true
	}
	for _, period := range periods {
		if period.ID == want.ID {
			return period, true
		}
	}
	return models.GradingPeriod{}, false
}

func enrollmentGrade(enrollment models.Enrollment) sourceGrade {
	if enrollment.Grades == nil {
		return sourceGrade{}
	}
	return sourceGrade{
		score:  enrollment.Grades.CurrentScore,
		letter: enrollment.Grades.CurrentGrade,
		locked: enrollment.Grades.Locked,
	}
}

func periodGrade(enrollments []models.Enrollment, userID string) sourceGrade {
	for _, enrollment := range enrollments {
		if enrollment.UserID == userID && enrollment.IsStudent() {
			return enrollmentGrade(enrollment)
		}
	}
	return sourceGrade{}
}

func clonePeriod(period models.GradingPeriod) models.GradingPeriod {
	out := period
	if period.StartDate != nil {
		start := *period.StartDate
		out.StartDate = &start
	}
	if period.EndDate != nil {
		end := *period.EndDate
		out.EndDate = &end
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
