package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-grades-api/internal/dto"
	"github.com/noah-isme/course-grades-api/internal/grading"
	"github.com/noah-isme/course-grades-api/internal/models"
	appErrors "github.com/noah-isme/course-grades-api/pkg/errors"
)

const defaultMaxWhatIfScore = 10000

// GradeSessionServiceParams groups the collaborators of GradeSessionService.
type GradeSessionServiceParams struct {
	Source    GradeDataSource
	Events    gradeEventPublisher
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	IdleTTL   time.Duration
	MaxScore  float64
	Now       func() time.Time
}

// GradeSessionService keeps the open grade sessions and routes client operations to them.
type GradeSessionService struct {
	source    GradeDataSource
	events    gradeEventPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	idleTTL   time.Duration
	maxScore  float64
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*GradeSession
}

// NewGradeSessionService constructs the service.
func NewGradeSessionService(params GradeSessionServiceParams) *GradeSessionService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	maxScore := params.MaxScore
	if maxScore <= 0 {
		maxScore = defaultMaxWhatIfScore
	}
	idleTTL := params.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &GradeSessionService{
		source:    params.Source,
		events:    params.Events,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		idleTTL:   idleTTL,
		maxScore:  maxScore,
		now:       now,
		sessions:  make(map[string]*GradeSession),
	}
}

// Create opens a session for the user on the course and performs the initial load.
// A session whose first load fails is discarded.
func (s *GradeSessionService) Create(ctx context.Context, userID, courseID string) (models.GradeView, error) {
	if courseID == "" {
		return models.GradeView{}, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	session := NewGradeSession(GradeSessionParams{
		ID:       uuid.NewString(),
		CourseID: courseID,
		UserID:   userID,
		Source:   s.source,
		Events:   s.events,
		Metrics:  s.metrics,
		Logger:   s.logger,
		Now:      s.now,
	})
	s.add(session)

	view, err := session.Load(ctx)
	if err != nil && !errors.Is(err, grading.ErrCancelled) {
		s.remove(session.ID())
		session.Close()
		return models.GradeView{}, err
	}
	s.logger.Info("grade session opened",
		zap.String("session_id", session.ID()),
		zap.String("course_id", courseID),
		zap.String("user_id", userID))
	return view, err
}

// Get returns the current view of a session.
func (s *GradeSessionService) Get(userID, sessionID string) (models.GradeView, error) {
	session, err := s.session(userID, sessionID)
	if err != nil {
		return models.GradeView{}, err
	}
	return session.View(), nil
}

// SelectGradingPeriod switches the session's grading period.
func (s *GradeSessionService) SelectGradingPeriod(ctx context.Context, userID, sessionID string, req dto.SelectGradingPeriodRequest) (models.GradeView, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.GradeView{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading period payload")
	}
	session, err := s.session(userID, sessionID)
	if err != nil {
		return models.GradeView{}, err
	}
	return session.SelectGradingPeriod(ctx, req.GradingPeriodID)
}

// Refresh reloads the session bypassing caches.
func (s *GradeSessionService) Refresh(ctx context.Context, userID, sessionID string) (models.GradeView, error) {
	session, err := s.session(userID, sessionID)
	if err != nil {
		return models.GradeView{}, err
	}
	return session.Refresh(ctx)
}

// SetWhatIfMode toggles what-if grading.
func (s *GradeSessionService) SetWhatIfMode(userID, sessionID string, req dto.ToggleRequest) (models.GradeView, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.GradeView{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid what-if payload")
	}
	session, err := s.session(userID, sessionID)
	if err != nil {
		return models.GradeView{}, err
	}
	return session.SetWhatIfMode(*req.Enabled)
}

// SetGradedOnly toggles graded-only totals.
func (s *GradeSessionService) SetGradedOnly(userID, sessionID string, req dto.ToggleRequest) (models.GradeView, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.GradeView{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid graded-only payload")
	}
	session, err := s.session(userID, sessionID)
	if err != nil {
		return models.GradeView{}, err
	}
	return session.SetGradedOnly(*req.Enabled)
}

// SetWhatIfScore validates and applies a hypothetical score. Invalid scores never reach
// the session.
func (s *GradeSessionService) SetWhatIfScore(userID, sessionID, assignmentID string, req dto.WhatIfScoreRequest) (dto.WhatIfScoreResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.WhatIfScoreResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid what-if score")
	}
	if req.Score != nil {
		score := *req.Score
		if math.IsNaN(score) || math.IsInf(score, 0) || score > s.maxScore {
			return dto.WhatIfScoreResponse{}, appErrors.Clone(appErrors.ErrValidation, "what-if score is out of range")
		}
	}
	if assignmentID == "" {
		return dto.WhatIfScoreResponse{}, appErrors.Clone(appErrors.ErrValidation, "assignment id is required")
	}
	session, err := s.session(userID, sessionID)
	if err != nil {
		return dto.WhatIfScoreResponse{}, err
	}
	view, event, err := session.SetWhatIfScore(assignmentID, req.Score)
	if err != nil {
		return dto.WhatIfScoreResponse{}, err
	}
	return dto.WhatIfScoreResponse{View: view, Event: event}, nil
}

// Close cancels in-flight work and forgets the session.
func (s *GradeSessionService) Close(userID, sessionID string) error {
	session, err := s.session(userID, sessionID)
	if err != nil {
		return err
	}
	s.remove(sessionID)
	session.Close()
	return nil
}

// Count returns the number of open sessions.
func (s *GradeSessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than the idle TTL and returns how many closed.
func (s *GradeSessionService) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL)
	var expired []*GradeSession

	s.mu.Lock()
	for id, session := range s.sessions {
		if session.LastUsed().Before(cutoff) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, session := range expired {
		session.Close()
	}
	s.metrics.SetActiveSessions(count)
	if len(expired) > 0 {
		s.logger.Info("idle grade sessions closed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// StartSweeper runs Sweep on an interval until ctx is done.
func (s *GradeSessionService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// CloseAll closes every session, used on shutdown.
func (s *GradeSessionService) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*GradeSession)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	s.metrics.SetActiveSessions(0)
}

// session looks up a session owned by userID. Sessions of other users are reported as
// missing.
func (s *GradeSessionService) session(userID, sessionID string) (*GradeSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || session.UserID() != userID {
		return nil, errSessionClosed
	}
	return session, nil
}

func (s *GradeSessionService) add(session *GradeSession) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	count := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(count)
}

func (s *GradeSessionService) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(count)
}
