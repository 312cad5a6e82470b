package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/course-grades-api/internal/models"
	"github.com/noah-isme/course-grades-api/pkg/jobs"
)

const recomputeJobType = "grade_recomputed"

// RecomputeListener receives grade recomputation events.
type RecomputeListener interface {
	PublishRecomputed(ctx context.Context, event models.GradeRecomputedEvent) error
}

// RecomputeListenerFunc adapts a function into a RecomputeListener.
type RecomputeListenerFunc func(ctx context.Context, event models.GradeRecomputedEvent) error

// PublishRecomputed calls f.
func (f RecomputeListenerFunc) PublishRecomputed(ctx context.Context, event models.GradeRecomputedEvent) error {
	return f(ctx, event)
}

// RecomputeNotifier delivers recompute events to its listeners off the session lock.
// Events are queued without blocking; a full queue drops the event.
type RecomputeNotifier struct {
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
	mu        sync.RWMutex
	listeners []RecomputeListener
}

// RecomputeNotifierConfig configures the delivery queue.
type RecomputeNotifierConfig struct {
	Queue   jobs.QueueConfig
	Metrics *MetricsService
	Logger  *zap.Logger
}

// NewRecomputeNotifier builds a notifier. Call Start before publishing.
func NewRecomputeNotifier(cfg RecomputeNotifierConfig, listeners ...RecomputeListener) *RecomputeNotifier {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &RecomputeNotifier{metrics: cfg.Metrics, logger: logger, listeners: listeners}
	queueCfg := cfg.Queue
	if queueCfg.Logger == nil {
		queueCfg.Logger = logger
	}
	n.queue = jobs.NewQueue("grade-recomputed", n.deliver, queueCfg)
	return n
}

// Subscribe adds a listener.
func (n *RecomputeNotifier) Subscribe(listener RecomputeListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, listener)
}

// Start launches the delivery workers.
func (n *RecomputeNotifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains workers.
func (n *RecomputeNotifier) Stop() {
	n.queue.Stop()
}

// Publish queues an event for every listener. It never blocks the caller.
func (n *RecomputeNotifier) Publish(event models.GradeRecomputedEvent) {
	if n == nil {
		return
	}
	n.mu.RLock()
	count := len(n.listeners)
	n.mu.RUnlock()

	for i := 0; i < count; i++ {
		job := jobs.Job{Type: recomputeJobType, Payload: delivery{listener: i, event: event}}
		if err := n.queue.TryEnqueue(job); err != nil {
			n.metrics.RecordDroppedEvent()
			n.logger.Warn("recompute event dropped", zap.String("session_id", event.SessionID), zap.Error(err))
		}
	}
}

type delivery struct {
	listener int
	event    models.GradeRecomputedEvent
}

func (n *RecomputeNotifier) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(delivery)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T", job.Payload))
	}
	n.mu.RLock()
	if payload.listener >= len(n.listeners) {
		n.mu.RUnlock()
		return jobs.Permanent(errors.New("listener no longer registered"))
	}
	listener := n.listeners[payload.listener]
	n.mu.RUnlock()

	return listener.PublishRecomputed(ctx, payload.event)
}
