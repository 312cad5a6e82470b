package grading

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled reports a fetch superseded by a newer selection or a closed session.
var ErrCancelled = errors.New("grade fetch cancelled")

// Stream names an independently cancellable fetch.
type Stream string

const (
	StreamCourse            Stream = "course"
	StreamGradingPeriods    Stream = "grading_periods"
	StreamAssignmentGroups  Stream = "assignment_groups"
	StreamPeriodEnrollments Stream = "period_enrollments"
	StreamObservee          Stream = "observee"
	StreamSubmissions       Stream = "submissions"
)

// Task is the handle of one in-flight fetch.
type Task struct {
	stream     Stream
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	registry   *TaskRegistry
}

// Context returns the context the fetch must run with.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Stream returns the stream the task belongs to.
func (t *Task) Stream() Stream {
	return t.stream
}

// Live reports whether the task's result may still be applied.
func (t *Task) Live() bool {
	if t.ctx.Err() != nil {
		return false
	}
	return t.registry.Current(t.generation)
}

// Done releases the task. Call it after Live has been checked.
func (t *Task) Done() {
	t.registry.release(t)
	t.cancel()
}

// TaskRegistry owns the in-flight fetch handles of a session. Every selection change
// advances the generation, which cancels all live handles; a handle from an older
// generation can never be applied.
type TaskRegistry struct {
	mu         sync.Mutex
	generation uint64
	tasks      map[Stream]*Task
}

// NewTaskRegistry builds an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[Stream]*Task)}
}

// Advance cancels all in-flight tasks and returns the new generation.
func (r *TaskRegistry) Advance() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
	r.generation++
	return r.generation
}

// Current reports whether generation is the latest one.
func (r *TaskRegistry) Current(generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation == generation
}

// Generation returns the latest generation.
func (r *TaskRegistry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Start registers a task for stream, replacing any task already running on it.
func (r *TaskRegistry) Start(parent context.Context, stream Stream, generation uint64) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		return nil, ErrCancelled
	}
	if prev, ok := r.tasks[stream]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	task := &Task{stream: stream, generation: generation, ctx: ctx, cancel: cancel, registry: r}
	r.tasks[stream] = task
	return task, nil
}

// CancelAll cancels every in-flight task and invalidates the current generation.
func (r *TaskRegistry) CancelAll() {
	r.Advance()
}

// Active returns the number of registered tasks.
func (r *TaskRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *TaskRegistry) release(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.tasks[t.stream]; ok && current == t {
		delete(r.tasks, t.stream)
	}
}

func (r *TaskRegistry) cancelLocked() {
	for stream, task := range r.tasks {
		task.cancel()
		delete(r.tasks, stream)
	}
}
