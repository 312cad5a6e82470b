package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRegistryAdvanceCancelsLiveTasks(t *testing.T) {
	registry := NewTaskRegistry()
	gen := registry.Advance()

	task, err := registry.Start(context.Background(), StreamAssignmentGroups, gen)
	require.NoError(t, err)
	assert.True(t, task.Live())
	assert.Equal(t, 1, registry.Active())

	next := registry.Advance()
	assert.NotEqual(t, gen, next)
	assert.False(t, task.Live())
	assert.Error(t, task.Context().Err())
	assert.Equal(t, 0, registry.Active())
}

func TestTaskRegistryRejectsStaleGeneration(t *testing.T) {
	registry := NewTaskRegistry()
	stale := registry.Advance()
	registry.Advance()

	_, err := registry.Start(context.Background(), StreamCourse, stale)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestTaskRegistryReplacesTaskOnSameStream(t *testing.T) {
	registry := NewTaskRegistry()
	gen := registry.Advance()

	first, err := registry.Start(context.Background(), StreamSubmissions, gen)
	require.NoError(t, err)
	second, err := registry.Start(context.Background(), StreamSubmissions, gen)
	require.NoError(t, err)

	assert.False(t, first.Live())
	assert.True(t, second.Live())

	first.Done()
	assert.Equal(t, 1, registry.Active())
	second.Done()
	assert.Equal(t, 0, registry.Active())
}

func TestTaskLiveFollowsParentContext(t *testing.T) {
	registry := NewTaskRegistry()
	gen := registry.Advance()
	parent, cancel := context.WithCancel(context.Background())

	task, err := registry.Start(parent, StreamGradingPeriods, gen)
	require.NoError(t, err)
	cancel()

	assert.False(t, task.Live())
}
