package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-grades-api/internal/models"
)

// EventPublisher fans grade events out over Redis pub/sub.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

// NewEventPublisher constructs a publisher for the given channel.
func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	return &EventPublisher{client: client, channel: channel}
}

// PublishRecomputed sends a recompute event to subscribers of the channel.
func (p *EventPublisher) PublishRecomputed(ctx context.Context, event models.GradeRecomputedEvent) error {
	if p.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal recompute event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}
