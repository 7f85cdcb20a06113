package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher is the slice of the go-redis client the publisher needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events on per-hospital pub/sub channels:
// turn and queue events on the events channel, display refreshes on the
// display channel, and queue changes on the assigned doctor's channel.
type RedisPublisher struct {
	client     Publisher
	hospitalID string
}

func NewRedisPublisher(client Publisher, hospitalID string) *RedisPublisher {
	if hospitalID == "" {
		hospitalID = "default"
	}
	return &RedisPublisher{client: client, hospitalID: hospitalID}
}

func (p *RedisPublisher) EventsChannel() string {
	return fmt.Sprintf("hospital/%s/turns/events", p.hospitalID)
}

func (p *RedisPublisher) DisplayChannel() string {
	return fmt.Sprintf("hospital/%s/display/updates", p.hospitalID)
}

func (p *RedisPublisher) DoctorChannel(doctorID string) string {
	return fmt.Sprintf("hospital/%s/doctor/%s/queue", p.hospitalID, doctorID)
}

func (p *RedisPublisher) channels(event Event) []string {
	switch event.Kind {
	case DisplayUpdate:
		return []string{p.DisplayChannel()}
	case QueueUpdate:
		if event.DoctorID != "" {
			return []string{p.EventsChannel(), p.DoctorChannel(event.DoctorID)}
		}
	}
	return []string{p.EventsChannel()}
}

func (p *RedisPublisher) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Kind, err)
	}
	for _, channel := range p.channels(event) {
		if err := p.client.Publish(ctx, channel, string(payload)).Err(); err != nil {
			return fmt.Errorf("publish %s to %s: %w", event.Kind, channel, err)
		}
	}
	return nil
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
