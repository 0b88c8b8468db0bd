// Package notify fans committed status changes out to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultStream is the Redis stream status events are appended to.
const DefaultStream = "access-status:updates"

// EventStatusReconciled is the message type for a persisted status.
const EventStatusReconciled = "status.reconciled"

// Event describes one committed reconciliation.
type Event struct {
	DeliveryID    string    `json:"delivery_id,omitempty"`
	AccessPointID *int64    `json:"access_point_id,omitempty"`
	ReportID      int64     `json:"report_id"`
	TicketRef     string    `json:"ticket_ref,omitempty"`
	StatusID      int64     `json:"status_id"`
	StatusType    string    `json:"status_type"`
	Status        string    `json:"status"`
	Decision      string    `json:"decision"`
	Timestamp     time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event. Used when no Redis address is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// RedisPublisher appends events to a Redis stream with XADD.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher wraps client. maxLen > 0 caps the stream approximately.
func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	_, err := p.PublishJSON(ctx, EventStatusReconciled, ev)
	return err
}

// PublishJSON appends data as a JSON "data" field alongside its type and a
// unix timestamp, and returns the stream entry id.
func (p *RedisPublisher) PublishJSON(ctx context.Context, msgType string, data any) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", msgType, err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":      msgType,
			"data":      string(body),
			"timestamp": time.Now().Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
