// Package events carries the audit trail of directory and sign-in activity
// from the API to the worker over a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultStream = "accounts:audit"

const (
	TypeAccountCreated     = "account.created"
	TypeAccountUpdated     = "account.updated"
	TypeAccountDeactivated = "account.deactivated"
	TypeSignIn             = "auth.signin"
	TypeSignOut            = "auth.signout"
	TypeDirectoryCensus    = "directory.census"
)

type Event struct {
	Type      string            `json:"type"`
	AccountID string            `json:"accountId,omitempty"`
	ActorID   string            `json:"actorId,omitempty"`
	Role      string            `json:"role,omitempty"`
	At        time.Time         `json:"at"`
	Data      map[string]string `json:"data,omitempty"`
}

// Values flattens the event into stream fields. Data travels as a JSON
// string since stream values are flat.
func (e Event) Values() (map[string]any, error) {
	values := map[string]any{
		"type":      e.Type,
		"accountId": e.AccountID,
		"actorId":   e.ActorID,
		"role":      e.Role,
		"at":        e.At.UTC().Format(time.RFC3339Nano),
	}
	if len(e.Data) > 0 {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("encode event data: %w", err)
		}
		values["data"] = string(data)
	}
	return values, nil
}

// Decode is the inverse of Values.
func Decode(values map[string]any) (Event, error) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}

	e := Event{
		Type:      str("type"),
		AccountID: str("accountId"),
		ActorID:   str("actorId"),
		Role:      str("role"),
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	if at := str("at"); at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return Event{}, fmt.Errorf("decode event time: %w", err)
		}
		e.At = t
	}
	if data := str("data"); data != "" {
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return Event{}, fmt.Errorf("decode event data: %w", err)
		}
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: 100_000}
}

func (p *StreamPublisher) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	values, err := event.Values()
	if err != nil {
		return err
	}
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	return err
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Emit publishes event on a request path. A failed publish is logged and
// never fails the request.
func Emit(ctx context.Context, p Publisher, logger zerolog.Logger, event Event) {
	if p == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event", event.Type).Msg("audit publish failed")
	}
}
