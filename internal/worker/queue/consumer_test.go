package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotus/internal/events"
	"gotus/internal/ids"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	fail bool
}

func (h *recordingHandler) Handle(_ context.Context, msg redis.XMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errors.New("handler down")
	}
	e, err := events.Decode(msg.Values)
	if err != nil {
		return err
	}
	h.seen = append(h.seen, e.Type)
	return nil
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("GOTUS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GOTUS_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestConsumerReadsAndClaims(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	stream := "test:audit:" + ids.New()
	t.Cleanup(func() { client.Del(context.Background(), stream) })

	opts := Options{Stream: stream, Group: "g", BatchSize: 10, Block: 100 * time.Millisecond, ClaimInterval: 50 * time.Millisecond}

	failing := &recordingHandler{fail: true}
	firstOpts := opts
	firstOpts.Consumer = "c1"
	first := NewConsumer(client, firstOpts, zerolog.Nop(), failing)
	require.NoError(t, first.EnsureGroup(ctx))
	require.NoError(t, first.EnsureGroup(ctx), "existing group is fine")

	pub := events.NewStreamPublisher(client, stream)
	require.NoError(t, pub.Publish(ctx, events.Event{Type: events.TypeSignIn, AccountID: "a1"}))

	acked, err := first.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acked, "failed message stays pending")

	time.Sleep(100 * time.Millisecond)

	ok := &recordingHandler{}
	opts.Consumer = "c2"
	second := NewConsumer(client, opts, zerolog.Nop(), ok)
	claimed, err := second.ClaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, []string{events.TypeSignIn}, ok.seen)

	pending, err := client.XPending(ctx, stream, "g").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending.Count)
}

type committingHandler struct {
	recordingHandler
	commitErr error
	commits   int
}

func (h *committingHandler) Commit(context.Context) error {
	h.commits++
	return h.commitErr
}

func TestConsumerAcksOnlyAfterCommit(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	stream := "test:audit:" + ids.New()
	t.Cleanup(func() { client.Del(context.Background(), stream) })

	handler := &committingHandler{commitErr: errors.New("archive down")}
	c := NewConsumer(client, Options{Stream: stream, Group: "g", Consumer: "c1", Block: 100 * time.Millisecond, ClaimInterval: 50 * time.Millisecond}, zerolog.Nop(), handler)
	require.NoError(t, c.EnsureGroup(ctx))

	pub := events.NewStreamPublisher(client, stream)
	require.NoError(t, pub.Publish(ctx, events.Event{Type: events.TypeSignIn, AccountID: "a1"}))
	require.NoError(t, pub.Publish(ctx, events.Event{Type: events.TypeSignOut, AccountID: "a1"}))

	acked, err := c.ReadOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, acked)
	pending, err := client.XPending(ctx, stream, "g").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending.Count, "nothing acked while the commit fails")

	time.Sleep(100 * time.Millisecond)
	handler.commitErr = nil
	claimed, err := c.ClaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, 2, handler.commits)

	pending, err = client.XPending(ctx, stream, "g").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending.Count)
}
