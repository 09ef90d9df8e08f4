package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gotus/internal/events"
)

// Archive stores one batch of audit lines under key.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) error
}

// ArchivedEvent is one JSONL line of the audit archive.
type ArchivedEvent struct {
	MessageID string `json:"messageId"`
	events.Event
}

// Processor turns audit stream entries into structured audit log lines and,
// with an archive, into JSONL objects written before the batch is acked.
type Processor struct {
	logger  zerolog.Logger
	archive Archive
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	counts  map[string]int
	pending []ArchivedEvent
}

// NewProcessor builds the audit handler. archive may be nil, in which case
// events are only logged.
func NewProcessor(logger zerolog.Logger, archive Archive, prefix string) *Processor {
	return &Processor{
		logger:  logger,
		archive: archive,
		prefix:  prefix,
		now:     time.Now,
		counts:  make(map[string]int),
	}
}

// Handle never fails on bad payloads: they are logged and acknowledged so a
// malformed entry cannot wedge the group.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	event, err := events.Decode(msg.Values)
	if err != nil {
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("undecodable audit entry dropped")
		p.count("invalid")
		return nil
	}

	switch event.Type {
	case events.TypeAccountCreated, events.TypeAccountUpdated, events.TypeAccountDeactivated:
		p.handleAccount(ctx, msg.ID, event)
	case events.TypeSignIn, events.TypeSignOut:
		p.handleSession(ctx, msg.ID, event)
	case events.TypeDirectoryCensus:
		p.handleCensus(ctx, msg.ID, event)
	default:
		p.logger.Warn().Str("type", event.Type).Str("message_id", msg.ID).Msg("unknown audit event type")
		p.count("unknown")
		p.keep(msg.ID, event)
		return nil
	}
	p.count(event.Type)
	p.keep(msg.ID, event)
	return nil
}

func (p *Processor) keep(id string, e events.Event) {
	if p.archive == nil {
		return
	}
	p.mu.Lock()
	p.pending = append(p.pending, ArchivedEvent{MessageID: id, Event: e})
	p.mu.Unlock()
}

// Commit writes the events handled since the last commit as one JSONL
// object. The buffer is dropped either way: on failure the stream entries
// stay pending and are handled again.
func (p *Processor) Commit(ctx context.Context) error {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if p.archive == nil || len(batch) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode audit line %s: %w", e.MessageID, err)
		}
	}

	key := p.archiveKey(batch)
	if err := p.archive.Put(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("archive audit batch: %w", err)
	}
	p.logger.Debug().Str("key", key).Int("events", len(batch)).Msg("audit batch archived")

	p.mu.Lock()
	p.counts["archived"] += len(batch)
	p.mu.Unlock()
	return nil
}

// archiveKey names a batch by day and by its first and last stream ids, so
// replaying the same entries rewrites the same object.
func (p *Processor) archiveKey(batch []ArchivedEvent) string {
	day := batch[0].At
	if day.IsZero() {
		day = p.now()
	}
	name := batch[0].MessageID + "_" + batch[len(batch)-1].MessageID + ".jsonl"
	return path.Join(p.prefix, day.UTC().Format("2006/01/02"), name)
}

// Counts returns how many entries were handled per event type.
func (p *Processor) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

func (p *Processor) count(kind string) {
	p.mu.Lock()
	p.counts[kind]++
	p.mu.Unlock()
}

func (p *Processor) handleAccount(_ context.Context, id string, e events.Event) {
	log := p.logger.Info()
	if e.Type == events.TypeAccountDeactivated {
		log = p.logger.Warn()
	}
	log.Str("message_id", id).
		Str("event", e.Type).
		Str("account_id", e.AccountID).
		Str("actor_id", e.ActorID).
		Str("role", e.Role).
		Time("at", e.At).
		Interface("data", e.Data).
		Msg("account audit")
}

func (p *Processor) handleSession(_ context.Context, id string, e events.Event) {
	p.logger.Info().
		Str("message_id", id).
		Str("event", e.Type).
		Str("account_id", e.AccountID).
		Str("role", e.Role).
		Str("jti", e.Data["jti"]).
		Time("at", e.At).
		Msg("session audit")
}

func (p *Processor) handleCensus(_ context.Context, id string, e events.Event) {
	log := p.logger.Info()
	if e.Data["activeAdmins"] == "0" {
		log = p.logger.Warn()
	}
	log.Str("message_id", id).
		Interface("census", e.Data).
		Time("at", e.At).
		Msg("directory census")
}
