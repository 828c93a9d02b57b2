// Package stream fans row-level record changes out to open sessions.
//
// The record store publishes a change event to NATS after every
// successful insert or update. Sessions subscribe per (entity, clientID)
// topic and react by re-reading the full record set; event payloads
// carry provenance for logging but subscribers never apply them as
// patches. Rapid bursts of events are coalesced so at most one refetch
// runs at a time with at most one queued behind it.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pulsed/internal/feed"
)

var (
	// ErrSubscription indicates change-stream setup failed. Callers
	// degrade to manual refresh; this is never fatal to a session.
	ErrSubscription = errors.New("change-stream subscription failed")

	// ErrDuplicateSubscription indicates one scope opened a second
	// subscription for a topic before closing the first. This is a
	// caller error, not a race to be tolerated.
	ErrDuplicateSubscription = errors.New("subscription already active for key")

	// ErrInvalidTopic indicates an unknown entity or empty client ID.
	ErrInvalidTopic = errors.New("invalid change-stream topic")
)

// Kind is the row-level change kind carried on the subject.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is the published change payload. Subscribers ignore it by
// design (full-refetch policy); it exists for logging and debugging.
type Event struct {
	Entity   feed.Entity `json:"entity"`
	ClientID string      `json:"client_id"`
	RecordID string      `json:"record_id"`
	Kind     Kind        `json:"kind"`
	At       time.Time   `json:"at"`
}

// Subject returns the NATS subject for one change kind on a topic.
// Subjects follow records.{entity}.{client_id}.{kind}.
func Subject(entity feed.Entity, clientID string, kind Kind) string {
	return fmt.Sprintf("records.%s.%s.%s", entity, token(clientID), kind)
}

// topicSubject returns the wildcard subject covering all change kinds
// for one (entity, clientID) topic.
func topicSubject(entity feed.Entity, clientID string) string {
	return fmt.Sprintf("records.%s.%s.*", entity, token(clientID))
}

// token makes an identifier safe for use as a NATS subject token.
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		}
		return r
	}, s)
}

// Publisher emits record-change events to NATS.
//
// Publishing is best effort: the record write has already committed, so
// a failed publish is logged and the session falls back to manual
// refresh rather than the store operation failing.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher creates a change-event publisher.
func NewPublisher(nc *nats.Conn, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, logger: logger.Named("stream")}
}

// RecordChanged publishes one change event for a record.
func (p *Publisher) RecordChanged(entity feed.Entity, clientID, recordID string, kind Kind) {
	ev := Event{
		Entity:   entity,
		ClientID: clientID,
		RecordID: recordID,
		Kind:     kind,
		At:       time.Now().UTC(),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("failed to encode change event", zap.Error(err))
		return
	}

	subject := Subject(entity, clientID, kind)
	if err := p.nc.Publish(subject, payload); err != nil {
		p.logger.Warn("failed to publish change event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// RefetchFunc re-reads the full record set for a topic.
//
// Implementations must honor ctx: when the owning subscription closes
// mid-fetch the context is cancelled, and any result still in hand must
// be discarded rather than written into torn-down session state.
type RefetchFunc func(ctx context.Context) error

// Subscriber opens change-stream subscriptions over a shared NATS
// connection. Each subscription belongs to an owning scope (typically
// one session or one open SSE connection); the subscriber enforces at
// most one active subscription per (scope, entity, clientID) key, so
// independent scopes watch the same topic concurrently while a single
// scope cannot double-subscribe.
type Subscriber struct {
	nc     *nats.Conn
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]*Subscription
}

// NewSubscriber creates a subscriber over an established connection.
func NewSubscriber(nc *nats.Conn, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		nc:     nc,
		logger: logger.Named("stream"),
		active: make(map[string]*Subscription),
	}
}

// Subscribe opens the change-stream topic for (entity, clientID) and
// invokes refetch after any insert, update, or delete on it.
//
// Coalescing: notifications arriving while a refetch is in flight do
// not start a second concurrent fetch; they mark it pending and exactly
// one follow-up fetch runs once the in-flight one resolves. The last
// refetch therefore reflects all changes seen so far.
//
// The returned Subscription must be closed when the owning scope is
// torn down. Opening a second subscription for the same topic from the
// same scope before closing the first returns ErrDuplicateSubscription.
func (s *Subscriber) Subscribe(scope string, entity feed.Entity, clientID string, refetch RefetchFunc) (*Subscription, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: scope required", ErrInvalidTopic)
	}
	if !entity.Valid() || clientID == "" {
		return nil, fmt.Errorf("%w: entity=%q client=%q", ErrInvalidTopic, entity, clientID)
	}
	if refetch == nil {
		return nil, fmt.Errorf("%w: refetch callback required", ErrSubscription)
	}

	key := scope + "/" + string(entity) + "/" + clientID

	s.mu.Lock()
	if _, exists := s.active[key]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubscription, key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		key:     key,
		owner:   s,
		refetch: refetch,
		notify:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		logger:  s.logger.With(zap.String("topic", key)),
	}
	s.active[key] = sub
	s.mu.Unlock()

	nsub, err := s.nc.Subscribe(topicSubject(entity, clientID), func(*nats.Msg) {
		sub.poke()
	})
	if err != nil {
		s.release(key)
		cancel()
		return nil, fmt.Errorf("%w: %s: %v", ErrSubscription, key, err)
	}
	sub.nsub = nsub

	go sub.loop()

	sub.logger.Debug("subscription opened")
	return sub, nil
}

// release frees a subscription key after close or failed setup.
func (s *Subscriber) release(key string) {
	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()
}

// Subscription is one active change-stream topic. Close it exactly once
// when the owning scope goes away; a subscription left open keeps a
// live NATS interest and a goroutine alive.
type Subscription struct {
	key     string
	owner   *Subscriber
	nsub    *nats.Subscription
	refetch RefetchFunc
	notify  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	once    sync.Once
}

// poke records that a change arrived. The single-slot channel is the
// coalescing mechanism: a poke during an in-flight refetch occupies the
// slot, and further pokes are dropped because the one pending fetch
// will already observe their effects.
func (s *Subscription) poke() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// loop serializes refetches for the topic.
func (s *Subscription) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.notify:
			if err := s.refetch(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Warn("refetch failed", zap.Error(err))
			}
		}
	}
}

// Close tears the subscription down: it drops the NATS interest,
// cancels any in-flight refetch, and frees the topic key for reuse.
// Safe to call while a refetch is running and safe to call more than
// once, though owners are expected to call it exactly once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.nsub != nil {
			_ = s.nsub.Unsubscribe()
		}
		s.cancel()
		s.owner.release(s.key)
		s.logger.Debug("subscription closed")
	})
}
