package stream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pulsed/internal/feed"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T) *nats.Conn {
	t.Helper()
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestSubject(t *testing.T) {
	assert.Equal(t,
		"records.daily_updates.client-1.insert",
		Subject(feed.EntityDailyUpdates, "client-1", KindInsert))

	// Unsafe subject characters are sanitized.
	assert.Equal(t,
		"records.client_tasks.a_b_c.update",
		Subject(feed.EntityClientTasks, "a.b c", KindUpdate))
}

func TestPublisherEmitsEvent(t *testing.T) {
	nc := connect(t)

	received := make(chan *nats.Msg, 1)
	_, err := nc.Subscribe("records.daily_updates.client-1.*", func(m *nats.Msg) {
		received <- m
	})
	require.NoError(t, err)

	p := NewPublisher(nc, nil)
	p.RecordChanged(feed.EntityDailyUpdates, "client-1", "rec-1", KindInsert)

	select {
	case msg := <-received:
		var ev Event
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, feed.EntityDailyUpdates, ev.Entity)
		assert.Equal(t, "client-1", ev.ClientID)
		assert.Equal(t, "rec-1", ev.RecordID)
		assert.Equal(t, KindInsert, ev.Kind)
		assert.False(t, ev.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}
}

func TestSubscribeTriggersRefetch(t *testing.T) {
	nc := connect(t)

	refetched := make(chan struct{}, 16)
	sub, err := NewSubscriber(nc, nil).Subscribe("session-a", feed.EntityDailyUpdates, "client-1", func(ctx context.Context) error {
		refetched <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	NewPublisher(nc, nil).RecordChanged(feed.EntityDailyUpdates, "client-1", "rec-1", KindInsert)

	select {
	case <-refetched:
	case <-time.After(2 * time.Second):
		t.Fatal("refetch not triggered by change event")
	}
}

func TestSubscribeIgnoresOtherTopics(t *testing.T) {
	nc := connect(t)

	var refetches atomic.Int64
	sub, err := NewSubscriber(nc, nil).Subscribe("session-a", feed.EntityDailyUpdates, "client-1", func(ctx context.Context) error {
		refetches.Add(1)
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	p := NewPublisher(nc, nil)
	p.RecordChanged(feed.EntityDailyUpdates, "client-2", "rec-1", KindInsert)
	p.RecordChanged(feed.EntityWeeklySummaries, "client-1", "rec-2", KindInsert)

	require.NoError(t, nc.Flush())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), refetches.Load())
}

func TestBurstCoalesces(t *testing.T) {
	nc := connect(t)

	var (
		mu       sync.Mutex
		started  int
		inFlight int
		maxSeen  int
	)
	release := make(chan struct{})

	sub, err := NewSubscriber(nc, nil).Subscribe("session-a", feed.EntityDailyUpdates, "client-1", func(ctx context.Context) error {
		mu.Lock()
		started++
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		<-release

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	p := NewPublisher(nc, nil)
	for i := 0; i < 10; i++ {
		p.RecordChanged(feed.EntityDailyUpdates, "client-1", "rec", KindUpdate)
	}
	require.NoError(t, nc.Flush())

	// Let the first refetch start and the burst pile up behind it.
	time.Sleep(200 * time.Millisecond)
	close(release)
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxSeen, "refetches must never run concurrently")
	assert.LessOrEqual(t, started, 2, "a burst collapses into at most one in-flight plus one pending refetch")
	assert.GreaterOrEqual(t, started, 1)
}

func TestDuplicateSubscriptionRejected(t *testing.T) {
	nc := connect(t)
	s := NewSubscriber(nc, nil)

	noop := func(ctx context.Context) error { return nil }

	first, err := s.Subscribe("session-a", feed.EntityDailyUpdates, "client-1", noop)
	require.NoError(t, err)
	defer first.Close()

	_, err = s.Subscribe("session-a", feed.EntityDailyUpdates, "client-1", noop)
	assert.ErrorIs(t, err, ErrDuplicateSubscription)

	// A different topic on the same scope is fine.
	other, err := s.Subscribe("session-a", feed.EntityClientTasks, "client-1", noop)
	require.NoError(t, err)
	other.Close()

	// A different scope on the same topic is fine: duplicates are
	// rejected per owning scope, not process-wide.
	peer, err := s.Subscribe("session-b", feed.EntityDailyUpdates, "client-1", noop)
	require.NoError(t, err)
	peer.Close()
}

func TestIndependentScopesConverge(t *testing.T) {
	nc := connect(t)
	s := NewSubscriber(nc, nil)

	refetchedA := make(chan struct{}, 16)
	subA, err := s.Subscribe("session-a", feed.EntityDailyUpdates, "client-1", func(ctx context.Context) error {
		refetchedA <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	defer subA.Close()

	refetchedB := make(chan struct{}, 16)
	subB, err := s.Subscribe("session-b", feed.EntityDailyUpdates, "client-1", func(ctx context.Context) error {
		refetchedB <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	defer subB.Close()

	NewPublisher(nc, nil).RecordChanged(feed.EntityDailyUpdates, "client-1", "rec-1", KindInsert)

	for name, ch := range map[string]chan struct{}{"session-a": refetchedA, "session-b": refetchedB} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s never refetched after the insert", name)
		}
	}
}

func TestCloseFreesKeyAndCancelsContext(t *testing.T) {
	nc := connect(t)
	s := NewSubscriber(nc, nil)

	fetching := make(chan struct{})
	cancelled := make(chan struct{})

	sub, err := s.Subscribe("session-a", feed.EntityDailyUpdates, "client-1", func(ctx context.Context) error {
		close(fetching)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	require.NoError(t, err)

	NewPublisher(nc, nil).RecordChanged(feed.EntityDailyUpdates, "client-1", "rec", KindInsert)

	select {
	case <-fetching:
	case <-time.After(2 * time.Second):
		t.Fatal("refetch never started")
	}

	// Close while the refetch is in flight: the context cancels so the
	// stale result is discarded.
	sub.Close()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("refetch context not cancelled on close")
	}

	// Close twice is safe, and the key is reusable afterwards.
	sub.Close()
	again, err := s.Subscribe("session-a", feed.EntityDailyUpdates, "client-1", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	again.Close()
}

func TestSubscribeValidation(t *testing.T) {
	nc := connect(t)
	s := NewSubscriber(nc, nil)

	_, err := s.Subscribe("session-a", "workspaces", "client-1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = s.Subscribe("session-a", feed.EntityDailyUpdates, "", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = s.Subscribe("", feed.EntityDailyUpdates, "client-1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = s.Subscribe("session-a", feed.EntityDailyUpdates, "client-1", nil)
	assert.ErrorIs(t, err, ErrSubscription)
}
