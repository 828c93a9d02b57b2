package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pulsed/internal/digest"
	"github.com/fyrsmithlabs/pulsed/internal/feed"
	"github.com/fyrsmithlabs/pulsed/internal/lifecycle"
	"github.com/fyrsmithlabs/pulsed/internal/notify"
	"github.com/fyrsmithlabs/pulsed/internal/store"
	"github.com/fyrsmithlabs/pulsed/internal/stream"
	"go.uber.org/zap"
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

func TestEventsStreamScopedPerSession(t *testing.T) {
	srv := startTestNATSServer(t)
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	s, records := newTestServerWithSubscriber(t, nil, stream.NewSubscriber(nc, nil))

	_, err = records.InsertDailyUpdate(context.Background(), feed.DailyUpdate{
		ClientID: "client-1", EmployeeID: "e", Text: "approved work", ApprovedForClient: true,
	})
	require.NoError(t, err)

	streamOnce := func(ctx context.Context, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		return rec
	}

	// One session holds its stream open.
	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	doneA := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		doneA <- streamOnce(ctxA, "/api/v1/clients/client-1/events?session=tab-a")
	}()
	time.Sleep(200 * time.Millisecond)

	// A second session watching the same client gets its own stream.
	ctxB, cancelB := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancelB()
	recB := streamOnce(ctxB, "/api/v1/clients/client-1/events?session=tab-b")
	assert.Equal(t, http.StatusOK, recB.Code)
	assert.Contains(t, recB.Body.String(), "event: snapshot")
	assert.Contains(t, recB.Body.String(), "approved work")

	// The same session cannot open the topic twice while the first
	// stream is still up.
	ctxDup, cancelDup := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancelDup()
	recDup := streamOnce(ctxDup, "/api/v1/clients/client-1/events?session=tab-a")
	assert.Equal(t, http.StatusConflict, recDup.Code)

	cancelA()
	select {
	case recA := <-doneA:
		assert.Equal(t, http.StatusOK, recA.Code)
		assert.Contains(t, recA.Body.String(), "event: snapshot")
	case <-time.After(2 * time.Second):
		t.Fatal("first stream did not shut down")
	}
}

func TestEventsStreamsConvergeOnInsert(t *testing.T) {
	srv := startTestNATSServer(t)
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	records := store.NewMemoryStore(stream.NewPublisher(nc, nil))
	manager, err := lifecycle.NewManager(records, nil, nil, nil)
	require.NoError(t, err)
	generator, err := digest.NewGenerator(records, nil, nil)
	require.NoError(t, err)
	hub, err := notify.NewHub(notify.HubOptions{})
	require.NoError(t, err)
	s, err := NewServer(records, manager, generator, hub, stream.NewSubscriber(nc, nil), zap.NewNop(), nil)
	require.NoError(t, err)

	open := func(session string) (context.CancelFunc, chan *httptest.ResponseRecorder) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			req := httptest.NewRequest(http.MethodGet,
				"/api/v1/clients/client-1/events?session="+session, nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, req)
			done <- rec
		}()
		return cancel, done
	}

	cancelA, doneA := open("tab-a")
	defer cancelA()
	cancelB, doneB := open("tab-b")
	defer cancelB()
	time.Sleep(200 * time.Millisecond)

	// An insert notifies both open streams.
	_, err = records.InsertDailyUpdate(context.Background(), feed.DailyUpdate{
		ClientID: "client-1", EmployeeID: "e", Text: "shipment landed", ApprovedForClient: true,
	})
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	cancelA()
	cancelB()
	for name, done := range map[string]chan *httptest.ResponseRecorder{"tab-a": doneA, "tab-b": doneB} {
		select {
		case rec := <-done:
			assert.Equal(t, http.StatusOK, rec.Code, name)
			assert.Contains(t, rec.Body.String(), "shipment landed",
				"%s must receive the post-insert snapshot", name)
		case <-time.After(2 * time.Second):
			t.Fatalf("%s stream did not shut down", name)
		}
	}
}
