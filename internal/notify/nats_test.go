package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestNATSDeliveryPlaySound(t *testing.T) {
	nc := connect(t)

	received := make(chan struct{}, 1)
	_, err := nc.Subscribe("sessions.session-a.notify.sound", func(*nats.Msg) {
		received <- struct{}{}
	})
	require.NoError(t, err)

	NewNATSDelivery(nc, "session-a", nil).PlaySound()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("sound message not delivered")
	}
}

func TestNATSDeliveryShowDesktop(t *testing.T) {
	nc := connect(t)

	received := make(chan *nats.Msg, 1)
	_, err := nc.Subscribe("sessions.session-a.notify.desktop", func(m *nats.Msg) {
		received <- m
	})
	require.NoError(t, err)

	NewNATSDelivery(nc, "session-a", nil).ShowDesktop(Notification{
		ID:       "n-1",
		Title:    "Feedback drop",
		Priority: PriorityHigh,
	})

	select {
	case msg := <-received:
		var n Notification
		require.NoError(t, json.Unmarshal(msg.Data, &n))
		assert.Equal(t, "n-1", n.ID)
		assert.Equal(t, "Feedback drop", n.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("desktop message not delivered")
	}
}

func TestNATSPrompterGranted(t *testing.T) {
	nc := connect(t)

	_, err := nc.Subscribe("sessions.session-a.notify.permission", func(m *nats.Msg) {
		_ = m.Respond([]byte(PermissionGranted))
	})
	require.NoError(t, err)

	p := NewNATSPrompter(nc, "session-a", 2*time.Second, nil)
	perm, err := p.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
}

func TestNATSPrompterUnansweredIsDismissal(t *testing.T) {
	nc := connect(t)

	// A bridge that never replies.
	_, err := nc.Subscribe("sessions.session-a.notify.permission", func(*nats.Msg) {})
	require.NoError(t, err)

	p := NewNATSPrompter(nc, "session-a", 200*time.Millisecond, nil)
	perm, err := p.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionDismissed, perm)
}

func TestNATSPrompterUnexpectedReply(t *testing.T) {
	nc := connect(t)

	_, err := nc.Subscribe("sessions.session-a.notify.permission", func(m *nats.Msg) {
		_ = m.Respond([]byte("maybe"))
	})
	require.NoError(t, err)

	p := NewNATSPrompter(nc, "session-a", 2*time.Second, nil)
	perm, err := p.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionDismissed, perm)
}
