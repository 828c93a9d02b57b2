package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSessionScoping(t *testing.T) {
	hub, err := NewHub(HubOptions{})
	require.NoError(t, err)

	a := hub.Session("session-a")
	b := hub.Session("session-b")
	require.NotSame(t, a, b)

	a.Push(Notification{Title: "only for a"})
	assert.Equal(t, 1, a.UnreadCount())
	assert.Equal(t, 0, b.UnreadCount())

	// Same ID returns the same center.
	assert.Same(t, a, hub.Session("session-a"))
}

func TestHubEndDropsState(t *testing.T) {
	hub, err := NewHub(HubOptions{})
	require.NoError(t, err)

	c := hub.Session("session-a")
	c.Push(Notification{Title: "ephemeral"})

	hub.End("session-a")
	// Double end is harmless.
	hub.End("session-a")

	fresh := hub.Session("session-a")
	require.NotSame(t, c, fresh)
	assert.Empty(t, fresh.Notifications(), "session state does not survive a restart")
}

func TestHubSeedsDefaults(t *testing.T) {
	defaults := DefaultSettings()
	defaults.CriticalOnly = true
	hub, err := NewHub(HubOptions{Defaults: defaults})
	require.NoError(t, err)

	assert.True(t, hub.Session("s").Settings().CriticalOnly)

	// One session's settings change never bleeds into a new session.
	off := false
	_, err = hub.Session("s").UpdateSettings(SettingsPatch{CriticalOnly: &off})
	require.NoError(t, err)
	assert.True(t, hub.Session("other").Settings().CriticalOnly)
}

func TestHubRejectsInvalidDefaults(t *testing.T) {
	_, err := NewHub(HubOptions{Defaults: Settings{FeedbackThreshold: 99, UtilizationThreshold: 80}})
	assert.Error(t, err)
}

func TestHubBroadcast(t *testing.T) {
	hub, err := NewHub(HubOptions{})
	require.NoError(t, err)

	a := hub.Session("a")
	b := hub.Session("b")

	hub.Broadcast(Notification{Title: "system maintenance", Type: TypeSystem})

	assert.Equal(t, 1, a.UnreadCount())
	assert.Equal(t, 1, b.UnreadCount())
}

func TestHubPerSessionDelivery(t *testing.T) {
	deliveries := map[string]*fakeDelivery{}
	hub, err := NewHub(HubOptions{
		Delivery: func(sessionID string) Delivery {
			d := &fakeDelivery{}
			deliveries[sessionID] = d
			return d
		},
	})
	require.NoError(t, err)

	hub.Session("a").Push(Notification{Title: "loud", Priority: PriorityHigh})

	require.Contains(t, deliveries, "a")
	assert.Equal(t, 1, deliveries["a"].sounds)
}
