package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDelivery records delivery side effects.
type fakeDelivery struct {
	sounds   int
	desktops []Notification
}

func (f *fakeDelivery) PlaySound() { f.sounds++ }

func (f *fakeDelivery) ShowDesktop(n Notification) { f.desktops = append(f.desktops, n) }

// fakePrompter answers permission prompts with a canned result.
type fakePrompter struct {
	result Permission
	err    error
	calls  int
}

func (f *fakePrompter) RequestPermission(_ context.Context) (Permission, error) {
	f.calls++
	return f.result, f.err
}

func newTestCenter(t *testing.T, settings Settings, delivery Delivery, prompter Prompter) *Center {
	t.Helper()
	c, err := NewCenter(settings, delivery, prompter, nil)
	require.NoError(t, err)
	return c
}

func TestPushAssignsIdentity(t *testing.T) {
	c := newTestCenter(t, DefaultSettings(), nil, nil)

	stored := c.Push(Notification{Type: TypeUpdate, Title: "New update posted"})

	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())
	assert.False(t, stored.Read)
	assert.Equal(t, PriorityMedium, stored.Priority, "unset priority defaults to medium")

	list := c.Notifications()
	require.Len(t, list, 1)
	assert.Equal(t, stored.ID, list[0].ID)
}

func TestPushOrdersNewestFirst(t *testing.T) {
	c := newTestCenter(t, DefaultSettings(), nil, nil)

	first := c.Push(Notification{Type: TypeSystem, Title: "first"})
	second := c.Push(Notification{Type: TypeSystem, Title: "second"})

	list := c.Notifications()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestReadStateTransitions(t *testing.T) {
	c := newTestCenter(t, DefaultSettings(), nil, nil)

	a := c.Push(Notification{Title: "a", Priority: PriorityHigh})
	b := c.Push(Notification{Title: "b"})

	assert.Equal(t, 2, c.UnreadCount())
	assert.True(t, c.HasHighPriority())

	require.NoError(t, c.MarkRead(a.ID))
	assert.Equal(t, 1, c.UnreadCount())
	assert.False(t, c.HasHighPriority(), "only unread entries count")

	// Idempotent.
	require.NoError(t, c.MarkRead(a.ID))
	assert.Equal(t, 1, c.UnreadCount())

	assert.ErrorIs(t, c.MarkRead("missing"), ErrNotFound)

	c.MarkAllRead()
	assert.Equal(t, 0, c.UnreadCount())
	_ = b
}

func TestClear(t *testing.T) {
	c := newTestCenter(t, DefaultSettings(), nil, nil)

	a := c.Push(Notification{Title: "a"})
	c.Push(Notification{Title: "b"})

	require.NoError(t, c.Clear(a.ID))
	assert.Len(t, c.Notifications(), 1)
	assert.ErrorIs(t, c.Clear(a.ID), ErrNotFound)

	c.ClearAll()
	assert.Empty(t, c.Notifications())
	assert.Equal(t, 0, c.UnreadCount())
}

func TestBadgeCapsAtNinePlus(t *testing.T) {
	c := newTestCenter(t, DefaultSettings(), nil, nil)

	assert.Equal(t, "0", c.Badge())

	for i := 0; i < 9; i++ {
		c.Push(Notification{Title: "n"})
	}
	assert.Equal(t, "9", c.Badge())

	c.Push(Notification{Title: "tenth"})
	assert.Equal(t, "9+", c.Badge())

	c.Push(Notification{Title: "eleventh"})
	assert.Equal(t, "9+", c.Badge())
}

func TestCriticalOnlyBadgeCountsHighPriorityOnly(t *testing.T) {
	settings := DefaultSettings()
	settings.CriticalOnly = true
	c := newTestCenter(t, settings, nil, nil)

	c.Push(Notification{Title: "low", Priority: PriorityLow})
	c.Push(Notification{Title: "medium"})
	c.Push(Notification{Title: "high", Priority: PriorityHigh})

	assert.Equal(t, "1", c.Badge())
	// The full unread count still sees everything.
	assert.Equal(t, 3, c.UnreadCount())
	assert.Len(t, c.Notifications(), 3, "muted entries are stored, not dropped")
}

func TestDeliverySoundOnlyForHighPriority(t *testing.T) {
	delivery := &fakeDelivery{}
	c := newTestCenter(t, DefaultSettings(), delivery, nil)

	c.Push(Notification{Title: "medium"})
	assert.Equal(t, 0, delivery.sounds)

	c.Push(Notification{Title: "high", Priority: PriorityHigh})
	assert.Equal(t, 1, delivery.sounds)
}

func TestDeliverySoundDisabled(t *testing.T) {
	settings := DefaultSettings()
	settings.SoundEnabled = false
	delivery := &fakeDelivery{}
	c := newTestCenter(t, settings, delivery, nil)

	c.Push(Notification{Title: "high", Priority: PriorityHigh})
	assert.Equal(t, 0, delivery.sounds)
}

func TestDesktopDeliveryRequiresGrantedPermission(t *testing.T) {
	settings := DefaultSettings()
	settings.DesktopEnabled = true
	delivery := &fakeDelivery{}
	c := newTestCenter(t, settings, delivery, &fakePrompter{result: PermissionGranted})

	// Permission still unknown: nothing surfaces.
	c.Push(Notification{Title: "before grant", Priority: PriorityHigh})
	assert.Empty(t, delivery.desktops)

	perm, err := c.RequestDesktopPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)

	c.Push(Notification{Title: "after grant", Priority: PriorityHigh})
	require.Len(t, delivery.desktops, 1)
	assert.Equal(t, "after grant", delivery.desktops[0].Title)
}

func TestCriticalOnlyMutesDelivery(t *testing.T) {
	settings := DefaultSettings()
	settings.CriticalOnly = true
	settings.DesktopEnabled = true
	delivery := &fakeDelivery{}
	c := newTestCenter(t, settings, delivery, &fakePrompter{result: PermissionGranted})

	_, err := c.RequestDesktopPermission(context.Background())
	require.NoError(t, err)

	c.Push(Notification{Title: "medium", Priority: PriorityMedium})
	assert.Equal(t, 0, delivery.sounds)
	assert.Empty(t, delivery.desktops)

	c.Push(Notification{Title: "high", Priority: PriorityHigh})
	assert.Equal(t, 1, delivery.sounds)
	assert.Len(t, delivery.desktops, 1)
}

func TestPermissionPromptIsOneShot(t *testing.T) {
	prompter := &fakePrompter{result: PermissionGranted}
	c := newTestCenter(t, DefaultSettings(), nil, prompter)

	perm, err := c.RequestDesktopPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
	assert.Equal(t, 1, prompter.calls)
	assert.True(t, c.Settings().DesktopEnabled, "grant opts desktop delivery in")

	// Granted permission never prompts again.
	perm, err = c.RequestDesktopPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
	assert.Equal(t, 1, prompter.calls)
}

func TestPermissionDeniedCanBeReRequested(t *testing.T) {
	prompter := &fakePrompter{result: PermissionDenied}
	c := newTestCenter(t, DefaultSettings(), nil, prompter)

	perm, err := c.RequestDesktopPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, perm)
	assert.False(t, c.Settings().DesktopEnabled)

	prompter.result = PermissionGranted
	perm, err = c.RequestDesktopPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, perm)
	assert.Equal(t, 2, prompter.calls)
}

func TestPermissionPromptFailureKeepsState(t *testing.T) {
	prompter := &fakePrompter{err: errors.New("bridge offline")}
	c := newTestCenter(t, DefaultSettings(), nil, prompter)

	_, err := c.RequestDesktopPermission(context.Background())
	assert.Error(t, err)
	assert.Equal(t, PermissionUnknown, c.Permission())
}

func TestUpdateSettings(t *testing.T) {
	c := newTestCenter(t, DefaultSettings(), nil, nil)

	critical := true
	threshold := 9
	settings, err := c.UpdateSettings(SettingsPatch{
		CriticalOnly:      &critical,
		FeedbackThreshold: &threshold,
	})
	require.NoError(t, err)
	assert.True(t, settings.CriticalOnly)
	assert.Equal(t, 9, settings.FeedbackThreshold)
	// Untouched fields survive.
	assert.Equal(t, DefaultSettings().UtilizationThreshold, settings.UtilizationThreshold)
}

func TestUpdateSettingsValidation(t *testing.T) {
	c := newTestCenter(t, DefaultSettings(), nil, nil)

	for _, tt := range []struct {
		name  string
		patch SettingsPatch
	}{
		{"feedback too low", SettingsPatch{FeedbackThreshold: intp(0)}},
		{"feedback too high", SettingsPatch{FeedbackThreshold: intp(11)}},
		{"utilization too low", SettingsPatch{UtilizationThreshold: intp(49)}},
		{"utilization too high", SettingsPatch{UtilizationThreshold: intp(101)}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.UpdateSettings(tt.patch)
			assert.ErrorIs(t, err, ErrInvalidSettings)
			// Rejected patches leave settings untouched.
			assert.Equal(t, DefaultSettings(), c.Settings())
		})
	}
}

func intp(v int) *int { return &v }
