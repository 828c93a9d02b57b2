package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Center is one session's notification inbox. All methods are safe for
// concurrent use. Storage is unconditional: settings filter delivery
// and the ambient badge, never what is retained.
type Center struct {
	mu            sync.RWMutex
	notifications []Notification // newest first
	settings      Settings
	permission    Permission
	delivery      Delivery
	prompter      Prompter
	logger        *zap.Logger
}

// NewCenter builds a Center with the given defaults. Delivery and
// prompter may be nil, in which case sound/desktop surfacing and
// permission prompts are no-ops.
func NewCenter(settings Settings, delivery Delivery, prompter Prompter, logger *zap.Logger) (*Center, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{
		settings:   settings,
		permission: PermissionUnknown,
		delivery:   delivery,
		prompter:   prompter,
		logger:     logger,
	}, nil
}

// Push stores a notification and applies delivery side effects. The
// Center assigns ID, timestamp, and unread state; callers only describe
// the event. Returns the stored entry.
func (c *Center) Push(n Notification) Notification {
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	n.ID = uuid.New().String()
	n.Timestamp = time.Now().UTC()
	n.Read = false

	c.mu.Lock()
	c.notifications = append([]Notification{n}, c.notifications...)
	settings := c.settings
	permission := c.permission
	c.mu.Unlock()

	newMetrics().Pushed.WithLabelValues(string(n.Type)).Inc()

	// Critical-only mode mutes everything below high priority. The
	// entry is already stored and counted; only surfacing is skipped.
	if settings.CriticalOnly && n.Priority != PriorityHigh {
		return n
	}
	if c.delivery != nil {
		if settings.SoundEnabled && n.Priority == PriorityHigh {
			c.delivery.PlaySound()
		}
		if settings.DesktopEnabled && permission == PermissionGranted {
			c.delivery.ShowDesktop(n)
		}
	}
	return n
}

// Notifications returns a copy of the inbox, newest first.
func (c *Center) Notifications() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// MarkRead marks a single notification as read. Marking an already-read
// entry is a no-op.
func (c *Center) MarkRead(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notifications {
		if c.notifications[i].ID == id {
			c.notifications[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// MarkAllRead marks every notification as read.
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notifications {
		c.notifications[i].Read = true
	}
}

// Clear removes a single notification.
func (c *Center) Clear(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notifications {
		if c.notifications[i].ID == id {
			c.notifications = append(c.notifications[:i], c.notifications[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ClearAll empties the inbox.
func (c *Center) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = nil
}

// UnreadCount returns the number of unread notifications regardless of
// settings.
func (c *Center) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unreadLocked(false)
}

// HasHighPriority reports whether any unread high-priority notification
// exists.
func (c *Center) HasHighPriority() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.notifications {
		if !n.Read && n.Priority == PriorityHigh {
			return true
		}
	}
	return false
}

// Badge renders the ambient badge text: the unread count up to nine,
// then "9+". Under critical-only mode the badge counts only unread
// high-priority notifications.
func (c *Center) Badge() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return badge(c.unreadLocked(c.settings.CriticalOnly))
}

func (c *Center) unreadLocked(highOnly bool) int {
	count := 0
	for _, n := range c.notifications {
		if n.Read {
			continue
		}
		if highOnly && n.Priority != PriorityHigh {
			continue
		}
		count++
	}
	return count
}

// Settings returns the current settings.
func (c *Center) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// UpdateSettings applies a partial settings change, validating the
// result as a whole before committing it.
func (c *Center) UpdateSettings(patch SettingsPatch) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.settings
	if patch.SoundEnabled != nil {
		next.SoundEnabled = *patch.SoundEnabled
	}
	if patch.DesktopEnabled != nil {
		next.DesktopEnabled = *patch.DesktopEnabled
	}
	if patch.CriticalOnly != nil {
		next.CriticalOnly = *patch.CriticalOnly
	}
	if patch.FeedbackThreshold != nil {
		next.FeedbackThreshold = *patch.FeedbackThreshold
	}
	if patch.UtilizationThreshold != nil {
		next.UtilizationThreshold = *patch.UtilizationThreshold
	}
	if err := next.Validate(); err != nil {
		return c.settings, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	c.settings = next
	return next, nil
}

// Permission returns the last known desktop-permission state.
func (c *Center) Permission() Permission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permission
}

// RequestDesktopPermission prompts for desktop-notification permission.
// An already-granted permission short-circuits without prompting. A
// grant also enables desktop delivery, since the request only happens
// when the user is opting in.
func (c *Center) RequestDesktopPermission(ctx context.Context) (Permission, error) {
	c.mu.RLock()
	current := c.permission
	prompter := c.prompter
	c.mu.RUnlock()

	if current == PermissionGranted {
		return PermissionGranted, nil
	}
	if prompter == nil {
		return current, nil
	}

	perm, err := prompter.RequestPermission(ctx)
	if err != nil {
		c.logger.Warn("desktop permission prompt failed", zap.Error(err))
		return current, err
	}

	c.mu.Lock()
	c.permission = perm
	if perm == PermissionGranted {
		c.settings.DesktopEnabled = true
	}
	c.mu.Unlock()
	return perm, nil
}
