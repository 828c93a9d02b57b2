// Package notify aggregates system events into per-session inboxes.
//
// Each open session owns a Center: an in-memory, session-lifetime store
// of notifications with derived unread state and delivery side effects
// (sound, desktop). Centers live in a process-wide Hub keyed by session
// ID and are dropped when the session ends; nothing is persisted across
// reloads. Any component may push a notification; the Center only
// stores and filters, it never evaluates business thresholds itself.
package notify

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotFound indicates an unknown notification ID.
	ErrNotFound = errors.New("notification not found")

	// ErrInvalidSettings indicates a settings patch outside allowed
	// bounds.
	ErrInvalidSettings = errors.New("invalid notification settings")
)

// Type categorizes a notification for display and filtering.
type Type string

const (
	TypeAlert            Type = "alert"
	TypeUpdate           Type = "update"
	TypeSuccess          Type = "success"
	TypeSystem           Type = "system"
	TypeFeedbackAlert    Type = "feedback_alert"
	TypeUtilizationAlert Type = "utilization_alert"
)

// Priority orders notifications for attention.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Notification is one inbox entry. ID, Timestamp, and Read are assigned
// by the Center on push.
type Notification struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
	Priority   Priority  `json:"priority"`
	ClientID   string    `json:"client_id,omitempty"`
	ClientName string    `json:"client_name,omitempty"`
	ActionURL  string    `json:"action_url,omitempty"`
	AlertID    string    `json:"alert_id,omitempty"`
}

// Settings govern delivery and ambient filtering, never storage: a
// muted notification is still retained in the full list.
type Settings struct {
	SoundEnabled   bool `json:"sound_enabled"`
	DesktopEnabled bool `json:"desktop_enabled"`

	// CriticalOnly restricts delivery and the ambient badge to
	// high-priority notifications.
	CriticalOnly bool `json:"critical_only"`

	// FeedbackThreshold (1-10) and UtilizationThreshold (50-100) are
	// read by external event producers deciding whether to push an
	// alert at all; the Center only stores them.
	FeedbackThreshold    int `json:"feedback_threshold"`
	UtilizationThreshold int `json:"utilization_threshold"`
}

// DefaultSettings returns the settings a new session starts with.
func DefaultSettings() Settings {
	return Settings{
		SoundEnabled:         true,
		DesktopEnabled:       false,
		CriticalOnly:         false,
		FeedbackThreshold:    7,
		UtilizationThreshold: 80,
	}
}

// Validate checks threshold bounds.
func (s Settings) Validate() error {
	if s.FeedbackThreshold < 1 || s.FeedbackThreshold > 10 {
		return errors.New("feedback threshold must be between 1 and 10")
	}
	if s.UtilizationThreshold < 50 || s.UtilizationThreshold > 100 {
		return errors.New("utilization threshold must be between 50 and 100")
	}
	return nil
}

// SettingsPatch mutates individual settings; nil fields are left
// untouched.
type SettingsPatch struct {
	SoundEnabled         *bool `json:"sound_enabled,omitempty"`
	DesktopEnabled       *bool `json:"desktop_enabled,omitempty"`
	CriticalOnly         *bool `json:"critical_only,omitempty"`
	FeedbackThreshold    *int  `json:"feedback_threshold,omitempty"`
	UtilizationThreshold *int  `json:"utilization_threshold,omitempty"`
}

// Permission is the state of the OS-level desktop-notification
// permission. The application does not own it: it is externally
// persisted, unqueryable, and can only be re-requested, never revoked,
// from here.
type Permission string

const (
	PermissionUnknown   Permission = "default"
	PermissionGranted   Permission = "granted"
	PermissionDenied    Permission = "denied"
	PermissionDismissed Permission = "dismissed"
)

// Delivery performs the side-effect half of a push: audible and
// desktop-level surfacing. Implementations must be non-blocking.
type Delivery interface {
	PlaySound()
	ShowDesktop(n Notification)
}

// Prompter wraps the one-shot, user-gesture-gated OS permission prompt.
type Prompter interface {
	RequestPermission(ctx context.Context) (Permission, error)
}

// badge renders an unread count for the ambient badge, capping at
// "9+" from ten onward.
func badge(unread int) string {
	if unread >= 10 {
		return "9+"
	}
	return strconv.Itoa(unread)
}
