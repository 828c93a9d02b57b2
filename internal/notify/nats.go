package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects carrying per-session UI side effects. The frontend bridge
// for a session subscribes to its sound and desktop subjects and
// services its permission subject via request/reply.
const (
	soundSubjectFmt      = "sessions.%s.notify.sound"
	desktopSubjectFmt    = "sessions.%s.notify.desktop"
	permissionSubjectFmt = "sessions.%s.notify.permission"
)

// NATSDelivery surfaces sound and desktop notifications by publishing
// to the session's subjects. Publishes are best effort: a session with
// no connected bridge simply drops them.
type NATSDelivery struct {
	conn      *nats.Conn
	sessionID string
	logger    *zap.Logger
}

// NewNATSDelivery builds a delivery sink for one session.
func NewNATSDelivery(conn *nats.Conn, sessionID string, logger *zap.Logger) *NATSDelivery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSDelivery{conn: conn, sessionID: sessionID, logger: logger}
}

// PlaySound asks the session bridge to play the notification sound.
func (d *NATSDelivery) PlaySound() {
	subject := fmt.Sprintf(soundSubjectFmt, d.sessionID)
	if err := d.conn.Publish(subject, nil); err != nil {
		d.logger.Warn("sound publish failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// ShowDesktop asks the session bridge to raise an OS-level
// notification.
func (d *NATSDelivery) ShowDesktop(n Notification) {
	subject := fmt.Sprintf(desktopSubjectFmt, d.sessionID)
	data, err := json.Marshal(n)
	if err != nil {
		d.logger.Warn("desktop payload marshal failed", zap.Error(err))
		return
	}
	if err := d.conn.Publish(subject, data); err != nil {
		d.logger.Warn("desktop publish failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// NATSPrompter runs the desktop-permission prompt over request/reply:
// the session bridge shows the OS prompt and replies with the resulting
// state.
type NATSPrompter struct {
	conn      *nats.Conn
	sessionID string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewNATSPrompter builds a prompter for one session. A zero timeout
// defaults to 30s, generous because the user decides at their own pace.
func NewNATSPrompter(conn *nats.Conn, sessionID string, timeout time.Duration, logger *zap.Logger) *NATSPrompter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPrompter{conn: conn, sessionID: sessionID, timeout: timeout, logger: logger}
}

// RequestPermission asks the session bridge to show the permission
// prompt and waits for the user's answer. A bridge that never replies
// counts as a dismissal.
func (p *NATSPrompter) RequestPermission(ctx context.Context) (Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	subject := fmt.Sprintf(permissionSubjectFmt, p.sessionID)
	msg, err := p.conn.RequestWithContext(ctx, subject, nil)
	if err != nil {
		if ctx.Err() != nil {
			return PermissionDismissed, nil
		}
		return PermissionUnknown, fmt.Errorf("permission request: %w", err)
	}

	switch perm := Permission(msg.Data); perm {
	case PermissionGranted, PermissionDenied, PermissionDismissed:
		return perm, nil
	default:
		p.logger.Warn("unexpected permission reply", zap.ByteString("reply", msg.Data))
		return PermissionDismissed, nil
	}
}
