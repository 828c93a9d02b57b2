package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/pulsed/internal/notify"
)

// InboxResponse is one session's inbox with its derived state.
type InboxResponse struct {
	Notifications   []notify.Notification `json:"notifications"`
	UnreadCount     int                   `json:"unread_count"`
	HasHighPriority bool                  `json:"has_high_priority"`
	Badge           string                `json:"badge"`
}

func (s *Server) inbox(c echo.Context) *notify.Center {
	return s.hub.Session(c.Param("sessionID"))
}

func (s *Server) handleListNotifications(c echo.Context) error {
	center := s.inbox(c)
	return c.JSON(http.StatusOK, InboxResponse{
		Notifications:   center.Notifications(),
		UnreadCount:     center.UnreadCount(),
		HasHighPriority: center.HasHighPriority(),
		Badge:           center.Badge(),
	})
}

// PushNotificationRequest is the request body for POST .../notifications.
type PushNotificationRequest struct {
	Type       notify.Type     `json:"type"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Priority   notify.Priority `json:"priority"`
	ClientID   string          `json:"client_id"`
	ClientName string          `json:"client_name"`
	ActionURL  string          `json:"action_url"`
	AlertID    string          `json:"alert_id"`
}

func (s *Server) handlePushNotification(c echo.Context) error {
	var req PushNotificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title field is required")
	}
	stored := s.inbox(c).Push(notify.Notification{
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		Priority:   req.Priority,
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		ActionURL:  req.ActionURL,
		AlertID:    req.AlertID,
	})
	return c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	if err := s.inbox(c).MarkRead(c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(c echo.Context) error {
	s.inbox(c).MarkAllRead()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearNotification(c echo.Context) error {
	if err := s.inbox(c).Clear(c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearAll(c echo.Context) error {
	s.inbox(c).ClearAll()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.inbox(c).Settings())
}

func (s *Server) handlePatchSettings(c echo.Context) error {
	var patch notify.SettingsPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	settings, err := s.inbox(c).UpdateSettings(patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, settings)
}

// PermissionResponse is the response body for POST .../permission.
type PermissionResponse struct {
	Permission notify.Permission `json:"permission"`
}

func (s *Server) handleRequestPermission(c echo.Context) error {
	perm, err := s.inbox(c).RequestDesktopPermission(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, PermissionResponse{Permission: perm})
}

func (s *Server) handleEndSession(c echo.Context) error {
	s.hub.End(c.Param("sessionID"))
	return c.NoContent(http.StatusNoContent)
}
