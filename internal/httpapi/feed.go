package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pulsed/internal/feed"
	"github.com/fyrsmithlabs/pulsed/internal/lifecycle"
	"github.com/fyrsmithlabs/pulsed/internal/store"
)

// SubmitUpdateRequest is the request body for POST /clients/:clientID/updates.
type SubmitUpdateRequest struct {
	EmployeeID       string        `json:"employee_id"`
	Text             string        `json:"text"`
	Category         feed.Category `json:"category"`
	ClientType       string        `json:"client_type"`
	ApproveForClient bool          `json:"approve_for_client"`
}

// handleSubmitUpdate runs a submission through the update lifecycle.
// A direct post answers 201 with the persisted row; a pending AI
// suggestion answers 202 with the draft to resolve.
func (s *Server) handleSubmitUpdate(c echo.Context) error {
	var req SubmitUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.manager.Submit(c.Request().Context(), lifecycle.SubmitRequest{
		ClientID:         c.Param("clientID"),
		EmployeeID:       req.EmployeeID,
		Text:             req.Text,
		Category:         req.Category,
		ClientType:       req.ClientType,
		ApproveForClient: req.ApproveForClient,
	})
	if err != nil {
		return httpError(err)
	}
	if result.Pending != nil {
		return c.JSON(http.StatusAccepted, result)
	}
	return c.JSON(http.StatusCreated, result)
}

func (s *Server) handleAcceptRefined(c echo.Context) error {
	update, err := s.manager.AcceptRefined(c.Request().Context(), c.Param("draftID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, update)
}

func (s *Server) handleAcceptRoutine(c echo.Context) error {
	update, err := s.manager.AcceptRoutine(c.Request().Context(), c.Param("draftID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, update)
}

func (s *Server) handleDiscardSuggestion(c echo.Context) error {
	if err := s.manager.Discard(c.Param("draftID")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleListUpdates lists a client's updates. view=client narrows the
// result to rows approved for client visibility; anything else gets
// the full employee view.
func (s *Server) handleListUpdates(c echo.Context) error {
	view := store.ViewEmployee
	if c.QueryParam("view") == "client" {
		view = store.ViewClient
	}
	updates, err := s.records.ListDailyUpdates(c.Request().Context(), c.Param("clientID"), view)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updates)
}

// ApprovalRequest is the request body for PATCH /updates/:id/approval.
type ApprovalRequest struct {
	ApprovedForClient bool `json:"approved_for_client"`
}

func (s *Server) handleSetApproval(c echo.Context) error {
	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	update, err := s.manager.SetApproval(c.Request().Context(), c.Param("id"), req.ApprovedForClient)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, update)
}

// GenerateSummaryRequest is the request body for POST /clients/:clientID/summaries.
type GenerateSummaryRequest struct {
	ClientType string `json:"client_type"`
}

// handleGenerateSummary generates the digest for the current ISO week.
// A week with no updates answers 422 without calling the classifier.
func (s *Server) handleGenerateSummary(c echo.Context) error {
	var req GenerateSummaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	summary, err := s.generator.Generate(c.Request().Context(), c.Param("clientID"), req.ClientType, time.Now().UTC())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, summary)
}

func (s *Server) handleListSummaries(c echo.Context) error {
	summaries, err := s.generator.List(c.Request().Context(), c.Param("clientID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summaries)
}

// CreateTaskRequest is the request body for POST /clients/:clientID/tasks.
type CreateTaskRequest struct {
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	Priority    feed.TaskPriority `json:"priority"`
	DueDate     *time.Time        `json:"due_date"`
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	task, err := s.records.InsertClientTask(c.Request().Context(), feed.ClientTask{
		ClientID:    c.Param("clientID"),
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      feed.TaskPending,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, task)
}

func (s *Server) handleListTasks(c echo.Context) error {
	tasks, err := s.records.ListClientTasks(c.Request().Context(), c.Param("clientID"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tasks)
}

// PatchTaskRequest is the request body for PATCH /tasks/:id.
type PatchTaskRequest struct {
	Status *feed.TaskStatus `json:"status"`
}

func (s *Server) handlePatchTask(c echo.Context) error {
	var req PatchTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	task, err := s.records.PatchClientTask(c.Request().Context(), c.Param("id"), store.TaskPatch{Status: req.Status})
	if err != nil {
		s.logger.Debug("task patch rejected", zap.String("task_id", c.Param("id")), zap.Error(err))
		return httpError(err)
	}
	return c.JSON(http.StatusOK, task)
}
