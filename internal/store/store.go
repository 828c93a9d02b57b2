// Package store persists feed records and emits change events.
//
// RecordStore is the contract the rest of the daemon programs against.
// The SQLite implementation backs the daemon; the memory implementation
// backs tests. Both notify a ChangeNotifier after every successful
// write so open sessions converge via the change stream.
package store

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/pulsed/internal/feed"
	"github.com/fyrsmithlabs/pulsed/internal/stream"
)

var (
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrPersistence indicates a backend write failed. The initiating
	// action is surfaced to the user and not retried automatically.
	ErrPersistence = errors.New("record store write failed")

	// ErrInvalidRecord indicates a record failed validation before any
	// backend call was made.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyPatch indicates a patch with no fields set.
	ErrEmptyPatch = errors.New("empty patch")
)

// View selects the visibility rule for daily-update reads.
type View string

const (
	// ViewEmployee returns every update for the client.
	ViewEmployee View = "employee"

	// ViewClient returns only updates with ApprovedForClient set. This
	// filter is applied at the query layer so no caller can observe an
	// unapproved row through a client-facing read.
	ViewClient View = "client"
)

// UpdatePatch mutates a daily update. Approval is the only mutable
// field after posting; suggestion acceptance rewrites happen before the
// row is inserted.
type UpdatePatch struct {
	ApprovedForClient *bool
}

// TaskPatch mutates a client task. Tasks change by status transition
// only.
type TaskPatch struct {
	Status *feed.TaskStatus
}

// ChangeNotifier receives a notification after every committed write.
// stream.Publisher is the production implementation.
type ChangeNotifier interface {
	RecordChanged(entity feed.Entity, clientID, recordID string, kind stream.Kind)
}

// RecordStore is the persistence contract for the update feed.
//
// List calls return rows newest first. Insert calls assign an ID and
// creation timestamp when the caller left them zero, and return the row
// as persisted. Patch calls apply only the fields set on the patch and
// return the row after the write (last write wins; there is no
// optimistic-concurrency token, an accepted limitation for the
// single-operator-per-account usage pattern).
type RecordStore interface {
	ListDailyUpdates(ctx context.Context, clientID string, view View) ([]feed.DailyUpdate, error)
	InsertDailyUpdate(ctx context.Context, u feed.DailyUpdate) (feed.DailyUpdate, error)
	PatchDailyUpdate(ctx context.Context, id string, patch UpdatePatch) (feed.DailyUpdate, error)

	ListWeeklySummaries(ctx context.Context, clientID string) ([]feed.WeeklySummary, error)
	InsertWeeklySummary(ctx context.Context, s feed.WeeklySummary) (feed.WeeklySummary, error)

	ListClientTasks(ctx context.Context, clientID string) ([]feed.ClientTask, error)
	InsertClientTask(ctx context.Context, t feed.ClientTask) (feed.ClientTask, error)
	PatchClientTask(ctx context.Context, id string, patch TaskPatch) (feed.ClientTask, error)
}
