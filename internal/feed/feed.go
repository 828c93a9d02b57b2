// Package feed defines the record types of the account-update feed.
//
// These are the rows the record store persists and the change stream
// fans out: daily updates posted by employees, append-only weekly
// summaries, and client tasks. The types carry both db and json tags so
// the same structs travel through the SQLite store and the HTTP API.
package feed

import "time"

// Entity identifies a record-store entity. Entity names double as the
// change-stream topic component, so they must stay stable.
type Entity string

const (
	EntityDailyUpdates    Entity = "daily_updates"
	EntityWeeklySummaries Entity = "weekly_summaries"
	EntityClientTasks     Entity = "client_tasks"
)

// Valid reports whether e is a known entity.
func (e Entity) Valid() bool {
	switch e {
	case EntityDailyUpdates, EntityWeeklySummaries, EntityClientTasks:
		return true
	}
	return false
}

// Category classifies a daily update.
type Category string

const (
	CategoryPPC           Category = "ppc"
	CategoryCatalog       Category = "catalog"
	CategoryAccountHealth Category = "account_health"
	CategoryInventory     Category = "inventory"
	CategoryStrategy      Category = "strategy"
	CategoryGeneral       Category = "general"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPPC, CategoryCatalog, CategoryAccountHealth,
		CategoryInventory, CategoryStrategy, CategoryGeneral:
		return true
	}
	return false
}

// DailyUpdate is a dated account update posted by a field employee.
//
// ApprovedForClient is the sole visibility gate for client-facing
// reads: a client session must never observe a row where it is false.
// AISuggestion holds the serialized classification payload when the
// employee accepted a refined suggestion, nil otherwise.
type DailyUpdate struct {
	ID                  string    `db:"id" json:"id"`
	ClientID            string    `db:"client_id" json:"client_id"`
	EmployeeID          string    `db:"employee_id" json:"employee_id"`
	Text                string    `db:"update_text" json:"update_text"`
	Category            Category  `db:"category" json:"category"`
	AISuggestion        *string   `db:"ai_suggestion" json:"ai_suggestion"`
	IsGrowthOpportunity bool      `db:"is_growth_opportunity" json:"is_growth_opportunity"`
	FeedbackRequested   bool      `db:"feedback_requested" json:"feedback_requested"`
	ApprovedForClient   bool      `db:"approved_for_client" json:"approved_for_client"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// WeeklySummary is an AI-generated digest of one client's updates over
// a single ISO week. Rows are append-only: there is no update or delete
// path, and repeated generation for the same week appends a new row.
type WeeklySummary struct {
	ID                  string    `db:"id" json:"id"`
	ClientID            string    `db:"client_id" json:"client_id"`
	WeekStart           time.Time `db:"week_start" json:"week_start"`
	WeekEnd             time.Time `db:"week_end" json:"week_end"`
	SummaryText         string    `db:"summary_text" json:"summary_text"`
	Highlights          []string  `db:"-" json:"highlights"`
	GrowthOpportunities []string  `db:"-" json:"growth_opportunities"`
	GeneratedAt         time.Time `db:"generated_at" json:"generated_at"`
}

// TaskPriority orders client tasks for display.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a client task. Tasks are mutated
// by status transitions only.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// ClientTask is a work item tracked against a client account.
type ClientTask struct {
	ID          string       `db:"id" json:"id"`
	ClientID    string       `db:"client_id" json:"client_id"`
	Title       string       `db:"title" json:"title"`
	Description *string      `db:"description" json:"description"`
	Priority    TaskPriority `db:"priority" json:"priority"`
	Status      TaskStatus   `db:"status" json:"status"`
	DueDate     *time.Time   `db:"due_date" json:"due_date"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}
