// Package digest generates weekly AI summaries of a client's updates.
//
// A digest covers the ISO week (Monday start) containing the requested
// time. Generation over an empty week is refused before any service or
// persistence call. Repeated generation for the same week appends a new
// summary row each time: the store has no dedup path for summaries, a
// carried-over product decision rather than an oversight. See DESIGN.md.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pulsed/internal/classify"
	"github.com/fyrsmithlabs/pulsed/internal/feed"
	"github.com/fyrsmithlabs/pulsed/internal/store"
)

var (
	// ErrNoUpdates indicates the computed week contains nothing to
	// summarize. Returned before any classification call.
	ErrNoUpdates = errors.New("no updates in week to summarize")

	// ErrMissingClientID indicates a generation request without a
	// client.
	ErrMissingClientID = errors.New("client ID required")

	// ErrUnavailable indicates the generator has no classifier, which
	// happens when the AI service is disabled by configuration.
	// Listing summaries still works; only generation is off.
	ErrUnavailable = errors.New("digest generation unavailable")
)

// WeekWindow returns the half-open [start, end) bounds of the ISO week
// containing t, in UTC. Weeks start Monday 00:00.
func WeekWindow(t time.Time) (start, end time.Time) {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started 6 days earlier
	}
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -(weekday - 1))
	return start, start.AddDate(0, 0, 7)
}

// Generator produces weekly summaries.
type Generator struct {
	store      store.RecordStore
	classifier classify.Classifier
	logger     *zap.Logger
}

// NewGenerator creates a digest generator. A nil classifier is
// accepted: listing works and Generate returns ErrUnavailable, the
// degraded mode used when the AI service is disabled.
func NewGenerator(recordStore store.RecordStore, classifier classify.Classifier, logger *zap.Logger) (*Generator, error) {
	if recordStore == nil {
		return nil, fmt.Errorf("record store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		store:      recordStore,
		classifier: classifier,
		logger:     logger.Named("digest"),
	}, nil
}

// Generate summarizes the client's updates for the ISO week containing
// now and persists exactly one new WeeklySummary row.
//
// Both approved and unapproved updates feed the digest: the summary is
// an internal work product, the approval gate governs only the
// client-facing update list. clientType steers the prompt and may be
// empty.
func (g *Generator) Generate(ctx context.Context, clientID, clientType string, now time.Time) (*feed.WeeklySummary, error) {
	if clientID == "" {
		return nil, ErrMissingClientID
	}
	if g.classifier == nil {
		return nil, ErrUnavailable
	}

	weekStart, weekEnd := WeekWindow(now)

	updates, err := g.store.ListDailyUpdates(ctx, clientID, store.ViewEmployee)
	if err != nil {
		return nil, fmt.Errorf("listing updates: %w", err)
	}

	texts := []string{}
	for _, u := range updates {
		created := u.CreatedAt.UTC()
		if !created.Before(weekStart) && created.Before(weekEnd) {
			texts = append(texts, u.Text)
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: client %s, week of %s",
			ErrNoUpdates, clientID, weekStart.Format("2006-01-02"))
	}

	result, err := g.classifier.SummarizeWeek(ctx, texts, clientType)
	if err != nil {
		return nil, fmt.Errorf("summarizing week: %w", err)
	}

	summary := feed.WeeklySummary{
		ClientID:            clientID,
		WeekStart:           weekStart,
		WeekEnd:             weekEnd,
		SummaryText:         result.Summary,
		Highlights:          result.Highlights,
		GrowthOpportunities: result.GrowthOpportunities,
	}

	persisted, err := g.store.InsertWeeklySummary(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("persisting summary: %w", err)
	}

	g.logger.Info("weekly summary generated",
		zap.String("summary_id", persisted.ID),
		zap.String("client_id", clientID),
		zap.Time("week_start", weekStart),
		zap.Int("updates", len(texts)))

	return &persisted, nil
}

// List returns the client's summaries, most recent week first.
func (g *Generator) List(ctx context.Context, clientID string) ([]feed.WeeklySummary, error) {
	if clientID == "" {
		return nil, ErrMissingClientID
	}
	return g.store.ListWeeklySummaries(ctx, clientID)
}
