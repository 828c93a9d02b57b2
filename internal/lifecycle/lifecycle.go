// Package lifecycle owns the daily-update state machine.
//
// A submission moves Drafting -> Analyzing -> SuggestionShown -> Posted
// when its text matches the trigger vocabulary and classification
// succeeds, or Drafting -> Posted directly when no trigger matches or
// analysis fails. Classification failure must never block posting: the
// original text goes through with no suggestion fields set.
//
// Pending drafts (suggestion shown, awaiting the employee's decision)
// are held in memory until resolved by AcceptRefined, AcceptRoutine, or
// Discard. A failed persist keeps the draft so the employee can retry.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pulsed/internal/classify"
	"github.com/fyrsmithlabs/pulsed/internal/feed"
	"github.com/fyrsmithlabs/pulsed/internal/store"
)

var (
	// ErrValidation is the umbrella for rejected submissions. Specific
	// causes wrap it; all are raised before any network call.
	ErrValidation = errors.New("invalid submission")

	// ErrMissingClientID indicates a submission without a client.
	ErrMissingClientID = fmt.Errorf("%w: client ID required", ErrValidation)

	// ErrMissingEmployeeID indicates a submission without an employee.
	ErrMissingEmployeeID = fmt.Errorf("%w: employee ID required", ErrValidation)

	// ErrEmptyText indicates a submission with blank update text.
	ErrEmptyText = fmt.Errorf("%w: update text must not be empty", ErrValidation)

	// ErrUnknownCategory indicates an unrecognized category value.
	ErrUnknownCategory = fmt.Errorf("%w: unknown category", ErrValidation)

	// ErrUnknownDraft indicates a draft ID with no pending suggestion,
	// either never created or already resolved.
	ErrUnknownDraft = errors.New("no pending draft with that ID")
)

// DefaultTriggerWords is the trigger vocabulary used when none is
// configured. Matching is case-insensitive substring containment.
var DefaultTriggerWords = []string{
	"shipped", "approved", "shipment", "confirmed",
	"new brand", "ungated", "growth", "opportunity",
}

// SubmitRequest is one employee submission of a daily update.
type SubmitRequest struct {
	ClientID   string
	EmployeeID string
	Text       string
	Category   feed.Category

	// ClientType steers the classification prompt ("wholesaler",
	// "private_label", ...). Optional.
	ClientType string

	// ApproveForClient is the approval default the persisted row gets.
	// This is caller policy, not a manager invariant: the simplified
	// portal auto-approves, the richer surface posts unapproved and
	// toggles explicitly.
	ApproveForClient bool
}

// validate rejects bad submissions before any network call.
func (r SubmitRequest) validate() error {
	if r.ClientID == "" {
		return ErrMissingClientID
	}
	if r.EmployeeID == "" {
		return ErrMissingEmployeeID
	}
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if r.Category != "" && !r.Category.Valid() {
		return fmt.Errorf("%w %q", ErrUnknownCategory, r.Category)
	}
	return nil
}

// PendingSuggestion is a submission paused in SuggestionShown state.
// Exactly one of AcceptRefined, AcceptRoutine, or Discard resolves it.
type PendingSuggestion struct {
	DraftID    string              `json:"draft_id"`
	Suggestion classify.Suggestion `json:"suggestion"`
}

// SubmitResult is the outcome of Submit: either the update was posted,
// or a suggestion is pending the employee's decision. Exactly one field
// is non-nil.
type SubmitResult struct {
	Posted  *feed.DailyUpdate  `json:"posted,omitempty"`
	Pending *PendingSuggestion `json:"pending,omitempty"`
}

// draft is a submission held in SuggestionShown state.
type draft struct {
	req        SubmitRequest
	suggestion classify.Suggestion
	createdAt  time.Time
}

// Manager drives submissions through the update state machine.
type Manager struct {
	store      store.RecordStore
	classifier classify.Classifier
	triggers   []string
	logger     *zap.Logger
	metrics    *metrics

	mu     sync.Mutex
	drafts map[string]*draft
}

// NewManager creates a lifecycle manager.
//
// classifier may be nil, which disables analysis entirely: every
// submission posts directly. triggerWords may be nil to use
// DefaultTriggerWords; words are matched case-insensitively as
// substrings.
func NewManager(recordStore store.RecordStore, classifier classify.Classifier, triggerWords []string, logger *zap.Logger) (*Manager, error) {
	if recordStore == nil {
		return nil, fmt.Errorf("record store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if triggerWords == nil {
		triggerWords = DefaultTriggerWords
	}

	triggers := make([]string, 0, len(triggerWords))
	for _, w := range triggerWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			triggers = append(triggers, w)
		}
	}

	return &Manager{
		store:      recordStore,
		classifier: classifier,
		triggers:   triggers,
		logger:     logger.Named("lifecycle"),
		metrics:    newMetrics(),
		drafts:     make(map[string]*draft),
	}, nil
}

// TriggerMatch reports whether text contains any trigger word.
// Detection is pure and synchronous; no network is involved.
func (m *Manager) TriggerMatch(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range m.triggers {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Submit runs one submission through the state machine.
//
// When the text matches a trigger word the draft transitions to
// Analyzing and the classification service is consulted. On success the
// suggestion is surfaced and the draft parks in SuggestionShown: the
// result carries a Pending value and nothing has been persisted yet.
// On classification failure, or when no trigger matches, the original
// text posts immediately with no suggestion fields set.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if err := req.validate(); err != nil {
		return SubmitResult{}, err
	}
	if req.Category == "" {
		req.Category = feed.CategoryGeneral
	}

	if m.classifier != nil && m.TriggerMatch(req.Text) {
		suggestion, err := m.classifier.Analyze(ctx, req.Text, req.ClientType)
		if err != nil {
			// Advisory feature: degrade to manual posting, no error
			// surfaced to the submitter.
			m.metrics.ClassificationFailures.Inc()
			m.logger.Warn("classification failed, posting without suggestion",
				zap.String("client_id", req.ClientID),
				zap.Error(err))
			return m.post(ctx, req, nil)
		}

		id := uuid.New().String()
		m.mu.Lock()
		m.drafts[id] = &draft{
			req:        req,
			suggestion: *suggestion,
			createdAt:  time.Now().UTC(),
		}
		m.mu.Unlock()

		m.metrics.SuggestionsTotal.WithLabelValues("shown").Inc()
		m.logger.Debug("suggestion shown",
			zap.String("draft_id", id),
			zap.String("client_id", req.ClientID),
			zap.Bool("growth", suggestion.IsGrowthOpportunity))

		return SubmitResult{Pending: &PendingSuggestion{DraftID: id, Suggestion: *suggestion}}, nil
	}

	return m.post(ctx, req, nil)
}

// AcceptRefined resolves a pending draft by persisting the refined text
// with the suggestion fields and the serialized suggestion payload.
func (m *Manager) AcceptRefined(ctx context.Context, draftID string) (*feed.DailyUpdate, error) {
	d, err := m.takeDraft(draftID)
	if err != nil {
		return nil, err
	}

	req := d.req
	req.Text = d.suggestion.RefinedText

	result, err := m.post(ctx, req, &d.suggestion)
	if err != nil {
		// Persist failed: put the draft back so the employee can retry
		// without losing the suggestion.
		m.restoreDraft(draftID, d)
		return nil, err
	}

	m.metrics.SuggestionsTotal.WithLabelValues("accepted").Inc()
	return result.Posted, nil
}

// AcceptRoutine resolves a pending draft by persisting the original
// text and ignoring the suggestion entirely.
func (m *Manager) AcceptRoutine(ctx context.Context, draftID string) (*feed.DailyUpdate, error) {
	d, err := m.takeDraft(draftID)
	if err != nil {
		return nil, err
	}

	result, err := m.post(ctx, d.req, nil)
	if err != nil {
		m.restoreDraft(draftID, d)
		return nil, err
	}

	m.metrics.SuggestionsTotal.WithLabelValues("routine").Inc()
	return result.Posted, nil
}

// Discard resolves a pending draft without persisting anything; the
// submission returns to Drafting on the caller's side.
func (m *Manager) Discard(draftID string) error {
	if _, err := m.takeDraft(draftID); err != nil {
		return err
	}
	m.metrics.SuggestionsTotal.WithLabelValues("discarded").Inc()
	return nil
}

// SetApproval toggles client visibility for one posted update. The
// patch touches no other field, and applying the same value twice is a
// no-op.
func (m *Manager) SetApproval(ctx context.Context, updateID string, approved bool) (*feed.DailyUpdate, error) {
	if updateID == "" {
		return nil, fmt.Errorf("%w: update ID required", ErrValidation)
	}

	u, err := m.store.PatchDailyUpdate(ctx, updateID, store.UpdatePatch{ApprovedForClient: &approved})
	if err != nil {
		return nil, fmt.Errorf("setting approval: %w", err)
	}

	m.logger.Debug("approval set",
		zap.String("update_id", updateID),
		zap.Bool("approved", approved))
	return &u, nil
}

// post persists one update row, terminal Posted state. suggestion is
// non-nil only on the accept-refined path.
func (m *Manager) post(ctx context.Context, req SubmitRequest, suggestion *classify.Suggestion) (SubmitResult, error) {
	u := feed.DailyUpdate{
		ClientID:          req.ClientID,
		EmployeeID:        req.EmployeeID,
		Text:              req.Text,
		Category:          req.Category,
		ApprovedForClient: req.ApproveForClient,
	}

	if suggestion != nil {
		payload, err := json.Marshal(suggestion)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("encoding suggestion: %w", err)
		}
		raw := string(payload)
		u.AISuggestion = &raw
		u.IsGrowthOpportunity = suggestion.IsGrowthOpportunity
		u.FeedbackRequested = suggestion.FeedbackNeeded
	}

	posted, err := m.store.InsertDailyUpdate(ctx, u)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("posting update: %w", err)
	}

	m.metrics.UpdatesPosted.WithLabelValues(string(posted.Category)).Inc()
	m.logger.Info("update posted",
		zap.String("update_id", posted.ID),
		zap.String("client_id", posted.ClientID),
		zap.Bool("approved_for_client", posted.ApprovedForClient),
		zap.Bool("growth", posted.IsGrowthOpportunity))

	return SubmitResult{Posted: &posted}, nil
}

// takeDraft removes and returns a pending draft.
func (m *Manager) takeDraft(draftID string) (*draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[draftID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDraft, draftID)
	}
	delete(m.drafts, draftID)
	return d, nil
}

// restoreDraft puts a draft back after a failed persist.
func (m *Manager) restoreDraft(draftID string, d *draft) {
	m.mu.Lock()
	m.drafts[draftID] = d
	m.mu.Unlock()
}
