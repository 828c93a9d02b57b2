package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/pulsed/internal/feed"
	"github.com/fyrsmithlabs/pulsed/internal/stream"
)

// MemoryStore implements RecordStore in process memory. It backs tests
// and ephemeral runs; semantics match the SQLite store, including
// change-event emission.
type MemoryStore struct {
	mu        sync.RWMutex
	updates   map[string]feed.DailyUpdate
	summaries map[string]feed.WeeklySummary
	tasks     map[string]feed.ClientTask
	notifier  ChangeNotifier
}

// NewMemoryStore creates an empty in-memory record store. notifier may
// be nil.
func NewMemoryStore(notifier ChangeNotifier) *MemoryStore {
	return &MemoryStore{
		updates:   make(map[string]feed.DailyUpdate),
		summaries: make(map[string]feed.WeeklySummary),
		tasks:     make(map[string]feed.ClientTask),
		notifier:  notifier,
	}
}

func (m *MemoryStore) notify(entity feed.Entity, clientID, recordID string, kind stream.Kind) {
	if m.notifier != nil {
		m.notifier.RecordChanged(entity, clientID, recordID, kind)
	}
}

// ListDailyUpdates returns a client's updates newest first, applying
// the client-view approval filter.
func (m *MemoryStore) ListDailyUpdates(_ context.Context, clientID string, view View) ([]feed.DailyUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []feed.DailyUpdate{}
	for _, u := range m.updates {
		if u.ClientID != clientID {
			continue
		}
		if view == ViewClient && !u.ApprovedForClient {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// InsertDailyUpdate persists a new update.
func (m *MemoryStore) InsertDailyUpdate(_ context.Context, u feed.DailyUpdate) (feed.DailyUpdate, error) {
	if strings.TrimSpace(u.Text) == "" {
		return feed.DailyUpdate{}, fmt.Errorf("%w: update text must not be empty", ErrInvalidRecord)
	}
	if u.ClientID == "" || u.EmployeeID == "" {
		return feed.DailyUpdate{}, fmt.Errorf("%w: client and employee IDs required", ErrInvalidRecord)
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Category == "" {
		u.Category = feed.CategoryGeneral
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.updates[u.ID] = u
	m.mu.Unlock()

	m.notify(feed.EntityDailyUpdates, u.ClientID, u.ID, stream.KindInsert)
	return u, nil
}

// PatchDailyUpdate applies an approval patch.
func (m *MemoryStore) PatchDailyUpdate(_ context.Context, id string, patch UpdatePatch) (feed.DailyUpdate, error) {
	if patch.ApprovedForClient == nil {
		return feed.DailyUpdate{}, ErrEmptyPatch
	}

	m.mu.Lock()
	u, ok := m.updates[id]
	if !ok {
		m.mu.Unlock()
		return feed.DailyUpdate{}, fmt.Errorf("%w: daily update %s", ErrNotFound, id)
	}
	u.ApprovedForClient = *patch.ApprovedForClient
	m.updates[id] = u
	m.mu.Unlock()

	m.notify(feed.EntityDailyUpdates, u.ClientID, u.ID, stream.KindUpdate)
	return u, nil
}

// ListWeeklySummaries returns a client's summaries, most recent week
// first.
func (m *MemoryStore) ListWeeklySummaries(_ context.Context, clientID string) ([]feed.WeeklySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []feed.WeeklySummary{}
	for _, s := range m.summaries {
		if s.ClientID == clientID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WeekStart.After(out[j].WeekStart)
	})
	return out, nil
}

// InsertWeeklySummary appends one summary row.
func (m *MemoryStore) InsertWeeklySummary(_ context.Context, s feed.WeeklySummary) (feed.WeeklySummary, error) {
	if s.ClientID == "" {
		return feed.WeeklySummary{}, fmt.Errorf("%w: client ID required", ErrInvalidRecord)
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.GeneratedAt.IsZero() {
		s.GeneratedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.summaries[s.ID] = s
	m.mu.Unlock()

	m.notify(feed.EntityWeeklySummaries, s.ClientID, s.ID, stream.KindInsert)
	return s, nil
}

// ListClientTasks returns a client's tasks newest first.
func (m *MemoryStore) ListClientTasks(_ context.Context, clientID string) ([]feed.ClientTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []feed.ClientTask{}
	for _, t := range m.tasks {
		if t.ClientID == clientID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// InsertClientTask persists a new task.
func (m *MemoryStore) InsertClientTask(_ context.Context, t feed.ClientTask) (feed.ClientTask, error) {
	if strings.TrimSpace(t.Title) == "" {
		return feed.ClientTask{}, fmt.Errorf("%w: task title must not be empty", ErrInvalidRecord)
	}
	if t.ClientID == "" {
		return feed.ClientTask{}, fmt.Errorf("%w: client ID required", ErrInvalidRecord)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Priority == "" {
		t.Priority = feed.PriorityMedium
	}
	if t.Status == "" {
		t.Status = feed.TaskPending
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	m.notify(feed.EntityClientTasks, t.ClientID, t.ID, stream.KindInsert)
	return t, nil
}

// PatchClientTask applies a status transition.
func (m *MemoryStore) PatchClientTask(_ context.Context, id string, patch TaskPatch) (feed.ClientTask, error) {
	if patch.Status == nil {
		return feed.ClientTask{}, ErrEmptyPatch
	}
	if !patch.Status.Valid() {
		return feed.ClientTask{}, fmt.Errorf("%w: unknown task status %q", ErrInvalidRecord, *patch.Status)
	}

	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return feed.ClientTask{}, fmt.Errorf("%w: client task %s", ErrNotFound, id)
	}
	t.Status = *patch.Status
	t.UpdatedAt = time.Now().UTC()
	m.tasks[id] = t
	m.mu.Unlock()

	m.notify(feed.EntityClientTasks, t.ClientID, t.ID, stream.KindUpdate)
	return t, nil
}
