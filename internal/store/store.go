// Package store keeps the most recent validation reports.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

const DefaultCapacity = 50

var ErrNotFound = errors.New("history entry not found")

// Entry is one saved submission and the report produced for it. Snapshot is
// the market data the report was scored against, when it was recorded.
type Entry struct {
	ID             string                   `json:"id"`
	Timestamp      time.Time                `json:"timestamp"`
	FormData       analysis.Submission      `json:"formData"`
	AnalysisResult analysis.Analysis        `json:"analysisResult"`
	Snapshot       *analysis.MarketSnapshot `json:"snapshot,omitempty"`
}

// Store is a capped, oldest-first history. Saving past capacity evicts the
// oldest entry. A failed write leaves the history unchanged.
type Store interface {
	Save(ctx context.Context, sub analysis.Submission, a analysis.Analysis, snap *analysis.MarketSnapshot) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Latest(ctx context.Context) (Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}

type Options struct {
	Capacity int
	Now      func() time.Time
	NewID    func() string
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

type state struct {
	Entries  []Entry `json:"entries"`
	LatestID string  `json:"latestId"`
}

// Memory is the in-process store. The file and SQLite stores wrap it.
type Memory struct {
	mu       sync.RWMutex
	writeMu  sync.Mutex
	opts     Options
	entries  []Entry
	latestID string
}

func NewMemory(opts Options) *Memory {
	return &Memory{opts: opts.withDefaults(), entries: []Entry{}}
}

// persistFn makes a state change durable. prev is the current state and
// next the state that will be installed once persistFn returns nil.
type persistFn func(ctx context.Context, prev, next state) error

// apply computes the next state with change, hands it to persist and
// installs it only when persist succeeds. Writers are serialized.
func (m *Memory) apply(ctx context.Context, change func(state) (state, error), persist persistFn) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	prev := m.snapshot()
	next, err := change(prev)
	if err != nil {
		return err
	}
	if persist != nil {
		if err := persist(ctx, prev, next); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.entries, m.latestID = next.Entries, next.LatestID
	m.mu.Unlock()
	return nil
}

func (m *Memory) newEntry(sub analysis.Submission, a analysis.Analysis, snap *analysis.MarketSnapshot) Entry {
	e := Entry{ID: m.opts.NewID(), Timestamp: m.opts.Now(), FormData: sub, AnalysisResult: a}
	if snap != nil {
		cp := *snap
		e.Snapshot = &cp
	}
	return e
}

// addEntry appends e and evicts the oldest entries past capacity.
func (m *Memory) addEntry(e Entry) func(state) (state, error) {
	return func(s state) (state, error) {
		entries := append(s.Entries, e)
		if over := len(entries) - m.opts.Capacity; over > 0 {
			entries = entries[over:]
		}
		return state{Entries: entries, LatestID: e.ID}, nil
	}
}

func removeEntry(id string) func(state) (state, error) {
	return func(s state) (state, error) {
		idx := -1
		for i, e := range s.Entries {
			if e.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return s, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		entries := append(s.Entries[:idx:idx], s.Entries[idx+1:]...)
		latest := s.LatestID
		if latest == id {
			latest = mostRecentID(entries)
		}
		return state{Entries: entries, LatestID: latest}, nil
	}
}

func clearEntries(state) (state, error) {
	return state{Entries: []Entry{}}, nil
}

func (m *Memory) save(ctx context.Context, sub analysis.Submission, a analysis.Analysis, snap *analysis.MarketSnapshot, persist persistFn) (Entry, error) {
	e := m.newEntry(sub, a, snap)
	if err := m.apply(ctx, m.addEntry(e), persist); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (m *Memory) Save(ctx context.Context, sub analysis.Submission, a analysis.Analysis, snap *analysis.MarketSnapshot) (Entry, error) {
	return m.save(ctx, sub, a, snap, nil)
}

func (m *Memory) List(context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *Memory) Latest(ctx context.Context) (Entry, error) {
	m.mu.RLock()
	id := m.latestID
	m.mu.RUnlock()
	if id == "" {
		return Entry{}, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *Memory) Get(_ context.Context, id string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	return m.apply(ctx, removeEntry(id), nil)
}

// mostRecentID picks the newest entry by timestamp; on ties the later
// insertion wins.
func mostRecentID(entries []Entry) string {
	id := ""
	var best time.Time
	for _, e := range entries {
		if id == "" || !e.Timestamp.Before(best) {
			id, best = e.ID, e.Timestamp
		}
	}
	return id
}

func (m *Memory) Clear(ctx context.Context) error {
	return m.apply(ctx, clearEntries, nil)
}

func (m *Memory) Close() error { return nil }

func (m *Memory) snapshot() state {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, len(m.entries))
	copy(entries, m.entries)
	return state{Entries: entries, LatestID: m.latestID}
}

// restore loads persisted state, trimming it to capacity.
func (m *Memory) restore(s state) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := s.Entries
	if over := len(entries) - m.opts.Capacity; over > 0 {
		entries = entries[over:]
	}
	m.entries = append([]Entry{}, entries...)
	m.latestID = s.LatestID
	found := false
	for _, e := range m.entries {
		if e.ID == m.latestID {
			found = true
			break
		}
	}
	if !found {
		m.latestID = mostRecentID(m.entries)
	}
}

// Open builds the store named by backend: memory, file or sqlite.
func Open(backend, path string, opts Options) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(opts), nil
	case "file":
		if path == "" {
			return nil, errors.New("store.path is required for the file backend")
		}
		return NewFileStore(path, opts)
	case "sqlite":
		if path == "" {
			return nil, errors.New("store.path is required for the sqlite backend")
		}
		return NewSQLiteStore(path, opts)
	default:
		return nil, fmt.Errorf("unknown store backend: %s (supported: memory, file, sqlite)", backend)
	}
}
