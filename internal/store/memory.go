package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// MemoryOptions configures the in-memory backend.
type MemoryOptions struct {
	// SnapshotPath enables JSON persistence when non-empty.
	SnapshotPath string
	// MaxEvents caps retained events; the oldest are dropped first. Zero disables the cap.
	MaxEvents int
}

// MemoryStore keeps all state in process memory and optionally mirrors it to
// a JSON snapshot file.
type MemoryStore struct {
	mu       sync.RWMutex
	scripts  map[string]*Script
	users    map[string]*User
	byEmail  map[string]string
	events   []Event
	gen      uint64
	savedGen uint64

	maxEvents    int
	snapshotPath string
	lock         *flock.Flock
	closed       bool
}

// OpenMemory returns a memory store, loading the snapshot when one exists.
func OpenMemory(opts MemoryOptions) (*MemoryStore, error) {
	m := &MemoryStore{
		scripts:      make(map[string]*Script),
		users:        make(map[string]*User),
		byEmail:      make(map[string]string),
		maxEvents:    opts.MaxEvents,
		snapshotPath: opts.SnapshotPath,
	}
	if m.snapshotPath == "" {
		return m, nil
	}

	m.lock = flock.New(m.snapshotPath + ".lock")
	locked, err := m.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	if !locked {
		return nil, ErrSnapshotLocked
	}
	snap, err := readSnapshot(m.snapshotPath)
	if err != nil {
		_ = m.lock.Unlock()
		return nil, err
	}
	if snap != nil {
		m.restore(snap)
	}
	return m, nil
}

func (m *MemoryStore) restore(snap *snapshot) {
	for _, s := range snap.Scripts {
		if s == nil || s.ID == "" {
			continue
		}
		m.scripts[s.ID] = s
	}
	for _, u := range snap.Users {
		if u == nil || u.ID == "" {
			continue
		}
		m.users[u.ID] = u
		m.byEmail[emailKey(u.Email)] = u.ID
	}
	m.events = append(m.events, snap.Events...)
	m.trimEventsLocked()
}

func (m *MemoryStore) touchLocked() {
	m.gen++
}

func (m *MemoryStore) checkOpen() error {
	if m.closed {
		return errors.New("store closed")
	}
	return nil
}

func (m *MemoryStore) CreateScript(ctx context.Context, script *Script) error {
	if err := validateScript(script); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, exists := m.scripts[script.ID]; exists {
		return fmt.Errorf("script %s: %w", script.ID, ErrDuplicateScript)
	}
	m.scripts[script.ID] = cloneScript(script)
	m.touchLocked()
	return nil
}

func (m *MemoryStore) GetScript(ctx context.Context, id string) (*Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneScript(m.scripts[id]), nil
}

func (m *MemoryStore) ListScripts(ctx context.Context, filter ScriptFilter) ([]*Script, error) {
	m.mu.RLock()
	out := make([]*Script, 0, len(m.scripts))
	for _, s := range m.scripts {
		if filter.matches(s) {
			out = append(out, cloneScript(s))
		}
	}
	m.mu.RUnlock()

	sortScriptsNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountScripts(ctx context.Context, filter ScriptFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.scripts {
		if filter.matches(s) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	key := emailKey(user.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, exists := m.byEmail[key]; exists {
		return ErrDuplicateEmail
	}
	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	m.users[user.ID] = cloneUser(user)
	m.byEmail[key] = user.ID
	m.touchLocked()
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneUser(m.users[id]), nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[emailKey(email)]
	if !ok {
		return nil, nil
	}
	return cloneUser(m.users[id]), nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, user *User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	existing, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	oldKey := emailKey(existing.Email)
	newKey := emailKey(user.Email)
	if oldKey != newKey {
		if owner, taken := m.byEmail[newKey]; taken && owner != user.ID {
			return ErrDuplicateEmail
		}
		delete(m.byEmail, oldKey)
		m.byEmail[newKey] = user.ID
	}
	m.users[user.ID] = cloneUser(user)
	m.touchLocked()
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, cloneUser(u))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, event Event) error {
	if event.Type == "" {
		return errors.New("event type required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.events = append(m.events, cloneEvent(event))
	m.trimEventsLocked()
	m.touchLocked()
	return nil
}

func (m *MemoryStore) trimEventsLocked() {
	if m.maxEvents <= 0 || len(m.events) <= m.maxEvents {
		return
	}
	drop := len(m.events) - m.maxEvents
	kept := make([]Event, m.maxEvents)
	copy(kept, m.events[drop:])
	m.events = kept
}

func (m *MemoryStore) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, 0)
	for i := range m.events {
		if filter.matches(&m.events[i]) {
			out = append(out, cloneEvent(m.events[i]))
		}
	}
	return out, nil
}

func (m *MemoryStore) CountEvents(ctx context.Context, filter EventFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for i := range m.events {
		if filter.matches(&m.events[i]) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkOpen()
}

// Flush writes the snapshot when state changed since the last save.
func (m *MemoryStore) Flush(ctx context.Context) error {
	if m.snapshotPath == "" {
		return nil
	}
	m.mu.RLock()
	if m.closed || m.gen == m.savedGen {
		m.mu.RUnlock()
		return nil
	}
	gen := m.gen
	snap := m.snapshotLocked()
	m.mu.RUnlock()

	if err := writeSnapshot(m.snapshotPath, snap); err != nil {
		return err
	}

	m.mu.Lock()
	if gen > m.savedGen {
		m.savedGen = gen
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) snapshotLocked() *snapshot {
	snap := &snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Scripts: make([]*Script, 0, len(m.scripts)),
		Users:   make([]*User, 0, len(m.users)),
		Events:  make([]Event, len(m.events)),
	}
	for _, s := range m.scripts {
		snap.Scripts = append(snap.Scripts, cloneScript(s))
	}
	sortScriptsNewestFirst(snap.Scripts)
	for _, u := range m.users {
		snap.Users = append(snap.Users, cloneUser(u))
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	for i := range m.events {
		snap.Events[i] = cloneEvent(m.events[i])
	}
	return snap
}

// Close flushes pending state and releases the snapshot lock.
func (m *MemoryStore) Close() error {
	flushErr := m.Flush(context.Background())

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	lock := m.lock
	m.mu.Unlock()

	if lock != nil {
		if err := lock.Unlock(); err != nil && flushErr == nil {
			return fmt.Errorf("unlock snapshot: %w", err)
		}
	}
	return flushErr
}
