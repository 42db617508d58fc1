package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hesabyar/hesabyar/internal/model/chat"
	"github.com/hesabyar/hesabyar/internal/model/ledger"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// degraded mode used when Redis is unreachable at startup. Expiry is
// approximated by recording deadlines and dropping entries lazily on read.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*chat.Session
	expiry   map[string]time.Time
	tables   map[string]map[string]*ledger.Table
	meta     map[string]map[string]TableInfo
	uploads  map[string][]ledger.UploadEvent
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*chat.Session),
		expiry:   make(map[string]time.Time),
		tables:   make(map[string]map[string]*ledger.Table),
		meta:     make(map[string]map[string]TableInfo),
		uploads:  make(map[string][]ledger.UploadEvent),
	}
}

// StorageType identifies the backing storage in debug output.
func (s *MemoryStore) StorageType() string { return "memory" }

// CreateSession allocates a session, or resets history when id is reused.
func (s *MemoryStore) CreateSession(_ context.Context, id string) string {
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.sessions[id] = &chat.Session{
		ID:           id,
		Turns:        make([]chat.Turn, 0, historyWindow),
		CreatedAt:    now,
		LastActivity: now,
	}
	s.expiry[id] = now.Add(s.ttl)
	s.mu.Unlock()

	return id
}

// AppendTurn adds a turn, creating the session on first reference.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID, role, content string, metadata map[string]string) {
	if sessionID == "" {
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.liveSession(sessionID, now)
	if !ok {
		session = &chat.Session{ID: sessionID, CreatedAt: now}
		s.sessions[sessionID] = session
	}

	session.Turns = trimHistory(append(session.Turns, chat.Turn{
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  metadata,
	}))
	session.LastActivity = now
	s.expiry[sessionID] = now.Add(s.ttl)
}

// GetHistory returns at most limit most recent turns, oldest first.
func (s *MemoryStore) GetHistory(_ context.Context, sessionID string, limit int) []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.liveSessionRead(sessionID)
	if !ok {
		return []chat.Turn{}
	}
	return lastTurns(session.Turns, limit)
}

// GetContextSummary renders recent turns for conversation context.
func (s *MemoryStore) GetContextSummary(_ context.Context, sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.liveSessionRead(sessionID)
	if !ok {
		return NewConversationSummary
	}
	return summarize(session.Turns)
}

// ClearSession removes the session record and its index entry.
func (s *MemoryStore) ClearSession(_ context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	delete(s.expiry, sessionID)
	s.mu.Unlock()
}

// SaveTable replaces any existing table of that name for the user.
func (s *MemoryStore) SaveTable(_ context.Context, userID, name string, table *ledger.Table) {
	if table == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tables[userID] == nil {
		s.tables[userID] = make(map[string]*ledger.Table)
	}
	s.tables[userID][name] = table

	if s.meta[userID] == nil {
		s.meta[userID] = make(map[string]TableInfo)
	}
	s.meta[userID][name] = TableInfo{
		Name:     name,
		RowCount: len(table.Rows),
		Columns:  table.Columns,
		SavedAt:  time.Now().UTC(),
	}
}

// GetTable returns the stored table; absent is a first-class outcome.
func (s *MemoryStore) GetTable(_ context.Context, userID, name string) (*ledger.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.tables[userID][name]
	return table, ok
}

// ClearUserData removes all tables and upload history for the user.
func (s *MemoryStore) ClearUserData(_ context.Context, userID string) {
	s.mu.Lock()
	delete(s.tables, userID)
	delete(s.meta, userID)
	delete(s.uploads, userID)
	s.mu.Unlock()
}

// RecordUpload appends an upload event to the user's history.
func (s *MemoryStore) RecordUpload(_ context.Context, userID string, event ledger.UploadEvent) {
	s.mu.Lock()
	s.uploads[userID] = append(s.uploads[userID], event)
	s.mu.Unlock()
}

// ListUploads returns the user's upload history, oldest first.
func (s *MemoryStore) ListUploads(_ context.Context, userID string) []ledger.UploadEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]ledger.UploadEvent, len(s.uploads[userID]))
	copy(events, s.uploads[userID])
	return events
}

// ActiveSessions counts sessions that have not passed their deadline.
func (s *MemoryStore) ActiveSessions(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	active := 0
	for id := range s.sessions {
		if deadline, tracked := s.expiry[id]; tracked && now.After(deadline) {
			continue
		}
		active++
	}
	return active
}

// DebugUserData reflects live store state for the classifier.
func (s *MemoryStore) DebugUserData(_ context.Context, userID string) DebugInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make([]TableInfo, 0, len(s.meta[userID]))
	for _, info := range s.meta[userID] {
		tables = append(tables, info)
	}

	_, sessionExists := s.liveSessionRead(userID)
	return DebugInfo{
		HasData:       len(s.tables[userID]) > 0,
		SessionExists: sessionExists,
		Tables:        tables,
		StorageType:   s.StorageType(),
	}
}

// liveSession returns the session if present and unexpired, dropping it
// when stale. Callers hold the write lock.
func (s *MemoryStore) liveSession(id string, now time.Time) (*chat.Session, bool) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if deadline, tracked := s.expiry[id]; tracked && now.After(deadline) {
		delete(s.sessions, id)
		delete(s.expiry, id)
		return nil, false
	}
	return session, true
}

// liveSessionRead is the read-lock variant; stale entries are reported
// absent but removal waits for the next write.
func (s *MemoryStore) liveSessionRead(id string) (*chat.Session, bool) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if deadline, tracked := s.expiry[id]; tracked && time.Now().After(deadline) {
		return nil, false
	}
	return session, true
}
