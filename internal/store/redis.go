package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hesabyar/hesabyar/internal/config"
	"github.com/hesabyar/hesabyar/internal/model/chat"
	"github.com/hesabyar/hesabyar/internal/model/ledger"
)

const (
	keyPrefix       = "hesabyar:"
	sessionIndexKey = keyPrefix + "sessions"
)

// redisStore persists sessions and user data as whole-key JSON values with
// a rolling TTL. Last-writer-wins is the only consistency guarantee.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisStore(ctx context.Context, cfg config.RedisConfig) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &redisStore{client: client, ttl: ttl}, nil
}

// StorageType identifies the backing storage in debug output.
func (s *redisStore) StorageType() string { return "redis" }

func sessionKey(id string) string { return keyPrefix + "session:" + id }

func tableKey(userID, name string) string { return keyPrefix + "user:" + userID + ":table:" + name }

func metaKey(userID string) string { return keyPrefix + "user:" + userID + ":tables" }

func uploadsKey(userID string) string { return keyPrefix + "user:" + userID + ":uploads" }

// CreateSession allocates a session, or resets history when id is reused.
func (s *redisStore) CreateSession(ctx context.Context, id string) string {
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	s.setJSON(ctx, sessionKey(id), &chat.Session{
		ID:           id,
		Turns:        []chat.Turn{},
		CreatedAt:    now,
		LastActivity: now,
	})
	if err := s.client.SAdd(ctx, sessionIndexKey, id).Err(); err != nil {
		log.Printf("[store] failed to index session %s: %v", id, err)
	}
	return id
}

// AppendTurn adds a turn, creating the session on first reference.
func (s *redisStore) AppendTurn(ctx context.Context, sessionID, role, content string, metadata map[string]string) {
	if sessionID == "" {
		return
	}

	now := time.Now().UTC()
	session := &chat.Session{}
	if !s.getJSON(ctx, sessionKey(sessionID), session) {
		session = &chat.Session{ID: sessionID, CreatedAt: now}
		if err := s.client.SAdd(ctx, sessionIndexKey, sessionID).Err(); err != nil {
			log.Printf("[store] failed to index session %s: %v", sessionID, err)
		}
	}

	session.Turns = trimHistory(append(session.Turns, chat.Turn{
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  metadata,
	}))
	session.LastActivity = now
	s.setJSON(ctx, sessionKey(sessionID), session)
}

// GetHistory returns at most limit most recent turns, oldest first.
func (s *redisStore) GetHistory(ctx context.Context, sessionID string, limit int) []chat.Turn {
	session := &chat.Session{}
	if !s.getJSON(ctx, sessionKey(sessionID), session) {
		return []chat.Turn{}
	}
	return lastTurns(session.Turns, limit)
}

// GetContextSummary renders recent turns for conversation context.
func (s *redisStore) GetContextSummary(ctx context.Context, sessionID string) string {
	session := &chat.Session{}
	if !s.getJSON(ctx, sessionKey(sessionID), session) {
		return NewConversationSummary
	}
	return summarize(session.Turns)
}

// ClearSession removes the session record and its index entry.
func (s *redisStore) ClearSession(ctx context.Context, sessionID string) {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		log.Printf("[store] failed to delete session %s: %v", sessionID, err)
	}
	if err := s.client.SRem(ctx, sessionIndexKey, sessionID).Err(); err != nil {
		log.Printf("[store] failed to unindex session %s: %v", sessionID, err)
	}
}

// SaveTable replaces any existing table of that name for the user.
func (s *redisStore) SaveTable(ctx context.Context, userID, name string, table *ledger.Table) {
	if table == nil {
		return
	}

	s.setJSON(ctx, tableKey(userID, name), table)

	meta := make(map[string]TableInfo)
	s.getJSON(ctx, metaKey(userID), &meta)
	meta[name] = TableInfo{
		Name:     name,
		RowCount: len(table.Rows),
		Columns:  table.Columns,
		SavedAt:  time.Now().UTC(),
	}
	s.setJSON(ctx, metaKey(userID), meta)
}

// GetTable returns the stored table; absent is a first-class outcome.
func (s *redisStore) GetTable(ctx context.Context, userID, name string) (*ledger.Table, bool) {
	table := &ledger.Table{}
	if !s.getJSON(ctx, tableKey(userID, name), table) {
		return nil, false
	}
	return table, true
}

// ClearUserData removes all tables and upload history for the user.
func (s *redisStore) ClearUserData(ctx context.Context, userID string) {
	meta := make(map[string]TableInfo)
	s.getJSON(ctx, metaKey(userID), &meta)
	for name := range meta {
		if err := s.client.Del(ctx, tableKey(userID, name)).Err(); err != nil {
			log.Printf("[store] failed to delete table %s for %s: %v", name, userID, err)
		}
	}
	if err := s.client.Del(ctx, metaKey(userID), uploadsKey(userID)).Err(); err != nil {
		log.Printf("[store] failed to clear user %s: %v", userID, err)
	}
}

// RecordUpload appends an upload event to the user's history.
func (s *redisStore) RecordUpload(ctx context.Context, userID string, event ledger.UploadEvent) {
	events := []ledger.UploadEvent{}
	s.getJSON(ctx, uploadsKey(userID), &events)
	events = append(events, event)
	s.setJSON(ctx, uploadsKey(userID), events)
}

// ListUploads returns the user's upload history, oldest first.
func (s *redisStore) ListUploads(ctx context.Context, userID string) []ledger.UploadEvent {
	events := []ledger.UploadEvent{}
	s.getJSON(ctx, uploadsKey(userID), &events)
	return events
}

// ActiveSessions walks the session index. Entries whose session key the TTL
// already dropped are pruned on the way.
func (s *redisStore) ActiveSessions(ctx context.Context) int {
	ids, err := s.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		log.Printf("[store] read session index failed: %v", err)
		return 0
	}

	active := 0
	for _, id := range ids {
		exists, err := s.client.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			// Unknown state; keep the entry and count it.
			active++
			continue
		}
		if exists > 0 {
			active++
			continue
		}
		if err := s.client.SRem(ctx, sessionIndexKey, id).Err(); err != nil {
			log.Printf("[store] failed to prune expired session %s: %v", id, err)
		}
	}
	return active
}

// DebugUserData reflects live store state for the classifier.
func (s *redisStore) DebugUserData(ctx context.Context, userID string) DebugInfo {
	meta := make(map[string]TableInfo)
	hasData := s.getJSON(ctx, metaKey(userID), &meta) && len(meta) > 0

	tables := make([]TableInfo, 0, len(meta))
	for _, info := range meta {
		tables = append(tables, info)
	}

	sessionExists := false
	if exists, err := s.client.Exists(ctx, sessionKey(userID)).Result(); err == nil {
		sessionExists = exists > 0
	}

	return DebugInfo{
		HasData:       hasData,
		SessionExists: sessionExists,
		Tables:        tables,
		StorageType:   s.StorageType(),
	}
}

// getJSON loads and decodes a key. Absence and store failures both read as
// "not there"; failures are logged.
func (s *redisStore) getJSON(ctx context.Context, key string, dest any) bool {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[store] read %s failed: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Printf("[store] decode %s failed: %v", key, err)
		return false
	}
	return true
}

// setJSON writes a key with the rolling TTL. Failures are logged and the
// write is dropped.
func (s *redisStore) setJSON(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("[store] encode %s failed: %v", key, err)
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		log.Printf("[store] write %s failed: %v", key, err)
	}
}
