package store

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hesabyar/hesabyar/internal/config"
	"github.com/hesabyar/hesabyar/internal/model/chat"
	"github.com/hesabyar/hesabyar/internal/model/ledger"
)

// TableAccounting is the single table name each user's upload lands in. A
// new upload replaces the previous table wholesale.
const TableAccounting = "accounting_data"

const (
	historyWindow   = 10
	summaryTurns    = 3
	summaryMaxRunes = 80
)

// NewConversationSummary is returned by GetContextSummary when a session has
// no history yet.
const NewConversationSummary = "گفتگوی جدید"

// TableInfo is the metadata index entry kept per saved table.
type TableInfo struct {
	Name     string    `json:"name"`
	RowCount int       `json:"rowCount"`
	Columns  []string  `json:"columns"`
	SavedAt  time.Time `json:"savedAt"`
}

// DebugInfo reflects the live store state for one user. The classifier uses
// HasData to pick an intent, so it must never be served from a cache.
type DebugInfo struct {
	HasData       bool        `json:"hasData"`
	SessionExists bool        `json:"sessionExists"`
	Tables        []TableInfo `json:"tables"`
	StorageType   string      `json:"storageType"`
}

// Store keeps per-session conversation history and per-user accounting data.
//
// Reads degrade to empty or absent results when the backing service is
// unreachable; writes log and drop. Nothing here is allowed to fail a
// request.
type Store interface {
	// CreateSession allocates a session, or resets history when id is reused.
	CreateSession(ctx context.Context, id string) string
	// AppendTurn adds a turn, creating the session on first reference and
	// dropping the oldest turns beyond the retention window.
	AppendTurn(ctx context.Context, sessionID, role, content string, metadata map[string]string)
	// GetHistory returns at most limit most recent turns, oldest first.
	// Unknown sessions yield an empty slice, never an error.
	GetHistory(ctx context.Context, sessionID string, limit int) []chat.Turn
	// GetContextSummary renders the last turns as compact context text.
	GetContextSummary(ctx context.Context, sessionID string) string
	// ClearSession removes the session record and its index entry.
	ClearSession(ctx context.Context, sessionID string)

	// SaveTable replaces any existing table of that name for the user.
	SaveTable(ctx context.Context, userID, name string, table *ledger.Table)
	// GetTable returns the stored table; absent is a first-class outcome.
	GetTable(ctx context.Context, userID, name string) (*ledger.Table, bool)
	// ClearUserData removes all tables and upload history for the user.
	ClearUserData(ctx context.Context, userID string)

	RecordUpload(ctx context.Context, userID string, event ledger.UploadEvent)
	ListUploads(ctx context.Context, userID string) []ledger.UploadEvent

	DebugUserData(ctx context.Context, userID string) DebugInfo
	// ActiveSessions counts live sessions, pruning index entries whose
	// backing record already expired.
	ActiveSessions(ctx context.Context) int
	StorageType() string
}

// New connects to Redis and falls back to an in-memory store when the
// server is unreachable.
func New(ctx context.Context, cfg config.RedisConfig) Store {
	rs, err := newRedisStore(ctx, cfg)
	if err != nil {
		log.Printf("[store] redis unavailable (%v), falling back to in-memory storage", err)
		return NewMemoryStore(cfg.TTL)
	}
	log.Printf("[store] connected to redis at %s", cfg.Addr)
	return rs
}

// summarize renders the most recent turns as "role: truncated-content"
// lines for use as conversation context.
func summarize(turns []chat.Turn) string {
	if len(turns) == 0 {
		return NewConversationSummary
	}

	start := len(turns) - summaryTurns
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, summaryTurns)
	for _, turn := range turns[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, truncate(turn.Content, summaryMaxRunes)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "…"
}

// trimHistory enforces the FIFO retention window.
func trimHistory(turns []chat.Turn) []chat.Turn {
	if len(turns) <= historyWindow {
		return turns
	}
	return turns[len(turns)-historyWindow:]
}

// lastTurns returns at most limit most recent turns, oldest first.
func lastTurns(turns []chat.Turn, limit int) []chat.Turn {
	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}
	out := make([]chat.Turn, limit)
	copy(out, turns[len(turns)-limit:])
	return out
}
