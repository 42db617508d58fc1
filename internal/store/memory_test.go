package store_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hesabyar/hesabyar/internal/model/chat"
	"github.com/hesabyar/hesabyar/internal/model/ledger"
	"github.com/hesabyar/hesabyar/internal/store"
)

func newStore() *store.MemoryStore {
	return store.NewMemoryStore(time.Hour)
}

func sampleTable(rows int) *ledger.Table {
	table := &ledger.Table{
		Name:    store.TableAccounting,
		Columns: []string{ledger.FieldDocNumber, ledger.FieldDebit, ledger.FieldCredit},
	}
	for i := 0; i < rows; i++ {
		table.Rows = append(table.Rows, ledger.Row{
			DocNumber: fmt.Sprintf("%d", i+1),
			Debit:     decimal.NewFromInt(1000),
			Credit:    decimal.NewFromInt(500),
		})
	}
	return table
}

func TestCreateSessionResetsHistory(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	id := s.CreateSession(ctx, "")
	if id == "" {
		t.Fatal("expected allocated session id")
	}

	s.AppendTurn(ctx, id, chat.RoleUser, "سلام", nil)
	if got := len(s.GetHistory(ctx, id, 10)); got != 1 {
		t.Fatalf("expected 1 turn, got %d", got)
	}

	// Reusing the id resets history.
	if again := s.CreateSession(ctx, id); again != id {
		t.Fatalf("expected same id back, got %s", again)
	}
	if got := len(s.GetHistory(ctx, id, 10)); got != 0 {
		t.Fatalf("expected empty history after reset, got %d turns", got)
	}
}

func TestHistoryRetentionWindow(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	id := s.CreateSession(ctx, "")

	for i := 0; i < 25; i++ {
		s.AppendTurn(ctx, id, chat.RoleUser, fmt.Sprintf("پیام %d", i), nil)
	}

	history := s.GetHistory(ctx, id, 100)
	if len(history) != 10 {
		t.Fatalf("expected retention window of 10, got %d", len(history))
	}
	// Oldest first, and only the most recent survive.
	if history[0].Content != "پیام 15" {
		t.Fatalf("expected oldest retained turn to be پیام 15, got %q", history[0].Content)
	}
	if history[9].Content != "پیام 24" {
		t.Fatalf("expected newest turn to be پیام 24, got %q", history[9].Content)
	}
}

func TestHistoryLimit(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	id := s.CreateSession(ctx, "")

	for i := 0; i < 5; i++ {
		s.AppendTurn(ctx, id, chat.RoleUser, fmt.Sprintf("%d", i), nil)
	}

	history := s.GetHistory(ctx, id, 2)
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
	if history[0].Content != "3" || history[1].Content != "4" {
		t.Fatalf("expected most recent turns oldest-first, got %v", history)
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	s := newStore()

	history := s.GetHistory(context.Background(), "missing", 10)
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty slice for unknown session, got %v", history)
	}
}

func TestAppendTurnCreatesSession(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	s.AppendTurn(ctx, "implicit", chat.RoleUser, "سلام", nil)
	if got := len(s.GetHistory(ctx, "implicit", 10)); got != 1 {
		t.Fatalf("expected implicit session with 1 turn, got %d", got)
	}
}

func TestContextSummary(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	id := s.CreateSession(ctx, "")

	if got := s.GetContextSummary(ctx, id); got != store.NewConversationSummary {
		t.Fatalf("expected sentinel for empty history, got %q", got)
	}

	s.AppendTurn(ctx, id, chat.RoleUser, "اول", nil)
	s.AppendTurn(ctx, id, chat.RoleAssistant, "دوم", nil)
	s.AppendTurn(ctx, id, chat.RoleUser, "سوم", nil)
	s.AppendTurn(ctx, id, chat.RoleAssistant, "چهارم", nil)

	summary := s.GetContextSummary(ctx, id)
	if strings.Contains(summary, "اول") {
		t.Fatalf("summary should only hold the last 3 turns: %q", summary)
	}
	for _, want := range []string{"user: سوم", "assistant: چهارم"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q: %q", want, summary)
		}
	}
}

func TestClearSession(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	id := s.CreateSession(ctx, "")
	s.AppendTurn(ctx, id, chat.RoleUser, "سلام", nil)

	s.ClearSession(ctx, id)

	if got := len(s.GetHistory(ctx, id, 10)); got != 0 {
		t.Fatalf("expected empty history after clear, got %d", got)
	}
	if s.GetContextSummary(ctx, id) != store.NewConversationSummary {
		t.Fatal("expected sentinel summary after clear")
	}
}

func TestSaveTableReplaces(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	s.SaveTable(ctx, "u1", store.TableAccounting, sampleTable(7))
	s.SaveTable(ctx, "u1", store.TableAccounting, sampleTable(3))

	table, ok := s.GetTable(ctx, "u1", store.TableAccounting)
	if !ok {
		t.Fatal("expected table to exist")
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected second upload to replace the first: got %d rows", len(table.Rows))
	}
}

func TestGetTableAbsent(t *testing.T) {
	s := newStore()

	if _, ok := s.GetTable(context.Background(), "nobody", store.TableAccounting); ok {
		t.Fatal("expected absent table for unknown user")
	}
}

func TestDebugUserData(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	info := s.DebugUserData(ctx, "u1")
	if info.HasData {
		t.Fatal("expected no data before upload")
	}
	if info.StorageType != "memory" {
		t.Fatalf("unexpected storage type %q", info.StorageType)
	}

	s.SaveTable(ctx, "u1", store.TableAccounting, sampleTable(2))
	info = s.DebugUserData(ctx, "u1")
	if !info.HasData {
		t.Fatal("expected data after upload")
	}
	if len(info.Tables) != 1 || info.Tables[0].RowCount != 2 {
		t.Fatalf("unexpected table metadata: %+v", info.Tables)
	}
}

func TestClearUserData(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	s.SaveTable(ctx, "u1", store.TableAccounting, sampleTable(2))
	s.RecordUpload(ctx, "u1", ledger.UploadEvent{Filename: "a.csv", RowCount: 2})

	s.ClearUserData(ctx, "u1")

	if _, ok := s.GetTable(ctx, "u1", store.TableAccounting); ok {
		t.Fatal("expected table removed")
	}
	if got := len(s.ListUploads(ctx, "u1")); got != 0 {
		t.Fatalf("expected upload history cleared, got %d events", got)
	}
	if s.DebugUserData(ctx, "u1").HasData {
		t.Fatal("expected HasData=false after clear")
	}
}

func TestActiveSessions(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	if got := s.ActiveSessions(ctx); got != 0 {
		t.Fatalf("expected 0 active sessions, got %d", got)
	}

	s.CreateSession(ctx, "")
	s.CreateSession(ctx, "")
	if got := s.ActiveSessions(ctx); got != 2 {
		t.Fatalf("expected 2 active sessions, got %d", got)
	}
}

func TestActiveSessionsSkipsExpired(t *testing.T) {
	s := store.NewMemoryStore(time.Millisecond)
	ctx := context.Background()
	s.CreateSession(ctx, "")

	time.Sleep(5 * time.Millisecond)

	if got := s.ActiveSessions(ctx); got != 0 {
		t.Fatalf("expected expired session excluded, got %d", got)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := store.NewMemoryStore(time.Millisecond)
	ctx := context.Background()
	id := s.CreateSession(ctx, "")
	s.AppendTurn(ctx, id, chat.RoleUser, "سلام", nil)

	time.Sleep(5 * time.Millisecond)

	if got := len(s.GetHistory(ctx, id, 10)); got != 0 {
		t.Fatalf("expected expired session to read empty, got %d turns", got)
	}
}
