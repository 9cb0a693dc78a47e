package telegraph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/zulandar/taskline/internal/intent"
)

func newTestConversationStore(t *testing.T) (*ConversationStore, *clock) {
	t.Helper()
	db := openTestDB(t)
	clk := newClock(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	cs, err := NewConversationStore(ConversationStoreOpts{DB: db, Limit: 5, Now: clk.Now})
	if err != nil {
		t.Fatalf("NewConversationStore: %v", err)
	}
	return cs, clk
}

func TestNewConversationStore_NilDB(t *testing.T) {
	_, err := NewConversationStore(ConversationStoreOpts{})
	if err == nil {
		t.Fatal("expected error for nil DB")
	}
}

func TestNewConversationStore_DefaultLimit(t *testing.T) {
	cs, err := NewConversationStore(ConversationStoreOpts{DB: openTestDB(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Limit() != DefaultHistoryLimit {
		t.Errorf("Limit = %d, want %d", cs.Limit(), DefaultHistoryLimit)
	}
}

func TestConversationStore_RecentOldestFirst(t *testing.T) {
	cs, clk := newTestConversationStore(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		role := intent.RoleUser
		if i%2 == 1 {
			role = intent.RoleAssistant
		}
		cs.Append(ctx, "u1", role, fmt.Sprintf("m%d", i))
		clk.Advance(time.Second)
	}

	turns, err := cs.Recent(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("len = %d, want 5", len(turns))
	}
	for i, want := range []string{"m3", "m4", "m5", "m6", "m7"} {
		if turns[i].Content != want {
			t.Errorf("turns[%d] = %q, want %q", i, turns[i].Content, want)
		}
	}
	if turns[0].Role != intent.RoleAssistant || turns[1].Role != intent.RoleUser {
		t.Errorf("roles = %s,%s", turns[0].Role, turns[1].Role)
	}
}

func TestConversationStore_SameInstantUsesInsertionOrder(t *testing.T) {
	cs, _ := newTestConversationStore(t)
	ctx := context.Background()

	// Clock never advances: ties must fall back to insertion order.
	cs.Append(ctx, "u1", intent.RoleUser, "first")
	cs.Append(ctx, "u1", intent.RoleAssistant, "second")
	cs.Append(ctx, "u1", intent.RoleUser, "third")

	turns, err := cs.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	got := []string{turns[0].Content, turns[1].Content, turns[2].Content}
	if got[0] != "first" || got[1] != "second" || got[2] != "third" {
		t.Errorf("order = %v", got)
	}
}

func TestConversationStore_UsersIsolated(t *testing.T) {
	cs, clk := newTestConversationStore(t)
	ctx := context.Background()

	cs.Append(ctx, "u1", intent.RoleUser, "u1-a")
	clk.Advance(time.Second)
	cs.Append(ctx, "u2", intent.RoleUser, "u2-a")
	clk.Advance(time.Second)
	cs.Append(ctx, "u1", intent.RoleUser, "u1-b")

	turns, _ := cs.Recent(ctx, "u1", 10)
	if len(turns) != 2 {
		t.Fatalf("u1 turns = %d, want 2", len(turns))
	}
	for _, tr := range turns {
		if tr.Content == "u2-a" {
			t.Error("u1 history contains u2's turn")
		}
	}
}

func TestConversationStore_AppendFailsSoft(t *testing.T) {
	cs, _ := newTestConversationStore(t)
	sqlDB, _ := cs.db.DB()
	sqlDB.Close()

	// Must not panic or return anything.
	cs.Append(context.Background(), "u1", intent.RoleUser, "lost")

	if _, err := cs.Recent(context.Background(), "u1", 1); err == nil {
		t.Error("Recent on closed DB should error")
	}
}

func TestConversationStore_Prune(t *testing.T) {
	cs, clk := newTestConversationStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		cs.Append(ctx, "u1", intent.RoleUser, fmt.Sprintf("m%d", i))
		clk.Advance(time.Second)
	}
	cs.Append(ctx, "u2", intent.RoleUser, "other")

	n, err := cs.Prune(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 4 {
		t.Errorf("pruned = %d, want 4", n)
	}
	turns, _ := cs.Recent(ctx, "u1", 10)
	if len(turns) != 2 || turns[0].Content != "m4" || turns[1].Content != "m5" {
		t.Errorf("remaining = %+v", turns)
	}
	if c, _ := cs.Count(ctx, "u2"); c != 1 {
		t.Errorf("u2 count = %d, want 1", c)
	}

	if n, _ := cs.Prune(ctx, "u1", 0); n != 0 {
		t.Errorf("Prune(keep=0) = %d, want 0", n)
	}
	if n, _ := cs.Prune(ctx, "u1", 10); n != 0 {
		t.Errorf("Prune under keep = %d, want 0", n)
	}
}
