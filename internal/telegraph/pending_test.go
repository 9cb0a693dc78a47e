package telegraph

import (
	"testing"
	"time"

	"github.com/zulandar/taskline/internal/intent"
)

func newTestPendingStore() (*PendingStore, *clock) {
	clk := newClock(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	return NewPendingStore(PendingStoreOpts{TTL: 10 * time.Minute, Now: clk.Now}), clk
}

func TestPendingStore_ProposeAndTake(t *testing.T) {
	p, _ := newTestPendingStore()

	if replaced := p.Propose("u1", PendingAction{Task: intent.TaskIntent{Title: "Show X"}}); replaced {
		t.Error("first Propose reported replacement")
	}
	a, st := p.Take("u1")
	if st != StateProposed {
		t.Fatalf("state = %s, want proposed", st)
	}
	if a.Task.Title != "Show X" {
		t.Errorf("title = %q", a.Task.Title)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}

	// Slot is cleared on take.
	if _, st := p.Take("u1"); st != StateNone {
		t.Errorf("second Take state = %s, want none", st)
	}
}

func TestPendingStore_LastProposalWins(t *testing.T) {
	p, _ := newTestPendingStore()

	p.Propose("u1", PendingAction{Task: intent.TaskIntent{Title: "first"}})
	if replaced := p.Propose("u1", PendingAction{Task: intent.TaskIntent{Title: "second"}}); !replaced {
		t.Error("second Propose should report replacement")
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
	a, st := p.Take("u1")
	if st != StateProposed || a.Task.Title != "second" {
		t.Errorf("Take = %q/%s, want second/proposed", a.Task.Title, st)
	}
}

func TestPendingStore_UsersIsolated(t *testing.T) {
	p, _ := newTestPendingStore()
	p.Propose("u1", PendingAction{Task: intent.TaskIntent{Title: "a"}})
	p.Propose("u2", PendingAction{Task: intent.TaskIntent{Title: "b"}})

	if _, st := p.Take("u1"); st != StateProposed {
		t.Errorf("u1 state = %s, want proposed", st)
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
	if a, st := p.Take("u2"); st != StateProposed || a.Task.Title != "b" {
		t.Errorf("u2 slot = %+v/%s", a, st)
	}
}

func TestPendingStore_Expiry(t *testing.T) {
	p, clk := newTestPendingStore()
	p.Propose("u1", PendingAction{Task: intent.TaskIntent{Title: "old"}})
	clk.Advance(10 * time.Minute)
	if _, st := p.Take("u1"); st != StateProposed {
		t.Fatalf("entry at exactly TTL: state = %s, want proposed", st)
	}

	p.Propose("u1", PendingAction{Task: intent.TaskIntent{Title: "old"}})
	clk.Advance(10*time.Minute + time.Second)
	if _, st := p.Take("u1"); st != StateExpired {
		t.Errorf("state = %s, want expired", st)
	}
	if p.Len() != 0 {
		t.Error("expired entry should be removed on access")
	}
}

func TestPendingStore_ReplaceExpiredIsNotReplacement(t *testing.T) {
	p, clk := newTestPendingStore()
	p.Propose("u1", PendingAction{})
	clk.Advance(time.Hour)
	if p.Propose("u1", PendingAction{}) {
		t.Error("replacing an expired entry should not count as replacement")
	}
}

func TestPendingStore_Sweep(t *testing.T) {
	p, clk := newTestPendingStore()
	p.Propose("u1", PendingAction{})
	clk.Advance(8 * time.Minute)
	p.Propose("u2", PendingAction{})
	clk.Advance(5 * time.Minute)

	if n := p.Sweep(clk.Now()); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if p.Len() != 1 {
		t.Errorf("Len = %d, want 1", p.Len())
	}
	if _, st := p.Take("u2"); st != StateProposed {
		t.Errorf("u2 state = %s, want proposed", st)
	}
}

func TestPendingStore_SweptEntryStillReadsExpired(t *testing.T) {
	p, clk := newTestPendingStore()
	p.Propose("u1", PendingAction{Task: intent.TaskIntent{Title: "old"}})
	clk.Advance(11 * time.Minute)
	p.Sweep(clk.Now())

	if _, st := p.Take("u1"); st != StateExpired {
		t.Errorf("after sweep: state = %s, want expired", st)
	}
	// The tombstone is consumed by the vote it answers.
	if _, st := p.Take("u1"); st != StateNone {
		t.Errorf("second take: state = %s, want none", st)
	}

	p.Propose("u2", PendingAction{})
	clk.Advance(11 * time.Minute)
	p.Sweep(clk.Now())
	p.Propose("u2", PendingAction{Task: intent.TaskIntent{Title: "new"}})
	if a, st := p.Take("u2"); st != StateProposed || a.Task.Title != "new" {
		t.Errorf("new proposal after sweep = %q/%s", a.Task.Title, st)
	}
}

func TestPendingStore_SweepUsesGivenInstant(t *testing.T) {
	p, _ := newTestPendingStore()
	p.Propose("u1", PendingAction{})
	if n := p.Sweep(time.Date(2026, 10, 14, 12, 5, 0, 0, time.UTC)); n != 0 {
		t.Errorf("Sweep before TTL = %d, want 0", n)
	}
	if n := p.Sweep(time.Date(2026, 10, 14, 13, 0, 0, 0, time.UTC)); n != 1 {
		t.Errorf("Sweep after TTL = %d, want 1", n)
	}
}

func TestPendingState_String(t *testing.T) {
	tests := map[PendingState]string{StateNone: "none", StateProposed: "proposed", StateExpired: "expired"}
	for st, want := range tests {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
