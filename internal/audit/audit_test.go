package audit

import (
	"path/filepath"
	"testing"
	"time"
)

func openLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "audit.db"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	if err := l.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return l
}

func TestOpen_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "audit.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()
	if l.Path() != path {
		t.Errorf("Path = %q, want %q", l.Path(), path)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	l := openLog(t)
	if err := l.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestRecordAndList(t *testing.T) {
	l := openLog(t)

	events := []Event{
		{Kind: KindClaim, TaskID: "t1", SessionID: "s1", AgentID: "agent-a"},
		{Kind: KindStart, TaskID: "t1", SessionID: "s1", AgentID: "agent-a"},
		{Kind: KindForcedRelease, TaskID: "t1", SessionID: "s1", PrevOwner: "agent-a", Detail: "stale claim reaped after 20m0s"},
	}
	for _, ev := range events {
		if err := l.Record(ev); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := l.List(10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].Kind != KindForcedRelease || got[2].Kind != KindClaim {
		t.Errorf("unexpected order: %v, %v, %v", got[0].Kind, got[1].Kind, got[2].Kind)
	}
	if got[0].PrevOwner != "agent-a" {
		t.Errorf("PrevOwner = %q, want agent-a", got[0].PrevOwner)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not recorded")
	}
}

func TestList_Limit(t *testing.T) {
	l := openLog(t)
	for i := 0; i < 5; i++ {
		if err := l.Record(Event{Kind: KindClaim, TaskID: "t1"}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := l.List(2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestPrune(t *testing.T) {
	l := openLog(t)

	old := Event{Kind: KindClaim, TaskID: "t1", CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := Event{Kind: KindRelease, TaskID: "t1"}
	if err := l.Record(old); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := l.Record(fresh); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	removed, err := l.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	got, err := l.List(10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].Kind != KindRelease {
		t.Errorf("unexpected surviving events: %+v", got)
	}
}

func TestNopDiscards(t *testing.T) {
	var r Recorder = Nop{}
	if err := r.Record(Event{Kind: KindClaim}); err != nil {
		t.Errorf("Nop.Record returned %v", err)
	}
}
