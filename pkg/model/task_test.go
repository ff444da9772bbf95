package model

import (
	"testing"
	"time"
)

func TestNormalizeOwner(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"7416057134", "user_7416057134"},
		{"user_7416057134", "user_7416057134"},
		{"  42 ", "user_42"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeOwner(tt.in); got != tt.want {
			t.Errorf("NormalizeOwner(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeReadiness(t *testing.T) {
	task := Task{Owner: "1", Title: "Buy milk"}.Normalize()
	if task.Readiness != PENDING_INPUT {
		t.Errorf("Expected %s without due, got %s", PENDING_INPUT, task.Readiness)
	}
	if task.SyncState != PENDING {
		t.Errorf("Expected default state pending, got %s", task.SyncState)
	}

	task.Due = "2026-02-06T10:00:00+01:00"
	task = task.Normalize()
	if task.Readiness != READY {
		t.Errorf("Expected %s with title and due, got %s", READY, task.Readiness)
	}
}

func TestApplyKeepsUnsetFields(t *testing.T) {
	title := "Call mom"
	base := Task{
		Owner:         "user_1",
		Title:         "Call mum",
		Details:       "about the trip",
		Due:           "2026-02-06T10:00:00+01:00",
		SyncState:     DONE,
		RemoteID:      "abc",
		AssistantNote: "bring the photos",
	}.Normalize()

	got := base.Apply(Mutation{Title: &title})
	if got.Title != title {
		t.Errorf("Expected title %q, got %q", title, got.Title)
	}
	if got.Details != base.Details || got.Due != base.Due || got.AssistantNote != base.AssistantNote {
		t.Errorf("Expected unset fields preserved, got %+v", got)
	}
	if got.SyncState != PENDING {
		t.Errorf("Expected edit to reset state to pending, got %s", got.SyncState)
	}
	if got.RemoteID != "abc" {
		t.Errorf("Expected remote id kept, got %q", got.RemoteID)
	}
}

func TestDueTime(t *testing.T) {
	task := Task{Due: "2026-02-06T10:00:00+01:00"}
	due, ok := task.DueTime()
	if !ok {
		t.Fatal("Expected due to parse")
	}
	want := time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Errorf("Expected %v, got %v", want, due)
	}

	for _, raw := range []string{"", "tomorrow at 10am", "2026-02-06 10:00"} {
		if _, ok := (Task{Due: raw}).DueTime(); ok {
			t.Errorf("Expected %q to fail strict parsing", raw)
		}
	}
}

func TestExpire(t *testing.T) {
	synced := Task{Title: "Gym", RemoteID: "r1", SyncState: DONE}
	next, keep := synced.Expire()
	if !keep || next.SyncState != PASSED {
		t.Errorf("Expected synced task to become passed, got keep=%v state=%s", keep, next.SyncState)
	}

	local := Task{Title: "Gym", SyncState: PENDING}
	if _, keep := local.Expire(); keep {
		t.Error("Expected a task without remote id to be dropped on expiry")
	}
}

func TestDedupKey(t *testing.T) {
	a := Task{Title: "Gym", Due: "2026-02-06T10:00:00Z"}
	if got := a.DedupKey(); got != "Gym|2026-02-06T10:00:00Z" {
		t.Errorf("Unexpected key without remote id: %s", got)
	}
	a.RemoteID = "r1"
	if got := a.DedupKey(); got != "r1|2026-02-06T10:00:00Z" {
		t.Errorf("Unexpected key with remote id: %s", got)
	}
	b := a
	b.Due = "2026-02-06T11:00:00Z"
	if a.DedupKey() == b.DedupKey() {
		t.Error("Expected a changed due to change the key")
	}
}

func TestDedupKeysIncludeTitleKeyOnceSynced(t *testing.T) {
	a := Task{Title: "Gym", Due: "2026-02-06T10:00:00Z"}
	if got := a.DedupKeys(); len(got) != 1 || got[0] != "Gym|2026-02-06T10:00:00Z" {
		t.Errorf("Unexpected keys without remote id: %v", got)
	}
	a.RemoteID = "r1"
	got := a.DedupKeys()
	if len(got) != 2 || got[0] != "r1|2026-02-06T10:00:00Z" || got[1] != "Gym|2026-02-06T10:00:00Z" {
		t.Errorf("Unexpected keys with remote id: %v", got)
	}
}
