package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRemindersSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.jsonl")
	r, err := OpenReminders(path)
	if err != nil {
		t.Fatalf("OpenReminders failed: %v", err)
	}
	now := time.Date(2026, 2, 6, 9, 30, 0, 0, time.UTC)

	if r.Fired("user_1", "r1|2026-02-06T10:00:00Z", 30) {
		t.Fatal("Expected empty ledger")
	}
	if err := r.Record("user_1", "r1|2026-02-06T10:00:00Z", 30, now); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := r.Record("user_1", "r1|2026-02-06T10:00:00Z", 30, now); err != nil {
		t.Fatalf("Second record failed: %v", err)
	}

	reopened, err := OpenReminders(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if !reopened.Fired("user_1", "r1|2026-02-06T10:00:00Z", 30) {
		t.Error("Expected record to survive reopen")
	}
	if reopened.Fired("user_1", "r1|2026-02-06T10:00:00Z", 10) {
		t.Error("Expected other thresholds unaffected")
	}
	if reopened.Len() != 1 {
		t.Errorf("Expected duplicate record not appended, got %d", reopened.Len())
	}
}

func TestRemindersIgnoreTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.jsonl")
	data := `{"owner":"user_1","task_key":"a|x","threshold":30,"fired_at":"2026-02-06T09:30:00Z"}` + "\n" + `{"owner":"user_1","task_ke`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	r, err := OpenReminders(path)
	if err != nil {
		t.Fatalf("OpenReminders failed: %v", err)
	}
	if r.Len() != 1 || !r.Fired("user_1", "a|x", 30) {
		t.Errorf("Expected the whole line loaded and the torn one skipped, got %d", r.Len())
	}
}

func TestRemindersPrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.jsonl")
	r, _ := OpenReminders(path)
	now := time.Now()
	r.Record("user_1", "keep|1", 30, now)
	r.Record("user_1", "keep|1", 10, now)
	r.Record("user_1", "gone|1", 30, now)

	removed, err := r.Prune(func(rec Record) bool { return rec.TaskKey == "keep|1" })
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 record removed, got %d", removed)
	}

	reopened, _ := OpenReminders(path)
	if reopened.Len() != 2 || reopened.Fired("user_1", "gone|1", 30) {
		t.Errorf("Expected pruned ledger on disk, got %d records", reopened.Len())
	}
}

func TestSummaries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.jsonl")
	s, err := OpenSummaries(path)
	if err != nil {
		t.Fatalf("OpenSummaries failed: %v", err)
	}
	if err := s.Record("user_1", "2026-02-06", time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	reopened, _ := OpenSummaries(path)
	if !reopened.Sent("user_1", "2026-02-06") {
		t.Error("Expected summary record to survive reopen")
	}
	if reopened.Sent("user_1", "2026-02-07") || reopened.Sent("user_2", "2026-02-06") {
		t.Error("Expected exact-match lookups only")
	}
}
