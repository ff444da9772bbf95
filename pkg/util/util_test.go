package util

import (
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/remote"
)

func TestFieldsFromTask(t *testing.T) {
	task := model.Task{Title: "Dentist", Details: "bring card", Due: "2026-02-06T10:00:00+01:00"}
	f := FieldsFromTask(task)
	if f.Title == nil || *f.Title != "Dentist" || f.Details == nil || *f.Details != "bring card" {
		t.Errorf("Unexpected fields: %+v", f)
	}
	if f.Due == nil || !f.Due.Equal(time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected parsed due, got %v", f.Due)
	}

	task.Due = "friday-ish"
	if f := FieldsFromTask(task); f.Due != nil {
		t.Error("Expected an unparseable due to be left out")
	}
}

func TestPatchFromFields(t *testing.T) {
	if PatchFromFields(remote.Fields{}) != nil {
		t.Error("Expected nil patch when nothing changes")
	}

	empty := ""
	due := time.Date(2026, 2, 6, 10, 0, 0, 0, time.FixedZone("WAT", 3600))
	patch := PatchFromFields(remote.Fields{Details: &empty, Due: &due})
	if patch == nil {
		t.Fatal("Expected a patch")
	}
	if patch.Due != "2026-02-06T09:00:00Z" {
		t.Errorf("Expected due sent in UTC, got %s", patch.Due)
	}
	if len(patch.ForceSendFields) != 1 || patch.ForceSendFields[0] != "Notes" {
		t.Errorf("Expected cleared notes to be force-sent, got %v", patch.ForceSendFields)
	}
	if patch.Title != "" {
		t.Errorf("Expected title untouched, got %q", patch.Title)
	}
}

func TestConvertTaskToRemote(t *testing.T) {
	if _, err := ConvertTaskToRemote("  ", nil, ""); err == nil {
		t.Error("Expected an error for a missing title")
	}
	got, err := ConvertTaskToRemote("Gym", nil, "legs")
	if err != nil {
		t.Fatalf("ConvertTaskToRemote failed: %v", err)
	}
	if got.Title != "Gym" || got.Notes != "legs" || got.Due != "" {
		t.Errorf("Unexpected payload: %+v", got)
	}
}

func TestCompletionPatch(t *testing.T) {
	now := time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC)
	p := CompletionPatch(now)
	if p.Status != STATUS_COMPLETED || p.Completed == nil || *p.Completed != "2026-02-06T10:00:00Z" {
		t.Errorf("Unexpected completion patch: %+v", p)
	}
}

func TestSummarizeTasks(t *testing.T) {
	lagos, _ := time.LoadLocation("Africa/Lagos")
	rows := []model.Task{
		{Title: "Dentist", Due: "2026-02-06T09:00:00Z", Details: "bring card", AssistantNote: "Leave early."},
		{Title: "Read", Details: noDetails},
	}
	got := SummarizeTasks("Here are your tasks:", rows, lagos)

	for _, want := range []string{"Here are your tasks:", "• Dentist", "Friday, 06 Feb 2026 at 10:00 AM", "→ bring card", "→ Leave early.", "• Read\n  → No due date"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, got)
		}
	}
	if strings.Contains(got, noDetails) {
		t.Error("Expected placeholder details to be hidden")
	}

	if SummarizeTasks("x", nil, lagos) != "You have no matching tasks." {
		t.Error("Unexpected empty summary")
	}
}
