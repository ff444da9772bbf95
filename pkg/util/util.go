package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/remote"
	"google.golang.org/api/tasks/v1"
)

const (
	STATUS_COMPLETED = "completed"
	humanLayout      = "Monday, 02 Jan 2006 at 03:04 PM"
	noDetails        = "No extra details provided."
)

// FieldsFromTask builds the full remote update for a local task. A due value
// that does not parse is left out rather than sent as garbage.
func FieldsFromTask(t model.Task) remote.Fields {
	title := t.Title
	details := t.Details
	f := remote.Fields{Title: &title, Details: &details}
	if due, ok := t.DueTime(); ok {
		f.Due = &due
	}
	return f
}

// ConvertTaskToRemote builds the payload for creating a task.
func ConvertTaskToRemote(title string, due *time.Time, details string) (*tasks.Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("could not convert task without a title")
	}
	t := &tasks.Task{Title: title, Notes: details}
	if due != nil {
		t.Due = due.UTC().Format(time.RFC3339)
	}
	return t, nil
}

// PatchFromFields returns the partial update for f, or nil if f changes
// nothing.
func PatchFromFields(f remote.Fields) *tasks.Task {
	patch := &tasks.Task{}
	needsUpdate := false

	if f.Title != nil {
		patch.Title = *f.Title
		needsUpdate = true
	}
	if f.Details != nil {
		patch.Notes = *f.Details
		// An empty string is dropped by the JSON encoder unless forced.
		if *f.Details == "" {
			patch.ForceSendFields = append(patch.ForceSendFields, "Notes")
		}
		needsUpdate = true
	}
	if f.Due != nil {
		patch.Due = f.Due.UTC().Format(time.RFC3339)
		needsUpdate = true
	}

	if needsUpdate {
		return patch
	}
	return nil
}

// CompletionPatch marks a remote task completed at now.
func CompletionPatch(now time.Time) *tasks.Task {
	completed := now.UTC().Format(time.RFC3339)
	return &tasks.Task{Status: STATUS_COMPLETED, Completed: &completed}
}

// ConvertRemoteTask maps an API task to the adapter's view of it.
func ConvertRemoteTask(t *tasks.Task) remote.Task {
	return remote.Task{
		ID:        t.Id,
		Title:     t.Title,
		Notes:     t.Notes,
		Due:       t.Due,
		Completed: t.Status == STATUS_COMPLETED,
	}
}

// HumanTime renders a due value in loc, or returns it unchanged if it does
// not parse.
func HumanTime(due string, loc *time.Location) string {
	t, err := model.ParseDue(due)
	if err != nil {
		return due
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(humanLayout)
}

// SummarizeTasks renders tasks as a bulleted message body.
func SummarizeTasks(header string, rows []model.Task, loc *time.Location) string {
	if len(rows) == 0 {
		return "You have no matching tasks."
	}

	var b strings.Builder
	b.WriteString(header)
	for _, r := range rows {
		when := "No due date"
		if r.Due != "" {
			when = HumanTime(r.Due, loc)
		}
		b.WriteString(fmt.Sprintf("\n\n• %s\n  → %s", r.Title, when))
		if r.Details != "" && r.Details != noDetails {
			b.WriteString(fmt.Sprintf("\n  → %s", r.Details))
		}
		if r.AssistantNote != "" {
			b.WriteString(fmt.Sprintf("\n  → %s", r.AssistantNote))
		}
	}
	return b.String()
}
