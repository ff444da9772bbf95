package model

import (
	"strings"
	"time"
)

// SyncState is a task's reconciliation status against the remote service.
type SyncState string

const (
	PENDING SyncState = "pending"
	DONE    SyncState = "done"
	PASSED  SyncState = "passed"
	DELETE  SyncState = "delete"
)

// Terminal reports whether the state is on its way out of the active set.
func (s SyncState) Terminal() bool {
	return s == PASSED || s == DELETE
}

// Valid reports whether s is one of the four known states.
func (s SyncState) Valid() bool {
	switch s {
	case PENDING, DONE, PASSED, DELETE:
		return true
	}
	return false
}

const (
	READY         = "ready"
	PENDING_INPUT = "pending-input"
)

const ownerPrefix = "user_"

// Task is one task belonging to one owner, exactly as persisted.
// Every field is a string so that a row survives a load/save cycle verbatim
// and two snapshots of the same row can be compared with ==.
type Task struct {
	Owner         string
	Title         string
	Details       string
	Due           string // RFC 3339 with offset, empty, or raw text awaiting repair
	Readiness     string
	SyncState     SyncState
	RemoteID      string
	AssistantNote string
}

// Mutation is an upstream change to a task. Nil fields mean "no change".
type Mutation struct {
	Owner         string
	RemoteID      string
	Title         *string
	Details       *string
	Due           *string
	AssistantNote *string
}

// NormalizeOwner returns the canonical owner key, "user_<id>".
func NormalizeOwner(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" || strings.HasPrefix(owner, ownerPrefix) {
		return owner
	}
	return ownerPrefix + owner
}

// ParseDue strictly parses an RFC 3339 due value.
func ParseDue(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(s))
}

// FormatDue renders t the way due values are persisted.
func FormatDue(t time.Time) string {
	return t.Format(time.RFC3339)
}

// DueTime returns the parsed due instant, or false if it is absent or does
// not parse strictly.
func (t Task) DueTime() (time.Time, bool) {
	if strings.TrimSpace(t.Due) == "" {
		return time.Time{}, false
	}
	due, err := ParseDue(t.Due)
	if err != nil {
		return time.Time{}, false
	}
	return due, true
}

// Normalize fills derived fields: canonical owner, readiness and the default
// sync state.
func (t Task) Normalize() Task {
	t.Owner = NormalizeOwner(t.Owner)
	if t.SyncState == "" || !t.SyncState.Valid() {
		t.SyncState = PENDING
	}
	if strings.TrimSpace(t.Title) != "" && strings.TrimSpace(t.Due) != "" {
		t.Readiness = READY
	} else {
		t.Readiness = PENDING_INPUT
	}
	return t
}

// Apply merges m into t, leaving nil fields untouched, and resets the task
// to pending.
func (t Task) Apply(m Mutation) Task {
	if m.Title != nil {
		t.Title = *m.Title
	}
	if m.Details != nil {
		t.Details = *m.Details
	}
	if m.Due != nil {
		t.Due = *m.Due
	}
	if m.AssistantNote != nil {
		t.AssistantNote = *m.AssistantNote
	}
	if m.RemoteID != "" && t.RemoteID == "" {
		t.RemoteID = m.RemoteID
	}
	t.SyncState = PENDING
	return t.Normalize()
}

// Expire marks the task passed. A task that never reached the remote service
// has nothing to complete there, so keep is false and the caller drops it.
func (t Task) Expire() (next Task, keep bool) {
	if t.RemoteID == "" {
		return t, false
	}
	t.SyncState = PASSED
	return t, true
}

// DedupKey identifies one occurrence of a task for reminder deduplication.
// A changed due value yields a new key.
func (t Task) DedupKey() string {
	id := t.RemoteID
	if id == "" {
		id = t.Title
	}
	return id + "|" + t.Due
}

// DedupKeys lists every key the task may have been reminded under. Once a
// task gets its remote id, records written under the title key still count.
func (t Task) DedupKeys() []string {
	if t.RemoteID == "" {
		return []string{t.DedupKey()}
	}
	return []string{t.DedupKey(), t.Title + "|" + t.Due}
}
