package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/clock"
	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/remote"
	"github.com/harrisonrobin/tasknudge/pkg/store"
	"go.uber.org/zap/zaptest"
)

type accounts struct {
	zones
	tokens map[string]string
}

func (a accounts) Owners() []string {
	return []string{"user_1", "user_2"}
}

func (a accounts) RefreshToken(owner string) (string, error) {
	if tok, ok := a.tokens[owner]; ok {
		return tok, nil
	}
	return "", errors.New("no credential")
}

func TestPullImportsUnknownOpenTasks(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	s := store.New(filepath.Join(t.TempDir(), "tasks.csv"), nil, log)
	s.Update(func([]model.Task) ([]model.Task, error) {
		return []model.Task{{Owner: "user_1", Title: "Known", Due: "2026-02-07T10:00:00Z", SyncState: model.PENDING, RemoteID: "known"}}, nil
	})

	lagos, _ := time.LoadLocation("Africa/Lagos")
	r := &fakeRemote{listed: []remote.Task{
		{ID: "known", Title: "Known but renamed", Due: "2026-02-08T00:00:00.000Z"},
		{ID: "new", Title: "Pay rent", Notes: "landlord", Due: "2026-02-06T00:00:00.000Z"},
		{ID: "undated", Title: "Call mum"},
		{ID: "done", Title: "Finished", Completed: true},
		{ID: "old", Title: "Yesterday", Due: "2026-02-04T00:00:00.000Z"},
	}}
	p := &Puller{
		Store:    s,
		Remote:   r,
		Accounts: accounts{zones: zones{"user_1": lagos}, tokens: map[string]string{"user_1": "tok"}},
		Clock:    clock.NewFake(now),
		Log:      log,
	}

	n, err := p.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 imports, got %d", n)
	}
	if r.lists != 1 {
		t.Errorf("Expected only the owner with a credential listed, got %d lists", r.lists)
	}

	rows := s.ListAll()
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0].Title != "Known" || rows[0].SyncState != model.PENDING {
		t.Errorf("Expected existing row untouched, got %+v", rows[0])
	}
	rent := rows[1]
	if rent.RemoteID != "new" || rent.SyncState != model.DONE || rent.Details != "landlord" || rent.Due != "2026-02-06T23:59:00+01:00" {
		t.Errorf("Unexpected imported row: %+v", rent)
	}
	if rows[2].RemoteID != "undated" || rows[2].Due != "" {
		t.Errorf("Unexpected undated row: %+v", rows[2])
	}

	n, _ = p.Pull(context.Background())
	if n != 0 {
		t.Errorf("Expected a second pull to import nothing, got %d", n)
	}
}

func TestPulledTaskDueTodayIsNotCompleted(t *testing.T) {
	e, r := newEngine(t)
	lagos, _ := time.LoadLocation("Africa/Lagos")
	r.listed = []remote.Task{{ID: "g1", Title: "Pay rent", Due: "2026-02-06T00:00:00.000Z"}}
	p := &Puller{
		Store:    e.Store,
		Remote:   r,
		Accounts: accounts{zones: zones{"user_1": lagos}, tokens: map[string]string{"user_1": "tok"}},
		Clock:    e.Clock,
		Log:      e.Log,
	}

	if n, err := p.Pull(context.Background()); err != nil || n != 1 {
		t.Fatalf("Expected one import, got %d (%v)", n, err)
	}
	stats := e.Pass(context.Background())
	if stats.Expired != 0 || r.completes != 0 {
		t.Errorf("Expected the imported task left alone, got %d expired and %d completes", stats.Expired, r.completes)
	}
	if task := only(t, e.Store); task.SyncState != model.DONE || task.Due != "2026-02-06T23:59:00+01:00" {
		t.Errorf("Unexpected row after pass: %+v", task)
	}
}

func TestRemoteDue(t *testing.T) {
	lagos, _ := time.LoadLocation("Africa/Lagos")
	tests := []struct {
		in, want string
	}{
		{"2026-02-06T00:00:00.000Z", "2026-02-06T23:59:00+01:00"},
		{"2026-02-06T15:30:00Z", "2026-02-06T16:30:00+01:00"},
	}
	for _, tt := range tests {
		got, err := remoteDue(tt.in, lagos)
		if err != nil {
			t.Fatalf("remoteDue(%q) failed: %v", tt.in, err)
		}
		if s := model.FormatDue(got); s != tt.want {
			t.Errorf("remoteDue(%q) = %s, want %s", tt.in, s, tt.want)
		}
	}
	if _, err := remoteDue("next week", lagos); err == nil {
		t.Error("Expected an error for a non-RFC 3339 value")
	}
}
