package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/clock"
	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/remote"
	"github.com/harrisonrobin/tasknudge/pkg/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Accounts lists the owners that can be pulled for.
type Accounts interface {
	Zones
	Owners() []string
	RefreshToken(owner string) (string, error)
}

// Puller imports tasks created directly in the remote service. Imported rows
// are already in sync, so they arrive as done. Existing rows are never
// modified.
type Puller struct {
	Store    *store.Store
	Remote   remote.Service
	Accounts Accounts
	Clock    clock.Clock
	Timeout  time.Duration
	Log      *zap.SugaredLogger
}

// Pull imports for every owner with a stored credential and returns how many
// rows were added.
func (p *Puller) Pull(ctx context.Context) (int, error) {
	var errs error
	total := 0
	for _, owner := range p.Accounts.Owners() {
		if _, err := p.Accounts.RefreshToken(owner); err != nil {
			continue
		}
		n, err := p.pullOwner(ctx, owner)
		if err != nil {
			p.Log.Errorw("pull: failed", "owner", owner, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", owner, err))
			continue
		}
		if n > 0 {
			p.Log.Infow("pull: imported tasks", "owner", owner, "count", n)
		}
		total += n
	}
	return total, errs
}

// Run pulls every interval until ctx is cancelled.
func (p *Puller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	clock.Loop(ctx, "pull", interval, p.Log, func(ctx context.Context) {
		p.Pull(ctx)
	})
}

func (p *Puller) pullOwner(ctx context.Context, owner string) (int, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	remoteTasks, err := p.Remote.List(cctx, owner)
	cancel()
	if err != nil {
		return 0, err
	}

	loc, _ := p.Accounts.Location(owner)
	now := p.Clock.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	added := 0
	err = p.Store.Update(func(rows []model.Task) ([]model.Task, error) {
		known := make(map[string]bool)
		for _, r := range rows {
			if r.Owner == owner && r.RemoteID != "" {
				known[r.RemoteID] = true
			}
		}
		for _, rt := range remoteTasks {
			if rt.Completed || rt.ID == "" || known[rt.ID] || strings.TrimSpace(rt.Title) == "" {
				continue
			}
			task := model.Task{
				Owner:     owner,
				Title:     rt.Title,
				Details:   rt.Notes,
				SyncState: model.DONE,
				RemoteID:  rt.ID,
			}
			if rt.Due != "" {
				due, err := remoteDue(rt.Due, loc)
				if err != nil {
					continue
				}
				if due.Before(today) {
					continue
				}
				task.Due = model.FormatDue(due)
			}
			known[rt.ID] = true
			rows = append(rows, task)
			added++
		}
		return rows, nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// remoteDue reads a remote due value. Google Tasks keeps only the date and
// sends it as midnight UTC; such a value means the end of that day in the
// owner's zone.
func remoteDue(s string, loc *time.Location) (time.Time, error) {
	due, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	utc := due.UTC()
	if utc.Hour() == 0 && utc.Minute() == 0 && utc.Second() == 0 {
		return time.Date(utc.Year(), utc.Month(), utc.Day(), 23, 59, 0, 0, loc), nil
	}
	return due.In(loc), nil
}
