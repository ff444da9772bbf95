// Package reconcile pushes local task state to the remote task service.
//
// A pass walks a snapshot of the store and moves each task at most one step
// through its lifecycle. Remote calls are made without holding the store
// lock; their results are written back only if the task row is still the
// one the call was based on. Anything that fails is retried on the next
// pass.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/clock"
	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/remote"
	"github.com/harrisonrobin/tasknudge/pkg/store"
	"github.com/harrisonrobin/tasknudge/pkg/timefix"
	"github.com/harrisonrobin/tasknudge/pkg/util"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultTimeout = 15 * time.Second

// Zones resolves an owner's time zone.
type Zones interface {
	Location(owner string) (*time.Location, bool)
}

// Stats counts what one pass did.
type Stats struct {
	Repaired  int
	Expired   int
	Created   int
	Updated   int
	Completed int
	Deleted   int
	Skipped   int
	Failed    int
}

func (s Stats) changed() bool {
	return s.Repaired+s.Expired+s.Created+s.Updated+s.Completed+s.Deleted+s.Failed > 0
}

type Engine struct {
	Store      *store.Store
	Remote     remote.Service
	Zones      Zones
	Normalizer timefix.Normalizer
	Clock      clock.Clock
	Timeout    time.Duration
	Log        *zap.SugaredLogger

	group singleflight.Group
}

// Trigger runs a pass, or joins the one already in flight.
func (e *Engine) Trigger(ctx context.Context) Stats {
	v, _, _ := e.group.Do("pass", func() (any, error) {
		return e.Pass(ctx), nil
	})
	return v.(Stats)
}

// Run triggers a pass every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	clock.Loop(ctx, "reconcile", interval, e.Log, func(ctx context.Context) {
		e.Trigger(ctx)
	})
}

// Pass reconciles every task once.
func (e *Engine) Pass(ctx context.Context) Stats {
	var stats Stats
	now := e.Clock.Now()

	for _, snap := range e.Store.ListAll() {
		if ctx.Err() != nil {
			break
		}
		if snap.Owner == "" || strings.TrimSpace(snap.Title) == "" {
			stats.Skipped++
			continue
		}

		task, ok := e.repairDue(snap, now, &stats)
		if !ok {
			continue
		}
		task, ok = e.expire(task, now, &stats)
		if !ok {
			continue
		}
		e.step(ctx, task, &stats)
	}

	if stats.changed() {
		e.Log.Infow("reconcile: pass complete",
			"repaired", stats.Repaired,
			"expired", stats.Expired,
			"created", stats.Created,
			"updated", stats.Updated,
			"completed", stats.Completed,
			"deleted", stats.Deleted,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
		)
	}
	return stats
}

// repairDue rewrites a due value that is not strict RFC 3339. It returns
// false when the row changed underneath the pass.
func (e *Engine) repairDue(task model.Task, now time.Time, stats *Stats) (model.Task, bool) {
	if strings.TrimSpace(task.Due) == "" {
		return task, true
	}
	if _, ok := task.DueTime(); ok {
		return task, true
	}

	loc, _ := e.Zones.Location(task.Owner)
	due, ok := e.Normalizer.Normalize(task.Due, loc, now)
	if !ok {
		e.Log.Warnw("reconcile: could not resolve due, leaving as is", "owner", task.Owner, "title", task.Title, "due", task.Due)
		return task, true
	}

	next := task
	next.Due = model.FormatDue(due.In(loc))
	next = next.Normalize()
	if !e.swap(task, &next) {
		return task, false
	}
	stats.Repaired++
	return next, true
}

// expire moves a past-due task to passed before anything is sent remotely.
func (e *Engine) expire(task model.Task, now time.Time, stats *Stats) (model.Task, bool) {
	due, ok := task.DueTime()
	if !ok || !due.Before(now) || task.SyncState.Terminal() {
		return task, true
	}

	next, keep := task.Expire()
	if !keep {
		if e.swap(task, nil) {
			stats.Expired++
		}
		return task, false
	}
	next = next.Normalize()
	if !e.swap(task, &next) {
		return task, false
	}
	stats.Expired++
	return next, true
}

func (e *Engine) step(ctx context.Context, task model.Task, stats *Stats) {
	switch task.SyncState {
	case model.PENDING:
		if task.RemoteID == "" {
			e.create(ctx, task, stats)
		} else {
			e.update(ctx, task, stats)
		}
	case model.PASSED:
		e.finish(ctx, task, stats, "complete", e.Remote.Complete, &stats.Completed)
	case model.DELETE:
		e.finish(ctx, task, stats, "delete", e.Remote.Delete, &stats.Deleted)
	}
}

func (e *Engine) create(ctx context.Context, task model.Task, stats *Stats) {
	var due *time.Time
	if t, ok := task.DueTime(); ok {
		due = &t
	}

	cctx, cancel := e.callContext(ctx)
	id, err := e.Remote.Create(cctx, task.Owner, task.Title, due, task.Details)
	cancel()
	if err != nil {
		stats.Failed++
		e.Log.Errorw("reconcile: create failed", "owner", task.Owner, "title", task.Title, "error", err)
		return
	}
	stats.Created++

	next := task
	next.RemoteID = id
	next.SyncState = model.DONE
	next = next.Normalize()
	if !e.swap(task, &next) {
		e.attach(ctx, task, id)
	}
}

// attach records a freshly created remote id on a row that was edited while
// the create was in flight. The row stays pending so the edit is pushed as
// an update.
func (e *Engine) attach(ctx context.Context, task model.Task, id string) {
	attached := false
	m := e.Store.Matcher()
	err := e.Store.Update(func(rows []model.Task) ([]model.Task, error) {
		for i, r := range rows {
			if r.Owner != task.Owner || r.RemoteID != "" || r.SyncState.Terminal() {
				continue
			}
			if !m.Same(r.Title, task.Title) {
				continue
			}
			rows[i].RemoteID = id
			rows[i].SyncState = model.PENDING
			attached = true
			return rows, nil
		}
		return rows, nil
	})
	if err != nil {
		e.Log.Errorw("reconcile: could not record remote id", "owner", task.Owner, "remote_id", id, "error", err)
		return
	}
	if attached {
		return
	}

	// The row is gone, so the remote copy has nothing to mirror.
	e.Log.Warnw("reconcile: task vanished during create, removing remote copy", "owner", task.Owner, "remote_id", id)
	cctx, cancel := e.callContext(ctx)
	defer cancel()
	if err := e.Remote.Delete(cctx, id, task.Owner); err != nil {
		e.Log.Errorw("reconcile: could not remove orphaned remote task", "owner", task.Owner, "remote_id", id, "error", err)
	}
}

func (e *Engine) update(ctx context.Context, task model.Task, stats *Stats) {
	cctx, cancel := e.callContext(ctx)
	err := e.Remote.Update(cctx, task.RemoteID, task.Owner, util.FieldsFromTask(task))
	cancel()
	if err != nil {
		stats.Failed++
		e.Log.Errorw("reconcile: update failed", "owner", task.Owner, "remote_id", task.RemoteID, "error", err)
		return
	}
	stats.Updated++

	next := task
	next.SyncState = model.DONE
	next = next.Normalize()
	// A row edited meanwhile stays pending and is pushed next pass.
	e.swap(task, &next)
}

func (e *Engine) finish(ctx context.Context, task model.Task, stats *Stats, op string,
	call func(context.Context, string, string) error, counter *int) {
	if task.RemoteID == "" {
		if e.swap(task, nil) {
			*counter++
		}
		return
	}

	cctx, cancel := e.callContext(ctx)
	err := call(cctx, task.RemoteID, task.Owner)
	cancel()
	if err != nil {
		stats.Failed++
		e.Log.Errorw("reconcile: "+op+" failed", "owner", task.Owner, "remote_id", task.RemoteID, "error", err)
		return
	}
	*counter++
	e.remove(task)
}

// remove drops the row for a finished remote task. Content edits made in the
// meantime do not matter once the task is gone remotely, so the row is found
// by owner, remote id and state rather than by full snapshot.
func (e *Engine) remove(task model.Task) {
	err := e.Store.Update(func(rows []model.Task) ([]model.Task, error) {
		for i, r := range rows {
			if r.Owner == task.Owner && r.RemoteID == task.RemoteID && r.SyncState == task.SyncState {
				return append(rows[:i], rows[i+1:]...), nil
			}
		}
		return rows, nil
	})
	if err != nil {
		e.Log.Errorw("reconcile: could not remove finished task", "owner", task.Owner, "remote_id", task.RemoteID, "error", err)
	}
}

func (e *Engine) swap(old model.Task, next *model.Task) bool {
	swapped, err := e.Store.CompareAndSwap(old, next)
	if err != nil {
		e.Log.Errorw("reconcile: store write failed", "owner", old.Owner, "title", old.Title, "error", err)
		return false
	}
	if !swapped {
		e.Log.Infow("reconcile: task changed during pass, retrying next pass", "owner", old.Owner, "title", old.Title)
	}
	return swapped
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
