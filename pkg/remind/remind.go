// Package remind sends threshold reminders ahead of task due times and one
// morning summary per owner per local day.
//
// Whether a reminder or summary was sent is kept in the ledgers, not in
// memory, so a restart never repeats one. A record is written before the
// message goes out: a crash in between loses the message rather than
// doubling it.
package remind

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/clock"
	"github.com/harrisonrobin/tasknudge/pkg/ledger"
	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/notify"
	"github.com/harrisonrobin/tasknudge/pkg/store"
	"go.uber.org/zap"
)

const (
	DefaultInterval      = time.Minute
	DefaultTolerance     = 30 * time.Second
	DefaultAnchor        = "06:00"
	DefaultSummaryWindow = time.Minute

	// DefaultComposeTimeout bounds one composer call, well inside a tick.
	DefaultComposeTimeout = 5 * time.Second
)

var DefaultThresholds = []int{30, 10, 1}

type Config struct {
	Thresholds     []int         `mapstructure:"thresholds"`
	Interval       time.Duration `mapstructure:"interval"`
	Tolerance      time.Duration `mapstructure:"tolerance"`
	Anchor         string        `mapstructure:"anchor"`
	SummaryWindow  time.Duration `mapstructure:"summary_window"`
	ComposeTimeout time.Duration `mapstructure:"compose_timeout"`
}

// Validate checks the anchor and threshold values.
func (c Config) Validate() error {
	if _, _, err := ParseAnchor(c.Anchor); err != nil {
		return err
	}
	for _, th := range c.Thresholds {
		if th <= 0 {
			return fmt.Errorf("threshold must be positive, got %d", th)
		}
	}
	return nil
}

// ParseAnchor parses a 24-hour "HH:MM" time of day.
func ParseAnchor(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid anchor %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Directory is the owner registry the scheduler reads zones from.
type Directory interface {
	Reload() error
	Owners() []string
	Location(owner string) (*time.Location, bool)
}

type Scheduler struct {
	Store     *store.Store
	Directory Directory
	Reminders *ledger.Reminders
	Summaries *ledger.Summaries
	Notifier  notify.Notifier
	Composer  Composer
	Clock     clock.Clock
	Config    Config
	Log       *zap.SugaredLogger

	// OnExpire runs after a tick moved any task to passed.
	OnExpire func(ctx context.Context)
}

// Run prunes the ledger and then ticks every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if _, err := s.Prune(); err != nil {
		s.Log.Errorw("remind: ledger prune failed", "error", err)
	}
	interval := s.Config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock.Loop(ctx, "remind", interval, s.Log, func(ctx context.Context) {
		s.Tick(ctx, s.Clock.Now())
	})
}

// Tick evaluates every owner's tasks at now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	if err := s.Directory.Reload(); err != nil {
		s.Log.Warnw("remind: could not reload directory, using last known zones", "error", err)
	}

	byOwner := make(map[string][]model.Task)
	for _, t := range s.Store.ListAll() {
		if t.Owner == "" {
			continue
		}
		byOwner[t.Owner] = append(byOwner[t.Owner], t)
	}
	for _, owner := range s.Directory.Owners() {
		if _, ok := byOwner[owner]; !ok {
			byOwner[owner] = nil
		}
	}
	owners := make([]string, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	expired := false
	for _, owner := range owners {
		if ctx.Err() != nil {
			return
		}
		loc, _ := s.Directory.Location(owner)
		s.summarize(ctx, owner, byOwner[owner], now, loc)

		for _, task := range byOwner[owner] {
			if s.remind(ctx, task, now) {
				expired = true
			}
		}
	}

	if expired && s.OnExpire != nil {
		s.OnExpire(ctx)
	}
}

// remind handles one task and reports whether it was moved to passed.
func (s *Scheduler) remind(ctx context.Context, task model.Task, now time.Time) bool {
	if task.SyncState.Terminal() || strings.TrimSpace(task.Title) == "" {
		return false
	}
	due, ok := task.DueTime()
	if !ok {
		return false
	}

	remaining := due.Sub(now)
	if remaining <= 0 {
		return s.expire(task)
	}

	key := task.DedupKey()
	for _, th := range s.thresholds() {
		if s.fired(task, th) {
			continue
		}
		diff := remaining - time.Duration(th)*time.Minute
		if diff < 0 {
			diff = -diff
		}
		if diff > s.tolerance() {
			continue
		}
		s.fire(ctx, task, key, th, now)
	}
	return false
}

func (s *Scheduler) fired(task model.Task, threshold int) bool {
	for _, key := range task.DedupKeys() {
		if s.Reminders.Fired(task.Owner, key, threshold) {
			return true
		}
	}
	return false
}

func (s *Scheduler) fire(ctx context.Context, task model.Task, key string, threshold int, now time.Time) {
	if err := s.Reminders.Record(task.Owner, key, threshold, now); err != nil {
		s.Log.Errorw("remind: could not record reminder, not sending", "owner", task.Owner, "task_key", key, "threshold", threshold, "error", err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.composeTimeout())
	text, err := s.composer().Reminder(cctx, task, threshold)
	cancel()
	if err != nil || strings.TrimSpace(text) == "" {
		s.Log.Warnw("remind: composing reminder failed, using template", "owner", task.Owner, "title", task.Title, "error", err)
		text = ReminderText(task, threshold)
	}

	n := notify.New(notify.KindReminder, task.Owner, text, now)
	n.TaskKey = key
	n.Threshold = threshold
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Log.Errorw("remind: delivery failed", "owner", task.Owner, "task_key", key, "threshold", threshold, "error", err)
		return
	}
	s.Log.Infow("remind: reminder sent", "owner", task.Owner, "title", task.Title, "threshold", threshold)
}

func (s *Scheduler) expire(task model.Task) bool {
	next, keep := task.Expire()
	var nextPtr *model.Task
	if keep {
		nextPtr = &next
	}
	swapped, err := s.Store.CompareAndSwap(task, nextPtr)
	if err != nil {
		s.Log.Errorw("remind: could not mark task passed", "owner", task.Owner, "title", task.Title, "error", err)
		return false
	}
	if swapped {
		s.Log.Infow("remind: task passed", "owner", task.Owner, "title", task.Title)
	}
	return swapped
}

// summarize sends the morning summary when now falls inside the owner's
// anchor window and none was sent for the local date yet. Owners with
// nothing active get no summary and no record.
func (s *Scheduler) summarize(ctx context.Context, owner string, tasks []model.Task, now time.Time, loc *time.Location) {
	local := now.In(loc)
	hour, minute, err := ParseAnchor(s.anchor())
	if err != nil {
		s.Log.Errorw("remind: bad summary anchor", "anchor", s.anchor(), "error", err)
		return
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if local.Before(start) || !local.Before(start.Add(s.summaryWindow())) {
		return
	}

	date := local.Format(time.DateOnly)
	if s.Summaries.Sent(owner, date) {
		return
	}

	var active []model.Task
	for _, t := range tasks {
		if !t.SyncState.Terminal() && strings.TrimSpace(t.Title) != "" {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return
	}
	store.SortByDue(active)

	if err := s.Summaries.Record(owner, date, now); err != nil {
		s.Log.Errorw("remind: could not record summary, not sending", "owner", owner, "date", date, "error", err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.composeTimeout())
	text, err := s.composer().Summary(cctx, owner, active, loc)
	cancel()
	if err != nil || strings.TrimSpace(text) == "" {
		s.Log.Warnw("remind: composing summary failed, using template", "owner", owner, "error", err)
		text, _ = Template{}.Summary(ctx, owner, active, loc)
	}

	if err := s.Notifier.Notify(ctx, notify.New(notify.KindSummary, owner, text, now)); err != nil {
		s.Log.Errorw("remind: summary delivery failed", "owner", owner, "date", date, "error", err)
		return
	}
	s.Log.Infow("remind: summary sent", "owner", owner, "date", date, "tasks", len(active))
}

// Prune drops dedup records of tasks that are no longer active.
func (s *Scheduler) Prune() (int, error) {
	active := make(map[string]bool)
	for _, t := range s.Store.ListAll() {
		if t.SyncState.Terminal() {
			continue
		}
		for _, key := range t.DedupKeys() {
			active[t.Owner+"\x00"+key] = true
		}
	}
	removed, err := s.Reminders.Prune(func(rec ledger.Record) bool {
		return active[rec.Owner+"\x00"+rec.TaskKey]
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.Log.Infow("remind: pruned ledger", "removed", removed)
	}
	return removed, nil
}

// thresholds returns the configured thresholds, largest first.
func (s *Scheduler) thresholds() []int {
	ths := s.Config.Thresholds
	if len(ths) == 0 {
		ths = DefaultThresholds
	}
	out := append([]int(nil), ths...)
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func (s *Scheduler) tolerance() time.Duration {
	if s.Config.Tolerance <= 0 {
		return DefaultTolerance
	}
	return s.Config.Tolerance
}

func (s *Scheduler) anchor() string {
	if s.Config.Anchor == "" {
		return DefaultAnchor
	}
	return s.Config.Anchor
}

func (s *Scheduler) summaryWindow() time.Duration {
	if s.Config.SummaryWindow <= 0 {
		return DefaultSummaryWindow
	}
	return s.Config.SummaryWindow
}

func (s *Scheduler) composeTimeout() time.Duration {
	if s.Config.ComposeTimeout <= 0 {
		return DefaultComposeTimeout
	}
	return s.Config.ComposeTimeout
}

func (s *Scheduler) composer() Composer {
	if s.Composer == nil {
		return Template{}
	}
	return s.Composer
}
