package cli

import (
	"fmt"

	"github.com/harrisonrobin/tasknudge/pkg/advisor"
	"github.com/harrisonrobin/tasknudge/pkg/clock"
	"github.com/harrisonrobin/tasknudge/pkg/directory"
	"github.com/harrisonrobin/tasknudge/pkg/google"
	"github.com/harrisonrobin/tasknudge/pkg/intake"
	"github.com/harrisonrobin/tasknudge/pkg/ledger"
	"github.com/harrisonrobin/tasknudge/pkg/match"
	"github.com/harrisonrobin/tasknudge/pkg/notify"
	"github.com/harrisonrobin/tasknudge/pkg/reconcile"
	"github.com/harrisonrobin/tasknudge/pkg/remind"
	"github.com/harrisonrobin/tasknudge/pkg/store"
	"github.com/harrisonrobin/tasknudge/pkg/timefix"
)

// deps holds the components a command is assembled from.
type deps struct {
	store     *store.Store
	directory *directory.Directory
	clock     clock.Clock
}

func newDeps() (*deps, error) {
	dir, err := directory.New(cfg.Resolve(cfg.DirectoryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open user directory: %w", err)
	}
	return &deps{
		store:     store.New(cfg.Resolve(cfg.TasksFile), match.Default(), log),
		directory: dir,
		clock:     clock.Real{},
	}, nil
}

func (d *deps) remote() (*google.TasksClient, error) {
	return google.NewClient(cfg.Google.CredentialsFile, cfg.Google.TaskList, d.directory)
}

func (d *deps) engine() (*reconcile.Engine, error) {
	remote, err := d.remote()
	if err != nil {
		return nil, err
	}
	return &reconcile.Engine{
		Store:      d.store,
		Remote:     remote,
		Zones:      d.directory,
		Normalizer: timefix.New(),
		Clock:      d.clock,
		Timeout:    cfg.Reconcile.RemoteTimeout,
		Log:        log,
	}, nil
}

func (d *deps) puller() (*reconcile.Puller, error) {
	remote, err := d.remote()
	if err != nil {
		return nil, err
	}
	return &reconcile.Puller{
		Store:    d.store,
		Remote:   remote,
		Accounts: d.directory,
		Clock:    d.clock,
		Timeout:  cfg.Reconcile.RemoteTimeout,
		Log:      log,
	}, nil
}

func (d *deps) scheduler() (*remind.Scheduler, error) {
	reminders, err := ledger.OpenReminders(cfg.Resolve(cfg.RemindersLedger))
	if err != nil {
		return nil, fmt.Errorf("failed to open reminder ledger: %w", err)
	}
	summaries, err := ledger.OpenSummaries(cfg.Resolve(cfg.SummaryLedger))
	if err != nil {
		return nil, fmt.Errorf("failed to open summary ledger: %w", err)
	}

	var composer remind.Composer = remind.Template{}
	if cfg.Advisor.Enabled {
		adv, err := advisor.New(cfg.Advisor)
		if err != nil {
			log.Warnw("advisor unavailable, using templates", "error", err)
		} else {
			composer = adv
		}
	}

	return &remind.Scheduler{
		Store:     d.store,
		Directory: d.directory,
		Reminders: reminders,
		Summaries: summaries,
		Notifier:  notify.Multi{notify.Log{Logger: log}, notify.NewOutbox(cfg.Resolve(cfg.Outbox))},
		Composer:  composer,
		Clock:     d.clock,
		Config:    cfg.Reminders,
		Log:       log,
	}, nil
}

func (d *deps) intake() *intake.Intake {
	return &intake.Intake{
		Store:      d.store,
		Zones:      d.directory,
		Normalizer: timefix.New(),
		Clock:      d.clock,
		Log:        log,
	}
}
