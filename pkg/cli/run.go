package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/harrisonrobin/tasknudge/pkg/reconcile"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconcile, reminder and pull loops until interrupted",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDeps()
	if err != nil {
		return err
	}
	engine, err := d.engine()
	if err != nil {
		return err
	}
	scheduler, err := d.scheduler()
	if err != nil {
		return err
	}
	scheduler.OnExpire = func(ctx context.Context) {
		go engine.Trigger(ctx)
	}

	var puller *reconcile.Puller
	if cfg.Reconcile.PullInterval > 0 {
		if puller, err = d.puller(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		engine.Run(ctx, cfg.Reconcile.Interval)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	if puller != nil {
		g.Go(func() error {
			puller.Run(ctx, cfg.Reconcile.PullInterval)
			return nil
		})
	}

	log.Infow("tasknudge: running", "tasks", cfg.Resolve(cfg.TasksFile), "pull_interval", cfg.Reconcile.PullInterval)
	err = g.Wait()
	log.Infow("tasknudge: stopped")
	return err
}
