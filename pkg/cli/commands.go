package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/harrisonrobin/tasknudge/pkg/config"
	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/util"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass against Google Tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		engine, err := d.engine()
		if err != nil {
			return err
		}
		stats := engine.Pass(cmd.Context())
		fmt.Printf("created %d, updated %d, completed %d, deleted %d, expired %d, repaired %d, failed %d\n",
			stats.Created, stats.Updated, stats.Completed, stats.Deleted, stats.Expired, stats.Repaired, stats.Failed)
		return nil
	},
}

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Evaluate reminders and the daily summary once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		scheduler, err := d.scheduler()
		if err != nil {
			return err
		}
		if engine, err := d.engine(); err != nil {
			log.Warnw("remind: remote unavailable, passed tasks sync on the next reconcile", "error", err)
		} else {
			scheduler.OnExpire = func(ctx context.Context) { engine.Trigger(ctx) }
		}
		scheduler.Tick(cmd.Context(), d.clock.Now())
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Import tasks created directly in Google Tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		puller, err := d.puller()
		if err != nil {
			return err
		}
		n, err := puller.Pull(cmd.Context())
		fmt.Printf("imported %d tasks\n", n)
		return err
	},
}

var applySync bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply task changes read from stdin as JSON lines",
	Long: `Reads one JSON object per line from stdin, for example:

  {"op":"upsert","owner":"42","title":"Dentist","due":"tomorrow at 10am"}
  {"op":"delete","owner":"42","remote_id":"abc"}
  {"op":"complete","owner":"42","title":"Dentist"}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		n, err := d.intake().ApplyAll(os.Stdin)
		if err != nil {
			return err
		}
		fmt.Printf("applied %d changes\n", n)

		if !applySync || n == 0 {
			return nil
		}
		engine, err := d.engine()
		if err != nil {
			return err
		}
		engine.Trigger(cmd.Context())
		return nil
	},
}

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list <owner>",
	Short: "List an owner's tasks by due time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		owner := model.NormalizeOwner(args[0])
		loc, _ := d.directory.Location(owner)
		rows := d.store.ListForOwner(owner, listLimit)
		fmt.Println(util.SummarizeTasks(fmt.Sprintf("Tasks for %s:", owner), rows, loc))
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage registered users",
}

var userTzCmd = &cobra.Command{
	Use:   "tz <owner> <zone>",
	Short: "Register an owner's IANA time zone",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		if err := d.directory.Register(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Time zone for %s set to: %s\n", model.NormalizeOwner(args[0]), args[1])
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token <owner> <refresh-token>",
	Short: "Store an owner's Google refresh token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		if err := d.directory.SetRefreshToken(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Refresh token stored for %s\n", model.NormalizeOwner(args[0]))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tasknudge configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Settings(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		data, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Printf("# %s\n%s", configPath, data)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Set(configPath, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s set to: %s\n", args[0], args[1])
		return nil
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Maintain the reminder ledgers",
}

var ledgerPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop reminder records of tasks that are no longer active",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		scheduler, err := d.scheduler()
		if err != nil {
			return err
		}
		removed, err := scheduler.Prune()
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d records, %d kept\n", removed, scheduler.Reminders.Len())
		return nil
	},
}

func init() {
	applyCmd.Flags().BoolVar(&applySync, "sync", false, "Run a reconciliation pass afterwards")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Show at most n tasks (0 for all)")

	userCmd.AddCommand(userTzCmd)
	userCmd.AddCommand(userTokenCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	ledgerCmd.AddCommand(ledgerPruneCmd)
}
