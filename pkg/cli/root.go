package cli

import (
	"fmt"
	"os"

	"github.com/harrisonrobin/tasknudge/pkg/config"
	"github.com/harrisonrobin/tasknudge/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool
	rootCmd    *cobra.Command

	cfg *config.Config
	log *zap.SugaredLogger
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "tasknudge",
		Short: "Task reminders and Google Tasks sync for a chat assistant",
		Long: `tasknudge keeps an assistant's task list in step with Google Tasks and
nudges each user before their tasks are due, in their own time zone.`,
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/tasknudge/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// setup loads .env, the config file and the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	// Load .env file if present (don't error if missing)
	_ = godotenv.Load()

	if configPath == "" {
		path, err := config.GetConfigPath()
		if err != nil {
			return fmt.Errorf("could not find path to configuration file: %w", err)
		}
		configPath = path
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err = logging.New(level, cfg.Resolve(cfg.Log.File))
	return err
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(remindCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(ledgerCmd)

	rootCmd.Version = version
	err := rootCmd.Execute()
	if log != nil {
		log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
