package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/advisor"
	"github.com/harrisonrobin/tasknudge/pkg/remind"
	"github.com/spf13/viper"
)

const (
	xdgAppName = "tasknudge"
	configFile = "config.yaml"
	envPrefix  = "TASKNUDGE"
)

type Config struct {
	DataDir         string `mapstructure:"data_dir"`
	TasksFile       string `mapstructure:"tasks_file"`
	DirectoryFile   string `mapstructure:"directory_file"`
	RemindersLedger string `mapstructure:"reminders_ledger"`
	SummaryLedger   string `mapstructure:"summary_ledger"`
	Outbox          string `mapstructure:"outbox"`

	Reminders remind.Config  `mapstructure:"reminders"`
	Reconcile Reconcile      `mapstructure:"reconcile"`
	Google    Google         `mapstructure:"google"`
	Advisor   advisor.Config `mapstructure:"advisor"`
	Log       Log            `mapstructure:"log"`
}

type Reconcile struct {
	Interval      time.Duration `mapstructure:"interval"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
	PullInterval  time.Duration `mapstructure:"pull_interval"`
}

type Google struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TaskList        string `mapstructure:"task_list"`
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func GetConfigPath() (string, error) {
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName, configFile), nil
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("tasks_file", "tasks.csv")
	v.SetDefault("directory_file", "database.json")
	v.SetDefault("reminders_ledger", "reminders.jsonl")
	v.SetDefault("summary_ledger", "summaries.jsonl")
	v.SetDefault("outbox", "outbox.jsonl")

	v.SetDefault("reminders.thresholds", remind.DefaultThresholds)
	v.SetDefault("reminders.interval", remind.DefaultInterval)
	v.SetDefault("reminders.tolerance", remind.DefaultTolerance)
	v.SetDefault("reminders.anchor", remind.DefaultAnchor)
	v.SetDefault("reminders.summary_window", remind.DefaultSummaryWindow)
	v.SetDefault("reminders.compose_timeout", remind.DefaultComposeTimeout)

	v.SetDefault("reconcile.interval", time.Minute)
	v.SetDefault("reconcile.remote_timeout", 15*time.Second)
	v.SetDefault("reconcile.pull_interval", 0)

	v.SetDefault("google.credentials_file", "")
	v.SetDefault("google.task_list", "@default")

	v.SetDefault("advisor.enabled", false)
	v.SetDefault("advisor.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("advisor.model", "openai/gpt-4o-mini")
	v.SetDefault("advisor.api_key", "")
	v.SetDefault("advisor.timeout", advisor.DefaultTimeout)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, filepath.Dir(path))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		return nil, err
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return v, nil
}

// Load reads the config file at path, which may be missing, with
// TASKNUDGE_* environment variables taking precedence.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Reminders.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve returns name as a path inside DataDir unless it is absolute.
func (c *Config) Resolve(name string) string {
	if filepath.IsAbs(name) || name == "" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Settings returns every effective setting as a nested map, with the
// advisor API key masked.
func Settings(path string) (map[string]any, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	if v.GetString("advisor.api_key") != "" {
		v.Set("advisor.api_key", "********")
	}
	return v.AllSettings(), nil
}

var ErrUnknownKey = errors.New("unknown config key")

// Set persists one key to the config file at path, keeping whatever else
// the file already holds.
func Set(path, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	known := viper.New()
	setDefaults(known, "")
	if !slices.Contains(known.AllKeys(), key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0600)
}
