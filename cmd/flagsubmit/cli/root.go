package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-flagsubmit/pkg/config"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	"github.com/goliatone/go-flagsubmit/pkg/submitter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set by main at build time.
var Version = "dev"

const envPrefix = "FLAGSUBMIT"

// settingKeys are the config keys that may be overridden from the environment,
// e.g. FLAGSUBMIT_SUBMISSION_URL.
var settingKeys = []string{
	"storage.driver",
	"storage.dsn",
	"submission.url",
	"submission.token",
	"submission.method",
	"submission.format",
	"submission.token_field",
	"submission.flag_field",
	"submission.token_header",
	"submission.content_type",
	"submission.body_template",
	"submission.timeout",
	"submission.flags_quota",
	"submission.max_attempts",
	"submission.batch_size",
	"submission.insecure_skip_verify",
	"scheduler.interval",
	"scheduler.single_run",
	"scheduler.max_consecutive_failures",
	"rate_limit.base_delay",
	"rate_limit.max_delay",
	"rate_limit.abort_after",
	"ingest.flag_pattern",
	"logging.level",
	"telemetry.enabled",
	"telemetry.stdout",
}

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "flagsubmit",
	Short:         "flagsubmit submits captured CTF flags to a scoring endpoint",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "path to a TOML config file")
	pf.String("url", "", "scoring endpoint URL")
	pf.String("token", "", "team token")
	pf.String("db", "", "SQLite database path")
	pf.String("driver", "", "storage driver (sqlite, memory)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	mustBind("submission.url", "url")
	mustBind("submission.token", "token")
	mustBind("storage.dsn", "db")
	mustBind("storage.driver", "driver")
	mustBind("logging.level", "log-level")

	rootCmd.Version = Version
}

func mustBind(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind %s: %v", flag, err))
	}
}

// Execute runs the root command.
func Execute() error {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// loadConfig merges defaults, the config file, FLAGSUBMIT_* environment and
// flags. Defaults are registered with viper so unset flags never override
// them and an explicit 0 survives.
func loadConfig() (config.Config, error) {
	for key, value := range config.DefaultSettings() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range settingKeys {
		if err := v.BindEnv(key); err != nil {
			return config.Config{}, err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return config.Load(v.AllSettings())
}

func newLogger(cfg config.Config) logger.Logger {
	return logger.New(os.Stderr, logger.ParseLevel(cfg.Logging.Level))
}

// openModule loads configuration and assembles the submitter module.
func openModule(ctx context.Context, opts submitter.ModuleOptions) (*submitter.Module, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, config.Config{}, err
	}
	opts.Config = cfg
	if opts.Logger == nil {
		opts.Logger = newLogger(cfg)
	}
	module, err := submitter.NewModule(ctx, opts)
	if err != nil {
		return nil, cfg, err
	}
	return module, cfg, nil
}
