package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-flagsubmit/internal/telemetry"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/logger"
	"github.com/goliatone/go-flagsubmit/pkg/submitter"
	"github.com/spf13/cobra"
)

func init() {
	f := runCmd.Flags()
	f.Bool("single-run", false, "run one cycle and exit")
	f.Duration("interval", 0, "time between cycles")
	f.Float64("flags-quota", 0, "maximum flags submitted per second")
	f.Int("max-attempts", 0, "move a flag to error after this many retryable failures")
	f.Bool("telemetry", false, "enable OpenTelemetry metrics")
	f.Bool("telemetry-stdout", false, "print metrics to stdout")

	bindLocal(runCmd, "scheduler.single_run", "single-run")
	bindLocal(runCmd, "scheduler.interval", "interval")
	bindLocal(runCmd, "submission.flags_quota", "flags-quota")
	bindLocal(runCmd, "submission.max_attempts", "max-attempts")
	bindLocal(runCmd, "telemetry.enabled", "telemetry")
	bindLocal(runCmd, "telemetry.stdout", "telemetry-stdout")

	rootCmd.AddCommand(runCmd)
}

func bindLocal(cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit pending flags on a schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lgr := newLogger(cfg)

		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Telemetry.Enabled,
			Stdout:      cfg.Telemetry.Stdout,
			ServiceName: "flagsubmit",
			Logger:      lgr,
		})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				lgr.Warn("telemetry shutdown failed", logger.F("error", err))
			}
		}()

		module, err := submitter.NewModule(ctx, submitter.ModuleOptions{
			Config: cfg,
			Logger: lgr,
		})
		if err != nil {
			return err
		}
		defer module.Close()

		lgr.Info("flagsubmit starting",
			logger.F("version", Version),
			logger.F("endpoint", cfg.Submission.URL),
			logger.F("interval", cfg.Scheduler.Interval),
			logger.F("single_run", cfg.Scheduler.SingleRun),
			logger.F("flags_quota", cfg.Submission.FlagsQuota),
		)
		err = module.Run(ctx)
		lgr.Info("flagsubmit stopped")
		return err
	},
}
