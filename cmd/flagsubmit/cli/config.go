package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/goliatone/go-flagsubmit/pkg/config"
	"github.com/goliatone/go-flagsubmit/pkg/secrets"
	"github.com/spf13/cobra"
)

var configForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "flagsubmit.toml"
		if len(args) == 1 {
			path = args[0]
		}
		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if configForce {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		f, err := os.OpenFile(path, flags, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()

		defaults := config.Defaults()
		defaults.Submission.URL = "http://10.10.0.1:8080/flags"
		defaults.Submission.Token = "change-me"
		if err := toml.NewEncoder(f).Encode(defaults); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Submission.Token = secrets.MaskToken(cfg.Submission.Token)
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}
