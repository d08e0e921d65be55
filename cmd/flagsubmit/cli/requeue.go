package cli

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-flagsubmit/pkg/submitter"
	"github.com/spf13/cobra"
)

var requeueAll bool

func init() {
	requeueCmd.Flags().BoolVar(&requeueAll, "all", false, "requeue every flag in error")
	rootCmd.AddCommand(requeueCmd)
}

var requeueCmd = &cobra.Command{
	Use:   "requeue [flag...]",
	Short: "Move flags in error back to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !requeueAll && len(args) == 0 {
			return errors.New("pass flag values or --all")
		}
		ctx := cmd.Context()
		module, _, err := openModule(ctx, submitter.ModuleOptions{})
		if err != nil {
			return err
		}
		defer module.Close()

		moved, err := module.Requeue(ctx, args, requeueAll)
		fmt.Fprintf(cmd.OutOrStdout(), "%d flags requeued\n", moved)
		return err
	},
}
