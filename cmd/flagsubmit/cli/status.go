package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/goliatone/go-flagsubmit/pkg/domain"
	"github.com/goliatone/go-flagsubmit/pkg/interfaces/store"
	"github.com/goliatone/go-flagsubmit/pkg/submitter"
	"github.com/spf13/cobra"
)

var (
	statusList   string
	statusLimit  int
	statusDetail string
)

func init() {
	statusCmd.Flags().StringVar(&statusList, "list", "", "list flags with this status")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum flags listed")
	statusCmd.Flags().StringVar(&statusDetail, "flag", "", "show the submission history of one flag")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show flag counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		module, _, err := openModule(ctx, submitter.ModuleOptions{})
		if err != nil {
			return err
		}
		defer module.Close()

		out := cmd.OutOrStdout()
		if statusDetail != "" {
			attempts, err := module.Attempts(ctx, statusDetail)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tOUTCOME\tCODE\tLATENCY\tMESSAGE")
			for _, a := range attempts {
				fmt.Fprintf(w, "%s\t%s\t%d\t%dms\t%s\n",
					a.CreatedAt.Format("15:04:05"), colorOutcome(a.Outcome), a.StatusCode, a.LatencyMS, a.Message)
			}
			return w.Flush()
		}

		status, err := module.Status(ctx)
		if err != nil {
			return err
		}
		cyan := color.New(color.FgCyan).SprintFunc()
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, s := range domain.FlagStatuses {
			fmt.Fprintf(w, "%s\t%d\n", colorStatus(s), status.Counts[s])
		}
		fmt.Fprintf(w, "%s\t%d\n", cyan("total"), status.Total)
		if err := w.Flush(); err != nil {
			return err
		}

		if statusList == "" {
			return nil
		}
		list, err := module.Flags(ctx, store.ListOptions{
			Status: domain.FlagStatus(statusList),
			Limit:  statusLimit,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FLAG\tGROUP\tATTEMPTS\tMESSAGE")
		for _, f := range list.Items {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.Value, f.Group, f.Attempts, f.ServerMessage)
		}
		return w.Flush()
	},
}

func colorStatus(s domain.FlagStatus) string {
	switch s {
	case domain.FlagStatusAccepted:
		return color.GreenString(string(s))
	case domain.FlagStatusRejected, domain.FlagStatusError:
		return color.RedString(string(s))
	case domain.FlagStatusDuplicate:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func colorOutcome(o domain.Outcome) string {
	return colorStatus(domain.StatusForOutcome(o))
}
