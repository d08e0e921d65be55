package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/goliatone/go-flagsubmit/pkg/ingest"
	"github.com/goliatone/go-flagsubmit/pkg/submitter"
	"github.com/spf13/cobra"
)

var (
	ingestGroup string
	ingestFiles []string
)

func init() {
	ingestCmd.Flags().StringVarP(&ingestGroup, "group", "g", "", "label stored with the flags (exploit or target name)")
	ingestCmd.Flags().StringSliceVarP(&ingestFiles, "file", "f", nil, "read flags from file; - reads stdin")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [flag...]",
	Short: "Store captured flags as pending",
	Long:  "Store captured flags as pending. Flags come from arguments, --file, or stdin when neither is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		values := append([]string(nil), args...)
		files := ingestFiles
		if len(values) == 0 && len(files) == 0 {
			files = []string{"-"}
		}
		for _, path := range files {
			read, err := readValuesFrom(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			values = append(values, read...)
		}

		ctx := cmd.Context()
		module, _, err := openModule(ctx, submitter.ModuleOptions{})
		if err != nil {
			return err
		}
		defer module.Close()

		report, err := module.Ingest(ctx, values, ingestGroup)
		if err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s new, %d known, %s invalid\n",
			green(report.Inserted), report.Known, yellow(report.Invalid))
		return nil
	},
}

func readValuesFrom(stdin io.Reader, path string) ([]string, error) {
	if path == "-" {
		return ingest.ReadValues(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingest.ReadValues(f)
}
