package dlq

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/cmd/cliutil/format"
	"github.com/storacha/queuectl/pkg/store"
)

var Cmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and requeue dead jobs",
	Long: `Inspect and requeue dead jobs.
A job lands here after exhausting its retry budget. It keeps the last
error and exit code from its final attempt until an explicit retry.`,
}

var outputFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs that exhausted their retry budget",
	Args:  cobra.NoArgs,
	RunE:  doList,
}

func init() {
	listCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table or json")
	Cmd.AddCommand(listCmd)
}

func doList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	s, err := cliutil.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	jobs, err := s.ListByState(ctx, store.StateDead)
	if err != nil {
		return fmt.Errorf("listing dead jobs: %w", err)
	}

	outFormat, err := format.ParseOutputFormat(outputFormat)
	if err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}

	formatter := format.NewFormatter(outFormat, cmd.OutOrStdout())
	if err := formatter.Format(jobs); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	return nil
}
