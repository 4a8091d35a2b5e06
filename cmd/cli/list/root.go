package list

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/cmd/cliutil/format"
	"github.com/storacha/queuectl/pkg/store"
)

var (
	stateFilter  string
	outputFormat string
)

var Cmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs in a given state",
	Long: `List jobs in a given state, ordered by enqueue time.
Examples:
  queuectl list --state pending
  queuectl list --state dead --format json`,
	Args: cobra.NoArgs,
	RunE: doList,
}

func init() {
	Cmd.Flags().StringVar(&stateFilter, "state", "", "Job state: pending, processing, completed, or dead")
	cobra.CheckErr(Cmd.MarkFlagRequired("state"))
	Cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table or json")
}

func doList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	state, err := store.ParseState(stateFilter)
	if err != nil {
		return err
	}

	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	s, err := cliutil.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	jobs, err := s.ListByState(ctx, state)
	if err != nil {
		return fmt.Errorf("listing %s jobs: %w", state, err)
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
