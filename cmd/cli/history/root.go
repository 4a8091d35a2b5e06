package history

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/cmd/cliutil/format"
)

var outputFormat string

var Cmd = &cobra.Command{
	Use:   "history <job-id>",
	Short: "Show the execution history of a job",
	Long: `Show every recorded execution of a job: attempt number, outcome,
exit code, duration, and which worker ran it. History lives in its own
database next to the queue, so it survives DLQ requeues.`,
	Args: cobra.ExactArgs(1),
	RunE: doHistory,
}

func init() {
	Cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table or json")
}

func doHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobID := args[0]

	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	h, err := cliutil.OpenHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	records, err := h.ForJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reading history for %s: %w", jobID, err)
	}

	outFormat, err := format.ParseOutputFormat(outputFormat)
	if err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}

	formatter := format.NewFormatter(outFormat, cmd.OutOrStdout())
	if err := formatter.Format(records); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	return nil
}
