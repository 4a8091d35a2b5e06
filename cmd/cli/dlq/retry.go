package dlq

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
)

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Requeue a dead job",
	Long: `Requeue a dead job as pending with a fresh retry budget.
Attempts reset to zero, the last error and exit code are cleared, and
the job becomes eligible immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: doRetry,
}

func init() {
	Cmd.AddCommand(retryCmd)
}

func doRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	s, err := cliutil.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RequeueDead(ctx, id); err != nil {
		return fmt.Errorf("requeuing job: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "job %s requeued\n", id)
	return nil
}
