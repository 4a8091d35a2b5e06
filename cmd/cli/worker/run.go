package worker

import (
	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/pkg/registry"
	"github.com/storacha/queuectl/pkg/worker"
)

var runID string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single worker in the foreground",
	Long: `Run a single worker in the foreground.
This is what worker start executes in each detached process, but it is
also handy on its own for debugging: the worker logs to the terminal
and a SIGINT drains it gracefully.`,
	Args: cobra.NoArgs,
	RunE: doRun,
}

func init() {
	runCmd.Flags().StringVar(&runID, "id", "", "Worker id (assigned by worker start, generated when empty)")
	Cmd.AddCommand(runCmd)
}

func doRun(cmd *cobra.Command, _ []string) error {
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

	h, err := cliutil.OpenHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	opts := []worker.Option{
		worker.WithExecutor(&worker.ShellExecutor{
			Shell:       cfg.Worker.Shell,
			OutputLimit: cfg.Worker.StderrLimit,
		}),
		worker.WithPollInterval(cfg.Worker.PollInterval),
		worker.WithRegistry(registry.New(cfg.RegistryDir)),
		worker.WithHistory(h),
	}
	if runID != "" {
		opts = append(opts, worker.WithID(runID))
	}

	return worker.New(s, opts...).Run(ctx)
}
