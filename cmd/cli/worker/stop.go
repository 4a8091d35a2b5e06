package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/pkg/registry"
	"github.com/storacha/queuectl/pkg/supervisor"
)

var (
	stopWait    bool
	stopTimeout time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal all registered workers to shut down",
	Long: `Signal all registered workers to shut down.
Each worker finishes the job it is running before exiting, so stop
returns before the fleet is necessarily gone. Pass --wait to block
until the signaled processes have left the process table. Workers that
already died are unregistered and counted as stopped.`,
	Args: cobra.NoArgs,
	RunE: doStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopWait, "wait", false, "Block until the signaled workers exit")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "Give up waiting after this long")
	Cmd.AddCommand(stopCmd)
}

func doStop(cmd *cobra.Command, _ []string) error {
	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	sup := supervisor.New(registry.New(cfg.RegistryDir), supervisor.Config{})

	stopped, err := sup.Stop()
	if err != nil {
		return fmt.Errorf("stopping workers: %w", err)
	}
	if len(stopped) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no workers running")
		return nil
	}

	for _, entry := range stopped {
		fmt.Fprintf(cmd.OutOrStdout(), "worker %s signaled, pid %d\n", entry.WorkerID, entry.PID)
	}
	if !stopWait {
		return nil
	}

	pids := lo.Map(stopped, func(e registry.Entry, _ int) int { return e.PID })

	bar := progressbar.NewOptions64(
		int64(len(pids)),
		progressbar.OptionSetWriter(cmd.OutOrStdout()),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("Draining workers"),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), "\n")
		}),
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), stopTimeout)
	defer cancel()

	err = sup.Wait(ctx, pids, 250*time.Millisecond, func(remaining int) {
		_ = bar.Set(len(pids) - remaining)
	})
	if err != nil {
		return fmt.Errorf("waiting for workers to exit: %w", err)
	}
	return nil
}
