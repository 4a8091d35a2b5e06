package config

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/pkg/qconfig"
)

var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage queue configuration",
	Long: `Manage queue configuration stored alongside the jobs.
Recognized keys:
  max_retries   non-negative integer, default 3
  backoff_base  integer >= 1, default 2
Workers read values fresh on every use, so a change applies to the next
enqueue or failure without a restart.`,
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  doSet,
}

func init() {
	Cmd.AddCommand(setCmd)
}

func doSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	key := args[0]
	value := args[1]

	settings, closer, err := openSettings(ctx)
	if err != nil {
		return err
	}
	defer closer()

	if err := settings.Set(ctx, key, value); err != nil {
		return fmt.Errorf("updating config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
	return nil
}

func openSettings(ctx context.Context) (*qconfig.Settings, func() error, error) {
	cfg, err := cliutil.LoadApp()
	if err != nil {
		return nil, nil, err
	}

	s, err := cliutil.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return qconfig.New(s), s.Close, nil
}
