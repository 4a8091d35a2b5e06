package config

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  doGet,
}

func init() {
	Cmd.AddCommand(getCmd)
}

func doGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	key := args[0]

	settings, closer, err := openSettings(ctx)
	if err != nil {
		return err
	}
	defer closer()

	value, err := settings.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
