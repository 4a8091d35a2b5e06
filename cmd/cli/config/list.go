package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil/format"
	"github.com/storacha/queuectl/pkg/qconfig"
)

var outputFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	Args:  cobra.NoArgs,
	RunE:  doList,
}

func init() {
	listCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table or json")
	Cmd.AddCommand(listCmd)
}

func doList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	settings, closer, err := openSettings(ctx)
	if err != nil {
		return err
	}
	defer closer()

	values, err := settings.All(ctx)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	entries := make([]format.ConfigEntry, 0, len(values))
	for _, key := range qconfig.Keys() {
		entries = append(entries, format.ConfigEntry{Key: string(key), Value: values[key]})
	}

	outFormat, err := format.ParseOutputFormat(outputFormat)
	if err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}

	formatter := format.NewFormatter(outFormat, cmd.OutOrStdout())
	if err := formatter.Format(entries); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	return nil
}
