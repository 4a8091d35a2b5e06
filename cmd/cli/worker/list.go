package worker

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/cmd/cliutil/format"
	"github.com/storacha/queuectl/pkg/registry"
)

var outputFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live workers",
	Long: `List live workers.
Entries whose process no longer exists are reaped from the registry as
a side effect, so the output reflects the OS process table.`,
	Args: cobra.NoArgs,
	RunE: doList,
}

func init() {
	listCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table or json")
	Cmd.AddCommand(listCmd)
}

func doList(cmd *cobra.Command, _ []string) error {
	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	workers, err := registry.New(cfg.RegistryDir).Live()
	if err != nil {
		return fmt.Errorf("reading worker registry: %w", err)
	}

	outFormat, err := format.ParseOutputFormat(outputFormat)
	if err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}

	formatter := format.NewFormatter(outFormat, cmd.OutOrStdout())
	if err := formatter.Format(workers); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	return nil
}
