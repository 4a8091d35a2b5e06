package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/cmd/cliutil/format"
	"github.com/storacha/queuectl/pkg/registry"
)

var outputFormat string

var Cmd = &cobra.Command{
	Use:   "status",
	Short: "Show job counts per state and the live worker count",
	Args:  cobra.NoArgs,
	RunE:  doStatus,
}

func init() {
	Cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table or json")
}

func doStatus(cmd *cobra.Command, _ []string) error {
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

	summary, err := s.Summary(ctx)
	if err != nil {
		return fmt.Errorf("summarizing jobs: %w", err)
	}

	workers, err := registry.New(cfg.RegistryDir).Live()
	if err != nil {
		return fmt.Errorf("reading worker registry: %w", err)
	}

	outFormat, err := format.ParseOutputFormat(outputFormat)
	if err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}

	report := format.StatusReport{
		Pending:       summary.Pending,
		Processing:    summary.Processing,
		Completed:     summary.Completed,
		Dead:          summary.Dead,
		ActiveWorkers: len(workers),
	}

	formatter := format.NewFormatter(outFormat, cmd.OutOrStdout())
	if err := formatter.Format(report); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	return nil
}
