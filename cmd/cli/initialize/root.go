package initialize

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/pkg/config"
)

var writeConfig string

var Cmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the queue database and worker registry",
	Long: `Initialize the queue database and worker registry.

This command performs the following operations:
  - Creates the queue database and installs its schema
  - Enables write-ahead logging so readers do not block the dispatch lock
  - Creates the worker registry directory
  - Optionally writes a config file with the built-in defaults (--write-config)

Running init again is harmless: schema installation is idempotent and an
existing config file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: doInit,
}

func init() {
	Cmd.Flags().StringVar(&writeConfig, "write-config", "", "Write a default config file to this path")
}

func doInit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	s, err := cliutil.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("closing queue database: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queue database ready at %s\n", cfg.DB)

	if _, err := cliutil.Mkdirp(cfg.RegistryDir); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "worker registry at %s\n", cfg.RegistryDir)

	if writeConfig != "" {
		written, err := config.WriteDefault(writeConfig)
		if err != nil {
			return err
		}
		if written {
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", writeConfig)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "config %s already exists, left unchanged\n", writeConfig)
		}
	}
	return nil
}
