package worker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
	"github.com/storacha/queuectl/pkg/registry"
	"github.com/storacha/queuectl/pkg/supervisor"
)

var (
	startCount  int
	startLogDir string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Spawn detached worker processes",
	Long: `Spawn detached worker processes.
Each worker runs in its own session and keeps going after the terminal
closes. Process ids land in the registry so a later stop can find them,
and every worker writes its own log file under the log directory.`,
	Args: cobra.NoArgs,
	RunE: doStart,
}

func init() {
	startCmd.Flags().IntVar(&startCount, "count", 1, "Number of workers to spawn")
	startCmd.Flags().StringVar(&startLogDir, "log-dir", filepath.Join(os.TempDir(), "queuectl_logs"), "Directory receiving one log file per worker")
	Cmd.AddCommand(startCmd)
}

func doStart(cmd *cobra.Command, _ []string) error {
	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	args := []string{"worker", "run", "--db", cfg.DB, "--registry-dir", cfg.RegistryDir}
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		args = append(args, "--config", configFile)
	}

	sup := supervisor.New(registry.New(cfg.RegistryDir), supervisor.Config{
		Args:   args,
		LogDir: startLogDir,
	})

	entries, err := sup.Start(startCount)
	if err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}

	for _, entry := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "worker %s started, pid %d\n", entry.WorkerID, entry.PID)
	}
	return nil
}
