package worker

import (
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "worker",
	Short: "Manage the worker fleet",
	Long: `Manage the worker fleet.
Workers are independent processes sharing the queue database. Each one
claims jobs atomically, runs them through the shell, and applies the
retry policy. Start detaches workers from the terminal; stop signals
them to finish their current job and exit.`,
}
