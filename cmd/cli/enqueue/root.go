package enqueue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storacha/queuectl/cmd/cliutil"
)

var Cmd = &cobra.Command{
	Use:   "enqueue <json>",
	Short: "Add a job to the queue",
	Long: `Add a job to the queue.
The argument is a JSON object with exactly two fields, both required:
  queuectl enqueue '{"id": "report-1", "command": "make report"}'
The job becomes eligible immediately and snapshots the current max_retries
setting. Job ids are unique for the lifetime of the queue.`,
	Args: cobra.ExactArgs(1),
	RunE: doEnqueue,
}

type request struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

func doEnqueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dec := json.NewDecoder(strings.NewReader(args[0]))
	dec.DisallowUnknownFields()

	var req request
	if err := dec.Decode(&req); err != nil {
		return fmt.Errorf("parsing job JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("parsing job JSON: unexpected trailing data")
	}
	if req.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if req.Command == "" {
		return fmt.Errorf("job command is required")
	}

	cfg, err := cliutil.LoadApp()
	if err != nil {
		return err
	}

	s, err := cliutil.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	job, err := s.CreateJob(ctx, req.ID, req.Command)
	if err != nil {
		return fmt.Errorf("enqueuing job: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "job %s enqueued\n", job.ID)
	return nil
}
