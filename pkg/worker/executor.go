package worker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// launchFailureExitCode is recorded when the shell itself could not be
// started, mirroring the shell convention for "command not found".
const launchFailureExitCode = 127

// Outcome is the observed result of one command execution.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// LaunchError describes a failure to start the child at all. The exit
	// code is synthesized in that case and no output was captured.
	LaunchError string
}

// Failed reports whether the attempt counts as a failure for the retry
// policy.
func (o Outcome) Failed() bool {
	return o.ExitCode != 0 || o.LaunchError != ""
}

// ErrorText returns what belongs in the job's last_error: the launch
// failure description, or the captured stderr.
func (o Outcome) ErrorText() string {
	if o.LaunchError != "" {
		return o.LaunchError
	}
	return o.Stderr
}

// Executor runs one job command to completion.
type Executor interface {
	Execute(ctx context.Context, command string) Outcome
}

// ShellExecutor hands commands to a shell so pipes and redirection work.
type ShellExecutor struct {
	// Shell is the interpreter binary, invoked as `<shell> -c <command>`.
	Shell string
	// OutputLimit caps captured stdout and stderr; only the most recent
	// bytes are kept.
	OutputLimit int
}

// Execute runs the command and waits for it to finish. The context is
// deliberately not used to kill the child: a draining worker lets the
// in-flight command run to completion.
func (e *ShellExecutor) Execute(_ context.Context, command string) Outcome {
	stdout := &tailBuffer{limit: e.OutputLimit}
	stderr := &tailBuffer{limit: e.OutputLimit}

	cmd := exec.Command(e.Shell, "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return Outcome{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Outcome{
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}
	}

	return Outcome{
		ExitCode:    launchFailureExitCode,
		LaunchError: fmt.Sprintf("failed to launch command: %v", err),
	}
}

// tailBuffer keeps the most recent limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.limit <= 0 {
		return n, nil
	}
	if len(p) >= b.limit {
		b.buf = append(b.buf[:0], p[len(p)-b.limit:]...)
		return n, nil
	}
	if over := len(b.buf) + len(p) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
