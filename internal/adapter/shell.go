package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

const (
	defaultShellTimeout = 30 * time.Second
	maxShellOutputBytes = 1 << 20 // 1 MiB
)

// ShellAdapter runs a command via os/exec under a bounded timeout and
// output cap. Command/argument allowlisting is the policy engine's
// responsibility, enforced before dispatch is ever reached; this adapter
// only bounds blast radius of whatever it is handed.
type ShellAdapter struct {
	// Timeout bounds how long the command may run; zero uses
	// defaultShellTimeout. A policy's maxShellTimeoutSec may only shrink
	// this, never extend it.
	Timeout time.Duration
}

// ShellResult is the fixed output shape of the shell adapter (spec
// §4.12): {adapter, status, output|error, exitCode}, with stdout/stderr
// kept separate since both are useful to a caller inspecting a denied or
// failed command.
type ShellResult struct {
	Adapter   string `json:"adapter"`
	Status    string `json:"status"`
	Command   string `json:"command"`
	ExitCode  int    `json:"exitCode"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (a ShellAdapter) Dispatch(ctx context.Context, p *proposal.Proposal) (interface{}, error) {
	if p.Payload.Command == "" {
		return nil, fmt.Errorf("shell: missing command")
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.Payload.Command, p.Payload.Args...)
	// Never forward the ambient environment: every value a shell command
	// could see must come from the allowlisted args, not leak through env.
	cmd.Env = []string{}

	var stdoutBuf, stderrBuf bytes.Buffer
	truncated := false

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("shell: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("shell: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("shell: start: %w", err)
	}

	if n, copyErr := io.Copy(&stdoutBuf, io.LimitReader(stdoutPipe, maxShellOutputBytes)); copyErr == nil && n == maxShellOutputBytes {
		truncated = true
	}
	if n, copyErr := io.Copy(&stderrBuf, io.LimitReader(stderrPipe, maxShellOutputBytes)); copyErr == nil && n == maxShellOutputBytes {
		truncated = true
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("shell: command timed out after %s", timeout)
		} else {
			return nil, fmt.Errorf("shell: wait: %w", waitErr)
		}
	}

	status := "completed"
	if exitCode != 0 {
		status = "failed"
	}
	return ShellResult{
		Adapter:   "shell",
		Status:    status,
		Command:   p.Payload.Command,
		ExitCode:  exitCode,
		Output:    stdoutBuf.String(),
		Error:     stderrBuf.String(),
		Truncated: truncated,
	}, nil
}
