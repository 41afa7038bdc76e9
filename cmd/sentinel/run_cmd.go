package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/sentinel/internal/action"
	"github.com/Mindburn-Labs/sentinel/internal/adapter"
)

// runRunCmd implements `sentinel run`: preflights plus the full gate
// pipeline including the rate limiter, dispatching the proposal's
// requested adapter on success. Once the proposal reaches the gate
// pipeline an audit entry is appended whether it is allowed, denied, or
// fails in dispatch; a run that stops at a preflight check or before
// validation appends none.
func runRunCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	paths := registerGovernanceFlags(cmd, true)

	var shellTimeoutSec int
	cmd.IntVar(&shellTimeoutSec, "shell-timeout-sec", 0, "Wall-clock timeout for the shell adapter (0 uses the built-in default, capped by policy)")

	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if paths.Proposal == "" {
		fmt.Fprintln(stderr, "sentinel run: --proposal is required")
		return 1
	}

	shell := adapter.ShellAdapter{}
	if shellTimeoutSec > 0 {
		shell.Timeout = time.Duration(shellTimeoutSec) * time.Second
	}

	result, code := action.Run(*paths, shell)
	printResult(stdout, result)
	return code
}
