package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/sentinel/internal/action"
)

// runDryrunCmd implements `sentinel dryrun`: preflights plus the full gate
// pipeline, dispatching the noop adapter on success but never appending an
// audit entry.
func runDryrunCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("dryrun", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	paths := registerGovernanceFlags(cmd, true)

	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if paths.Proposal == "" {
		fmt.Fprintln(stderr, "sentinel dryrun: --proposal is required")
		return 1
	}

	result, code := action.Dryrun(*paths)
	printResult(stdout, result)
	return code
}
