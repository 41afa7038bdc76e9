package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/sentinel/internal/action"
)

// runVerifyCmd implements `sentinel verify`: preflights plus the full gate
// pipeline, with no adapter dispatch and no audit entry.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	paths := registerGovernanceFlags(cmd, true)

	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if paths.Proposal == "" {
		fmt.Fprintln(stderr, "sentinel verify: --proposal is required")
		return 1
	}

	result, code := action.Verify(*paths)
	printResult(stdout, result)
	return code
}
