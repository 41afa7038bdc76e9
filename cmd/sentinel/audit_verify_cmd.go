package main

import (
	"flag"
	"io"

	"github.com/Mindburn-Labs/sentinel/internal/action"
)

// runAuditVerifyCmd implements `sentinel audit-verify`: re-derives the
// audit ledger's hash chain and reports whether it is intact.
func runAuditVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit-verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	paths := registerGovernanceFlags(cmd, false)

	var failFast bool
	var maxEntries int
	cmd.BoolVar(&failFast, "fail-fast", false, "Stop at the first broken link or hash mismatch")
	cmd.IntVar(&maxEntries, "max-entries", 0, "Limit verification to the first N entries (0 means no limit)")

	if err := cmd.Parse(args); err != nil {
		return 1
	}

	result, code := action.AuditVerify(*paths, action.AuditVerifyOptions{
		FailFast:   failFast,
		MaxEntries: maxEntries,
	})
	printResult(stdout, result)
	return code
}
