package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/Mindburn-Labs/sentinel/internal/action"
)

// newLogger constructs the one *slog.Logger this invocation threads down
// into every component that performs I/O, per the teacher's
// cmd/helm/main.go (logger := slog.Default()) convention: built once at
// the entrypoint, never reached for as a package-level global downstream.
func newLogger() *slog.Logger {
	return slog.Default()
}

// registerGovernanceFlags wires the shared file-path flags onto cmd and
// returns the Paths it will populate once cmd.Parse runs. Defaults match
// the config/ and data/ directory layout fixed by the on-disk state and
// config layout.
func registerGovernanceFlags(cmd *flag.FlagSet, proposalRequired bool) *action.Paths {
	p := &action.Paths{Logger: newLogger()}

	if proposalRequired {
		cmd.StringVar(&p.Proposal, "proposal", "", "Path to the proposal JSON file (REQUIRED)")
	}
	cmd.StringVar(&p.Policy, "policy", "config/policy.default.json", "Path to the policy document")
	cmd.StringVar(&p.PolicySig, "policy-sig", "config/policy.sig.json", "Path to the policy signature envelope")
	cmd.StringVar(&p.Keys, "keys", "config/keys.json", "Path to the trusted key store")
	cmd.StringVar(&p.NonceState, "nonce-state", "data/nonce.db.json", "Path to the nonce store state")
	cmd.StringVar(&p.RateLimitState, "rate-limit-state", "data/rate-limit.db.json", "Path to the rate-limit store state")
	cmd.StringVar(&p.VersionState, "version-state", "data/policy.state.json", "Path to the policy-version state")
	cmd.StringVar(&p.AuditLog, "audit-log", "data/audit.log.jsonl", "Path to the audit ledger")
	cmd.BoolVar(&p.UnsignedPolicyOK, "unsigned-policy-ok", false, "Allow a missing policy signature envelope (dev only)")

	return p
}

// printResult emits an action.Output as a single JSON object to out,
// matching the structured-output contract every action follows.
func printResult(out io.Writer, result action.Output) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(out, `{"status":"error","error":"INTERNAL_ERROR","message":%q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(out, string(data))
}
