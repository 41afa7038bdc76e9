// Command sentinel is the LetterBlack Sentinel governance-engine CLI: it
// gates a single proposed action per invocation through the validator
// pipeline and either dispatches it via an adapter or rejects it with a
// structured reason, per a fixed exit-code contract.
//
// Grounded on the teacher's cmd/helm/main.go dispatch shape (a thin
// switch over args[1] delegating to one runXCmd per subcommand, each
// parsing its own flag.FlagSet) and cmd/helm/verify_cmd.go (manual flag
// parsing, JSON-or-human output, explicit exit code return).
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint: it never calls os.Exit itself so tests
// can assert on the returned exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 1
	}

	switch args[1] {
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "dryrun":
		return runDryrunCmd(args[2:], stdout, stderr)
	case "run":
		return runRunCmd(args[2:], stdout, stderr)
	case "policy-sign":
		return runPolicySignCmd(args[2:], stdout, stderr)
	case "audit-verify":
		return runAuditVerifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "sentinel: unknown action %q\n", args[1])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "LetterBlack Sentinel — governance engine for agent proposals")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sentinel verify        --proposal <path> [governance flags]")
	fmt.Fprintln(w, "  sentinel dryrun        --proposal <path> [governance flags]")
	fmt.Fprintln(w, "  sentinel run           --proposal <path> [governance flags]")
	fmt.Fprintln(w, "  sentinel policy-sign   --policy <path> --key-id <id> --private-key <path>")
	fmt.Fprintln(w, "  sentinel audit-verify  --audit-log <path> [--fail-fast] [--max-entries N]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Governance flags (defaults match the config/ and data/ layout):")
	fmt.Fprintln(w, "  --policy, --policy-sig, --keys, --nonce-state, --rate-limit-state,")
	fmt.Fprintln(w, "  --version-state, --audit-log, --unsigned-policy-ok")
}
