// Package policy implements the deny-by-default decision engine: a
// proposal is only allowed if every applicable check explicitly admits
// it. Absence of an allowlist entry is always a denial, never an
// implicit pass.
//
// Grounded on the teacher's fail-closed decision pattern in
// core/pkg/pdp/helm_pdp.go (a DecisionResponse computed deterministically
// and hashed via canonicalize.JCS) and its CEL evaluator in
// core/pkg/governance/policy_evaluator_cel.go for the advisory risk
// heuristic, which never gates a decision on its own.
package policy

import (
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

// Reason codes returned by Evaluate.
const (
	ReasonRequesterNotAllowed    = "REQUESTER_NOT_ALLOWED"
	ReasonCommandNotAllowed      = "COMMAND_NOT_ALLOWED"
	ReasonAdapterNotAllowed      = "ADAPTER_NOT_ALLOWED"
	ReasonNoFilesystemRoots      = "NO_FILESYSTEM_ROOTS_DEFINED"
	ReasonPathDeniedByPattern    = "PATH_DENIED_BY_PATTERN"
	ReasonShellCmdDenied         = "SHELL_CMD_DENIED"
	ReasonShellCmdNotAllowlisted = "SHELL_CMD_NOT_ALLOWLISTED"
)

// Decision is the result of evaluating a proposal against a policy.
type Decision struct {
	Allowed bool
	Reason  string
	// Risk is an advisory heuristic score; it never influences Allowed.
	Risk string
}

// KnownRequesters is supplied by the caller (e.g. derived from the key
// store) so the engine can check requester existence without importing
// the keyring package.
type KnownRequesters interface {
	Known(requesterID string) bool
}

// Evaluate runs the ordered policy checks against proposal p. The
// RUN_SHELL-specific command allow/deny checks are keyed on the
// proposal's id, not its dispatched adapter (spec §4.7 step 5): a
// RUN_SHELL proposal's cmd is checked against the shell allow/deny
// lists regardless of whether payload.adapter is "shell", "noop", or
// anything else.
func Evaluate(pol *proposal.Policy, p *proposal.Proposal, requesters KnownRequesters) Decision {
	if requesters != nil && !requesters.Known(p.RequesterID) {
		return Decision{Allowed: false, Reason: ReasonRequesterNotAllowed}
	}

	if !contains(pol.AllowedCommands, p.ID) {
		return Decision{Allowed: false, Reason: ReasonCommandNotAllowed}
	}

	if !contains(pol.AllowedAdapters, p.Payload.Adapter) {
		return Decision{Allowed: false, Reason: ReasonAdapterNotAllowed}
	}

	if path := p.Payload.Cwd; path != "" {
		if len(pol.FilesystemRoots) == 0 {
			return Decision{Allowed: false, Reason: ReasonNoFilesystemRoots}
		}
		if !underAnyRoot(path, pol.FilesystemRoots) {
			return Decision{Allowed: false, Reason: ReasonPathDeniedByPattern}
		}
		if matchesAnyGlob(path, pol.DenyGlobs) {
			return Decision{Allowed: false, Reason: ReasonPathDeniedByPattern}
		}
	}

	if p.ID == "RUN_SHELL" {
		cmd := p.Payload.Command
		if matchesAny(pol.ShellDeniedCmds, cmd) {
			return Decision{Allowed: false, Reason: ReasonShellCmdDenied}
		}
		if len(pol.ShellAllowedCmds) > 0 && !matchesAny(pol.ShellAllowedCmds, cmd) {
			return Decision{Allowed: false, Reason: ReasonShellCmdNotAllowlisted}
		}
	}

	risk := computeRisk(pol, p)
	return Decision{Allowed: true, Risk: risk}
}

func underAnyRoot(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)) {
			return true
		}
	}
	return false
}

func matchesAnyGlob(path string, globs []string) bool {
	for _, g := range globs {
		if matchGlob(g, path) {
			return true
		}
	}
	return false
}

// matchGlob supports filepath.Match's single-segment "*" plus a "**"
// segment that matches zero or more full path components, so deny
// patterns like "**/*.secret" reach nested directories that a bare
// filepath.Match (whose "*" never crosses a separator) would miss.
func matchGlob(pattern, path string) bool {
	patParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")
	return matchGlobParts(patParts, pathParts)
}

func matchGlobParts(pat, path []string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}
	if pat[0] == "**" {
		if matchGlobParts(pat[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchGlobParts(pat, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	if ok, err := filepath.Match(pat[0], path[0]); err != nil || !ok {
		return false
	}
	return matchGlobParts(pat[1:], path[1:])
}

func matchesAny(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
