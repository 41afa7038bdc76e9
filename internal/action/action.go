// Package action implements the five CLI actions: verify, dryrun, run,
// policy-sign, and audit-verify. Each loads its inputs from disk,
// performs its work, and returns a JSON-serializable result alongside an
// exitcode.
//
// Grounded on the teacher's cmd/helm/verify_cmd.go: load inputs, run a
// sequence of checks, accumulate a report, translate to an exit code.
package action

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/sentinel/internal/adapter"
	"github.com/Mindburn-Labs/sentinel/internal/atomicfile"
	"github.com/Mindburn-Labs/sentinel/internal/audit"
	"github.com/Mindburn-Labs/sentinel/internal/cryptosign"
	"github.com/Mindburn-Labs/sentinel/internal/exitcode"
	"github.com/Mindburn-Labs/sentinel/internal/keyring"
	"github.com/Mindburn-Labs/sentinel/internal/nonce"
	"github.com/Mindburn-Labs/sentinel/internal/policyversion"
	"github.com/Mindburn-Labs/sentinel/internal/proposal"
	"github.com/Mindburn-Labs/sentinel/internal/ratelimit"
	"github.com/Mindburn-Labs/sentinel/internal/schema"
	"github.com/Mindburn-Labs/sentinel/internal/validator"
)

// Paths bundles every file path an action may need. Not every action uses
// every field.
type Paths struct {
	Proposal       string
	Policy         string
	PolicySig      string
	Keys           string
	NonceState     string
	RateLimitState string
	VersionState   string
	AuditLog       string
	// UnsignedPolicyOK permits a missing policy signature envelope, for
	// local development only.
	UnsignedPolicyOK bool
	// Logger receives structured diagnostics (governance-file loads,
	// policy-version acceptance, adapter dispatch failures). Callers
	// construct it once and thread it down rather than this package
	// reaching for a package-level logger; nil falls back to
	// slog.Default(), matching the teacher's own cmd/helm/main.go.
	Logger *slog.Logger
}

func (p Paths) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Output is the uniform JSON result shape every action returns (spec
// §6): verify/dryrun emit {status, commandId, checks, errors, risk,
// executionResult?}; run emits {status, commandId, checks,
// executionResult}; any preflight or internal failure emits
// {status:"error", error:CODE, message}.
type Output struct {
	Status          string            `json:"status"`
	CommandID       string            `json:"commandId,omitempty"`
	Checks          *validator.Checks `json:"checks,omitempty"`
	Errors          []string          `json:"errors,omitempty"`
	Risk            string            `json:"risk,omitempty"`
	ExecutionResult interface{}       `json:"executionResult,omitempty"`
	Error           string            `json:"error,omitempty"`
	Message         string            `json:"message,omitempty"`
}

func errorOutput(code string) Output {
	return Output{Status: "error", Error: code, Message: humanMessage(code)}
}

func internalErrorOutput(err error) Output {
	return Output{Status: "error", Error: "INTERNAL_ERROR", Message: err.Error()}
}

// humanMessage renders a short human-readable sentence for a stable
// reason code, for the "message" field callers see alongside "error".
func humanMessage(code string) string {
	switch code {
	case "POLICY_UNREADABLE":
		return "policy document could not be read or parsed"
	case "POLICY_SIGNER_KEY_STORE_UNAVAILABLE":
		return "trusted key store unavailable while resolving the policy signer"
	default:
		return code
	}
}

// peekCommandID best-effort extracts commandId from raw proposal JSON
// even when the proposal fails schema/structural validation, so a
// rejected proposal's output can still be correlated by its commandId.
func peekCommandID(raw []byte) string {
	var p struct {
		CommandID string `json:"commandId"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}
	return p.CommandID
}

func loadGovernance(paths Paths) (*proposal.Policy, *keyring.Store, *policyversion.State, string, error) {
	log := paths.logger()

	polRaw, exists, err := atomicfile.ReadOrDefault(paths.Policy)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("action: read policy: %w", err)
	}
	if !exists {
		log.Warn("policy document not found", "path", paths.Policy)
		return nil, nil, nil, "POLICY_UNREADABLE", nil
	}

	var pol proposal.Policy
	if err := json.Unmarshal(polRaw, &pol); err != nil {
		return nil, nil, nil, "POLICY_UNREADABLE", nil
	}
	// rawPolicyDoc is the full generic decode of the policy document,
	// used only for signature verification so every field on disk (not
	// merely the ones proposal.Policy models) is covered by the
	// governance signature.
	var rawPolicyDoc interface{}
	if err := json.Unmarshal(polRaw, &rawPolicyDoc); err != nil {
		return nil, nil, nil, "POLICY_UNREADABLE", nil
	}

	keysRaw, exists, err := atomicfile.ReadOrDefault(paths.Keys)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("action: read keys: %w", err)
	}
	var keyStore *keyring.Store
	if exists {
		keyStore, err = keyring.LoadStore(keysRaw)
		if err != nil {
			return nil, nil, nil, "POLICY_SIGNER_KEY_STORE_UNAVAILABLE", nil
		}
	} else {
		keyStore = &keyring.Store{TrustedKeys: map[string]keyring.Entry{}}
	}

	sigRaw, exists, err := atomicfile.ReadOrDefault(paths.PolicySig)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("action: read policy signature: %w", err)
	}
	var envelope *proposal.PolicySignatureEnvelope
	if exists {
		var env proposal.PolicySignatureEnvelope
		if err := json.Unmarshal(sigRaw, &env); err != nil {
			return nil, nil, nil, "POLICY_SIGNATURE_INVALID", nil
		}
		envelope = &env
	}

	resolver := policyversion.KeyResolver(func(keyID string) (string, string) {
		if keyStore == nil {
			return "", policyversion.ReasonPolicySignerKeyStoreUnavailable
		}
		pub, reason := keyring.Resolve(keyStore, keyID, "", time.Now())
		if reason != "" {
			return "", policyversion.ReasonPolicySignerNotTrusted
		}
		return base64.StdEncoding.EncodeToString(pub), ""
	})

	if reason := policyversion.VerifySignature(rawPolicyDoc, envelope, resolver, paths.UnsignedPolicyOK); reason != "" {
		log.Warn("policy signature preflight failed", "reason", reason)
		return nil, nil, nil, reason, nil
	}

	var maxCreatedAtSkew int64
	if pol.Security != nil {
		maxCreatedAtSkew = pol.Security.MaxPolicyCreatedAtSkewSec
	}
	if reason := policyversion.CheckCreatedAtSkew(&pol, time.Now().Unix(), maxCreatedAtSkew); reason != "" {
		log.Warn("policy createdAt skew preflight failed", "reason", reason, "createdAt", pol.CreatedAt)
		return nil, nil, nil, reason, nil
	}

	priorVersion, err := policyversion.LoadState(paths.VersionState)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("action: load policy version state: %w", err)
	}
	if reason := policyversion.CheckMonotonic(priorVersion, &pol); reason != "" {
		log.Warn("policy version preflight failed", "reason", reason, "version", pol.Version)
		return nil, nil, nil, reason, nil
	}

	// Per spec §4.9, a strictly-newer (version, createdAt) is persisted as
	// soon as the preflight accepts it — this is a property of the policy
	// document itself, not of any individual proposal's later fate, so it
	// runs for verify/dryrun/run alike.
	if err := commitPolicyVersion(paths, &pol); err != nil {
		return nil, nil, nil, "", fmt.Errorf("action: commit policy version: %w", err)
	}
	log.Debug("policy accepted", "version", pol.Version, "createdAt", pol.CreatedAt)

	return &pol, keyStore, priorVersion, "", nil
}

func commitPolicyVersion(paths Paths, pol *proposal.Policy) error {
	return policyversion.SaveState(paths.VersionState, pol)
}

func loadStores(paths Paths) (*nonce.Store, *ratelimit.Store, error) {
	nonceStore, err := nonce.Load(paths.NonceState)
	if err != nil {
		return nil, nil, err
	}
	rlStore, err := ratelimit.Load(paths.RateLimitState)
	if err != nil {
		return nil, nil, err
	}
	return nonceStore, rlStore, nil
}

// loadValidationDeps loads every piece of state the validator needs beyond
// the policy itself: the trusted-key store, the nonce and rate-limit
// stores, and a freshly compiled schema validator.
func loadValidationDeps(paths Paths) (*keyring.Store, *nonce.Store, *ratelimit.Store, *schema.Validator, error) {
	keysRaw, exists, err := atomicfile.ReadOrDefault(paths.Keys)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("action: read keys: %w", err)
	}
	var keyStore *keyring.Store
	if exists {
		keyStore, err = keyring.LoadStore(keysRaw)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("action: parse keys: %w", err)
		}
	} else {
		keyStore = &keyring.Store{TrustedKeys: map[string]keyring.Entry{}}
	}

	nonceStore, rlStore, err := loadStores(paths)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	sv, err := schema.New()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("action: compile schemas: %w", err)
	}

	return keyStore, nonceStore, rlStore, sv, nil
}

func readProposal(path string) (*proposal.Proposal, error) {
	raw, exists, err := atomicfile.ReadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("action: proposal not found: %s", path)
	}
	var p proposal.Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func appendAuditEntry(log *slog.Logger, path string, p *proposal.Proposal, actionName, outcome, reason string) {
	entry := audit.Entry{
		ID:        fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		Timestamp: time.Now().Unix(),
		Action:    actionName,
		Outcome:   outcome,
		Reason:    reason,
	}
	if p != nil {
		entry.RequesterID = p.RequesterID
		entry.CommandID = p.CommandID
	}
	if _, err := audit.Append(path, entry); err != nil {
		log.Error("failed to append audit entry", "action", actionName, "outcome", outcome, "error", err)
		return
	}
	log.Info("audit entry appended", "action", actionName, "outcome", outcome, "commandId", entry.CommandID)
}

// runValidationOnly runs preflights plus the full gate pipeline and
// returns the outcome without touching any persisted state: verify and
// dryrun are both pure with respect to disk (spec §8's idempotence
// invariant) — only the run action consumes the nonce and rate-limit
// budget it evaluates against.
func runValidationOnly(paths Paths, actionName string, enforceRateLimit bool) (Output, int) {
	pol, _, _, reason, err := loadGovernance(paths)
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}
	if reason != "" {
		return errorOutput(reason), exitcode.ForReason(reason)
	}

	raw, exists, err := atomicfile.ReadOrDefault(paths.Proposal)
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}
	if !exists {
		return errorOutput("SCHEMA_ERROR"), exitcode.SchemaOrProposalError
	}
	commandID := peekCommandID(raw)

	keyStore, nonceStore, rlStore, sv, err := loadValidationDeps(paths)
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}

	result := validator.Validate(raw, validator.Stores{Keys: keyStore, Nonces: nonceStore, RateLimit: rlStore}, validator.Options{
		Policy:           pol,
		EnforceRateLimit: enforceRateLimit,
		Schema:           sv,
	})

	checks := result.Checks
	if !result.Valid {
		reason := firstOrEmpty(result.Errors)
		return Output{Status: "invalid", CommandID: commandID, Errors: result.Errors, Risk: result.Risk, Checks: &checks}, exitcode.ForReason(reason)
	}

	return Output{Status: "valid", CommandID: commandID, Risk: result.Risk, Checks: &checks}, exitcode.OK
}

// Verify validates a proposal without dispatching it and without
// consuming the rate limit or nonce budget, and without appending an
// audit entry.
func Verify(paths Paths) (Output, int) {
	return runValidationOnly(paths, "verify", false)
}

// Dryrun validates a proposal, and on success dispatches it through the
// noop adapter regardless of the proposal's requested adapter, so the
// caller can see what would run without side effects. Like verify, it
// consumes no persisted state and appends no audit entry.
func Dryrun(paths Paths) (Output, int) {
	result, code := runValidationOnly(paths, "dryrun", false)
	if code != exitcode.OK {
		return result, code
	}

	p, err := readProposal(paths.Proposal)
	if err != nil {
		return errorOutput("SCHEMA_ERROR"), exitcode.SchemaOrProposalError
	}

	dispatchResult, err := adapter.NoopAdapter{}.Dispatch(context.Background(), p)
	if err != nil {
		return errorOutput("ADAPTER_EXECUTION_ERROR"), exitcode.AdapterError
	}

	result.Status = "valid_simulated"
	result.ExecutionResult = dispatchResult
	return result, exitcode.OK
}

// capShellTimeout applies policy.maxShellTimeoutSec as an upper bound on
// the shell adapter's wall-clock timeout, per spec §4.12 ("30s default,
// capped by policy"): an operator-supplied --shell-timeout-sec may only be
// shrunk by policy, never extended past it. Non-ShellAdapter values (nil,
// or a test double) pass through unchanged.
func capShellTimeout(a adapter.Adapter, pol *proposal.Policy) adapter.Adapter {
	sa, ok := a.(adapter.ShellAdapter)
	if !ok || pol == nil || pol.MaxShellTimeoutSec <= 0 {
		return a
	}
	capDur := time.Duration(pol.MaxShellTimeoutSec) * time.Second
	effective := sa.Timeout
	if effective <= 0 {
		// Zero means the shell adapter's built-in 30s default.
		effective = 30 * time.Second
	}
	if effective > capDur {
		effective = capDur
	}
	sa.Timeout = effective
	return sa
}

// Run validates a proposal under full gating (including the rate
// limiter) and, if allowed, dispatches it to its requested adapter. This
// is the only action that persists nonce/rate-limit state and appends to
// the audit ledger.
func Run(paths Paths, shellAdapter adapter.Adapter) (Output, int) {
	log := paths.logger()
	pol, _, _, reason, err := loadGovernance(paths)
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}
	if reason != "" {
		return errorOutput(reason), exitcode.ForReason(reason)
	}

	raw, exists, err := atomicfile.ReadOrDefault(paths.Proposal)
	if err != nil || !exists {
		return errorOutput("SCHEMA_ERROR"), exitcode.SchemaOrProposalError
	}
	commandID := peekCommandID(raw)

	keyStore, nonceStore, rlStore, sv, err := loadValidationDeps(paths)
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}

	result := validator.Validate(raw, validator.Stores{Keys: keyStore, Nonces: nonceStore, RateLimit: rlStore}, validator.Options{
		Policy:           pol,
		EnforceRateLimit: true,
		Schema:           sv,
	})

	// The nonce (and, when reached, the rate-limit count) are consumed on
	// this first attempt regardless of what a later gate decides — spec
	// §4.5/§9: a rejected run must not be retryable via the same nonce.
	if err := nonceStore.Save(paths.NonceState); err != nil {
		log.Error("failed to persist nonce state", "path", paths.NonceState, "error", err)
	}
	if err := rlStore.Save(paths.RateLimitState); err != nil {
		log.Error("failed to persist rate-limit state", "path", paths.RateLimitState, "error", err)
	}

	p, _ := readProposal(paths.Proposal)
	checks := result.Checks

	if !result.Valid {
		reason := firstOrEmpty(result.Errors)
		log.Info("run denied", "commandId", commandID, "reason", reason)
		appendAuditEntry(log, paths.AuditLog, p, "run", "denied", reason)
		return Output{Status: "denied", CommandID: commandID, Errors: result.Errors, Checks: &checks}, exitcode.ForReason(reason)
	}

	dispatcher := adapter.NewDispatcher(capShellTimeout(shellAdapter, pol))
	dispatchResult, err := dispatcher.Dispatch(context.Background(), p)
	if err != nil {
		log.Error("adapter dispatch failed", "commandId", commandID, "adapter", p.Payload.Adapter, "error", err)
		appendAuditEntry(log, paths.AuditLog, p, "run", "error", err.Error())
		return Output{Status: "error", CommandID: commandID, Error: "ADAPTER_EXECUTION_ERROR", Message: err.Error(), Checks: &checks}, exitcode.AdapterError
	}

	log.Info("run executed", "commandId", commandID, "adapter", p.Payload.Adapter)
	appendAuditEntry(log, paths.AuditLog, p, "run", "allowed", "")
	return Output{Status: "executed", CommandID: commandID, ExecutionResult: dispatchResult, Risk: result.Risk, Checks: &checks}, exitcode.OK
}

// PolicySign loads the policy document, signs its canonical form with
// priv, and writes the resulting signature envelope to paths.PolicySig.
// This is an operator/maintenance action, never run as part of proposal
// gating.
func PolicySign(paths Paths, keyID string, priv ed25519.PrivateKey) (Output, int) {
	raw, exists, err := atomicfile.ReadOrDefault(paths.Policy)
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}
	if !exists {
		return errorOutput("POLICY_UNREADABLE"), exitcode.InternalError
	}

	// Sign the full generic decode of the policy document, not the typed
	// proposal.Policy struct: the struct only models a subset of fields,
	// and signing a lossy re-marshal would leave every unmodeled field
	// (spec §3's "default", "security", "requesters", etc.)
	// tamper-undetectable. See policyversion.VerifySignature.
	var rawPolicyDoc interface{}
	if err := json.Unmarshal(raw, &rawPolicyDoc); err != nil {
		return errorOutput("POLICY_UNREADABLE"), exitcode.InternalError
	}

	sig, err := cryptosign.Sign(priv, rawPolicyDoc, "")
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}

	envelope := proposal.PolicySignatureEnvelope{
		Alg:       "ed25519",
		KeyID:     keyID,
		Sig:       sig,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}
	if err := atomicfile.Write(paths.PolicySig, out); err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}

	paths.logger().Info("policy signed", "keyId", keyID, "policy", paths.Policy, "sigPath", paths.PolicySig)
	return Output{Status: "signed", ExecutionResult: envelope}, exitcode.OK
}

// AuditVerifyOptions configures the audit-verify maintenance action.
type AuditVerifyOptions struct {
	FailFast   bool
	MaxEntries int
}

// AuditVerify re-derives the ledger's hash chain and reports whether it
// is intact.
func AuditVerify(paths Paths, opts AuditVerifyOptions) (Output, int) {
	result, err := audit.VerifyIntegrity(paths.AuditLog, audit.VerifyOptions{
		FailFast:   opts.FailFast,
		MaxEntries: opts.MaxEntries,
	})
	if err != nil {
		return internalErrorOutput(err), exitcode.InternalError
	}
	if !result.Valid {
		paths.logger().Error("audit ledger integrity check failed", "reason", result.Reason, "firstInvalidIndex", result.FirstInvalidIndex)
		return Output{Status: "invalid", Error: "AUDIT_INTEGRITY_FAILURE", ExecutionResult: result}, exitcode.GovernanceIntegrity
	}
	paths.logger().Debug("audit ledger integrity check passed", "entries", result.Entries)
	return Output{Status: "valid", ExecutionResult: result}, exitcode.OK
}

// firstOrEmpty returns errs[0] or "" if errs is empty.
func firstOrEmpty(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0]
}
