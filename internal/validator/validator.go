// Package validator orchestrates the full gate pipeline: schema, keyId
// form and clock skew, signature, rate limit (run only), nonce, and
// policy — in that exact order, short-circuiting on the first failure.
//
// Grounded on the teacher's stage-ordered verification flow in
// cmd/helm/verify_cmd.go (sequential checks accumulated into a single
// report) and the fail-closed decision shape of pkg/pdp/helm_pdp.go.
package validator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/sentinel/internal/keyring"
	"github.com/Mindburn-Labs/sentinel/internal/nonce"
	"github.com/Mindburn-Labs/sentinel/internal/policy"
	"github.com/Mindburn-Labs/sentinel/internal/proposal"
	"github.com/Mindburn-Labs/sentinel/internal/ratelimit"
	"github.com/Mindburn-Labs/sentinel/internal/schema"
)

// MaxClockSkewSeconds bounds how far a proposal's timestamp may drift
// from wall-clock time in either direction.
const MaxClockSkewSeconds = 300

// Checks reports the pass/fail outcome of each named gate.
type Checks struct {
	Schema    bool `json:"schema"`
	KeyID     bool `json:"keyId"`
	Timestamp bool `json:"timestamp"`
	Signature bool `json:"signature"`
	RateLimit bool `json:"rateLimit,omitempty"`
	Nonce     bool `json:"nonce"`
	Policy    bool `json:"policy"`
}

// Result is the full outcome of validating a proposal.
type Result struct {
	Valid  bool     `json:"valid"`
	Checks Checks   `json:"checks"`
	Errors []string `json:"errors,omitempty"`
	Risk   string   `json:"risk,omitempty"`
}

// Stores bundles the persisted state every gate after schema validation
// needs.
type Stores struct {
	Keys      *keyring.Store
	Nonces    *nonce.Store
	RateLimit *ratelimit.Store
}

// Options configures a single validation run.
type Options struct {
	Policy *proposal.Policy
	// EnforceRateLimit is true only for the run action.
	EnforceRateLimit bool
	Now              time.Time
	Schema           *schema.Validator
}

func fail(checks Checks, reason string) Result {
	return Result{Valid: false, Checks: checks, Errors: []string{reason}}
}

// Validate runs the full gate pipeline against raw proposal JSON.
func Validate(raw []byte, stores Stores, opts Options) Result {
	var checks Checks

	ok, schemaErrs := opts.Schema.ValidateProposal(raw)
	if !ok {
		msgs := make([]string, 0, len(schemaErrs))
		for _, e := range schemaErrs {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
		}
		return Result{Valid: false, Checks: checks, Errors: append([]string{schema.ReasonSchemaError}, msgs...)}
	}
	var p proposal.Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return fail(checks, schema.ReasonSchemaError)
	}
	// Belt-and-suspenders on top of the schema's "format":"uuid"
	// assertion: commandId must parse as a real UUID, not merely match
	// the format's surface syntax.
	if _, err := uuid.Parse(p.CommandID); err != nil {
		return fail(checks, schema.ReasonSchemaError)
	}
	checks.Schema = true

	if reason := keyring.ValidateKeyIDForm(p.Signature.KeyID); reason != "" {
		return fail(checks, reason)
	}
	checks.KeyID = true

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	skew := now.Unix() - p.Timestamp
	if skew < -MaxClockSkewSeconds || skew > MaxClockSkewSeconds {
		return fail(checks, "TIMESTAMP_SKEW_EXCEEDED")
	}
	checks.Timestamp = true

	pub, reason := keyring.Resolve(stores.Keys, p.Signature.KeyID, p.RequesterID, now)
	if reason != "" {
		return fail(checks, reason)
	}
	sigOK, err := verifySignature(pub, &p)
	if err != nil || !sigOK {
		return fail(checks, "SIGNATURE_INVALID")
	}
	checks.Signature = true

	if opts.EnforceRateLimit {
		if opts.Policy != nil && opts.Policy.RateLimit != nil {
			allowed, rlReason, _ := stores.RateLimit.Allow(p.RequesterID, now.Unix(), ratelimit.Policy{
				WindowSeconds: int64(opts.Policy.RateLimit.WindowSeconds),
				MaxRequests:   opts.Policy.RateLimit.MaxRequests,
			})
			if !allowed {
				return fail(checks, rlReason)
			}
		}
		// checks.RateLimit is present only for run (spec §4.11/§6): verify
		// and dryrun never set EnforceRateLimit, so the field stays at its
		// bool zero value and is dropped by Checks.RateLimit's omitempty.
		checks.RateLimit = true
	}

	nonceOK, nonceReason := stores.Nonces.CheckAndRecord(p.RequesterID, p.SessionID, p.Nonce, now, nonce.DefaultTTLSeconds)
	if !nonceOK {
		return fail(checks, nonceReason)
	}
	checks.Nonce = true

	decision := policy.Evaluate(opts.Policy, &p, nil)
	if !decision.Allowed {
		return fail(checks, decision.Reason)
	}
	checks.Policy = true

	return Result{Valid: true, Checks: checks, Risk: decision.Risk}
}
