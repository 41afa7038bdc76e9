// Package proposal defines the wire types for action proposals and
// policies: the data model every gate in the pipeline reads from.
//
// Grounded on the teacher's intent/decision envelope shapes in
// pkg/crypto/canonical.go (CanonicalizeDecision/Intent) and
// pkg/kernel/pdp/defer.go (PDPResponse), adapted to the command-proposal
// shape this system gates instead of a policy-decision response.
package proposal

import "encoding/json"

// Signature is the envelope carrying the Ed25519 signature over the
// canonical form of its parent object.
type Signature struct {
	Alg   string `json:"alg"`
	KeyID string `json:"keyId"`
	Sig   string `json:"sig"`
}

// Payload carries the action-specific parameters. Adapter is always
// present; the remaining fields vary by action and are left as raw JSON so
// the adapter dispatcher and policy engine can interpret them per-action.
type Payload struct {
	Adapter string          `json:"adapter"`
	Command string          `json:"command,omitempty"`
	Args    []string        `json:"args,omitempty"`
	Cwd     string          `json:"cwd,omitempty"`
	Extra   json.RawMessage `json:"-"`
}

// MarshalJSON flattens Extra fields alongside the known ones so
// round-tripping through canonicalization preserves adapter-specific
// payload data not modeled by this struct.
func (p Payload) MarshalJSON() ([]byte, error) {
	base := map[string]interface{}{
		"adapter": p.Adapter,
	}
	if p.Command != "" {
		base["command"] = p.Command
	}
	if len(p.Args) > 0 {
		base["args"] = p.Args
	}
	if p.Cwd != "" {
		base["cwd"] = p.Cwd
	}
	if len(p.Extra) > 0 {
		var extra map[string]interface{}
		if err := json.Unmarshal(p.Extra, &extra); err == nil {
			for k, v := range extra {
				if _, exists := base[k]; !exists {
					base[k] = v
				}
			}
		}
	}
	return json.Marshal(base)
}

// UnmarshalJSON keeps the full object in Extra (for canonicalization of
// the raw payload) while also populating the known fields.
func (p *Payload) UnmarshalJSON(data []byte) error {
	type known struct {
		Adapter string   `json:"adapter"`
		Command string   `json:"command,omitempty"`
		Args    []string `json:"args,omitempty"`
		Cwd     string   `json:"cwd,omitempty"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	p.Adapter = k.Adapter
	p.Command = k.Command
	p.Args = k.Args
	p.Cwd = k.Cwd
	p.Extra = json.RawMessage(data)
	return nil
}

// Proposal is a single action a requester asks the gate to validate and,
// if allowed, dispatch.
type Proposal struct {
	ID          string    `json:"id"`
	CommandID   string    `json:"commandId"`
	RequesterID string    `json:"requesterId"`
	SessionID   string    `json:"sessionId"`
	Timestamp   int64     `json:"timestamp"`
	Nonce       string    `json:"nonce"`
	Requires    []string  `json:"requires,omitempty"`
	Risk        string    `json:"risk,omitempty"`
	Payload     Payload   `json:"payload"`
	Signature   Signature `json:"signature"`
}

// Policy is the governance document the policy engine evaluates proposals
// against.
//
// Default and Security are carried here even though the engine does not
// gate on them directly (requester existence is instead enforced by the
// trusted-key registry's requester scope, ahead of policy evaluation in
// the pipeline) so that an operator inspecting a loaded policy, or a
// future requester-scoped policy model, has them available as typed
// fields rather than only as opaque bytes under the governance
// signature.
type Policy struct {
	Default            string           `json:"default,omitempty"`
	Version            interface{}      `json:"version"`
	CreatedAt          int64            `json:"createdAt"`
	Security           *SecurityPolicy  `json:"security,omitempty"`
	AllowedCommands    []string         `json:"allowedCommands"`
	AllowedAdapters    []string         `json:"allowedAdapters"`
	FilesystemRoots    []string         `json:"filesystemRoots,omitempty"`
	DenyGlobs          []string         `json:"denyGlobs,omitempty"`
	ShellAllowedCmds   []string         `json:"shellAllowedCommands,omitempty"`
	ShellDeniedCmds    []string         `json:"shellDeniedCommands,omitempty"`
	MaxShellTimeoutSec int              `json:"maxShellTimeoutSec,omitempty"`
	RateLimit          *RateLimitPolicy `json:"rateLimit,omitempty"`
	RiskRules          []string         `json:"riskRules,omitempty"`
}

// SecurityPolicy models the policy document's security block (spec §3):
// clock-skew bounds and the default rate limit.
type SecurityPolicy struct {
	MaxClockSkewSec           int64            `json:"maxClockSkewSec,omitempty"`
	MaxPolicyCreatedAtSkewSec int64            `json:"maxPolicyCreatedAtSkewSec,omitempty"`
	DefaultRateLimit          *RateLimitPolicy `json:"defaultRateLimit,omitempty"`
}

// RateLimitPolicy configures the sliding-window limiter for this policy
// document.
type RateLimitPolicy struct {
	WindowSeconds int `json:"windowSeconds"`
	MaxRequests   int `json:"maxRequests"`
}

// PolicySignatureEnvelope wraps a policy with its governance signature,
// stored separately from the policy document itself: {alg, keyId, sig,
// createdAt} over the canonical policy object (spec §3).
type PolicySignatureEnvelope struct {
	Alg       string `json:"alg"`
	KeyID     string `json:"keyId"`
	Sig       string `json:"sig"`
	CreatedAt string `json:"createdAt"`
}
