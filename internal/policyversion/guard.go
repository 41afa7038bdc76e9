// Package policyversion verifies the governance signature on a policy
// document and enforces that accepted policies only move forward in
// version and creation time, never backward.
//
// Grounded on the teacher's Masterminds/semver/v3 usage in
// core/pkg/pack/matrix.go and core/pkg/trust/pack_loader.go
// (semver.NewConstraint / semver.NewVersion for dependency and kernel
// version checks), adapted here to compare two policy versions for
// monotonicity rather than satisfy a constraint, and persisted via
// internal/atomicfile the way pack_loader.go persists installed
// versions.
package policyversion

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/Mindburn-Labs/sentinel/internal/atomicfile"
	"github.com/Mindburn-Labs/sentinel/internal/cryptosign"
	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

const (
	ReasonPolicySignatureMissing          = "POLICY_SIGNATURE_MISSING"
	ReasonPolicySignatureInvalid          = "POLICY_SIGNATURE_INVALID"
	ReasonPolicySignerKeyStoreUnavailable = "POLICY_SIGNER_KEY_STORE_UNAVAILABLE"
	ReasonPolicySignerNotTrusted          = "POLICY_SIGNER_NOT_TRUSTED"
	ReasonPolicyVersionRegression         = "POLICY_VERSION_REGRESSION"
	ReasonPolicyVersionInvalid            = "POLICY_VERSION_INVALID"
	ReasonPolicyCreatedAtSkewExceeded     = "POLICY_CREATED_AT_SKEW_EXCEEDED"
)

// DefaultMaxCreatedAtSkewSeconds bounds how far a policy's createdAt may
// drift from wall-clock time when a document doesn't configure
// security.maxPolicyCreatedAtSkewSec (spec §3/§4.9) of its own.
const DefaultMaxCreatedAtSkewSeconds = 86400

// KeyResolver resolves a policy signer's keyId to a trusted Ed25519
// public key. It returns ("", reason) with one of
// ReasonPolicySignerKeyStoreUnavailable / ReasonPolicySignerNotTrusted on
// failure, mirroring keyring.Resolve's reason-code style without this
// package importing keyring directly.
type KeyResolver func(keyID string) (publicKeyB64 string, reason string)

// VerifySignature checks that envelope verifies against the full
// canonical form of rawPolicy using the key identified by
// envelope.KeyID, as resolved by resolve. rawPolicy must be the policy
// document as decoded from its on-disk bytes (e.g. map[string]interface{}
// from json.Unmarshal), never the typed *proposal.Policy struct: the
// struct only models a subset of fields (spec §3 also carries "default",
// "security", and a per-requester "requesters" map the schema's
// additionalProperties:true allows), and signing/verifying a lossy
// re-marshal of it would leave every unmodeled field tamper-undetectable.
// unsignedOK permits a missing envelope (nil) to pass, for local
// development only; an envelope that is present but malformed or fails
// verification is always a hard failure regardless of unsignedOK.
func VerifySignature(rawPolicy interface{}, envelope *proposal.PolicySignatureEnvelope, resolve KeyResolver, unsignedOK bool) string {
	if envelope == nil {
		if unsignedOK {
			return ""
		}
		return ReasonPolicySignatureMissing
	}
	if envelope.Sig == "" || envelope.KeyID == "" {
		return ReasonPolicySignatureMissing
	}
	if envelope.Alg != "ed25519" {
		return ReasonPolicySignatureInvalid
	}

	pubKeyB64, reason := resolve(envelope.KeyID)
	if reason != "" {
		return reason
	}

	ok, err := VerifyWithKeyring(pubKeyB64, envelope.Sig, rawPolicy, "")
	if err != nil || !ok {
		return ReasonPolicySignatureInvalid
	}
	return ""
}

// version wraps either a parsed semver.Version or a plain integer, so
// policies may declare version as either form per the data model.
type version struct {
	semverV *semver.Version
	intV    *int64
}

func parseVersion(raw interface{}) (*version, error) {
	switch v := raw.(type) {
	case string:
		sv, err := semver.NewVersion(v)
		if err != nil {
			return nil, fmt.Errorf("policyversion: invalid semver version %q: %w", v, err)
		}
		return &version{semverV: sv}, nil
	case float64:
		i := int64(v)
		return &version{intV: &i}, nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("policyversion: invalid integer version %q: %w", v, err)
		}
		return &version{intV: &i}, nil
	case int64:
		return &version{intV: &v}, nil
	case int:
		i := int64(v)
		return &version{intV: &i}, nil
	default:
		return nil, fmt.Errorf("policyversion: unsupported version type %T", raw)
	}
}

// compare returns -1, 0, 1 if a is less than, equal to, or greater than
// b. Comparing a semver version against an integer version is itself
// always treated as "less than" (a regression/format switch), never
// guessed at.
func (a *version) compare(b *version) int {
	if a.semverV != nil && b.semverV != nil {
		return a.semverV.Compare(b.semverV)
	}
	if a.intV != nil && b.intV != nil {
		switch {
		case *a.intV < *b.intV:
			return -1
		case *a.intV > *b.intV:
			return 1
		default:
			return 0
		}
	}
	return -1
}

// State is the on-disk record of the last accepted policy version.
type State struct {
	Version   string `json:"version"`
	IsSemver  bool   `json:"isSemver"`
	IntValue  int64  `json:"intValue,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// LoadState reads the persisted last-accepted policy version, returning
// nil if none has been recorded yet.
func LoadState(path string) (*State, error) {
	data, exists, err := atomicfile.ReadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("policyversion: load state: %w", err)
	}
	if !exists {
		return nil, nil
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("policyversion: parse state: %w", err)
	}
	return &s, nil
}

// SaveState persists the accepted version atomically.
func SaveState(path string, pol *proposal.Policy) error {
	v, err := parseVersion(pol.Version)
	if err != nil {
		return err
	}
	s := State{CreatedAt: pol.CreatedAt}
	if v.semverV != nil {
		s.IsSemver = true
		s.Version = v.semverV.String()
	} else {
		s.IntValue = *v.intV
		s.Version = strconv.FormatInt(*v.intV, 10)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("policyversion: marshal state: %w", err)
	}
	return atomicfile.Write(path, data)
}

func stateToVersion(s *State) *version {
	if s.IsSemver {
		sv, err := semver.NewVersion(s.Version)
		if err != nil {
			return nil
		}
		return &version{semverV: sv}
	}
	v := s.IntValue
	return &version{intV: &v}
}

// CheckCreatedAtSkew rejects a policy document whose createdAt drifts
// from now by more than maxSkewSeconds in either direction (spec §4.9):
// a policy dated far in the future or the past relative to the
// verifying host's clock is never accepted, independent of whether its
// (version, createdAt) pair is otherwise monotonic. maxSkewSeconds <= 0
// falls back to DefaultMaxCreatedAtSkewSeconds.
func CheckCreatedAtSkew(pol *proposal.Policy, now int64, maxSkewSeconds int64) string {
	if maxSkewSeconds <= 0 {
		maxSkewSeconds = DefaultMaxCreatedAtSkewSeconds
	}
	skew := now - pol.CreatedAt
	if skew < -maxSkewSeconds || skew > maxSkewSeconds {
		return ReasonPolicyCreatedAtSkewExceeded
	}
	return ""
}

// CheckMonotonic verifies that pol's version and createdAt do not move
// backward relative to the previously accepted state (if any). A nil
// prior state always accepts, and re-presenting the same accepted
// (version, createdAt) pair is accepted.
func CheckMonotonic(prior *State, pol *proposal.Policy) string {
	newV, err := parseVersion(pol.Version)
	if err != nil {
		return ReasonPolicyVersionInvalid
	}
	if prior == nil {
		return ""
	}

	priorV := stateToVersion(prior)
	if priorV == nil {
		return ReasonPolicyVersionInvalid
	}

	cmp := newV.compare(priorV)
	if cmp < 0 {
		return ReasonPolicyVersionRegression
	}
	if cmp == 0 && pol.CreatedAt < prior.CreatedAt {
		return ReasonPolicyVersionRegression
	}
	if cmp > 0 && pol.CreatedAt < prior.CreatedAt {
		// Monotonicity across both axes (spec §4.9): a strictly newer
		// version whose createdAt still regresses is rejected the same
		// as a version regression, not silently accepted.
		return ReasonPolicyVersionRegression
	}
	return ""
}

// VerifyWithKeyring decodes pubKeyB64 and verifies sigB64 over v's
// canonical form (with excludeField removed) against it.
func VerifyWithKeyring(pubKeyB64 string, sigB64 string, v interface{}, excludeField string) (bool, error) {
	pub, err := decodeEd25519PublicKey(pubKeyB64)
	if err != nil {
		return false, err
	}
	return cryptosign.Verify(pub, v, excludeField, sigB64)
}

func decodeEd25519PublicKey(b64 string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("policyversion: invalid public key encoding: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("policyversion: invalid public key size %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
