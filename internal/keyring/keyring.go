// Package keyring implements the trusted-key registry: resolving a
// proposal's keyId to a verifying Ed25519 public key while enforcing
// lifecycle (notBefore/expiresAt/deprecated) and requester scope.
//
// Grounded on the teacher's key-material handling in
// pkg/kms/kms.go (versioned, file-backed key store) and
// pkg/governance/keyring.go (Ed25519 key provider abstraction).
package keyring

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Reason codes returned by Resolve. These are stable strings surfaced to
// callers, never Go errors used for control flow.
const (
	ReasonKeyIDInvalid         = "KEY_ID_INVALID"
	ReasonKeyNotTrusted        = "KEY_NOT_TRUSTED"
	ReasonKeyDeprecated        = "KEY_DEPRECATED"
	ReasonKeyRequesterMismatch = "KEY_REQUESTER_MISMATCH"
	ReasonKeyLifecycleInvalid  = "KEY_LIFECYCLE_INVALID"
	ReasonKeyNotYetValid       = "KEY_NOT_YET_VALID"
	ReasonKeyExpired           = "KEY_EXPIRED"
	ReasonKeyConfigInvalid    = "KEY_CONFIG_INVALID"
)

// keyIDPattern matches valid keyId forms: 3-128 chars from
// [A-Za-z0-9:_-], and must not equal the literal "default".
var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9:_-]{3,128}$`)

// Entry is a single trusted-key record as stored in keys.json.
type Entry struct {
	PublicKey   string  `json:"publicKey"`
	RequesterID string  `json:"requesterId,omitempty"`
	NotBefore   string  `json:"notBefore,omitempty"`
	ExpiresAt   string  `json:"expiresAt,omitempty"`
	ValidFrom   string  `json:"validFrom,omitempty"` // legacy alias for NotBefore
	ValidUntil  string  `json:"validUntil,omitempty"` // legacy alias for ExpiresAt
	Deprecated  bool    `json:"deprecated,omitempty"`
}

// Store is the on-disk keys.json format.
type Store struct {
	SchemaVersion int              `json:"schemaVersion"`
	DefaultKeyID  string           `json:"defaultKeyId,omitempty"`
	TrustedKeys   map[string]Entry `json:"trustedKeys"`
}

// LoadStore parses the keys.json bytes.
func LoadStore(data []byte) (*Store, error) {
	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("keyring: parse key store: %w", err)
	}
	if s.TrustedKeys == nil {
		s.TrustedKeys = map[string]Entry{}
	}
	return &s, nil
}

// ValidateKeyIDForm checks keyId against its required form
// (^[A-Za-z0-9:_-]{3,128}$, never the literal "default") without touching
// the key store. This runs as its own pipeline gate ahead of clock-skew
// and signature verification, per the governance ordering.
func ValidateKeyIDForm(keyID string) string {
	if keyID == "" || keyID == "default" || !keyIDPattern.MatchString(keyID) {
		return ReasonKeyIDInvalid
	}
	return ""
}

// Resolve validates keyId form, looks up the entry, enforces lifecycle and
// requester scope, and returns the decoded public key on success.
//
// On failure it returns a nil key and one of the Reason* constants.
func Resolve(store *Store, keyID, requesterID string, now time.Time) (ed25519.PublicKey, string) {
	if reason := ValidateKeyIDForm(keyID); reason != "" {
		return nil, reason
	}
	if store == nil {
		return nil, ReasonKeyConfigInvalid
	}

	entry, ok := store.TrustedKeys[keyID]
	if !ok {
		return nil, ReasonKeyNotTrusted
	}

	if entry.Deprecated {
		return nil, ReasonKeyDeprecated
	}

	if entry.RequesterID != "" && entry.RequesterID != requesterID {
		return nil, ReasonKeyRequesterMismatch
	}

	notBeforeStr := firstNonEmpty(entry.NotBefore, entry.ValidFrom)
	expiresAtStr := firstNonEmpty(entry.ExpiresAt, entry.ValidUntil)
	if notBeforeStr == "" || expiresAtStr == "" {
		return nil, ReasonKeyLifecycleInvalid
	}

	notBefore, err := time.Parse(time.RFC3339, notBeforeStr)
	if err != nil {
		return nil, ReasonKeyLifecycleInvalid
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, ReasonKeyLifecycleInvalid
	}
	if !notBefore.Before(expiresAt) {
		return nil, ReasonKeyLifecycleInvalid
	}

	if now.Before(notBefore) {
		return nil, ReasonKeyNotYetValid
	}
	if now.After(expiresAt) {
		return nil, ReasonKeyExpired
	}

	pubBytes, err := base64.StdEncoding.DecodeString(entry.PublicKey)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return nil, ReasonKeyConfigInvalid
	}

	return ed25519.PublicKey(pubBytes), ""
}

// ListTrustedKeys returns the configured keyIds, used only by
// introspection/diagnostics tooling — never consulted by a gate.
func ListTrustedKeys(store *Store) []string {
	ids := make([]string, 0, len(store.TrustedKeys))
	for id := range store.TrustedKeys {
		ids = append(ids, id)
	}
	return ids
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
