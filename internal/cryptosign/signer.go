// Package cryptosign provides Ed25519 signing and verification over the
// canonical JSON form of proposals and policies.
package cryptosign

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/Mindburn-Labs/sentinel/internal/canonicalize"
)

// Sign signs v (after removing the given field, typically "signature") with
// priv and returns a base64-encoded 64-byte Ed25519 signature.
func Sign(priv ed25519.PrivateKey, v interface{}, excludeField string) (string, error) {
	msg, err := canonicalPayload(v, excludeField)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, msg)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64-encoded Ed25519 signature over the canonical form
// of v (with excludeField removed) against pub. Returns false (not an
// error) for an ordinary mismatch; returns an error only for malformed
// input (bad base64, wrong key size).
func Verify(pub ed25519.PublicKey, v interface{}, excludeField string, sigB64 string) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("cryptosign: invalid public key size %d", len(pub))
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, fmt.Errorf("cryptosign: invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("cryptosign: invalid signature size %d", len(sig))
	}
	msg, err := canonicalPayload(v, excludeField)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, msg, sig), nil
}

func canonicalPayload(v interface{}, excludeField string) ([]byte, error) {
	stripped, err := canonicalize.WithoutField(v, excludeField)
	if err != nil {
		return nil, err
	}
	return canonicalize.JCS(stripped)
}
