package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Mindburn-Labs/sentinel/internal/action"
)

// runPolicySignCmd implements `sentinel policy-sign`: it signs the
// canonical form of the policy document with an operator-supplied private
// key and writes the resulting envelope to --policy-sig.
func runPolicySignCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("policy-sign", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	paths := registerGovernanceFlags(cmd, false)

	var keyID, privateKeyPath string
	cmd.StringVar(&keyID, "key-id", "", "keyId to record in the signature envelope (REQUIRED)")
	cmd.StringVar(&privateKeyPath, "private-key", "", "Path to a file holding a base64-encoded Ed25519 private key or seed (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if keyID == "" || privateKeyPath == "" {
		fmt.Fprintln(stderr, "sentinel policy-sign: --key-id and --private-key are required")
		return 1
	}

	priv, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		fmt.Fprintf(stderr, "sentinel policy-sign: %v\n", err)
		return 1
	}

	result, code := action.PolicySign(*paths, keyID, priv)
	printResult(stdout, result)
	return code
}

// loadPrivateKey reads a base64-encoded Ed25519 private key (64 bytes) or
// seed (32 bytes) from path.
func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	switch len(decoded) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	default:
		return nil, fmt.Errorf("private key must be %d (full key) or %d (seed) bytes, got %d", ed25519.PrivateKeySize, ed25519.SeedSize, len(decoded))
	}
}
