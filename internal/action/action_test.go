package action

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sentinel/internal/adapter"
	"github.com/Mindburn-Labs/sentinel/internal/cryptosign"
	"github.com/Mindburn-Labs/sentinel/internal/exitcode"
	"github.com/Mindburn-Labs/sentinel/internal/keyring"
	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

// fixture bundles a temp data/config directory plus the signing keys
// needed to build a well-formed, trusted environment for one test.
type fixture struct {
	t          *testing.T
	dir        string
	policyPriv ed25519.PrivateKey
	agentPriv  ed25519.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	policyPub, policyPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	agentPub, agentPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	store := keyring.Store{
		SchemaVersion: 1,
		TrustedKeys: map[string]keyring.Entry{
			"policy-signer-v1": {
				PublicKey: base64.StdEncoding.EncodeToString(policyPub),
				NotBefore: "2025-01-01T00:00:00Z",
				ExpiresAt: "2030-01-01T00:00:00Z",
			},
			"agent:gpt-v1": {
				PublicKey:   base64.StdEncoding.EncodeToString(agentPub),
				RequesterID: "agent:gpt",
				NotBefore:   "2025-01-01T00:00:00Z",
				ExpiresAt:   "2030-01-01T00:00:00Z",
			},
		},
	}
	data, err := json.Marshal(store)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keys.json"), data, 0600))

	return &fixture{t: t, dir: dir, policyPriv: policyPriv, agentPriv: agentPriv}
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *fixture) writeAndSignPolicy(pol proposal.Policy) {
	f.t.Helper()
	data, err := json.Marshal(pol)
	require.NoError(f.t, err)
	require.NoError(f.t, os.WriteFile(f.path("policy.json"), data, 0600))

	// Sign the full generic decode of the on-disk bytes, exactly as
	// PolicySign does, so this fixture's signing matches what
	// loadGovernance verifies against.
	var rawPolicyDoc interface{}
	require.NoError(f.t, json.Unmarshal(data, &rawPolicyDoc))
	sig, err := cryptosign.Sign(f.policyPriv, rawPolicyDoc, "")
	require.NoError(f.t, err)

	envelope := proposal.PolicySignatureEnvelope{
		Alg:       "ed25519",
		KeyID:     "policy-signer-v1",
		Sig:       sig,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	envData, err := json.Marshal(envelope)
	require.NoError(f.t, err)
	require.NoError(f.t, os.WriteFile(f.path("policy.sig.json"), envData, 0600))
}

func (f *fixture) writeProposal(p proposal.Proposal) {
	f.t.Helper()
	sig, err := cryptosign.Sign(f.agentPriv, &p, "signature")
	require.NoError(f.t, err)
	p.Signature.Sig = sig

	data, err := json.Marshal(p)
	require.NoError(f.t, err)
	require.NoError(f.t, os.WriteFile(f.path("proposal.json"), data, 0600))
}

func (f *fixture) paths() Paths {
	return Paths{
		Proposal:       f.path("proposal.json"),
		Policy:         f.path("policy.json"),
		PolicySig:      f.path("policy.sig.json"),
		Keys:           f.path("keys.json"),
		NonceState:     f.path("nonce.db.json"),
		RateLimitState: f.path("rate-limit.db.json"),
		VersionState:   f.path("policy.state.json"),
		AuditLog:       f.path("audit.log.jsonl"),
	}
}

func basePolicy() proposal.Policy {
	return proposal.Policy{
		Version:         float64(1),
		CreatedAt:       time.Now().Unix(),
		AllowedCommands: []string{"RUN_SHELL"},
		AllowedAdapters: []string{"noop"},
	}
}

func baseProposal() proposal.Proposal {
	return proposal.Proposal{
		ID:          "RUN_SHELL",
		CommandID:   uuid.NewString(),
		RequesterID: "agent:gpt",
		SessionID:   "sess-1",
		Timestamp:   time.Now().Unix(),
		Nonce:       "abcdef0123456789abcdef0123456789",
		Risk:        "LOW",
		Payload:     proposal.Payload{Adapter: "noop", Command: "echo", Args: []string{"hello", "world"}},
		Signature:   proposal.Signature{Alg: "ed25519", KeyID: "agent:gpt-v1"},
	}
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.writeAndSignPolicy(basePolicy())
	f.writeProposal(baseProposal())

	result, code := Run(f.paths(), adapter.ShellAdapter{})
	require.Equal(t, exitcode.OK, code)
	require.Equal(t, "executed", result.Status)
	require.NotEmpty(t, result.CommandID)
	require.NotNil(t, result.Checks)
	require.True(t, result.Checks.Nonce)

	verifyResult, verifyCode := AuditVerify(f.paths(), AuditVerifyOptions{})
	require.Equal(t, exitcode.OK, verifyCode)
	require.Equal(t, "valid", verifyResult.Status)
}

func TestRun_ReplayRejected(t *testing.T) {
	f := newFixture(t)
	f.writeAndSignPolicy(basePolicy())
	f.writeProposal(baseProposal())

	_, code := Run(f.paths(), adapter.ShellAdapter{})
	require.Equal(t, exitcode.OK, code)

	second, code := Run(f.paths(), adapter.ShellAdapter{})
	require.Equal(t, exitcode.NonceReplay, code)
	require.Equal(t, "denied", second.Status)
	require.Contains(t, second.Errors, "REPLAY_NONCE")
}

func TestRun_PolicyDenyByDefault(t *testing.T) {
	f := newFixture(t)
	pol := basePolicy()
	pol.AllowedCommands = []string{"OTHER_COMMAND"}
	f.writeAndSignPolicy(pol)
	f.writeProposal(baseProposal())

	result, code := Run(f.paths(), adapter.ShellAdapter{})
	require.Equal(t, exitcode.PolicyDenied, code)
	require.Equal(t, "denied", result.Status)
	require.Contains(t, result.Errors, "COMMAND_NOT_ALLOWED")
}

func TestVerify_PureNoStateMutation(t *testing.T) {
	f := newFixture(t)
	f.writeAndSignPolicy(basePolicy())
	f.writeProposal(baseProposal())

	result, code := Verify(f.paths())
	require.Equal(t, exitcode.OK, code)
	require.Equal(t, "valid", result.Status)

	_, err := os.Stat(f.path("nonce.db.json"))
	require.True(t, os.IsNotExist(err), "verify must not persist nonce state")
	_, err = os.Stat(f.path("audit.log.jsonl"))
	require.True(t, os.IsNotExist(err), "verify must not append an audit entry")

	// Running the same proposal through verify twice must not trigger a
	// replay: verify never consumes the nonce.
	second, code := Verify(f.paths())
	require.Equal(t, exitcode.OK, code)
	require.Equal(t, "valid", second.Status)
}

func TestDryrun_DispatchesNoopWithoutAudit(t *testing.T) {
	f := newFixture(t)
	f.writeAndSignPolicy(basePolicy())
	f.writeProposal(baseProposal())

	result, code := Dryrun(f.paths())
	require.Equal(t, exitcode.OK, code)
	require.Equal(t, "valid_simulated", result.Status)
	require.NotNil(t, result.ExecutionResult)

	_, err := os.Stat(f.path("audit.log.jsonl"))
	require.True(t, os.IsNotExist(err), "dryrun must not append an audit entry")
}

func TestPolicyTamperWithoutResign_FailsSignatureCheck(t *testing.T) {
	f := newFixture(t)
	f.writeAndSignPolicy(basePolicy())
	f.writeProposal(baseProposal())

	raw, err := os.ReadFile(f.path("policy.json"))
	require.NoError(t, err)
	var tampered proposal.Policy
	require.NoError(t, json.Unmarshal(raw, &tampered))
	tampered.AllowedAdapters = append(tampered.AllowedAdapters, "shell")
	tamperedData, err := json.Marshal(tampered)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.path("policy.json"), tamperedData, 0600))

	result, code := Verify(f.paths())
	require.Equal(t, exitcode.GovernanceIntegrity, code)
	require.Equal(t, "error", result.Status)
	require.Equal(t, "POLICY_SIGNATURE_INVALID", result.Error)
}

// TestPolicyTamperUnmodeledFieldWithoutResign_FailsSignatureCheck is
// spec §8 scenario 4 literally: flip policy.default from "DENY" to
// "ALLOW" without re-signing. "default" is not a field proposal.Policy
// models, so this proves the signature covers the full on-disk document,
// not a lossy re-marshal of the typed struct.
func TestPolicyTamperUnmodeledFieldWithoutResign_FailsSignatureCheck(t *testing.T) {
	f := newFixture(t)
	pol := basePolicy()
	f.writeAndSignPolicy(pol)
	f.writeProposal(baseProposal())

	raw, err := os.ReadFile(f.path("policy.json"))
	require.NoError(t, err)
	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	generic["default"] = "ALLOW"
	tamperedData, err := json.Marshal(generic)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.path("policy.json"), tamperedData, 0600))

	result, code := Verify(f.paths())
	require.Equal(t, exitcode.GovernanceIntegrity, code)
	require.Equal(t, "error", result.Status)
	require.Equal(t, "POLICY_SIGNATURE_INVALID", result.Error)
}

func TestPolicyVersionRegression(t *testing.T) {
	f := newFixture(t)

	newer := basePolicy()
	newer.Version = "1.0.1"
	newer.CreatedAt = time.Now().Unix()
	f.writeAndSignPolicy(newer)
	f.writeProposal(baseProposal())
	_, code := Verify(f.paths())
	require.Equal(t, exitcode.OK, code)

	older := basePolicy()
	older.Version = "1.0.0"
	older.CreatedAt = time.Now().Add(-time.Hour).Unix()
	f.writeAndSignPolicy(older)

	result, code := Verify(f.paths())
	require.Equal(t, exitcode.GovernanceIntegrity, code)
	require.Equal(t, "error", result.Status)
	require.Equal(t, "POLICY_VERSION_REGRESSION", result.Error)
}

func TestAuditVerify_TamperedEntryDetected(t *testing.T) {
	f := newFixture(t)
	f.writeAndSignPolicy(basePolicy())
	f.writeProposal(baseProposal())

	_, code := Run(f.paths(), adapter.ShellAdapter{})
	require.Equal(t, exitcode.OK, code)

	raw, err := os.ReadFile(f.path("audit.log.jsonl"))
	require.NoError(t, err)
	// Flip the recorded outcome in place: still valid JSON, but the
	// recomputed hash no longer matches what was stored.
	tampered := []byte(strings.Replace(string(raw), `"allowed"`, `"denied"`, 1))
	require.NoError(t, os.WriteFile(f.path("audit.log.jsonl"), tampered, 0600))

	result, code := AuditVerify(f.paths(), AuditVerifyOptions{})
	require.Equal(t, exitcode.GovernanceIntegrity, code)
	require.Equal(t, "invalid", result.Status)
}

func TestPolicySign_ProducesVerifiableEnvelope(t *testing.T) {
	f := newFixture(t)
	pol := basePolicy()
	data, err := json.Marshal(pol)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.path("policy.json"), data, 0600))

	result, code := PolicySign(f.paths(), "policy-signer-v1", f.policyPriv)
	require.Equal(t, exitcode.OK, code)
	require.Equal(t, "signed", result.Status)

	f.writeProposal(baseProposal())
	verifyResult, verifyCode := Verify(f.paths())
	require.Equal(t, exitcode.OK, verifyCode)
	require.Equal(t, "valid", verifyResult.Status)
}
