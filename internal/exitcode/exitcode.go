// Package exitcode defines the deterministic process exit codes every
// sentinel action returns, so callers can script against a stable
// taxonomy instead of parsing output.
package exitcode

const (
	OK                    = 0
	InternalError         = 1
	PolicyDenied          = 2
	SignatureFailure      = 3
	NonceReplay           = 4
	SchemaOrProposalError = 5
	TimestampSkew         = 6
	RateLimited           = 7
	GovernanceIntegrity   = 8
	AdapterError          = 9
)

// ForReason maps a pipeline reason code to the exit code a caller should
// see. Reasons not present here fall back to InternalError.
func ForReason(reason string) int {
	switch reason {
	case "":
		return OK

	case "SCHEMA_ERROR":
		return SchemaOrProposalError

	case "KEY_ID_INVALID", "KEY_NOT_TRUSTED", "KEY_DEPRECATED",
		"KEY_REQUESTER_MISMATCH", "KEY_LIFECYCLE_INVALID",
		"KEY_NOT_YET_VALID", "KEY_EXPIRED", "KEY_CONFIG_INVALID",
		"SIGNATURE_INVALID":
		return SignatureFailure

	case "TIMESTAMP_SKEW_EXCEEDED":
		return TimestampSkew

	case "REPLAY_NONCE":
		return NonceReplay

	case "RATE_LIMIT_EXCEEDED":
		return RateLimited

	case "REQUESTER_NOT_ALLOWED", "COMMAND_NOT_ALLOWED", "ADAPTER_NOT_ALLOWED",
		"NO_FILESYSTEM_ROOTS_DEFINED", "PATH_DENIED_BY_PATTERN", "SHELL_CMD_DENIED",
		"SHELL_CMD_NOT_ALLOWLISTED":
		return PolicyDenied

	case "POLICY_SIGNATURE_MISSING", "POLICY_SIGNATURE_INVALID",
		"POLICY_SIGNER_KEY_STORE_UNAVAILABLE", "POLICY_SIGNER_NOT_TRUSTED",
		"POLICY_VERSION_REGRESSION", "POLICY_VERSION_INVALID",
		"POLICY_CREATED_AT_SKEW_EXCEEDED", "AUDIT_INTEGRITY_FAILURE":
		return GovernanceIntegrity

	case "ADAPTER_EXECUTION_ERROR":
		return AdapterError

	default:
		return InternalError
	}
}
