package schema

// ProposalSchemaJSON is the JSON Schema (2020-12) for an action proposal.
const ProposalSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "commandId", "requesterId", "sessionId", "timestamp", "nonce", "payload", "signature"],
  "properties": {
    "id": {"type": "string", "pattern": "^[A-Z_]+$", "maxLength": 50},
    "commandId": {"type": "string", "format": "uuid"},
    "requesterId": {"type": "string", "minLength": 1},
    "sessionId": {"type": "string", "minLength": 1},
    "timestamp": {"type": "integer"},
    "nonce": {"type": "string", "pattern": "^[0-9a-fA-F]{32,128}$"},
    "requires": {"type": "array", "items": {"type": "string"}},
    "risk": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "CRITICAL"]},
    "payload": {
      "type": "object",
      "required": ["adapter"],
      "properties": {
        "adapter": {"type": "string", "minLength": 1}
      }
    },
    "signature": {
      "type": "object",
      "required": ["alg", "keyId", "sig"],
      "properties": {
        "alg": {"type": "string", "enum": ["ed25519"]},
        "keyId": {"type": "string", "minLength": 1},
        "sig": {"type": "string", "minLength": 1}
      }
    }
  },
  "additionalProperties": true
}`

// PolicySchemaJSON is the JSON Schema (2020-12) for a policy document.
const PolicySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "createdAt", "allowedCommands", "allowedAdapters"],
  "properties": {
    "default": {"type": "string", "enum": ["DENY"]},
    "version": {"type": ["integer", "string"]},
    "createdAt": {"type": "integer"},
    "security": {
      "type": "object",
      "properties": {
        "maxClockSkewSec": {"type": "integer", "minimum": 0},
        "maxPolicyCreatedAtSkewSec": {"type": "integer", "minimum": 0},
        "defaultRateLimit": {
          "type": "object",
          "properties": {
            "windowSeconds": {"type": "integer", "minimum": 1},
            "maxRequests": {"type": "integer", "minimum": 1}
          }
        }
      }
    },
    "allowedCommands": {"type": "array", "items": {"type": "string"}},
    "allowedAdapters": {"type": "array", "items": {"type": "string"}},
    "filesystemRoots": {"type": "array", "items": {"type": "string"}},
    "denyGlobs": {"type": "array", "items": {"type": "string"}},
    "shellAllowedCommands": {"type": "array", "items": {"type": "string"}},
    "shellDeniedCommands": {"type": "array", "items": {"type": "string"}},
    "maxShellTimeoutSec": {"type": "integer", "minimum": 1},
    "rateLimit": {
      "type": "object",
      "required": ["windowSeconds", "maxRequests"],
      "properties": {
        "windowSeconds": {"type": "integer", "minimum": 1},
        "maxRequests": {"type": "integer", "minimum": 1}
      }
    },
    "riskRules": {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": true
}`
