// Package schema compiles and applies the JSON Schema documents for
// proposals and policies, turning validation failures into the
// SCHEMA_ERROR reason with field-level messages.
//
// Grounded on the teacher's pkg/firewall/firewall.go compiled-schema
// pattern (jsonschema.NewCompiler, AddResource, Compile), adapted from a
// per-tool schema cache to two fixed schemas (proposal, policy).
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	ReasonSchemaError = "SCHEMA_ERROR"

	proposalSchemaURL = "https://sentinel.local/schema/proposal.schema.json"
	policySchemaURL   = "https://sentinel.local/schema/policy.schema.json"
)

// Validator holds compiled schemas for proposals and policies.
type Validator struct {
	proposal *jsonschema.Schema
	policy   *jsonschema.Schema
}

// New compiles the built-in proposal and policy schemas.
func New() (*Validator, error) {
	v := &Validator{}

	compiled, err := compile(proposalSchemaURL, ProposalSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("schema: compile proposal schema: %w", err)
	}
	v.proposal = compiled

	compiled, err = compile(policySchemaURL, PolicySchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("schema: compile policy schema: %w", err)
	}
	v.policy = compiled

	return v, nil
}

func compile(url, doc string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	// The 2020-12 "format" vocabulary is annotation-only unless a
	// compiler asks for assertion; commandId's uuid format only gates
	// SCHEMA_ERROR if this is on.
	c.AssertFormat = true
	if err := c.AddResource(url, strings.NewReader(doc)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// ValidationError describes a single field-level schema failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateProposal checks raw proposal JSON against the proposal schema.
func (v *Validator) ValidateProposal(raw []byte) (ok bool, errs []ValidationError) {
	return validateAgainst(v.proposal, raw)
}

// ValidatePolicy checks raw policy JSON against the policy schema.
func (v *Validator) ValidatePolicy(raw []byte) (ok bool, errs []ValidationError) {
	return validateAgainst(v.policy, raw)
}

func validateAgainst(schema *jsonschema.Schema, raw []byte) (bool, []ValidationError) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, []ValidationError{{Field: "$", Message: "invalid JSON: " + err.Error()}}
	}

	if err := schema.Validate(doc); err != nil {
		return false, flattenValidationError(err)
	}
	return true, nil
}

func flattenValidationError(err error) []ValidationError {
	valErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []ValidationError{{Field: "$", Message: err.Error()}}
	}

	var out []ValidationError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.Join(e.InstanceLocation, ".")
			if field == "" {
				field = "$"
			}
			out = append(out, ValidationError{Field: field, Message: e.Message})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(valErr)
	return out
}
