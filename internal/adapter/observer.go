package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

// ObserverAdapter records an observation without any side effects. It
// validates the payload's observer-specific fields but never writes
// anything beyond the audit ledger the caller appends separately.
type ObserverAdapter struct{}

// Observation is the payload shape the observer adapter expects under
// payload.Extra.
type Observation struct {
	Source      string                 `json:"source"`
	Context     string                 `json:"context"`
	IssueType   string                 `json:"issueType"`
	Description string                 `json:"description"`
	Severity    string                 `json:"severity"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ObserverResult is the fixed output shape of the observer adapter.
type ObserverResult struct {
	Adapter     string      `json:"adapter"`
	Status      string      `json:"status"`
	Observation Observation `json:"observation"`
}

var validSeverities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

func (ObserverAdapter) Dispatch(_ context.Context, p *proposal.Proposal) (interface{}, error) {
	var obs Observation
	if len(p.Payload.Extra) > 0 {
		if err := json.Unmarshal(p.Payload.Extra, &obs); err != nil {
			return nil, fmt.Errorf("observer: malformed payload: %w", err)
		}
	}

	if obs.Source == "" {
		return nil, fmt.Errorf("observer: missing required field: source")
	}
	if obs.Context == "" {
		return nil, fmt.Errorf("observer: missing required field: context")
	}
	if obs.IssueType == "" {
		return nil, fmt.Errorf("observer: missing required field: issueType")
	}
	if obs.Description == "" {
		return nil, fmt.Errorf("observer: missing required field: description")
	}
	if !validSeverities[obs.Severity] {
		return nil, fmt.Errorf("observer: invalid severity %q", obs.Severity)
	}

	return ObserverResult{
		Adapter:     "observer",
		Status:      "recorded",
		Observation: obs,
	}, nil
}
