package adapter

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

// NoopAdapter performs no side effects; it only echoes what it would have
// executed, for dry-run style proposals.
type NoopAdapter struct{}

// NoopResult is the fixed output shape of the noop adapter (spec §4.12).
type NoopResult struct {
	Adapter  string `json:"adapter"`
	Status   string `json:"status"`
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
}

func (NoopAdapter) Dispatch(_ context.Context, p *proposal.Proposal) (interface{}, error) {
	return NoopResult{
		Adapter:  "noop",
		Status:   "completed",
		Output:   fmt.Sprintf("[NOOP] Would execute: %s on adapter: %s", p.ID, p.Payload.Adapter),
		ExitCode: 0,
	}, nil
}
