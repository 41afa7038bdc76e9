// Package adapter implements the constrained execution tier: once a
// proposal clears every gate, its payload is dispatched to exactly one
// named adapter. Adapters are intentionally narrow — no adapter may
// perform an action the policy engine did not already explicitly allow.
//
// Grounded on the teacher's ToolDriver abstraction in
// core/pkg/executor/driver.go (Execute(ctx, toolName, params) (any,
// error)), adapted from a single pluggable driver to a fixed dispatch
// table of noop/observer/shell adapters.
package adapter

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/sentinel/internal/proposal"
)

// Adapter dispatches a proposal's payload and returns a JSON-serializable
// result.
type Adapter interface {
	Dispatch(ctx context.Context, p *proposal.Proposal) (interface{}, error)
}

// Dispatcher selects among the registered adapters by name.
type Dispatcher struct {
	adapters map[string]Adapter
}

// NewDispatcher builds the standard noop/observer/shell dispatch table.
func NewDispatcher(shell Adapter) *Dispatcher {
	return &Dispatcher{
		adapters: map[string]Adapter{
			"noop":     NoopAdapter{},
			"observer": ObserverAdapter{},
			"shell":    shell,
		},
	}
}

// Dispatch runs p.Payload.Adapter's handler and returns its result or
// error unchanged. The only error the dispatcher adds itself is for an
// unknown/unregistered adapter name — the policy engine is responsible
// for rejecting unknown adapters before dispatch is ever reached, so that
// is a defense-in-depth check, not the primary gate.
func (d *Dispatcher) Dispatch(ctx context.Context, p *proposal.Proposal) (interface{}, error) {
	a, ok := d.adapters[p.Payload.Adapter]
	if !ok || a == nil {
		return nil, fmt.Errorf("adapter: unregistered adapter %q", p.Payload.Adapter)
	}
	return a.Dispatch(ctx, p)
}
