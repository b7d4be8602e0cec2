package flow

import (
	"context"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Gate decides whether an action may run. It must not perform I/O.
// *policy.Engine satisfies it.
type Gate interface {
	Decide(actor domain.ActorContext, action string, sensitivity domain.Sensitivity) domain.PolicyDecision
}

// GateFunc adapts a function to Gate.
type GateFunc func(actor domain.ActorContext, action string, sensitivity domain.Sensitivity) domain.PolicyDecision

// Decide calls f.
func (f GateFunc) Decide(actor domain.ActorContext, action string, sensitivity domain.Sensitivity) domain.PolicyDecision {
	return f(actor, action, sensitivity)
}

// Invoker runs a tool by name. *tools.Registry satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, name string, actor domain.ActorContext, input map[string]any) domain.ToolResult
}

// Auditor appends to a tenant's hash chain. *audit.Chain satisfies it.
type Auditor interface {
	Append(ctx context.Context, ev domain.AuditEvent) (domain.AuditEvent, error)
}

// Recorder receives per-step outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	PolicyDecision(action, outcome string)
	ToolInvoked(tool string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) PolicyDecision(string, string) {}
func (nopRecorder) ToolInvoked(string, bool)      {}
