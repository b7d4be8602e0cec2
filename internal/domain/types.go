// Package domain defines the core types for the spine command orchestrator.
package domain

import "strings"

// Role is the actor's role within a tenant.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
	RoleViewer  Role = "viewer"
	RoleClient  Role = "client"
)

// Channel identifies where a request came from.
type Channel string

const (
	ChannelAPI   Channel = "api"
	ChannelCLI   Channel = "cli"
	ChannelChat  Channel = "chat"
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

// ActorContext is the immutable per-request identity. TenantID is the isolation
// boundary and is attached to every side effect and audit event.
type ActorContext struct {
	UserID   string  `json:"user_id"`
	Role     Role    `json:"role"`
	TenantID string  `json:"tenant_id"`
	NowISO   string  `json:"now_iso"`
	Timezone string  `json:"timezone"`
	Channel  Channel `json:"channel"`
}

// Validate reports the first missing identity field.
func (a ActorContext) Validate() error {
	var missing []string
	if strings.TrimSpace(a.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(string(a.Role)) == "" {
		missing = append(missing, "role")
	}
	if strings.TrimSpace(a.TenantID) == "" {
		missing = append(missing, "tenant_id")
	}
	if len(missing) > 0 {
		return NewEngineError(ErrInvalidActor.Code, ErrInvalidActor.Message+": missing "+strings.Join(missing, ", "))
	}
	return nil
}

// Intent is a ranked classification candidate. Ephemeral, lives for one request.
type Intent struct {
	Domain     string  `json:"domain"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Extraction holds structured fields pulled out of the input text.
// A non-empty Missing list forbids compiling any Execute step.
type Extraction struct {
	Entities map[string]any `json:"entities"`
	Missing  []string       `json:"missing"`
}

// Complete reports whether every required field was found.
func (e Extraction) Complete() bool {
	return len(e.Missing) == 0
}

// String returns the entity as a string, or "" if absent.
func (e Extraction) String(key string) string {
	if v, ok := e.Entities[key].(string); ok {
		return v
	}
	return ""
}

// Sensitivity is the coarse risk tier attached to an action.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Valid reports whether s is one of the declared tiers.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return true
	}
	return false
}

// StepKind tags a FlowStep variant.
type StepKind string

const (
	StepAsk     StepKind = "ask"
	StepExecute StepKind = "execute"
	StepRespond StepKind = "respond"
)

// AskStep ends the turn and asks the caller for missing fields.
type AskStep struct {
	Prompt        string   `json:"prompt"`
	MissingFields []string `json:"missing_fields"`
}

// ExecuteStep is one side-effecting operation.
type ExecuteStep struct {
	Action      string         `json:"action"`
	Tool        string         `json:"tool"`
	Sensitivity Sensitivity    `json:"sensitivity"`
	Input       map[string]any `json:"input"`
}

// RespondStep ends the turn with a message and no side effect.
type RespondStep struct {
	Message string `json:"message"`
}

// FlowStep is a tagged union; exactly one of Ask, Execute, Respond is set,
// matching Kind.
type FlowStep struct {
	Kind    StepKind     `json:"kind"`
	Ask     *AskStep     `json:"ask,omitempty"`
	Execute *ExecuteStep `json:"execute,omitempty"`
	Respond *RespondStep `json:"respond,omitempty"`
}

// Ask builds an Ask step.
func Ask(prompt string, missing []string) FlowStep {
	fields := make([]string, len(missing))
	copy(fields, missing)
	return FlowStep{Kind: StepAsk, Ask: &AskStep{Prompt: prompt, MissingFields: fields}}
}

// Execute builds an Execute step.
func Execute(action, tool string, sensitivity Sensitivity, input map[string]any) FlowStep {
	if input == nil {
		input = map[string]any{}
	}
	return FlowStep{Kind: StepExecute, Execute: &ExecuteStep{
		Action:      action,
		Tool:        tool,
		Sensitivity: sensitivity,
		Input:       input,
	}}
}

// Respond builds a Respond step.
func Respond(message string) FlowStep {
	return FlowStep{Kind: StepRespond, Respond: &RespondStep{Message: message}}
}

// ConfirmationRequest is attached to a decision that must be confirmed before
// the action runs.
type ConfirmationRequest struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// PolicyDecision is the output of the policy engine.
type PolicyDecision struct {
	Allow               bool                 `json:"allow"`
	Reason              string               `json:"reason,omitempty"`
	RequireConfirmation *ConfirmationRequest `json:"require_confirmation,omitempty"`
}

// AuditEventType names what an audit event records.
type AuditEventType string

const (
	EventActionAllowed              AuditEventType = "action.allowed"
	EventActionDenied               AuditEventType = "action.denied"
	EventActionConfirmationRequired AuditEventType = "action.confirmation_required"
	EventToolSucceeded              AuditEventType = "tool.succeeded"
	EventToolFailed                 AuditEventType = "tool.failed"
)

// AuditEvent is one append-only entry of a tenant's hash chain.
type AuditEvent struct {
	ID          string         `json:"id"`
	Seq         int64          `json:"seq"`
	TsISO       string         `json:"ts_iso"`
	TenantID    string         `json:"tenant_id"`
	ActorUserID string         `json:"actor_user_id"`
	Role        Role           `json:"role"`
	Type        AuditEventType `json:"type"`
	Details     map[string]any `json:"details"`
	PrevHash    string         `json:"prev_hash"`
	Hash        string         `json:"hash"`
}

// ToolResult is what a tool reports back. Failures are values, never panics.
type ToolResult struct {
	OK      bool           `json:"ok"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
}

// RunStatus is the terminal outcome of one Handle call.
type RunStatus string

const (
	RunCompleted            RunStatus = "completed"
	RunAsked                RunStatus = "asked"
	RunResponded            RunStatus = "responded"
	RunDenied               RunStatus = "denied"
	RunConfirmationRequired RunStatus = "confirmation_required"
	RunToolFailed           RunStatus = "tool_failed"
	RunRateLimited          RunStatus = "rate_limited"
	RunUnrecognized         RunStatus = "unrecognized"
)

// Err maps a recoverable outcome onto its error code. Completed and
// responded runs have none.
func (s RunStatus) Err() error {
	switch s {
	case RunAsked:
		return ErrValidationIncomplete
	case RunDenied:
		return ErrPolicyDenied
	case RunConfirmationRequired:
		return ErrConfirmationRequired
	case RunToolFailed:
		return ErrToolFailure
	case RunRateLimited:
		return ErrRateLimited
	case RunUnrecognized:
		return ErrClassificationMiss
	}
	return nil
}

// Final is the terminal message of a flow run.
type Final struct {
	OK           bool           `json:"ok"`
	Status       RunStatus      `json:"status"`
	Message      string         `json:"message"`
	Payload      map[string]any `json:"payload,omitempty"`
	ConfirmToken string         `json:"confirm_token,omitempty"`
}

// Result is the response of Handle: the plan that was attempted and how it ended.
type Result struct {
	RunID  string     `json:"run_id"`
	Intent *Intent    `json:"intent,omitempty"`
	Steps  []FlowStep `json:"steps"`
	Final  Final      `json:"final"`
}

// RunRecord is the history entry kept for each Handle call.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Intent    string    `json:"intent"`
	Status    RunStatus `json:"status"`
	OK        bool      `json:"ok"`
	Message   string    `json:"message"`
	CreatedAt int64     `json:"created_at"`
}
