package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/confirm"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

var tracer = otel.Tracer("github.com/Ayejay3194/Auth-spine-sub014/internal/flow")

// Policy outcomes reported to the Recorder.
const (
	OutcomeAllowed              = "allowed"
	OutcomeConfirmed            = "confirmed"
	OutcomeDenied               = "denied"
	OutcomeConfirmationRequired = "confirmation_required"
)

// Engine is the state machine that walks a compiled plan.
type Engine struct {
	gate     Gate
	tools    Invoker
	audit    Auditor
	confirms confirm.Store
	recorder Recorder
	logger   *zap.Logger
	clock    func() time.Time
	ttl      time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder reports policy and tool outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithClock overrides the clock used for confirmation expiry.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithConfirmTTL sets how long an issued confirmation token stays redeemable.
func WithConfirmTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// NewEngine creates a flow engine. A nil logger disables logging.
func NewEngine(gate Gate, tools Invoker, auditor Auditor, confirms confirm.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		gate:     gate,
		tools:    tools,
		audit:    auditor,
		confirms: confirms,
		recorder: nopRecorder{},
		logger:   logger.Named("flow"),
		clock:    time.Now,
		ttl:      confirm.DefaultTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome is what a run attempted and how it ended.
type Outcome struct {
	// Steps are the steps processed, up to and including the one that ended the run.
	Steps []domain.FlowStep
	Final domain.Final
	// Invoked lists the tools called, in order, whether or not they succeeded.
	Invoked []string
}

// Run processes steps strictly in order. Ask, Respond, a denial, a missing
// confirmation and a failed tool all end the run.
//
// Confirmation is settled before any step executes. When the plan holds
// several steps that need it, one token covers all of them, bound to every
// action and input in the plan, and redeeming it runs them all.
//
// Errors are reserved for hard failures: a malformed plan, an illegal state
// transition, or an audit append that did not land. Once an append fails no
// further tool is invoked.
func (e *Engine) Run(ctx context.Context, actor domain.ActorContext, steps []domain.FlowStep, confirmToken string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "flow.Run", trace.WithAttributes(
		attribute.String("tenant_id", actor.TenantID),
		attribute.Int("steps", len(steps)),
	))
	defer span.End()

	out, err := e.run(ctx, actor, steps, confirmToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	span.SetAttributes(attribute.String("status", string(out.Final.Status)))
	return out, nil
}

// gated is an Execute step of the plan with its policy decision.
type gated struct {
	index    int
	step     domain.ExecuteStep
	decision domain.PolicyDecision
}

// scan validates steps up to the first one that will end the run and decides
// every Execute step on the way. It stops after the first denial since nothing
// past it can run.
func (e *Engine) scan(actor domain.ActorContext, steps []domain.FlowStep) (map[int]domain.PolicyDecision, []gated, error) {
	decisions := make(map[int]domain.PolicyDecision)
	var sensitive []gated
	for i, step := range steps {
		next, err := stateFor(step)
		if err != nil {
			return nil, nil, err
		}
		if next != StateExecuting {
			break
		}
		d := e.gate.Decide(actor, step.Execute.Action, step.Execute.Sensitivity)
		decisions[i] = d
		if !d.Allow {
			break
		}
		if d.RequireConfirmation != nil {
			sensitive = append(sensitive, gated{index: i, step: *step.Execute, decision: d})
		}
	}
	return decisions, sensitive, nil
}

// planBinding ties a confirmation to every sensitive step of the plan. A
// single step binds to its own action and input.
func planBinding(actor domain.ActorContext, sensitive []gated) (confirm.Binding, error) {
	if len(sensitive) == 1 {
		return confirm.NewBinding(actor, sensitive[0].step.Action, sensitive[0].step.Input)
	}
	actions := make([]string, len(sensitive))
	inputs := make([]any, len(sensitive))
	for i, g := range sensitive {
		actions[i] = g.step.Action
		in := g.step.Input
		if in == nil {
			in = map[string]any{}
		}
		inputs[i] = in
	}
	return confirm.NewBinding(actor, strings.Join(actions, "+"), map[string]any{"steps": inputs})
}

func (e *Engine) run(ctx context.Context, actor domain.ActorContext, steps []domain.FlowStep, token string) (Outcome, error) {
	var out Outcome
	if len(steps) == 0 {
		return out, domain.ErrEmptyFlow
	}

	decisions, sensitive, err := e.scan(actor, steps)
	if err != nil {
		return out, err
	}

	m := &machine{state: StatePending}
	confirmed := false
	if len(sensitive) > 0 {
		binding, err := planBinding(actor, sensitive)
		if err != nil {
			return out, err
		}
		confirmed, err = e.redeem(ctx, token, binding)
		if err != nil {
			return out, err
		}
		if !confirmed {
			first := sensitive[0]
			out.Steps = append(out.Steps, steps[:first.index+1]...)
			if err := m.to(StateExecuting); err != nil {
				return out, err
			}
			halt, err := e.requireConfirmation(ctx, actor, sensitive, binding)
			if err != nil {
				return out, err
			}
			e.logger.Info("flow halted",
				zap.String("tenant", actor.TenantID),
				zap.Int("step", first.index),
				zap.String("action", first.step.Action),
				zap.Int("covers", len(sensitive)),
				zap.String("status", string(halt.Status)))
			out.Final = *halt
			return out, m.to(StateDone)
		}
	}

	var last *domain.ToolResult
	for i, step := range steps {
		next, err := stateFor(step)
		if err != nil {
			return out, err
		}
		if err := m.to(next); err != nil {
			return out, err
		}
		out.Steps = append(out.Steps, step)

		switch next {
		case StateAsking:
			out.Final = domain.Final{
				OK:      false,
				Status:  domain.RunAsked,
				Message: step.Ask.Prompt,
				Payload: map[string]any{"missing": step.Ask.MissingFields},
			}
			return out, m.to(StateDone)

		case StateResponding:
			out.Final = domain.Final{OK: true, Status: domain.RunResponded, Message: step.Respond.Message}
			if last != nil {
				out.Final.Status = domain.RunCompleted
				out.Final.Payload = last.Data
			}
			return out, m.to(StateDone)

		case StateExecuting:
			decision, ok := decisions[i]
			if !ok {
				decision = e.gate.Decide(actor, step.Execute.Action, step.Execute.Sensitivity)
			}
			res, halt, invoked, err := e.execute(ctx, actor, *step.Execute, decision, confirmed)
			if invoked {
				out.Invoked = append(out.Invoked, step.Execute.Tool)
			}
			if err != nil {
				return out, err
			}
			if halt != nil {
				e.logger.Info("flow halted",
					zap.String("tenant", actor.TenantID),
					zap.Int("step", i),
					zap.String("action", step.Execute.Action),
					zap.String("status", string(halt.Status)))
				out.Final = *halt
				return out, m.to(StateDone)
			}
			last = &res
		}
	}

	if err := m.to(StateDone); err != nil {
		return out, err
	}
	out.Final = domain.Final{OK: true, Status: domain.RunCompleted, Message: last.Message, Payload: last.Data}
	return out, nil
}

// execute handles one Execute step under its policy decision. confirmed
// reports that the run's confirmation token was redeemed. It returns a non-nil
// Final when the run must stop, and invoked reports whether the tool was called.
func (e *Engine) execute(ctx context.Context, actor domain.ActorContext, step domain.ExecuteStep, decision domain.PolicyDecision, confirmed bool) (res domain.ToolResult, halt *domain.Final, invoked bool, err error) {
	ctx, span := tracer.Start(ctx, "flow.execute", trace.WithAttributes(
		attribute.String("tenant_id", actor.TenantID),
		attribute.String("action", step.Action),
		attribute.String("tool", step.Tool),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	details := map[string]any{
		"action":      step.Action,
		"tool":        step.Tool,
		"sensitivity": string(step.Sensitivity),
	}

	if !decision.Allow {
		e.recorder.PolicyDecision(step.Action, OutcomeDenied)
		details["reason"] = decision.Reason
		if err := e.appendEvent(ctx, actor, domain.EventActionDenied, details); err != nil {
			return res, nil, false, err
		}
		return res, &domain.Final{OK: false, Status: domain.RunDenied, Message: decision.Reason}, false, nil
	}

	outcome := OutcomeAllowed
	if decision.RequireConfirmation != nil {
		if !confirmed {
			return res, nil, false, fmt.Errorf("%w: %s reached without confirmation", domain.ErrInvalidTransition, step.Action)
		}
		outcome = OutcomeConfirmed
		details["confirmed"] = true
	}

	e.recorder.PolicyDecision(step.Action, outcome)
	if err := e.appendEvent(ctx, actor, domain.EventActionAllowed, details); err != nil {
		return res, nil, false, err
	}

	res = e.tools.Invoke(ctx, step.Tool, actor, step.Input)
	e.recorder.ToolInvoked(step.Tool, res.OK)
	span.SetAttributes(attribute.Bool("tool.ok", res.OK))

	result := map[string]any{"action": step.Action, "tool": step.Tool}
	typ := domain.EventToolSucceeded
	if res.OK {
		if id, ok := res.Data["id"].(string); ok {
			result["record_id"] = id
		}
	} else {
		typ = domain.EventToolFailed
		result["message"] = res.Message
	}
	if err := e.appendEvent(ctx, actor, typ, result); err != nil {
		return res, nil, true, err
	}

	if !res.OK {
		return res, &domain.Final{OK: false, Status: domain.RunToolFailed, Message: res.Message, Payload: res.Data}, true, nil
	}
	return res, nil, true, nil
}

// requireConfirmation stores one pending confirmation covering every
// sensitive step and audits it against the first.
func (e *Engine) requireConfirmation(ctx context.Context, actor domain.ActorContext, sensitive []gated, binding confirm.Binding) (*domain.Final, error) {
	first := sensitive[0]
	req := first.decision.RequireConfirmation
	actions := make([]string, len(sensitive))
	for i, g := range sensitive {
		actions[i] = g.step.Action
		e.recorder.PolicyDecision(g.step.Action, OutcomeConfirmationRequired)
	}

	pending := confirm.Pending{Token: req.Token, Binding: binding, ExpiresAt: e.clock().Add(e.ttl)}
	if err := e.confirms.Put(ctx, pending); err != nil {
		return nil, fmt.Errorf("store confirmation: %w", err)
	}

	details := map[string]any{
		"action":      first.step.Action,
		"tool":        first.step.Tool,
		"sensitivity": string(first.step.Sensitivity),
		"expires_at":  pending.ExpiresAt.UTC().Format(time.RFC3339),
	}
	payload := map[string]any{"confirm_token": req.Token, "action": first.step.Action}
	if len(actions) > 1 {
		details["covers"] = actions
		payload["covers"] = actions
	}
	if err := e.appendEvent(ctx, actor, domain.EventActionConfirmationRequired, details); err != nil {
		return nil, err
	}

	return &domain.Final{
		OK:           false,
		Status:       domain.RunConfirmationRequired,
		Message:      req.Message,
		Payload:      payload,
		ConfirmToken: req.Token,
	}, nil
}

// redeem consumes token for binding. An unknown, mismatched or expired token
// is not an error; the caller simply gets a fresh confirmation request.
func (e *Engine) redeem(ctx context.Context, token string, binding confirm.Binding) (bool, error) {
	if token == "" {
		return false, nil
	}
	err := e.confirms.Consume(ctx, token, binding)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrConfirmationInvalid), errors.Is(err, domain.ErrConfirmationExpired):
		e.logger.Info("confirmation token rejected",
			zap.String("tenant", binding.TenantID),
			zap.String("action", binding.Action),
			zap.Error(err))
		return false, nil
	default:
		return false, fmt.Errorf("redeem confirmation: %w", err)
	}
}

func (e *Engine) appendEvent(ctx context.Context, actor domain.ActorContext, typ domain.AuditEventType, details map[string]any) error {
	_, err := e.audit.Append(ctx, domain.AuditEvent{
		TenantID:    actor.TenantID,
		ActorUserID: actor.UserID,
		Role:        actor.Role,
		Type:        typ,
		Details:     details,
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", typ, err)
	}
	return nil
}
