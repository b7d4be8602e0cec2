package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/audit"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/confirm"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/policy"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	engine   *Engine
	chain    *audit.Chain
	confirms *confirm.MemoryStore
	calls    map[string]int
	now      time.Time
	recorder *countingRecorder
}

type countingRecorder struct {
	policy map[string]int
	tools  map[string]int
}

func (r *countingRecorder) PolicyDecision(_, outcome string) { r.policy[outcome]++ }
func (r *countingRecorder) ToolInvoked(tool string, ok bool) {
	r.tools[fmt.Sprintf("%s:%t", tool, ok)]++
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		calls:    map[string]int{},
		now:      time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		recorder: &countingRecorder{policy: map[string]int{}, tools: map[string]int{}},
	}
	clock := func() time.Time { return h.now }

	seq := 0
	gate, err := policy.NewEngine(policy.DefaultConfig(), policy.WithTokenSource(func() string {
		seq++
		return fmt.Sprintf("tok-%d", seq)
	}))
	require.NoError(t, err)

	reg := tools.NewRegistry()
	for _, name := range []string{"bookings.create", "invoices.create", "notify.send"} {
		name := name
		require.NoError(t, reg.Register(tools.Tool{
			Name: name,
			Fn: func(_ context.Context, _ domain.ActorContext, in map[string]any) domain.ToolResult {
				h.calls[name]++
				return domain.ToolResult{OK: true, Data: map[string]any{"id": name + "-1", "input": in}, Message: name + " done"}
			},
		}))
	}
	require.NoError(t, reg.Register(tools.Tool{
		Name: "broken",
		Fn: func(context.Context, domain.ActorContext, map[string]any) domain.ToolResult {
			h.calls["broken"]++
			return domain.ToolResult{OK: false, Message: "upstream unavailable"}
		},
	}))

	h.chain = audit.NewChain(audit.NewMemoryStore(), nil).WithClock(clock)
	h.confirms = confirm.NewMemoryStore().WithClock(clock)
	h.engine = NewEngine(gate, reg, h.chain, h.confirms, nil, WithClock(clock), WithRecorder(h.recorder))
	return h
}

func (h *harness) events(t *testing.T, tenant string) []domain.AuditEvent {
	t.Helper()
	evs, err := h.chain.List(context.Background(), tenant)
	require.NoError(t, err)
	return evs
}

func actor(role domain.Role) domain.ActorContext {
	return domain.ActorContext{UserID: "u1", Role: role, TenantID: "t1", Channel: domain.ChannelAPI}
}

func invoiceStep(cents int64) domain.FlowStep {
	return domain.Execute("payments.invoice_create", "invoices.create", domain.SensitivityHigh, map[string]any{
		"client_email": "alex@example.com", "amount_cents": cents, "currency": "usd",
	})
}

func bookingStep() domain.FlowStep {
	return domain.Execute("booking.create", "bookings.create", domain.SensitivityLow, map[string]any{
		"service": "haircut", "client_email": "alex@example.com", "start": "2026-10-17T15:00:00Z", "duration_min": 60,
	})
}

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StatePending, StateAsking, true},
		{StatePending, StateExecuting, true},
		{StatePending, StateResponding, true},
		{StatePending, StateDone, false},
		{StateExecuting, StateExecuting, true},
		{StateExecuting, StateDone, true},
		{StateAsking, StateExecuting, false},
		{StateResponding, StateAsking, false},
		{StateDone, StatePending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsValidTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRunRejectsEmptyAndMalformedPlans(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Run(context.Background(), actor(domain.RoleOwner), nil, "")
	assert.True(t, errors.Is(err, domain.ErrEmptyFlow))

	_, err = h.engine.Run(context.Background(), actor(domain.RoleOwner), []domain.FlowStep{{Kind: domain.StepExecute}}, "")
	assert.True(t, errors.Is(err, domain.ErrMalformedStep))
}

func TestAskHaltsWithoutInvoking(t *testing.T) {
	h := newHarness(t)
	steps := []domain.FlowStep{domain.Ask("I still need: start", []string{"start"}), bookingStep()}

	out, err := h.engine.Run(context.Background(), actor(domain.RoleOwner), steps, "")
	require.NoError(t, err)

	assert.Equal(t, domain.RunAsked, out.Final.Status)
	assert.False(t, out.Final.OK)
	assert.Equal(t, []string{"start"}, out.Final.Payload["missing"])
	assert.Len(t, out.Steps, 1)
	assert.Empty(t, out.Invoked)
	assert.Empty(t, h.events(t, "t1"))
}

func TestLowSensitivityExecutes(t *testing.T) {
	h := newHarness(t)

	out, err := h.engine.Run(context.Background(), actor(domain.RoleOwner), []domain.FlowStep{bookingStep()}, "")
	require.NoError(t, err)

	assert.True(t, out.Final.OK)
	assert.Equal(t, domain.RunCompleted, out.Final.Status)
	assert.Equal(t, "bookings.create-1", out.Final.Payload["id"])
	assert.Equal(t, []string{"bookings.create"}, out.Invoked)

	evs := h.events(t, "t1")
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventActionAllowed, evs[0].Type)
	assert.Equal(t, domain.EventToolSucceeded, evs[1].Type)
	assert.Equal(t, "bookings.create-1", evs[1].Details["record_id"])
	assert.Equal(t, 1, h.recorder.policy[OutcomeAllowed])
}

func TestDeniedIsAuditedAndStops(t *testing.T) {
	h := newHarness(t)
	steps := []domain.FlowStep{bookingStep(), domain.Respond("never reached")}

	out, err := h.engine.Run(context.Background(), actor(domain.RoleViewer), steps, "")
	require.NoError(t, err)

	assert.False(t, out.Final.OK)
	assert.Equal(t, domain.RunDenied, out.Final.Status)
	assert.Contains(t, out.Final.Message, "viewer")
	assert.Zero(t, h.calls["bookings.create"])
	assert.Len(t, out.Steps, 1)

	evs := h.events(t, "t1")
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventActionDenied, evs[0].Type)
	assert.Equal(t, out.Final.Message, evs[0].Details["reason"])
}

func TestConfirmationRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	staff := actor(domain.RoleStaff)

	first, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(10000)}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, first.Final.Status)
	assert.False(t, first.Final.OK)
	token := first.Final.ConfirmToken
	require.NotEmpty(t, token)
	assert.Equal(t, token, first.Final.Payload["confirm_token"])
	assert.Zero(t, h.calls["invoices.create"])

	wrong, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(10000)}, "bogus")
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, wrong.Final.Status)
	assert.Zero(t, h.calls["invoices.create"])

	second, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(10000)}, token)
	require.NoError(t, err)
	assert.True(t, second.Final.OK)
	assert.Equal(t, domain.RunCompleted, second.Final.Status)
	assert.Equal(t, 1, h.calls["invoices.create"])

	replay, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(10000)}, token)
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, replay.Final.Status)
	assert.Equal(t, 1, h.calls["invoices.create"], "a token redeems exactly once")

	types := []domain.AuditEventType{}
	for _, ev := range h.events(t, "t1") {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.AuditEventType{
		domain.EventActionConfirmationRequired,
		domain.EventActionConfirmationRequired,
		domain.EventActionAllowed,
		domain.EventToolSucceeded,
		domain.EventActionConfirmationRequired,
	}, types)
	assert.Equal(t, 1, h.recorder.policy[OutcomeConfirmed])
}

func TestConfirmationBoundToInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	staff := actor(domain.RoleStaff)

	first, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(10000)}, "")
	require.NoError(t, err)

	changed, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(99999)}, first.Final.ConfirmToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, changed.Final.Status)
	assert.Zero(t, h.calls["invoices.create"])

	other := staff
	other.UserID = "u2"
	stolen, err := h.engine.Run(ctx, other, []domain.FlowStep{invoiceStep(10000)}, first.Final.ConfirmToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, stolen.Final.Status)

	// A mismatch leaves the original token redeemable by its owner.
	ok, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(10000)}, first.Final.ConfirmToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, ok.Final.Status)
	assert.Equal(t, 1, h.calls["invoices.create"])
}

func TestConfirmationExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	staff := actor(domain.RoleStaff)

	first, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(10000)}, "")
	require.NoError(t, err)

	h.now = h.now.Add(confirm.DefaultTTL + time.Second)
	late, err := h.engine.Run(ctx, staff, []domain.FlowStep{invoiceStep(10000)}, first.Final.ConfirmToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, late.Final.Status)
	assert.NotEqual(t, first.Final.ConfirmToken, late.Final.ConfirmToken)
	assert.Zero(t, h.calls["invoices.create"])
}

func TestOneTokenConfirmsEverySensitiveStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := actor(domain.RoleOwner)
	plan := func() []domain.FlowStep {
		return []domain.FlowStep{invoiceStep(100), invoiceStep(200)}
	}

	first, err := h.engine.Run(ctx, owner, plan(), "")
	require.NoError(t, err)
	require.Equal(t, domain.RunConfirmationRequired, first.Final.Status)
	assert.Equal(t, []string{"payments.invoice_create", "payments.invoice_create"}, first.Final.Payload["covers"])
	assert.Zero(t, h.calls["invoices.create"])

	second, err := h.engine.Run(ctx, owner, plan(), first.Final.ConfirmToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, second.Final.Status)
	assert.Equal(t, []string{"invoices.create", "invoices.create"}, second.Invoked)
	assert.Equal(t, 2, h.calls["invoices.create"])
	assert.Equal(t, 2, h.recorder.policy[OutcomeConfirmed])

	replay, err := h.engine.Run(ctx, owner, plan(), first.Final.ConfirmToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, replay.Final.Status)
	assert.Equal(t, 2, h.calls["invoices.create"])
}

func TestPlanTokenDoesNotConfirmPartOfPlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := actor(domain.RoleOwner)

	first, err := h.engine.Run(ctx, owner, []domain.FlowStep{invoiceStep(100), invoiceStep(200)}, "")
	require.NoError(t, err)

	single, err := h.engine.Run(ctx, owner, []domain.FlowStep{invoiceStep(100)}, first.Final.ConfirmToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, single.Final.Status)
	assert.Zero(t, h.calls["invoices.create"])
}

func TestConfirmationPrecedesEarlierSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	steps := []domain.FlowStep{bookingStep(), invoiceStep(100)}

	first, err := h.engine.Run(ctx, actor(domain.RoleOwner), steps, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunConfirmationRequired, first.Final.Status)
	assert.Len(t, first.Steps, 2)
	assert.Empty(t, first.Invoked)
	assert.Zero(t, h.calls["bookings.create"])

	evs := h.events(t, "t1")
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventActionConfirmationRequired, evs[0].Type)

	second, err := h.engine.Run(ctx, actor(domain.RoleOwner), steps, first.Final.ConfirmToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, second.Final.Status)
	assert.Equal(t, 1, h.calls["bookings.create"])
	assert.Equal(t, 1, h.calls["invoices.create"])
}

func TestToolFailureIsAuditedAndHalts(t *testing.T) {
	h := newHarness(t)
	steps := []domain.FlowStep{
		domain.Execute("booking.create", "broken", domain.SensitivityLow, nil),
		domain.Execute("notify.send", "notify.send", domain.SensitivityLow, nil),
	}

	out, err := h.engine.Run(context.Background(), actor(domain.RoleOwner), steps, "")
	require.NoError(t, err)

	assert.Equal(t, domain.RunToolFailed, out.Final.Status)
	assert.Equal(t, "upstream unavailable", out.Final.Message)
	assert.Equal(t, []string{"broken"}, out.Invoked)
	assert.Zero(t, h.calls["notify.send"])

	evs := h.events(t, "t1")
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventToolFailed, evs[1].Type)
	assert.Equal(t, "upstream unavailable", evs[1].Details["message"])
	assert.Equal(t, 1, h.recorder.tools["broken:false"])
}

func TestRespondAfterExecuteCarriesPayload(t *testing.T) {
	h := newHarness(t)
	steps := []domain.FlowStep{bookingStep(), domain.Respond("All set.")}

	out, err := h.engine.Run(context.Background(), actor(domain.RoleOwner), steps, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, out.Final.Status)
	assert.Equal(t, "All set.", out.Final.Message)
	assert.Equal(t, "bookings.create-1", out.Final.Payload["id"])
}

func TestRespondOnly(t *testing.T) {
	h := newHarness(t)
	out, err := h.engine.Run(context.Background(), actor(domain.RoleClient), []domain.FlowStep{domain.Respond("hi")}, "")
	require.NoError(t, err)
	assert.True(t, out.Final.OK)
	assert.Equal(t, domain.RunResponded, out.Final.Status)
}

type failingAuditor struct{ err error }

func (f failingAuditor) Append(context.Context, domain.AuditEvent) (domain.AuditEvent, error) {
	return domain.AuditEvent{}, f.err
}

func TestAuditFailureStopsBeforeTool(t *testing.T) {
	h := newHarness(t)
	gate := GateFunc(func(domain.ActorContext, string, domain.Sensitivity) domain.PolicyDecision {
		return domain.PolicyDecision{Allow: true}
	})
	invoked := 0
	inv := invokerFunc(func(context.Context, string, domain.ActorContext, map[string]any) domain.ToolResult {
		invoked++
		return domain.ToolResult{OK: true}
	})
	e := NewEngine(gate, inv, failingAuditor{err: domain.ErrChainIntegrity}, h.confirms, nil)

	_, err := e.Run(context.Background(), actor(domain.RoleOwner), []domain.FlowStep{bookingStep()}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrChainIntegrity))
	assert.Zero(t, invoked)
}

type invokerFunc func(ctx context.Context, name string, actor domain.ActorContext, input map[string]any) domain.ToolResult

func (f invokerFunc) Invoke(ctx context.Context, name string, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	return f(ctx, name, actor, input)
}
