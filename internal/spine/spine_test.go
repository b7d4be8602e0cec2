package spine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
)

func actor(role domain.Role) domain.ActorContext {
	return domain.ActorContext{
		UserID:   "u1",
		Role:     role,
		TenantID: "t1",
		NowISO:   "2026-10-16T09:00:00Z",
		Timezone: "UTC",
		Channel:  domain.ChannelAPI,
	}
}

func newRouter(t *testing.T) (*intent.Router, map[string]Spine) {
	t.Helper()
	r := intent.NewRouter(0)
	byName := make(map[string]Spine)
	for _, s := range Defaults() {
		require.NoError(t, r.Register(s))
		byName[s.Name()] = s
	}
	return r, byName
}

func plan(t *testing.T, text string, a domain.ActorContext) (domain.Intent, domain.Extraction, []domain.FlowStep) {
	t.Helper()
	r, spines := newRouter(t)
	in, ok := r.Top(text, a)
	require.True(t, ok, "no intent for %q", text)
	s := spines[in.Domain]
	ex := s.Extract(in, text, a)
	return in, ex, Compile(s, in, ex, a)
}

func TestBookingExample(t *testing.T) {
	in, ex, steps := plan(t, "book haircut for alex@example.com tomorrow 3pm 60 min", actor(domain.RoleOwner))

	assert.Equal(t, "booking", in.Domain)
	assert.Equal(t, "book", in.Name)
	assert.GreaterOrEqual(t, in.Confidence, 0.75)
	assert.Empty(t, ex.Missing)

	want := []domain.FlowStep{domain.Execute("booking.create", "bookings.create", domain.SensitivityLow, map[string]any{
		"service":      "haircut",
		"client_email": "alex@example.com",
		"start":        "2026-10-17T15:00:00Z",
		"duration_min": 60,
	})}
	if diff := cmp.Diff(want, steps); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestBookingWithReminderAddsNotify(t *testing.T) {
	_, _, steps := plan(t, "book massage for sam@example.com friday 10am and send a reminder", actor(domain.RoleStaff))
	require.Len(t, steps, 2)
	assert.Equal(t, "booking.create", steps[0].Execute.Action)
	assert.Equal(t, 30, steps[0].Execute.Input["duration_min"])
	assert.Equal(t, "notify.send", steps[1].Execute.Action)
	assert.Equal(t, "sam@example.com", steps[1].Execute.Input["to"])
}

func TestInvoiceExample(t *testing.T) {
	in, _, steps := plan(t, "create invoice for alex@example.com $100", actor(domain.RoleStaff))

	assert.Equal(t, "payments", in.Domain)
	assert.Equal(t, "create_invoice", in.Name)
	require.Len(t, steps, 1)
	require.Equal(t, domain.StepExecute, steps[0].Kind)
	assert.Equal(t, domain.SensitivityHigh, steps[0].Execute.Sensitivity)
	assert.Equal(t, "invoices.create", steps[0].Execute.Tool)
	assert.Equal(t, int64(10000), steps[0].Execute.Input["amount_cents"])
}

func TestMissingFieldsCompileToSingleAsk(t *testing.T) {
	_, ex, steps := plan(t, "book haircut tomorrow", actor(domain.RoleOwner))

	assert.Equal(t, []string{"client_email", "start"}, ex.Missing)
	require.Len(t, steps, 1)
	assert.Equal(t, domain.StepAsk, steps[0].Kind)
	assert.Equal(t, []string{"client_email", "start"}, steps[0].Ask.MissingFields)
}

func TestMissingFieldGatingProperty(t *testing.T) {
	fields := []string{"service", "client_email", "start", "amount", "payment_id", "email", "role"}
	spines := Defaults()
	intents := []domain.Intent{
		{Domain: "booking", Name: "book"},
		{Domain: "payments", Name: "create_invoice"},
		{Domain: "crm", Name: "add_client"},
		{Domain: "admin", Name: "remove_user"},
		{Domain: "help", Name: "capabilities"},
		{Domain: "booking", Name: "unknown"},
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("non-empty missing always compiles to exactly one Ask", prop.ForAll(
		func(spineIdx, intentIdx int, picks []int) bool {
			if len(picks) == 0 {
				return true
			}
			missing := make([]string, len(picks))
			for i, p := range picks {
				missing[i] = fields[p]
			}
			ex := domain.Extraction{Entities: map[string]any{}, Missing: missing}
			steps := Compile(spines[spineIdx], intents[intentIdx], ex, actor(domain.RoleOwner))
			if len(steps) != 1 || steps[0].Kind != domain.StepAsk {
				return false
			}
			return cmp.Equal(steps[0].Ask.MissingFields, missing)
		},
		gen.IntRange(0, len(spines)-1),
		gen.IntRange(0, len(intents)-1),
		gen.SliceOf(gen.IntRange(0, len(fields)-1)),
	))

	properties.TestingRun(t)
}

func TestUnknownIntentRespondsInsteadOfFailing(t *testing.T) {
	for _, s := range Defaults() {
		in := domain.Intent{Domain: s.Name(), Name: "does_not_exist"}
		steps := Compile(s, in, domain.Extraction{Entities: map[string]any{}}, actor(domain.RoleOwner))
		require.Len(t, steps, 1, s.Name())
		assert.Equal(t, domain.StepRespond, steps[0].Kind, s.Name())
		assert.Contains(t, steps[0].Respond.Message, "does_not_exist")
	}
}

func TestRoleVetoes(t *testing.T) {
	r, _ := newRouter(t)

	_, ok := r.Top("refund pay_123", actor(domain.RoleViewer))
	assert.False(t, ok)

	_, ok = r.Top("invite bob@example.com as staff", actor(domain.RoleManager))
	assert.False(t, ok)

	in, ok := r.Top("invite bob@example.com as staff", actor(domain.RoleAdmin))
	require.True(t, ok)
	assert.Equal(t, "admin", in.Domain)
}

func TestCRMAndAdminExtraction(t *testing.T) {
	_, ex, steps := plan(t, "add client Jane Doe jane@example.com +1 555 123 4567", actor(domain.RoleManager))
	require.Empty(t, ex.Missing)
	assert.Equal(t, "Jane Doe", ex.Entities["name"])
	assert.Equal(t, "crm.add_client", steps[0].Execute.Action)
	assert.Equal(t, "+1 555 123 4567", steps[0].Execute.Input["phone"])

	_, ex, steps = plan(t, "delete client cl_42", actor(domain.RoleOwner))
	require.Empty(t, ex.Missing)
	assert.Equal(t, "cl_42", steps[0].Execute.Input["client"])

	_, ex, steps = plan(t, "change role of bob@example.com to manager", actor(domain.RoleOwner))
	require.Empty(t, ex.Missing)
	assert.Equal(t, "admin.change_role", steps[0].Execute.Action)
	assert.Equal(t, "manager", steps[0].Execute.Input["role"])
}

func TestHelpListsOnlyVisibleCapabilities(t *testing.T) {
	_, _, steps := plan(t, "help", actor(domain.RoleViewer))
	require.Len(t, steps, 1)
	require.Equal(t, domain.StepRespond, steps[0].Kind)
	msg := steps[0].Respond.Message
	assert.Contains(t, msg, "book a service")
	assert.NotContains(t, msg, "refund a payment")
	assert.NotContains(t, msg, "invite a teammate")
}

func TestDeclaredToolsCoverCompiledSteps(t *testing.T) {
	cases := []struct {
		text string
		role domain.Role
	}{
		{"book haircut for alex@example.com tomorrow 3pm and remind them", domain.RoleOwner},
		{"cancel booking bk_1", domain.RoleOwner},
		{"reschedule bk_1 to monday 9am", domain.RoleOwner},
		{"show upcoming bookings", domain.RoleOwner},
		{"refund pay_9 $5", domain.RoleOwner},
		{"payment status pay_9", domain.RoleOwner},
		{"find client jane", domain.RoleOwner},
		{"remove user bob@example.com", domain.RoleOwner},
	}
	r, spines := newRouter(t)
	for _, tc := range cases {
		a := actor(tc.role)
		in, ok := r.Top(tc.text, a)
		require.True(t, ok, tc.text)
		s := spines[in.Domain]
		declared := map[string]bool{}
		for _, name := range s.Tools() {
			declared[name] = true
		}
		for _, st := range Compile(s, in, s.Extract(in, tc.text, a), a) {
			require.Equal(t, domain.StepExecute, st.Kind, tc.text)
			assert.True(t, declared[st.Execute.Tool], "%s: tool %s not declared", tc.text, st.Execute.Tool)
		}
	}
}
