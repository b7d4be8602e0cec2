package spine

import (
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/entity"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
)

// DefaultCurrency is attached to invoices that name no currency.
const DefaultCurrency = "usd"

// Payments handles invoices and refunds. Viewers and clients never match it.
type Payments struct {
	rules []intent.Rule
}

// NewPayments creates the payments spine.
func NewPayments() *Payments {
	return &Payments{rules: []intent.Rule{
		intent.MustRule("status", `\b(payment|invoice)s?\b.*\bstatus\b`, 0.9),
		intent.MustRule("status", `\bstatus\b.*\b(payment|invoice|pay_)`, 0.9),
		intent.MustRule("refund", `\brefund\b`, 0.9),
		intent.MustRule("create_invoice", `\binvoice\b`, 0.85),
		intent.MustRule("create_invoice", `\b(bill|charge)\b`, 0.7),
	}}
}

func (p *Payments) Name() string         { return "payments" }
func (p *Payments) Rules() []intent.Rule { return p.rules }

func (p *Payments) Allows(role domain.Role) bool {
	return roleAllowed(role, domain.RoleViewer, domain.RoleClient)
}

func (p *Payments) Tools() []string {
	return []string{"invoices.create", "payments.refund", "payments.status"}
}

func (p *Payments) Capabilities() []string {
	return []string{
		"create an invoice: \"create invoice for alex@example.com $100\"",
		"refund a payment: \"refund pay_123\"",
		"check payment status: \"status of pay_123\"",
	}
}

func (p *Payments) Extract(in domain.Intent, text string, actor domain.ActorContext) domain.Extraction {
	ex := newExtraction()
	switch in.Name {
	case "create_invoice":
		ex.requireString("client_email", entity.Email(text))
		cents, ok := entity.AmountCents(text)
		ex.require("amount", cents, ok)
	case "refund":
		ex.requireString("payment_id", entity.ID(text, "pay"))
		cents, ok := entity.AmountCents(text)
		ex.optional("amount", cents, ok)
	case "status":
		id := entity.ID(text, "pay")
		ex.optional("payment_id", id, id != "")
	}
	return ex.done()
}

func (p *Payments) Compile(in domain.Intent, ex domain.Extraction, actor domain.ActorContext) []domain.FlowStep {
	switch in.Name {
	case "create_invoice":
		return []domain.FlowStep{domain.Execute("payments.invoice_create", "invoices.create", domain.SensitivityHigh, map[string]any{
			"client_email": ex.Entities["client_email"],
			"amount_cents": ex.Entities["amount"],
			"currency":     DefaultCurrency,
		})}
	case "refund":
		input := map[string]any{"payment_id": ex.Entities["payment_id"]}
		if amount, ok := ex.Entities["amount"]; ok {
			input["amount_cents"] = amount
		}
		return []domain.FlowStep{domain.Execute("payments.refund", "payments.refund", domain.SensitivityHigh, input)}
	case "status":
		input := map[string]any{}
		if id, ok := ex.Entities["payment_id"]; ok {
			input["payment_id"] = id
		}
		return []domain.FlowStep{domain.Execute("payments.status", "payments.status", domain.SensitivityLow, input)}
	}
	return []domain.FlowStep{Unhandled(in)}
}
