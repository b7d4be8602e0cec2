package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

const (
	schemaBookingCreate = `{
  "type": "object",
  "required": ["service", "client_email", "start", "duration_min"],
  "properties": {
    "service": {"type": "string", "minLength": 1},
    "client_email": {"type": "string", "minLength": 3},
    "start": {"type": "string", "minLength": 1},
    "duration_min": {"type": "integer", "minimum": 1, "maximum": 1440}
  }
}`
	schemaBookingRef = `{
  "type": "object",
  "required": ["booking_id"],
  "properties": {"booking_id": {"type": "string", "pattern": "^bk_"}}
}`
	schemaBookingReschedule = `{
  "type": "object",
  "required": ["booking_id", "start"],
  "properties": {
    "booking_id": {"type": "string", "pattern": "^bk_"},
    "start": {"type": "string", "minLength": 1}
  }
}`
	schemaNotify = `{
  "type": "object",
  "required": ["channel", "to", "template"],
  "properties": {
    "channel": {"enum": ["email", "sms"]},
    "to": {"type": "string", "minLength": 1},
    "template": {"type": "string", "minLength": 1}
  }
}`
	schemaInvoiceCreate = `{
  "type": "object",
  "required": ["client_email", "amount_cents", "currency"],
  "properties": {
    "client_email": {"type": "string", "minLength": 3},
    "amount_cents": {"type": "integer", "minimum": 1},
    "currency": {"type": "string", "minLength": 3, "maxLength": 3}
  }
}`
	schemaRefund = `{
  "type": "object",
  "required": ["payment_id"],
  "properties": {
    "payment_id": {"type": "string", "pattern": "^pay_"},
    "amount_cents": {"type": "integer", "minimum": 1}
  }
}`
	schemaClientCreate = `{
  "type": "object",
  "required": ["name", "email"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "email": {"type": "string", "minLength": 3},
    "phone": {"type": "string"}
  }
}`
	schemaUserRole = `{
  "type": "object",
  "required": ["email", "role"],
  "properties": {
    "email": {"type": "string", "minLength": 3},
    "role": {"enum": ["admin", "manager", "staff", "viewer", "client"]}
  }
}`
	schemaEmail = `{
  "type": "object",
  "required": ["email"],
  "properties": {"email": {"type": "string", "minLength": 3}}
}`
)

// Builtins returns the standard tool set over backend. It covers every tool
// the default spines declare.
func Builtins(backend Backend) []Tool {
	b := &builtins{backend: backend, clock: time.Now}
	return []Tool{
		{Name: "bookings.create", Description: "Create a booking", Schema: schemaBookingCreate, Fn: b.createBooking},
		{Name: "bookings.cancel", Description: "Cancel a booking", Schema: schemaBookingRef, Fn: b.cancelBooking},
		{Name: "bookings.reschedule", Description: "Move a booking", Schema: schemaBookingReschedule, Fn: b.rescheduleBooking},
		{Name: "bookings.list", Description: "List upcoming bookings", Fn: b.listBookings},
		{Name: "notify.send", Description: "Queue a notification", Schema: schemaNotify, Fn: b.notify},
		{Name: "invoices.create", Description: "Issue an invoice", Schema: schemaInvoiceCreate, Fn: b.createInvoice},
		{Name: "payments.refund", Description: "Refund a payment", Schema: schemaRefund, Fn: b.refund},
		{Name: "payments.status", Description: "Show payment status", Fn: b.paymentStatus},
		{Name: "clients.create", Description: "Add a client", Schema: schemaClientCreate, Fn: b.createClient},
		{Name: "clients.find", Description: "Search clients", Fn: b.findClients},
		{Name: "clients.delete", Description: "Delete a client", Fn: b.deleteClient},
		{Name: "users.invite", Description: "Invite a teammate", Schema: schemaUserRole, Fn: b.inviteUser},
		{Name: "users.change_role", Description: "Change a teammate's role", Schema: schemaUserRole, Fn: b.changeRole},
		{Name: "users.remove", Description: "Remove a teammate", Schema: schemaEmail, Fn: b.removeUser},
	}
}

// RegisterBuiltins registers Builtins(backend) on r.
func RegisterBuiltins(r *Registry, backend Backend) error {
	for _, t := range Builtins(backend) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type builtins struct {
	backend Backend
	clock   func() time.Time
}

func ok(data map[string]any, msg string) domain.ToolResult {
	return domain.ToolResult{OK: true, Data: data, Message: msg}
}

func fail(err error) domain.ToolResult {
	var ee *domain.EngineError
	if errors.As(err, &ee) {
		return domain.ToolResult{OK: false, Message: ee.Message}
	}
	return domain.ToolResult{OK: false, Message: err.Error()}
}

func failf(format string, args ...any) domain.ToolResult {
	return domain.ToolResult{OK: false, Message: fmt.Sprintf(format, args...)}
}

func str(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), n == float64(int64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func (b *builtins) createBooking(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	start, err := time.Parse(time.RFC3339, str(input, "start"))
	if err != nil {
		return failf("start %q is not a valid time", str(input, "start"))
	}
	minutes, _ := toInt64(input["duration_min"])
	end := start.Add(time.Duration(minutes) * time.Minute)

	clash, err := b.backend.Find(ctx, actor.TenantID, "bookings", func(r Record) bool {
		if r["status"] != "confirmed" {
			return false
		}
		s, err1 := time.Parse(time.RFC3339, fmt.Sprint(r["start"]))
		e, err2 := time.Parse(time.RFC3339, fmt.Sprint(r["end"]))
		return err1 == nil && err2 == nil && s.Before(end) && start.Before(e)
	})
	if err != nil {
		return fail(err)
	}
	if len(clash) > 0 {
		return failf("slot overlaps booking %s", clash[0]["id"])
	}

	rec, err := b.backend.Insert(ctx, actor.TenantID, "bookings", Record{
		"service":      str(input, "service"),
		"client_email": str(input, "client_email"),
		"start":        start.Format(time.RFC3339),
		"end":          end.Format(time.RFC3339),
		"duration_min": minutes,
		"status":       "confirmed",
		"created_by":   actor.UserID,
	})
	if err != nil {
		return fail(err)
	}
	return ok(rec, fmt.Sprintf("Booked %s for %s at %s.", rec["service"], rec["client_email"], rec["start"]))
}

func (b *builtins) cancelBooking(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	id := str(input, "booking_id")
	rec, err := b.backend.Get(ctx, actor.TenantID, "bookings", id)
	if err != nil {
		return fail(err)
	}
	if rec["status"] == "cancelled" {
		return failf("booking %s is already cancelled", id)
	}
	rec, err = b.backend.Update(ctx, actor.TenantID, "bookings", id, Record{"status": "cancelled"})
	if err != nil {
		return fail(err)
	}
	return ok(rec, "Cancelled booking "+id+".")
}

func (b *builtins) rescheduleBooking(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	id := str(input, "booking_id")
	start, err := time.Parse(time.RFC3339, str(input, "start"))
	if err != nil {
		return failf("start %q is not a valid time", str(input, "start"))
	}
	rec, err := b.backend.Get(ctx, actor.TenantID, "bookings", id)
	if err != nil {
		return fail(err)
	}
	if rec["status"] != "confirmed" {
		return failf("booking %s is %v", id, rec["status"])
	}
	minutes, _ := toInt64(rec["duration_min"])
	rec, err = b.backend.Update(ctx, actor.TenantID, "bookings", id, Record{
		"start": start.Format(time.RFC3339),
		"end":   start.Add(time.Duration(minutes) * time.Minute).Format(time.RFC3339),
	})
	if err != nil {
		return fail(err)
	}
	return ok(rec, fmt.Sprintf("Moved booking %s to %s.", id, rec["start"]))
}

func (b *builtins) listBookings(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	from := b.clock()
	if s := str(input, "from"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			from = t
		}
	}
	recs, err := b.backend.Find(ctx, actor.TenantID, "bookings", func(r Record) bool {
		start, err := time.Parse(time.RFC3339, fmt.Sprint(r["start"]))
		return err == nil && r["status"] == "confirmed" && !start.Before(from)
	})
	if err != nil {
		return fail(err)
	}
	items := make([]any, len(recs))
	for i, r := range recs {
		items[i] = map[string]any(r)
	}
	return ok(map[string]any{"bookings": items, "count": len(recs)}, fmt.Sprintf("%d upcoming booking(s).", len(recs)))
}

func (b *builtins) notify(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	rec, err := b.backend.Insert(ctx, actor.TenantID, "notifications", Record{
		"channel":  str(input, "channel"),
		"to":       str(input, "to"),
		"template": str(input, "template"),
		"status":   "queued",
	})
	if err != nil {
		return fail(err)
	}
	return ok(rec, "Notification queued for "+str(input, "to")+".")
}

func (b *builtins) createInvoice(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	cents, _ := toInt64(input["amount_cents"])
	rec, err := b.backend.Insert(ctx, actor.TenantID, "invoices", Record{
		"client_email": str(input, "client_email"),
		"amount_cents": cents,
		"currency":     strings.ToLower(str(input, "currency")),
		"status":       "open",
		"issued_by":    actor.UserID,
	})
	if err != nil {
		return fail(err)
	}
	return ok(rec, fmt.Sprintf("Invoice %s for %s issued to %s.", rec["id"], money(cents, str(input, "currency")), rec["client_email"]))
}

func (b *builtins) refund(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	id := str(input, "payment_id")
	rec, err := b.backend.Get(ctx, actor.TenantID, "payments", id)
	if err != nil {
		return fail(err)
	}
	if rec["status"] == "refunded" {
		return failf("payment %s is already refunded", id)
	}
	paid, _ := toInt64(rec["amount_cents"])
	amount := paid
	if v, present := input["amount_cents"]; present {
		amount, _ = toInt64(v)
	}
	if amount > paid {
		return failf("refund of %d exceeds payment of %d", amount, paid)
	}
	rec, err = b.backend.Update(ctx, actor.TenantID, "payments", id, Record{
		"status":         "refunded",
		"refunded_cents": amount,
		"refunded_by":    actor.UserID,
	})
	if err != nil {
		return fail(err)
	}
	return ok(rec, fmt.Sprintf("Refunded %s on %s.", money(amount, fmt.Sprint(rec["currency"])), id))
}

func (b *builtins) paymentStatus(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	if id := str(input, "payment_id"); id != "" {
		rec, err := b.backend.Get(ctx, actor.TenantID, "payments", id)
		if err != nil {
			return fail(err)
		}
		return ok(rec, fmt.Sprintf("Payment %s is %v.", id, rec["status"]))
	}
	open, err := b.backend.Find(ctx, actor.TenantID, "invoices", func(r Record) bool { return r["status"] == "open" })
	if err != nil {
		return fail(err)
	}
	var total int64
	for _, r := range open {
		c, _ := toInt64(r["amount_cents"])
		total += c
	}
	return ok(map[string]any{"open_invoices": len(open), "open_cents": total},
		fmt.Sprintf("%d open invoice(s) totalling %s.", len(open), money(total, "usd")))
}

func (b *builtins) createClient(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	email := strings.ToLower(str(input, "email"))
	dupes, err := b.backend.Find(ctx, actor.TenantID, "clients", func(r Record) bool { return r["email"] == email })
	if err != nil {
		return fail(err)
	}
	if len(dupes) > 0 {
		return failf("client %s already exists as %s", email, dupes[0]["id"])
	}
	rec := Record{"name": str(input, "name"), "email": email}
	if phone := str(input, "phone"); phone != "" {
		rec["phone"] = phone
	}
	rec, err = b.backend.Insert(ctx, actor.TenantID, "clients", rec)
	if err != nil {
		return fail(err)
	}
	return ok(rec, fmt.Sprintf("Added client %s (%s).", rec["name"], rec["id"]))
}

func (b *builtins) findClients(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	q := strings.ToLower(str(input, "query"))
	if q == "" {
		return failf("query is required")
	}
	recs, err := b.backend.Find(ctx, actor.TenantID, "clients", func(r Record) bool {
		return strings.Contains(strings.ToLower(fmt.Sprint(r["name"])), q) ||
			strings.Contains(strings.ToLower(fmt.Sprint(r["email"])), q)
	})
	if err != nil {
		return fail(err)
	}
	items := make([]any, len(recs))
	for i, r := range recs {
		items[i] = map[string]any(r)
	}
	return ok(map[string]any{"clients": items, "count": len(recs)}, fmt.Sprintf("%d client(s) match %q.", len(recs), q))
}

func (b *builtins) deleteClient(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	ref := strings.ToLower(str(input, "client"))
	if ref == "" {
		return failf("client is required")
	}
	id := ref
	if !strings.HasPrefix(ref, "cl_") {
		found, err := b.backend.Find(ctx, actor.TenantID, "clients", func(r Record) bool { return r["email"] == ref })
		if err != nil {
			return fail(err)
		}
		if len(found) == 0 {
			return failf("client %s not found", ref)
		}
		id = fmt.Sprint(found[0]["id"])
	}
	rec, err := b.backend.Delete(ctx, actor.TenantID, "clients", id)
	if err != nil {
		return fail(err)
	}
	return ok(rec, "Deleted client "+id+".")
}

func (b *builtins) userByEmail(ctx context.Context, tenantID, email string) (Record, error) {
	found, err := b.backend.Find(ctx, tenantID, "users", func(r Record) bool { return r["email"] == email })
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.NewEngineError(domain.ErrNotFound.Code, "user "+email+" not found")
	}
	return found[0], nil
}

func (b *builtins) inviteUser(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	email := strings.ToLower(str(input, "email"))
	if _, err := b.userByEmail(ctx, actor.TenantID, email); err == nil {
		return failf("%s is already a member", email)
	}
	rec, err := b.backend.Insert(ctx, actor.TenantID, "users", Record{
		"email":      email,
		"role":       str(input, "role"),
		"status":     "invited",
		"invited_by": actor.UserID,
	})
	if err != nil {
		return fail(err)
	}
	return ok(rec, fmt.Sprintf("Invited %s as %s.", email, rec["role"]))
}

func (b *builtins) changeRole(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	email := strings.ToLower(str(input, "email"))
	user, err := b.userByEmail(ctx, actor.TenantID, email)
	if err != nil {
		return fail(err)
	}
	rec, err := b.backend.Update(ctx, actor.TenantID, "users", fmt.Sprint(user["id"]), Record{"role": str(input, "role")})
	if err != nil {
		return fail(err)
	}
	return ok(rec, fmt.Sprintf("%s is now %s.", email, rec["role"]))
}

func (b *builtins) removeUser(ctx context.Context, actor domain.ActorContext, input map[string]any) domain.ToolResult {
	email := strings.ToLower(str(input, "email"))
	user, err := b.userByEmail(ctx, actor.TenantID, email)
	if err != nil {
		return fail(err)
	}
	if user["id"] == actor.UserID {
		return failf("you cannot remove yourself")
	}
	rec, err := b.backend.Delete(ctx, actor.TenantID, "users", fmt.Sprint(user["id"]))
	if err != nil {
		return fail(err)
	}
	return ok(rec, "Removed "+email+".")
}

func money(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}
