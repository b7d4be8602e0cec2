package spine

import (
	"regexp"
	"time"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/entity"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
)

// DefaultDurationMin is used when a booking request names no duration.
const DefaultDurationMin = 30

var notifyRe = regexp.MustCompile(`(?i)\b(notify|remind|reminder|confirmation)\b`)

var serviceStops = []string{
	"for", "with", "at", "on", "to", "today", "tomorrow", "next", "and",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// Booking handles appointments.
type Booking struct {
	rules []intent.Rule
}

// NewBooking creates the booking spine.
func NewBooking() *Booking {
	return &Booking{rules: []intent.Rule{
		intent.MustRule("reschedule", `\breschedule\b`, 0.9),
		intent.MustRule("reschedule", `\bmove\b.*\b(booking|appointment|appt)\b`, 0.8),
		intent.MustRule("cancel", `\bcancel\b.*\b(booking|appointment|appt|bk_)`, 0.85),
		intent.MustRule("cancel", `\bcancel\b`, 0.6),
		intent.MustRule("list", `\b(list|show|upcoming)\b.*\b(bookings|appointments|schedule)\b`, 0.8),
		intent.MustRule("book", `\b(book|schedule)\b`, 0.8),
		intent.MustRule("book", `\b(appointment|appt)\b`, 0.6),
	}}
}

func (b *Booking) Name() string                 { return "booking" }
func (b *Booking) Rules() []intent.Rule         { return b.rules }
func (b *Booking) Allows(role domain.Role) bool { return true }

func (b *Booking) Tools() []string {
	return []string{"bookings.create", "bookings.cancel", "bookings.reschedule", "bookings.list", "notify.send"}
}

func (b *Booking) Capabilities() []string {
	return []string{
		"book a service: \"book haircut for alex@example.com tomorrow 3pm 60 min\"",
		"cancel a booking: \"cancel booking bk_123\"",
		"reschedule a booking: \"reschedule bk_123 to friday 2pm\"",
		"list upcoming bookings: \"show upcoming bookings\"",
	}
}

// Extract pulls booking fields. Times are resolved against the actor's clock.
func (b *Booking) Extract(in domain.Intent, text string, actor domain.ActorContext) domain.Extraction {
	ex := newExtraction()
	switch in.Name {
	case "book":
		ex.requireString("service", entity.PhraseAfter(text, []string{"book", "schedule"}, serviceStops))
		ex.requireString("client_email", entity.Email(text))
		start, ok := startOf(text, actor)
		ex.require("start", start, ok)
		minutes, ok := entity.DurationMinutes(text)
		if !ok {
			minutes = DefaultDurationMin
		}
		ex.entities["duration_min"] = minutes
		ex.entities["notify"] = notifyRe.MatchString(text)
	case "cancel":
		ex.requireString("booking_id", entity.ID(text, "bk"))
	case "reschedule":
		ex.requireString("booking_id", entity.ID(text, "bk"))
		start, ok := startOf(text, actor)
		ex.require("start", start, ok)
	case "list":
		if now, ok := entity.Now(actor); ok {
			ex.entities["from"] = now.Format(time.RFC3339)
		}
	}
	return ex.done()
}

// Compile maps a complete extraction to steps.
func (b *Booking) Compile(in domain.Intent, ex domain.Extraction, actor domain.ActorContext) []domain.FlowStep {
	switch in.Name {
	case "book":
		steps := []domain.FlowStep{domain.Execute("booking.create", "bookings.create", domain.SensitivityLow, map[string]any{
			"service":      ex.Entities["service"],
			"client_email": ex.Entities["client_email"],
			"start":        ex.Entities["start"],
			"duration_min": ex.Entities["duration_min"],
		})}
		if notify, _ := ex.Entities["notify"].(bool); notify {
			steps = append(steps, domain.Execute("notify.send", "notify.send", domain.SensitivityLow, map[string]any{
				"channel":  "email",
				"to":       ex.Entities["client_email"],
				"template": "booking_confirmation",
			}))
		}
		return steps
	case "cancel":
		return []domain.FlowStep{domain.Execute("booking.cancel", "bookings.cancel", domain.SensitivityMedium, map[string]any{
			"booking_id": ex.Entities["booking_id"],
		})}
	case "reschedule":
		return []domain.FlowStep{domain.Execute("booking.reschedule", "bookings.reschedule", domain.SensitivityMedium, map[string]any{
			"booking_id": ex.Entities["booking_id"],
			"start":      ex.Entities["start"],
		})}
	case "list":
		input := map[string]any{}
		if from, ok := ex.Entities["from"]; ok {
			input["from"] = from
		}
		return []domain.FlowStep{domain.Execute("booking.list", "bookings.list", domain.SensitivityLow, input)}
	}
	return []domain.FlowStep{Unhandled(in)}
}

func startOf(text string, actor domain.ActorContext) (string, bool) {
	now, ok := entity.Now(actor)
	if !ok {
		return "", false
	}
	start, ok := entity.Start(text, now)
	if !ok {
		return "", false
	}
	return start.Format(time.RFC3339), true
}
