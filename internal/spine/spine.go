// Package spine holds the pluggable domain modules. Each spine owns one family
// of intents: the rules that detect them, the extraction of their fields and
// the compilation of those fields into flow steps.
package spine

import (
	"fmt"
	"strings"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
)

// Spine is a domain module.
type Spine interface {
	intent.Domain
	// Tools lists every tool name Compile may reference.
	Tools() []string
	// Capabilities describes what the spine can do, one line per intent.
	Capabilities() []string
	Extract(in domain.Intent, text string, actor domain.ActorContext) domain.Extraction
	Compile(in domain.Intent, ex domain.Extraction, actor domain.ActorContext) []domain.FlowStep
}

// Defaults returns the standard spines in registration order. The help spine
// comes last and describes the others.
func Defaults() []Spine {
	booking := NewBooking()
	payments := NewPayments()
	crm := NewCRM()
	admin := NewAdmin()
	return []Spine{booking, payments, crm, admin, NewHelp(booking, payments, crm, admin)}
}

// Compile applies the shared gating rule before delegating to the spine:
// missing fields always produce a single Ask naming exactly those fields.
func Compile(s Spine, in domain.Intent, ex domain.Extraction, actor domain.ActorContext) []domain.FlowStep {
	if !ex.Complete() {
		return []domain.FlowStep{AskFor(ex.Missing)}
	}
	steps := s.Compile(in, ex, actor)
	if len(steps) == 0 {
		return []domain.FlowStep{Unhandled(in)}
	}
	return steps
}

// AskFor builds the Ask step for a list of missing fields.
func AskFor(missing []string) domain.FlowStep {
	labels := make([]string, len(missing))
	for i, f := range missing {
		labels[i] = strings.ReplaceAll(f, "_", " ")
	}
	return domain.Ask("I still need: "+strings.Join(labels, ", ")+".", missing)
}

// Unhandled is the Respond step for an intent its spine does not know.
func Unhandled(in domain.Intent) domain.FlowStep {
	return domain.Respond(fmt.Sprintf("I can't handle %s.%s yet.", in.Domain, in.Name))
}

// extraction collects entities and records required fields in declaration order.
type extraction struct {
	entities map[string]any
	missing  []string
}

func newExtraction() *extraction {
	return &extraction{entities: make(map[string]any)}
}

// require stores v under key, or marks key missing when v is the zero value.
func (e *extraction) require(key string, v any, ok bool) {
	if !ok {
		e.missing = append(e.missing, key)
		return
	}
	e.entities[key] = v
}

func (e *extraction) requireString(key, v string) {
	e.require(key, v, v != "")
}

func (e *extraction) optional(key string, v any, ok bool) {
	if ok {
		e.entities[key] = v
	}
}

func (e *extraction) done() domain.Extraction {
	return domain.Extraction{Entities: e.entities, Missing: e.missing}
}

// roleAllowed reports whether role is not in vetoed.
func roleAllowed(role domain.Role, vetoed ...domain.Role) bool {
	for _, v := range vetoed {
		if role == v {
			return false
		}
	}
	return true
}
