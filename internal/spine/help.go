package spine

import (
	"strings"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
)

// Help answers "what can you do" with the capabilities visible to the actor.
type Help struct {
	rules  []intent.Rule
	others []Spine
}

// NewHelp creates the help spine describing others.
func NewHelp(others ...Spine) *Help {
	return &Help{
		rules: []intent.Rule{
			intent.MustRule("capabilities", `\b(help|capabilities|commands)\b`, 0.9),
			intent.MustRule("capabilities", `\bwhat can you do\b`, 0.9),
		},
		others: others,
	}
}

func (h *Help) Name() string                 { return "help" }
func (h *Help) Rules() []intent.Rule         { return h.rules }
func (h *Help) Allows(role domain.Role) bool { return true }
func (h *Help) Tools() []string              { return nil }
func (h *Help) Capabilities() []string       { return []string{"list what I can do: \"help\""} }

func (h *Help) Extract(in domain.Intent, text string, actor domain.ActorContext) domain.Extraction {
	return domain.Extraction{Entities: map[string]any{}}
}

func (h *Help) Compile(in domain.Intent, ex domain.Extraction, actor domain.ActorContext) []domain.FlowStep {
	if in.Name != "capabilities" {
		return []domain.FlowStep{Unhandled(in)}
	}
	return []domain.FlowStep{domain.Respond(h.Describe(actor.Role))}
}

// Describe lists the capabilities of every spine the role may use.
func (h *Help) Describe(role domain.Role) string {
	var b strings.Builder
	b.WriteString("Here is what I can do:")
	for _, s := range h.others {
		if !s.Allows(role) {
			continue
		}
		for _, line := range s.Capabilities() {
			b.WriteString("\n- ")
			b.WriteString(line)
		}
	}
	for _, line := range h.Capabilities() {
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return b.String()
}
