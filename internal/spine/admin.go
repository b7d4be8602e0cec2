package spine

import (
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/entity"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
)

// assignableRoles are the roles an admin may hand out. Ownership is never
// granted through the command surface.
var assignableRoles = []string{
	string(domain.RoleAdmin), string(domain.RoleManager), string(domain.RoleStaff),
	string(domain.RoleViewer), string(domain.RoleClient),
}

// Admin manages tenant membership. Only owners and admins match it.
type Admin struct {
	rules []intent.Rule
}

// NewAdmin creates the admin spine.
func NewAdmin() *Admin {
	return &Admin{rules: []intent.Rule{
		intent.MustRule("invite_user", `\binvite\b`, 0.9),
		intent.MustRule("change_role", `\b(change|set|update)\b.*\brole\b`, 0.85),
		intent.MustRule("change_role", `\b(promote|demote)\b`, 0.8),
		intent.MustRule("remove_user", `\b(remove|deactivate|delete)\b.*\b(user|member|teammate|staff)\b`, 0.85),
	}}
}

func (a *Admin) Name() string         { return "admin" }
func (a *Admin) Rules() []intent.Rule { return a.rules }

func (a *Admin) Allows(role domain.Role) bool {
	return role == domain.RoleOwner || role == domain.RoleAdmin
}

func (a *Admin) Tools() []string {
	return []string{"users.invite", "users.change_role", "users.remove"}
}

func (a *Admin) Capabilities() []string {
	return []string{
		"invite a teammate: \"invite bob@example.com as staff\"",
		"change a role: \"change role of bob@example.com to manager\"",
		"remove a teammate: \"remove user bob@example.com\"",
	}
}

func (a *Admin) Extract(in domain.Intent, text string, actor domain.ActorContext) domain.Extraction {
	ex := newExtraction()
	switch in.Name {
	case "invite_user", "change_role":
		ex.requireString("email", entity.Email(text))
		ex.requireString("role", entity.LastOf(text, assignableRoles))
	case "remove_user":
		ex.requireString("email", entity.Email(text))
	}
	return ex.done()
}

func (a *Admin) Compile(in domain.Intent, ex domain.Extraction, actor domain.ActorContext) []domain.FlowStep {
	switch in.Name {
	case "invite_user":
		return []domain.FlowStep{domain.Execute("admin.invite_user", "users.invite", domain.SensitivityMedium, map[string]any{
			"email": ex.Entities["email"],
			"role":  ex.Entities["role"],
		})}
	case "change_role":
		return []domain.FlowStep{domain.Execute("admin.change_role", "users.change_role", domain.SensitivityMedium, map[string]any{
			"email": ex.Entities["email"],
			"role":  ex.Entities["role"],
		})}
	case "remove_user":
		return []domain.FlowStep{domain.Execute("admin.remove_user", "users.remove", domain.SensitivityHigh, map[string]any{
			"email": ex.Entities["email"],
		})}
	}
	return []domain.FlowStep{Unhandled(in)}
}
