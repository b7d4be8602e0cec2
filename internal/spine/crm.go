package spine

import (
	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/entity"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
)

var clientNouns = []string{"client", "customer", "contact"}

var findKeywords = []string{"client", "customer", "contact", "clients", "customers", "contacts"}

var nameStops = []string{"with", "email", "phone", "at", "and", "to", "named"}

// CRM manages the tenant's client list. Clients never match it.
type CRM struct {
	rules []intent.Rule
}

// NewCRM creates the crm spine.
func NewCRM() *CRM {
	return &CRM{rules: []intent.Rule{
		intent.MustRule("delete_client", `\b(delete|remove)\b.*\b(client|customer|contact)\b`, 0.85),
		intent.MustRule("add_client", `\b(add|create|new)\b.*\b(client|customer|contact)\b`, 0.85),
		intent.MustRule("find_client", `\b(find|search|lookup|look up)\b.*\b(client|customer|contact)s?\b`, 0.85),
	}}
}

func (c *CRM) Name() string         { return "crm" }
func (c *CRM) Rules() []intent.Rule { return c.rules }

func (c *CRM) Allows(role domain.Role) bool {
	return roleAllowed(role, domain.RoleClient)
}

func (c *CRM) Tools() []string {
	return []string{"clients.create", "clients.find", "clients.delete"}
}

func (c *CRM) Capabilities() []string {
	return []string{
		"add a client: \"add client Jane Doe jane@example.com\"",
		"find a client: \"find client jane\"",
		"delete a client: \"delete client jane@example.com\"",
	}
}

func (c *CRM) Extract(in domain.Intent, text string, actor domain.ActorContext) domain.Extraction {
	ex := newExtraction()
	switch in.Name {
	case "add_client":
		ex.requireString("name", entity.PhraseAfter(text, clientNouns, nameStops))
		ex.requireString("email", entity.Email(text))
		phone := entity.Phone(text)
		ex.optional("phone", phone, phone != "")
	case "find_client":
		query := entity.Email(text)
		if query == "" {
			query = entity.PhraseAfter(text, findKeywords, []string{"with", "named"})
		}
		ex.requireString("query", query)
	case "delete_client":
		// Either an email or a client id identifies the record.
		if id := entity.ID(text, "cl"); id != "" {
			ex.entities["client"] = id
		} else {
			ex.requireString("client", entity.Email(text))
		}
	}
	return ex.done()
}

func (c *CRM) Compile(in domain.Intent, ex domain.Extraction, actor domain.ActorContext) []domain.FlowStep {
	switch in.Name {
	case "add_client":
		input := map[string]any{
			"name":  ex.Entities["name"],
			"email": ex.Entities["email"],
		}
		if phone, ok := ex.Entities["phone"]; ok {
			input["phone"] = phone
		}
		return []domain.FlowStep{domain.Execute("crm.add_client", "clients.create", domain.SensitivityMedium, input)}
	case "find_client":
		return []domain.FlowStep{domain.Execute("crm.find_client", "clients.find", domain.SensitivityLow, map[string]any{
			"query": ex.Entities["query"],
		})}
	case "delete_client":
		return []domain.FlowStep{domain.Execute("crm.delete_client", "clients.delete", domain.SensitivityMedium, map[string]any{
			"client": ex.Entities["client"],
		})}
	}
	return []domain.FlowStep{Unhandled(in)}
}
