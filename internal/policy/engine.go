// Package policy decides whether an actor may perform an action. Decide is a
// pure function of its arguments: no I/O, no shared mutable state.
package policy

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Config holds the rule tables, evaluated in order.
type Config struct {
	// PrivilegedNamespaces are action prefixes ("admin") or patterns ("admin.*")
	// reserved to PrivilegedRoles.
	PrivilegedNamespaces []string
	PrivilegedRoles      []domain.Role
	// DeniedActions maps a role to the action patterns it may never perform.
	DeniedActions map[domain.Role][]string
	// HighRiskActions always require confirmation regardless of declared sensitivity.
	HighRiskActions []string
	// Rules are CEL deny rules checked after the role tables.
	Rules []Rule
}

// readOnlyDenied are the mutating actions read-only roles may never perform.
var readOnlyDenied = []string{
	"booking.create", "booking.cancel", "booking.reschedule",
	"payments.invoice_create", "payments.refund",
	"crm.add_client", "crm.delete_client",
	"notify.*",
}

// DefaultConfig returns the standard rule tables.
func DefaultConfig() Config {
	return Config{
		PrivilegedNamespaces: []string{"admin", "security"},
		PrivilegedRoles:      []domain.Role{domain.RoleOwner, domain.RoleAdmin},
		DeniedActions: map[domain.Role][]string{
			domain.RoleViewer: readOnlyDenied,
			domain.RoleClient: readOnlyDenied,
			domain.RoleStaff:  {"payments.refund"},
		},
		HighRiskActions: []string{"payments.refund", "crm.delete_client", "admin.remove_user"},
	}
}

// Engine evaluates policy decisions.
type Engine struct {
	privileged      []string
	privilegedRoles map[domain.Role]bool
	denied          map[domain.Role][]string
	highRisk        []string
	rules           []compiledRule
	newToken        func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenSource overrides confirmation token generation.
func WithTokenSource(fn func() string) Option {
	return func(e *Engine) { e.newToken = fn }
}

// NewEngine validates cfg and compiles its CEL rules.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		privilegedRoles: make(map[domain.Role]bool),
		denied:          make(map[domain.Role][]string),
		newToken:        uuid.NewString,
	}

	for _, ns := range cfg.PrivilegedNamespaces {
		pattern := ns
		if !strings.ContainsAny(ns, "*?[") {
			pattern = strings.TrimSuffix(ns, ".") + ".*"
		}
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("privileged namespace %q: %w", ns, err)
		}
		e.privileged = append(e.privileged, pattern)
	}
	for _, r := range cfg.PrivilegedRoles {
		e.privilegedRoles[r] = true
	}
	for role, patterns := range cfg.DeniedActions {
		for _, p := range patterns {
			if _, err := path.Match(p, ""); err != nil {
				return nil, fmt.Errorf("denied pattern %q for role %s: %w", p, role, err)
			}
		}
		e.denied[role] = append([]string(nil), patterns...)
	}
	for _, p := range cfg.HighRiskActions {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("high-risk pattern %q: %w", p, err)
		}
		e.highRisk = append(e.highRisk, p)
	}

	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	e.rules = rules

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decide evaluates the rules in order; the first match wins:
//  1. privileged namespaces require a privileged role
//  2. role deny tables
//  3. CEL deny rules (fail closed)
//  4. high sensitivity or high-risk action: allow with required confirmation
//  5. allow
//
// An unknown sensitivity is treated as high.
func (e *Engine) Decide(actor domain.ActorContext, action string, sensitivity domain.Sensitivity) domain.PolicyDecision {
	if !sensitivity.Valid() {
		sensitivity = domain.SensitivityHigh
	}

	if matchAny(e.privileged, action) && !e.privilegedRoles[actor.Role] {
		return domain.PolicyDecision{
			Allow:  false,
			Reason: fmt.Sprintf("%s is restricted to %s", action, e.privilegedRoleList()),
		}
	}

	if p := firstMatch(e.denied[actor.Role], action); p != "" {
		return domain.PolicyDecision{
			Allow:  false,
			Reason: fmt.Sprintf("role %s may not perform %s", actor.Role, action),
		}
	}

	if reason, denied := e.evalRules(actor, action, sensitivity); denied {
		return domain.PolicyDecision{Allow: false, Reason: reason}
	}

	if sensitivity == domain.SensitivityHigh || matchAny(e.highRisk, action) {
		return domain.PolicyDecision{
			Allow: true,
			RequireConfirmation: &domain.ConfirmationRequest{
				Token:   e.newToken(),
				Message: fmt.Sprintf("%s is a sensitive action. Resubmit with the confirmation token to proceed.", action),
			},
		}
	}

	return domain.PolicyDecision{Allow: true}
}

func (e *Engine) privilegedRoleList() string {
	roles := make([]string, 0, len(e.privilegedRoles))
	for _, r := range []domain.Role{domain.RoleOwner, domain.RoleAdmin, domain.RoleManager, domain.RoleStaff, domain.RoleViewer, domain.RoleClient} {
		if e.privilegedRoles[r] {
			roles = append(roles, string(r))
		}
	}
	return strings.Join(roles, " or ")
}

// matchAny reports whether action matches any pattern. Patterns were
// validated in NewEngine, so match errors cannot occur here.
func matchAny(patterns []string, action string) bool {
	return firstMatch(patterns, action) != ""
}

func firstMatch(patterns []string, action string) string {
	for _, p := range patterns {
		if ok, _ := path.Match(p, action); ok {
			return p
		}
	}
	return ""
}
