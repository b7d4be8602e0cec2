package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Rule is a CEL deny rule. When Expr evaluates to true the action is denied
// with Reason.
//
// Available variables: role, action, sensitivity, tenant, channel, user (all strings).
type Rule struct {
	Name   string `yaml:"name" json:"name"`
	Expr   string `yaml:"expr" json:"expr"`
	Reason string `yaml:"reason" json:"reason"`
}

type compiledRule struct {
	Rule
	prg cel.Program
}

func newRuleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("role", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("sensitivity", cel.StringType),
		cel.Variable("tenant", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("user", cel.StringType),
	)
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	env, err := newRuleEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, domain.WrapEngineError(domain.ErrPolicyRuleInvalid.Code, "rule "+r.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, domain.NewEngineError(domain.ErrPolicyRuleInvalid.Code,
				fmt.Sprintf("rule %s: expression must return bool, got %s", r.Name, ast.OutputType()))
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, domain.WrapEngineError(domain.ErrPolicyRuleInvalid.Code, "rule "+r.Name, err)
		}
		out = append(out, compiledRule{Rule: r, prg: prg})
	}
	return out, nil
}

// evalRules returns the reason of the first rule that denies. Evaluation
// errors deny.
func (e *Engine) evalRules(actor domain.ActorContext, action string, sensitivity domain.Sensitivity) (string, bool) {
	if len(e.rules) == 0 {
		return "", false
	}
	vars := map[string]any{
		"role":        string(actor.Role),
		"action":      action,
		"sensitivity": string(sensitivity),
		"tenant":      actor.TenantID,
		"channel":     string(actor.Channel),
		"user":        actor.UserID,
	}
	for _, r := range e.rules {
		out, _, err := r.prg.Eval(vars)
		if err != nil {
			return fmt.Sprintf("policy rule %s failed to evaluate", r.Name), true
		}
		denied, ok := out.Value().(bool)
		if !ok {
			return fmt.Sprintf("policy rule %s returned a non-boolean", r.Name), true
		}
		if denied {
			reason := r.Reason
			if reason == "" {
				reason = "denied by policy rule " + r.Name
			}
			return reason, true
		}
	}
	return "", false
}
