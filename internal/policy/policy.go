// Package policy gates purchases with operator-defined govaluate rules.
package policy

import (
	"encoding/json"
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Rule pairs a boolean expression with the decision taken when it matches.
// Expressions see amount, currency, backend and phase.
type Rule struct {
	ID         string   `json:"id"`
	Expression string   `json:"expression"`
	Decision   Decision `json:"decision"`
}

// Input describes the purchase being checked.
type Input struct {
	Amount   decimal.Decimal
	Currency string
	Backend  string
	Phase    string
}

func (in Input) parameters() map[string]interface{} {
	amount, _ := in.Amount.Float64()
	return map[string]interface{}{
		"amount":   amount,
		"currency": in.Currency,
		"backend":  in.Backend,
		"phase":    in.Phase,
	}
}

type compiledRule struct {
	rule Rule
	expr *govaluate.EvaluableExpression
}

// Enforcer evaluates rules in order; the first match wins.
type Enforcer struct {
	rules []compiledRule
}

func NewEnforcer(rules []Rule) (*Enforcer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Expression == "" {
			return nil, fmt.Errorf("policy rule ID '%s' has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule ID '%s': %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{rule: r, expr: expr})
	}
	return &Enforcer{rules: compiled}, nil
}

// ParseRules decodes a JSON array of rules.
func ParseRules(raw []byte) ([]Rule, error) {
	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("policy: decode rules: %w", err)
	}
	return rules, nil
}

// Evaluate returns the decision of the first rule whose expression is true.
// With no match the purchase is allowed.
func (e *Enforcer) Evaluate(in Input) (Decision, error) {
	if e == nil || len(e.rules) == 0 {
		return Decision{Allow: true}, nil
	}
	params := in.parameters()
	for _, cr := range e.rules {
		res, err := cr.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("evaluate rule ID '%s': %w", cr.rule.ID, err)
		}
		matched, ok := res.(bool)
		if !ok {
			return Decision{}, fmt.Errorf("rule ID '%s' did not evaluate to a boolean (got %T)", cr.rule.ID, res)
		}
		if matched {
			d := cr.rule.Decision
			if !d.Allow && d.Reason == "" {
				d.Reason = "blocked by policy rule " + cr.rule.ID
			}
			return d, nil
		}
	}
	return Decision{Allow: true}, nil
}

// Len is the number of compiled rules.
func (e *Enforcer) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}
