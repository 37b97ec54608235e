package gate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
)

// Default admission rules.
const (
	DefaultAdmitRule = "balance >= admit_threshold"
	DefaultVIPRule   = "balance > vip_threshold"
)

// Tier is the admission outcome for a balance.
type Tier int

const (
	TierRejected Tier = iota
	TierMember
	TierVIP
)

func (t Tier) String() string {
	switch t {
	case TierRejected:
		return "rejected"
	case TierMember:
		return "member"
	case TierVIP:
		return "vip"
	default:
		return "unknown"
	}
}

// Policy decides the admission tier from a balance using two boolean expressions
// over balance, admit_threshold and vip_threshold.
type Policy struct {
	admit          *govaluate.EvaluableExpression
	vip            *govaluate.EvaluableExpression
	AdmitThreshold float64
	VIPThreshold   float64
}

// NewPolicy compiles the rules. Empty rules fall back to the defaults.
func NewPolicy(admitRule, vipRule string, admitThreshold, vipThreshold float64) (*Policy, error) {
	admit, err := compile(admitRule, DefaultAdmitRule)
	if err != nil {
		return nil, fmt.Errorf("admit rule: %w", err)
	}
	vip, err := compile(vipRule, DefaultVIPRule)
	if err != nil {
		return nil, fmt.Errorf("vip rule: %w", err)
	}
	return &Policy{
		admit:          admit,
		vip:            vip,
		AdmitThreshold: admitThreshold,
		VIPThreshold:   vipThreshold,
	}, nil
}

func compile(rule, fallback string) (*govaluate.EvaluableExpression, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		rule = fallback
	}
	return govaluate.NewEvaluableExpression(rule)
}

// Decide evaluates the rules for balance.
func (p *Policy) Decide(balance float64) (Tier, error) {
	params := map[string]interface{}{
		"balance":         balance,
		"admit_threshold": p.AdmitThreshold,
		"vip_threshold":   p.VIPThreshold,
	}
	admitted, err := evaluate(p.admit, params)
	if err != nil {
		return TierRejected, err
	}
	if !admitted {
		return TierRejected, nil
	}
	vip, err := evaluate(p.vip, params)
	if err != nil {
		return TierRejected, err
	}
	if vip {
		return TierVIP, nil
	}
	return TierMember, nil
}

func evaluate(expr *govaluate.EvaluableExpression, params map[string]interface{}) (bool, error) {
	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, errors.New("rule did not evaluate to boolean")
	}
	return v, nil
}
