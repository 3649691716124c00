package policy

import (
	"fmt"

	"sentra/internal/intent"
	"sentra/internal/registry"
)

// Verdict is the gate's answer for one intent.
type Verdict int

const (
	AllowAuto Verdict = iota
	AllowWithConfirmation
	Deny
)

func (v Verdict) String() string {
	switch v {
	case AllowAuto:
		return "allow_auto"
	case AllowWithConfirmation:
		return "allow_with_confirmation"
	case Deny:
		return "deny"
	}
	return "unknown"
}

// Decision carries the verdict and a human-readable reason for anything
// other than AllowAuto.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// Gate applies the execution policy to intents before any command is
// synthesized.
type Gate struct {
	policy   *ExecutionPolicy
	registry *registry.Registry
}

// NewGate binds a policy to the tool registry. The registry supplies the
// persistent-change flag per tool.
func NewGate(p *ExecutionPolicy, reg *registry.Registry) *Gate {
	if p == nil {
		p = Default()
	}
	return &Gate{policy: p, registry: reg}
}

// Check gates an intent. Decision order: blocked tactic, confirmation
// requirement, persistent change, then auto-allow. Confirmation is
// tested before the persistent-change rule: a confirm-gated tactic is
// parked for explicit approval, never silently denied because its tool
// also creates persistent changes.
func (g *Gate) Check(resolved *intent.Intent) Decision {
	tactic, ok := TacticFor(resolved.Kind)
	if !ok {
		// info_query / unknown never reach command synthesis
		return Decision{Verdict: AllowAuto}
	}

	if g.policy.Blocked(tactic) {
		return Decision{
			Verdict: Deny,
			Reason:  fmt.Sprintf("tactic %s is blocked by policy", tactic),
		}
	}

	if g.policy.RequiresConfirmation(tactic) {
		return Decision{
			Verdict: AllowWithConfirmation,
			Reason:  fmt.Sprintf("tactic %s requires explicit confirmation", tactic),
		}
	}

	if tool, found := g.registry.Lookup(resolved.Kind); found {
		if tool.CreatesPersistentChange && !g.policy.AllowPersistentChanges {
			return Decision{
				Verdict: Deny,
				Reason:  fmt.Sprintf("tool %s creates persistent changes, which policy forbids", tool.Binary),
			}
		}
	}

	return Decision{Verdict: AllowAuto}
}
