// Package policy evaluates a request's governance block before any step
// executes.
package policy

import (
	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
)

// Check authorizes the run against its policy. It returns an operational
// error with code POLICY_DENIED when apply mode is not allowed, or
// MAX_STEPS_EXCEEDED when the plan is longer than the step ceiling. A nil
// policy denies apply mode and imposes no ceiling.
func Check(mode model.Mode, pol *model.Policy, planSteps int) error {
	if mode == model.ModeApply {
		if pol == nil || !pol.AllowApply {
			return fault.NewOperational(fault.CodePolicyDenied,
				"apply mode is not allowed by policy").
				WithDetails(map[string]any{"allow_apply": false})
		}
	}
	if pol != nil && pol.MaxSteps > 0 && planSteps > pol.MaxSteps {
		return fault.NewOperational(fault.CodeMaxStepsExceeded,
			"plan has %d steps, policy allows %d", planSteps, pol.MaxSteps).
			WithDetails(map[string]any{
				"max_steps":  pol.MaxSteps,
				"plan_steps": planSteps,
			})
	}
	return nil
}
