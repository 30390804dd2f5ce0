package policy

import (
	"testing"

	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		mode      model.Mode
		policy    *model.Policy
		planSteps int
		wantCode  string
	}{
		{
			name: "dry run without policy",
			mode: model.ModeDryRun,
		},
		{
			name:     "apply without policy denied",
			mode:     model.ModeApply,
			wantCode: fault.CodePolicyDenied,
		},
		{
			name:     "apply explicitly denied",
			mode:     model.ModeApply,
			policy:   &model.Policy{AllowApply: false},
			wantCode: fault.CodePolicyDenied,
		},
		{
			name:   "apply allowed",
			mode:   model.ModeApply,
			policy: &model.Policy{AllowApply: true},
		},
		{
			name:      "plan within ceiling",
			mode:      model.ModeDryRun,
			policy:    &model.Policy{MaxSteps: 3},
			planSteps: 3,
		},
		{
			name:      "plan over ceiling",
			mode:      model.ModeDryRun,
			policy:    &model.Policy{MaxSteps: 2},
			planSteps: 3,
			wantCode:  fault.CodeMaxStepsExceeded,
		},
		{
			name:      "zero ceiling means unlimited",
			mode:      model.ModeDryRun,
			policy:    &model.Policy{MaxSteps: 0},
			planSteps: 100,
		},
		{
			name:      "apply denial reported before step ceiling",
			mode:      model.ModeApply,
			policy:    &model.Policy{AllowApply: false, MaxSteps: 1},
			planSteps: 5,
			wantCode:  fault.CodePolicyDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.mode, tt.policy, tt.planSteps)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Check returned %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Check returned nil, want code %s", tt.wantCode)
			}
			if got := fault.CodeOf(err); got != tt.wantCode {
				t.Fatalf("Check code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestCheckDetails(t *testing.T) {
	err := Check(model.ModeDryRun, &model.Policy{MaxSteps: 1}, 4)
	details := fault.DetailsOf(err)
	if details["max_steps"] != 1 || details["plan_steps"] != 4 {
		t.Fatalf("unexpected details: %v", details)
	}
}
