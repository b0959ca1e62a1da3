package workflow

import (
	"context"
	"fmt"
)

// IsSelfApproval reports whether approver a is the requester b.
func IsSelfApproval(approverID, requesterID string) bool {
	return approverID != "" && approverID == requesterID
}

// fallbackStrategy is one level of the safety chain. Levels are tried in order.
type fallbackStrategy struct {
	level   FallbackLevel
	resolve func(ctx context.Context, rc RequestContext) ([]string, error)
}

func (e *Engine) fallbackChain() []fallbackStrategy {
	return []fallbackStrategy{
		{level: LevelDepartmentManager, resolve: e.DepartmentManagerFallback},
		{level: LevelCompanyAdmin, resolve: e.CompanyAdminFallback},
	}
}

// DepartmentManagerFallback returns the requester's active department managers, minus the requester.
func (e *Engine) DepartmentManagerFallback(ctx context.Context, rc RequestContext) ([]string, error) {
	ids, err := e.resolveDepartmentManager(ctx, rc)
	if err != nil {
		return nil, err
	}
	return excludeUser(ids, rc.RequesterID), nil
}

// CompanyAdminFallback returns the company's active admins, minus the requester.
func (e *Engine) CompanyAdminFallback(ctx context.Context, rc RequestContext) ([]string, error) {
	if rc.CompanyID == "" {
		return []string{}, nil
	}
	ids, err := e.store.CompanyAdmins(ctx, rc.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("resolve company admins: %w", err)
	}
	return excludeUser(ids, rc.RequesterID), nil
}

// ResolveStepWithSafety resolves a step and escalates through the fallback chain when
// direct resolution yields no one other than the requester.
//
// When the configured approver is the requester alone, the step is marked skipped and
// closes as SKIPPED_SELF_APPROVAL; the fallback set is still attached for the trail.
// When every level is empty the step keeps an empty resolver set and stays pending.
func (e *Engine) ResolveStepWithSafety(ctx context.Context, step Step, rc RequestContext) (SafetyResult, error) {
	nominal, err := e.ResolveStep(ctx, step, rc)
	if err != nil {
		return SafetyResult{}, err
	}
	direct := excludeUser(nominal, rc.RequesterID)
	if len(direct) > 0 {
		return SafetyResult{
			ResolverIDs:        direct,
			NominalResolverIDs: nominal,
			Level:              LevelDirect,
			State:              StepPending,
		}, nil
	}

	selfOnly := len(nominal) > 0
	result := SafetyResult{
		ResolverIDs:        []string{},
		NominalResolverIDs: nominal,
		FallbackUsed:       true,
		StepSkipped:        selfOnly,
		Level:              LevelNone,
		State:              StepPending,
	}
	if selfOnly {
		result.State = StepSkippedSelfApproval
		e.metrics.ObserveSelfApprovalSkip()
	}

	for _, strategy := range e.fallbackChain() {
		ids, err := strategy.resolve(ctx, rc)
		if err != nil {
			return SafetyResult{}, err
		}
		if len(ids) == 0 {
			continue
		}
		result.ResolverIDs = ids
		result.Level = strategy.level
		break
	}

	e.metrics.ObserveFallback(result.Level)
	e.log.Info("approval fallback applied",
		"requesterId", rc.RequesterID,
		"ruleId", step.RuleID,
		"sequence", step.Sequence,
		"level", result.Level,
		"selfApproval", selfOnly,
		"resolvers", len(result.ResolverIDs),
	)
	if result.Level == LevelNone {
		e.log.Warn("approval step has no resolvers", "requesterId", rc.RequesterID, "ruleId", step.RuleID)
	}
	return result, nil
}
