package workflow

import "context"

type AuditAction string

const (
	AuditPolicyMatch      AuditAction = "workflow.policy_match"
	AuditFallback         AuditAction = "workflow.fallback"
	AuditSelfApprovalSkip AuditAction = "workflow.self_approval_skip"
	AuditOutcome          AuditAction = "workflow.outcome"
	AuditStepAction       AuditAction = "workflow.step_action"
	AuditAdminOverride    AuditAction = "workflow.admin_override"
)

// EventMeta identifies the request and actor every workflow audit event refers to.
type EventMeta struct {
	LeaveRequestID string
	CompanyID      string
	ActorID        string
}

// AuditEvent is an immutable workflow audit record ready to be persisted or published.
type AuditEvent struct {
	Action     AuditAction `json:"action"`
	EntityType string      `json:"entityType"`
	EntityID   string      `json:"entityId"`
	CompanyID  string      `json:"companyId"`
	ActorID    string      `json:"actorId"`
	Payload    any         `json:"payload"`
}

// AuditEmitter stores or forwards workflow audit events.
type AuditEmitter interface {
	Emit(ctx context.Context, event AuditEvent) error
}

type PolicyMatchPayload struct {
	PolicyIDs   []string `json:"policyIds"`
	PolicyNames []string `json:"policyNames"`
	Count       int      `json:"count"`
	Unrouted    bool     `json:"unrouted"`
}

type FallbackPayload struct {
	SubFlowID          string        `json:"subFlowId"`
	StepID             string        `json:"stepId"`
	RuleID             string        `json:"ruleId"`
	Sequence           int           `json:"sequence"`
	Level              FallbackLevel `json:"level"`
	ResolverIDs        []string      `json:"resolverIds"`
	NominalResolverIDs []string      `json:"nominalResolverIds,omitempty"`
}

type OutcomePayload struct {
	MasterState    MasterState    `json:"masterState"`
	LeaveStatus    LeaveStatus    `json:"leaveStatus"`
	PreviousStatus LeaveStatus    `json:"previousStatus,omitempty"`
	SubFlowStates  []SubFlowState `json:"subFlowStates"`
	StuckStepIDs   []string       `json:"stuckStepIds,omitempty"`
}

type StepActionPayload struct {
	SubFlowID string    `json:"subFlowId"`
	StepID    string    `json:"stepId"`
	Sequence  int       `json:"sequence"`
	From      StepState `json:"from"`
	To        StepState `json:"to"`
	Comment   string    `json:"comment,omitempty"`
}

type OverridePayload struct {
	Decision       LeaveStatus `json:"decision"`
	Reason         string      `json:"reason"`
	PreviousStatus LeaveStatus `json:"previousStatus"`
}

func (m EventMeta) event(action AuditAction, payload any) AuditEvent {
	return AuditEvent{
		Action:     action,
		EntityType: EntityLeaveRequest,
		EntityID:   m.LeaveRequestID,
		CompanyID:  m.CompanyID,
		ActorID:    m.ActorID,
		Payload:    payload,
	}
}

func PolicyMatchEvent(meta EventMeta, policies []Policy) AuditEvent {
	payload := PolicyMatchPayload{
		PolicyIDs:   make([]string, 0, len(policies)),
		PolicyNames: make([]string, 0, len(policies)),
		Count:       len(policies),
		Unrouted:    len(policies) == 0,
	}
	for _, policy := range policies {
		payload.PolicyIDs = append(payload.PolicyIDs, policy.ID)
		payload.PolicyNames = append(payload.PolicyNames, policy.Name)
	}
	return meta.event(AuditPolicyMatch, payload)
}

// FallbackEvents returns one event per fallback activation and one per self-approval skip.
// Skip events carry the nominal approver that was bypassed.
func FallbackEvents(meta EventMeta, wf WorkflowResolution) []AuditEvent {
	var out []AuditEvent
	for _, sf := range wf.SubFlows {
		for _, step := range sf.Steps() {
			if !step.FallbackUsed && !step.Skipped {
				continue
			}
			payload := FallbackPayload{
				SubFlowID:   sf.ID,
				StepID:      step.ID,
				RuleID:      step.Step.RuleID,
				Sequence:    step.Step.Sequence,
				Level:       step.FallbackLevel,
				ResolverIDs: step.ResolverIDs,
			}
			if step.FallbackUsed {
				out = append(out, meta.event(AuditFallback, payload))
			}
			if step.Skipped {
				payload.NominalResolverIDs = step.NominalResolverIDs
				out = append(out, meta.event(AuditSelfApprovalSkip, payload))
			}
		}
	}
	return out
}

func OutcomeEvent(meta EventMeta, outcome Outcome, previous LeaveStatus) AuditEvent {
	return meta.event(AuditOutcome, OutcomePayload{
		MasterState:    outcome.MasterState,
		LeaveStatus:    outcome.LeaveStatus,
		PreviousStatus: previous,
		SubFlowStates:  outcome.SubFlowStates,
		StuckStepIDs:   outcome.StuckStepIDs,
	})
}

func StepActionEvent(meta EventMeta, subFlowID string, step SubFlowStep, from StepState, comment string) AuditEvent {
	return meta.event(AuditStepAction, StepActionPayload{
		SubFlowID: subFlowID,
		StepID:    step.ID,
		Sequence:  step.Step.Sequence,
		From:      from,
		To:        step.State,
		Comment:   comment,
	})
}

func OverrideEvent(meta EventMeta, decision LeaveStatus, reason string, previous LeaveStatus) AuditEvent {
	return meta.event(AuditAdminOverride, OverridePayload{
		Decision:       decision,
		Reason:         reason,
		PreviousStatus: previous,
	})
}
