package workflow

// SubFlowStateOf derives a sub-flow's state from its required steps.
// A sub-flow without required steps is approved.
func SubFlowStateOf(sf SubFlow) MasterState {
	pending := false
	for _, step := range sf.Steps() {
		if !step.Required() {
			continue
		}
		switch {
		case step.State == StepRejected:
			return MasterRejected
		case step.State.ClosedApproved():
		default:
			pending = true
		}
	}
	if pending {
		return MasterPending
	}
	return MasterApproved
}

// AggregateOutcome recomputes the request outcome from step states.
// One rejected sub-flow rejects the request. A resolution with no sub-flows stays pending.
func AggregateOutcome(wf WorkflowResolution) Outcome {
	out := Outcome{SubFlowStates: make([]SubFlowState, 0, len(wf.SubFlows))}
	rejected, pending := false, false
	for _, sf := range wf.SubFlows {
		state := SubFlowStateOf(sf)
		switch state {
		case MasterRejected:
			rejected = true
		case MasterPending:
			pending = true
		}
		out.SubFlowStates = append(out.SubFlowStates, SubFlowState{
			SubFlowID:  sf.ID,
			PolicyID:   sf.PolicyID,
			PolicyName: sf.PolicyName,
			State:      state,
		})
		for _, step := range sf.Steps() {
			if step.Required() && step.State.Open() && len(step.ResolverIDs) == 0 {
				out.StuckStepIDs = append(out.StuckStepIDs, step.ID)
			}
		}
	}

	switch {
	case rejected:
		out.MasterState = MasterRejected
	case pending || len(wf.SubFlows) == 0:
		out.MasterState = MasterPending
	default:
		out.MasterState = MasterApproved
	}
	out.LeaveStatus = LeaveStatusFor(out.MasterState)
	return out
}
