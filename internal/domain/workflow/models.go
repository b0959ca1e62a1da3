package workflow

// RequestContext is the per-resolution input. It is built once and passed by value.
type RequestContext struct {
	RequesterID    string   `json:"requesterId"`
	CompanyID      string   `json:"companyId"`
	RequestType    string   `json:"requestType"`
	ProjectID      string   `json:"projectId,omitempty"`
	DepartmentID   string   `json:"departmentId,omitempty"`
	AreaID         string   `json:"areaId,omitempty"`
	ContractTypeID string   `json:"contractTypeId,omitempty"`
	ProjectIDs     []string `json:"projectIds,omitempty"`
}

type Trigger struct {
	RequestType    string `json:"requestType"`
	RoleName       string `json:"roleName"`
	DepartmentName string `json:"departmentName,omitempty"`
	ProjectType    string `json:"projectType,omitempty"`
}

type Step struct {
	RuleID        string       `json:"ruleId"`
	Sequence      int          `json:"sequence"`
	Position      int          `json:"position"`
	ResolverKind  ResolverKind `json:"resolverKind"`
	ResolverID    string       `json:"resolverId,omitempty"`
	Scopes        []Scope      `json:"scopes"`
	Action        Action       `json:"action"`
	ParallelGroup string       `json:"parallelGroup,omitempty"`
}

type Watcher struct {
	RuleID       string       `json:"ruleId"`
	ResolverKind ResolverKind `json:"resolverKind"`
	ResolverID   string       `json:"resolverId,omitempty"`
	Scopes       []Scope      `json:"scopes"`
	NotifyEmail  bool         `json:"notifyEmail"`
	NotifyPush   bool         `json:"notifyPush"`
}

// Policy is a view over the rule rows sharing one trigger key. It is never cached.
type Policy struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Trigger   Trigger   `json:"trigger"`
	Steps     []Step    `json:"steps"`
	Watchers  []Watcher `json:"watchers"`
	Active    bool      `json:"active"`
	CompanyID string    `json:"companyId"`
}

type SubFlowStep struct {
	ID                 string        `json:"id"`
	Step               Step          `json:"step"`
	ResolverIDs        []string      `json:"resolverIds"`
	NominalResolverIDs []string      `json:"nominalResolverIds,omitempty"`
	FallbackUsed       bool          `json:"fallbackUsed"`
	FallbackLevel      FallbackLevel `json:"fallbackLevel"`
	Skipped            bool          `json:"skipped"`
	State              StepState     `json:"state"`
}

// Required reports whether the step gates its sub-flow's outcome.
func (s SubFlowStep) Required() bool {
	return s.Step.Action.Required()
}

// StepGroup holds the steps sharing one sequence number.
type StepGroup struct {
	Sequence int           `json:"sequence"`
	Steps    []SubFlowStep `json:"steps"`
}

// Closed reports whether every required step of the group has been decided.
func (g StepGroup) Closed() bool {
	for _, step := range g.Steps {
		if step.Required() && step.State.Open() {
			return false
		}
	}
	return true
}

type SubFlow struct {
	ID         string      `json:"id"`
	PolicyID   string      `json:"policyId"`
	PolicyName string      `json:"policyName"`
	Groups     []StepGroup `json:"groups"`
	WatcherIDs []string    `json:"watcherIds"`
}

// Steps returns the sub-flow's steps in group order.
func (sf SubFlow) Steps() []SubFlowStep {
	var out []SubFlowStep
	for _, group := range sf.Groups {
		out = append(out, group.Steps...)
	}
	return out
}

type ResolverEntry struct {
	UserID   string       `json:"userId"`
	Kind     ResolverKind `json:"kind"`
	Sequence int          `json:"sequence"`
}

type WatcherEntry struct {
	UserID      string `json:"userId"`
	NotifyEmail bool   `json:"notifyEmail"`
	NotifyPush  bool   `json:"notifyPush"`
}

// WorkflowResolution is the output of one resolution pass.
type WorkflowResolution struct {
	Resolvers []ResolverEntry `json:"resolvers"`
	Watchers  []WatcherEntry  `json:"watchers"`
	SubFlows  []SubFlow       `json:"subFlows"`
}

// Unrouted reports whether no policy applied to the request.
func (r WorkflowResolution) Unrouted() bool {
	return len(r.SubFlows) == 0
}

type SubFlowState struct {
	SubFlowID  string      `json:"subFlowId"`
	PolicyID   string      `json:"policyId"`
	PolicyName string      `json:"policyName"`
	State      MasterState `json:"state"`
}

// Outcome is recomputed from step states on every transition.
type Outcome struct {
	MasterState   MasterState    `json:"masterState"`
	LeaveStatus   LeaveStatus    `json:"leaveStatus"`
	SubFlowStates []SubFlowState `json:"subFlowStates"`
	// StuckStepIDs lists open required steps with nobody to act on them.
	StuckStepIDs []string `json:"stuckStepIds,omitempty"`
}

// SafetyResult is the fallback-wrapped resolution of one step.
type SafetyResult struct {
	ResolverIDs        []string      `json:"resolverIds"`
	NominalResolverIDs []string      `json:"nominalResolverIds,omitempty"`
	FallbackUsed       bool          `json:"fallbackUsed"`
	StepSkipped        bool          `json:"stepSkipped"`
	Level              FallbackLevel `json:"level"`
	State              StepState     `json:"state"`
}

// Resolution bundles everything produced by Engine.Resolve.
type Resolution struct {
	Context  RequestContext     `json:"context"`
	Policies []Policy           `json:"policies"`
	Workflow WorkflowResolution `json:"workflow"`
	Outcome  Outcome            `json:"outcome"`
}
