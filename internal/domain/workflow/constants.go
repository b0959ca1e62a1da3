package workflow

// ResolverKind selects how an abstract step is turned into concrete users.
type ResolverKind string

const (
	ResolverSpecificUser      ResolverKind = "SPECIFIC_USER"
	ResolverRole              ResolverKind = "ROLE"
	ResolverDepartmentManager ResolverKind = "DEPARTMENT_MANAGER"
	ResolverLineManager       ResolverKind = "LINE_MANAGER"
)

func (k ResolverKind) Valid() bool {
	switch k {
	case ResolverSpecificUser, ResolverRole, ResolverDepartmentManager, ResolverLineManager:
		return true
	}
	return false
}

// Scope narrows resolved candidates to users sharing an attribute with the requester.
type Scope string

const (
	ScopeGlobal         Scope = "GLOBAL"
	ScopeSameArea       Scope = "SAME_AREA"
	ScopeSameDepartment Scope = "SAME_DEPARTMENT"
	ScopeSameProject    Scope = "SAME_PROJECT"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeSameArea, ScopeSameDepartment, ScopeSameProject:
		return true
	}
	return false
}

type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionNotify  Action = "NOTIFY"
)

func (a Action) Valid() bool {
	return a == ActionApprove || a == ActionReject || a == ActionNotify
}

// Required reports whether a step with this action gates the outcome.
func (a Action) Required() bool {
	return a != ActionNotify
}

// StepState is the runtime state of one instantiated step.
type StepState string

const (
	StepPending             StepState = "PENDING"
	StepReady               StepState = "READY"
	StepApproved            StepState = "APPROVED"
	StepRejected            StepState = "REJECTED"
	StepAutoApproved        StepState = "AUTO_APPROVED"
	StepSkippedSelfApproval StepState = "SKIPPED_SELF_APPROVAL"
)

var validStepStates = map[StepState]bool{
	StepPending:             true,
	StepReady:               true,
	StepApproved:            true,
	StepRejected:            true,
	StepAutoApproved:        true,
	StepSkippedSelfApproval: true,
}

func (s StepState) Valid() bool {
	return validStepStates[s]
}

// Open reports whether the step still awaits a decision.
func (s StepState) Open() bool {
	return s == StepPending || s == StepReady
}

// ClosedApproved reports whether the step counts as approved for aggregation.
func (s StepState) ClosedApproved() bool {
	return s == StepApproved || s == StepAutoApproved || s == StepSkippedSelfApproval
}

// MasterState is the aggregate state of a sub-flow or of the whole request.
type MasterState string

const (
	MasterPending  MasterState = "PENDING"
	MasterApproved MasterState = "APPROVED"
	MasterRejected MasterState = "REJECTED"
)

func (s MasterState) Valid() bool {
	return s == MasterPending || s == MasterApproved || s == MasterRejected
}

// LeaveStatus is the persisted request status. NEW means awaiting approval.
type LeaveStatus string

const (
	LeaveNew      LeaveStatus = "NEW"
	LeaveApproved LeaveStatus = "APPROVED"
	LeaveRejected LeaveStatus = "REJECTED"
)

func (s LeaveStatus) Valid() bool {
	return s == LeaveNew || s == LeaveApproved || s == LeaveRejected
}

// LeaveStatusFor maps a master state onto the persisted status enum.
func LeaveStatusFor(state MasterState) LeaveStatus {
	switch state {
	case MasterApproved:
		return LeaveApproved
	case MasterRejected:
		return LeaveRejected
	default:
		return LeaveNew
	}
}

// FallbackLevel identifies which resolver strategy produced a step's approvers.
type FallbackLevel string

const (
	LevelDirect            FallbackLevel = "DIRECT"
	LevelDepartmentManager FallbackLevel = "DEPARTMENT_MANAGER"
	LevelCompanyAdmin      FallbackLevel = "COMPANY_ADMIN"
	LevelNone              FallbackLevel = "NONE"
)

const (
	RequestTypeLeave = "LEAVE_REQUEST"
	RequestTypeAll   = "ALL"

	// Project type tokens that match every project.
	ProjectTypeAll = "ALL"
	ProjectTypeAny = "ANY"

	EntityLeaveRequest = "leave_request"
)
