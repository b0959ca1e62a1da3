package leave

import (
	"time"

	"absence/internal/domain/workflow"
)

type LeaveType struct {
	ID          string `json:"id"`
	CompanyID   string `json:"companyId"`
	Name        string `json:"name"`
	RequestType string `json:"requestType"`
}

type Request struct {
	ID            string               `json:"id"`
	CompanyID     string               `json:"companyId"`
	RequesterID   string               `json:"requesterId"`
	LeaveTypeID   string               `json:"leaveTypeId"`
	LeaveTypeName string               `json:"leaveTypeName,omitempty"`
	ProjectID     string               `json:"projectId,omitempty"`
	RequestType   string               `json:"requestType"`
	StartDate     time.Time            `json:"startDate"`
	EndDate       time.Time            `json:"endDate"`
	Reason        string               `json:"reason,omitempty"`
	Status        workflow.LeaveStatus `json:"status"`
	Unrouted      bool                 `json:"unrouted"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

type SubmitInput struct {
	LeaveTypeID string
	ProjectID   string
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
}

// StepActivity records who closed a step and when.
type StepActivity struct {
	ActedBy string     `json:"actedBy,omitempty"`
	ActedAt *time.Time `json:"actedAt,omitempty"`
	Comment string     `json:"comment,omitempty"`
}

// Detail is a request with its persisted workflow and the outcome derived from it.
type Detail struct {
	Request  Request                     `json:"request"`
	Workflow workflow.WorkflowResolution `json:"workflow"`
	Outcome  workflow.Outcome            `json:"outcome"`
	Activity map[string]StepActivity     `json:"activity,omitempty"`
}

// PendingStep is an open step the user can act on.
type PendingStep struct {
	RequestID     string             `json:"requestId"`
	SubFlowID     string             `json:"subFlowId"`
	StepID        string             `json:"stepId"`
	PolicyName    string             `json:"policyName"`
	Sequence      int                `json:"sequence"`
	State         workflow.StepState `json:"state"`
	RequesterID   string             `json:"requesterId"`
	RequesterName string             `json:"requesterName"`
	LeaveTypeName string             `json:"leaveTypeName"`
	StartDate     time.Time          `json:"startDate"`
	EndDate       time.Time          `json:"endDate"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// StaleApproval is an open request whose ready approvers have not acted since the cutoff.
type StaleApproval struct {
	RequestID     string
	CompanyID     string
	RequesterID   string
	LeaveTypeName string
	StartDate     time.Time
	EndDate       time.Time
	ApproverIDs   []string
}
