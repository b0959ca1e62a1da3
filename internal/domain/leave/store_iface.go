package leave

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"absence/internal/domain/workflow"
)

type StoreAPI interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	LeaveType(ctx context.Context, companyID, leaveTypeID string) (LeaveType, error)
	Request(ctx context.Context, companyID, requestID string) (Request, error)
	Workflow(ctx context.Context, requestID string) (workflow.WorkflowResolution, map[string]StepActivity, error)
	PendingForApprover(ctx context.Context, companyID, userID string) ([]PendingStep, error)
	// StaleApprovals lists NEW requests created before cutoff that were not reminded since cutoff.
	StaleApprovals(ctx context.Context, cutoff time.Time, limit int) ([]StaleApproval, error)
	MarkReminded(ctx context.Context, requestIDs []string, at time.Time) error

	InsertRequestTx(ctx context.Context, tx pgx.Tx, req Request) (string, error)
	InsertWorkflowTx(ctx context.Context, tx pgx.Tx, requestID string, wf workflow.WorkflowResolution) error
	LockRequestTx(ctx context.Context, tx pgx.Tx, companyID, requestID string) (Request, error)
	WorkflowTx(ctx context.Context, tx pgx.Tx, requestID string) (workflow.WorkflowResolution, error)
	// CloseStepTx moves an open step to a terminal state. It reports false when the step was already closed.
	CloseStepTx(ctx context.Context, tx pgx.Tx, stepID string, to workflow.StepState, actorID, comment string) (bool, error)
	OpenStepsTx(ctx context.Context, tx pgx.Tx, stepIDs []string) error
	// UpdateStatusTx sets the request status only if it still equals from.
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, requestID string, from, to workflow.LeaveStatus) (bool, error)
}
