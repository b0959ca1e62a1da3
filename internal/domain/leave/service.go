package leave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"absence/internal/domain/notifications"
	"absence/internal/domain/workflow"
	"absence/internal/platform/querier"
)

// AuditFactory binds a workflow audit emitter to a querier so audit rows commit with the
// state change they describe.
type AuditFactory func(q querier.Querier) workflow.AuditEmitter

// auditFlusher is implemented by emitters that hold bus publishes until after commit.
type auditFlusher interface {
	Flush(ctx context.Context)
}

type Notifier interface {
	Notify(ctx context.Context, notice notifications.Notice) error
}

// Viewer is the authenticated caller.
type Viewer struct {
	UserID    string
	CompanyID string
	IsAdmin   bool
}

type stepRecorder interface {
	ObserveStepAction(decision workflow.StepState)
}

type Service struct {
	store    StoreAPI
	engine   *workflow.Engine
	audit    AuditFactory
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewService(store StoreAPI, engine *workflow.Engine, audit AuditFactory, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, audit: audit, notifier: notifier, log: logger, now: time.Now}
}

// Submit resolves the approval workflow for a new request and persists it with its audit trail.
func (s *Service) Submit(ctx context.Context, viewer Viewer, in SubmitInput) (Detail, error) {
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return Detail{}, fmt.Errorf("%w: start and end dates are required", ErrInvalidInput)
	}
	if in.EndDate.Before(in.StartDate) {
		return Detail{}, fmt.Errorf("%w: end date precedes start date", ErrInvalidInput)
	}
	lt, err := s.store.LeaveType(ctx, viewer.CompanyID, in.LeaveTypeID)
	if err != nil {
		return Detail{}, err
	}
	res, err := s.engine.Resolve(ctx, viewer.UserID, in.ProjectID, lt.RequestType)
	if err != nil {
		return Detail{}, err
	}
	if res.Context.CompanyID != viewer.CompanyID {
		return Detail{}, ErrForbidden
	}

	now := s.now()
	req := Request{
		CompanyID:     viewer.CompanyID,
		RequesterID:   viewer.UserID,
		LeaveTypeID:   lt.ID,
		LeaveTypeName: lt.Name,
		ProjectID:     in.ProjectID,
		RequestType:   lt.RequestType,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Reason:        strings.TrimSpace(in.Reason),
		Status:        res.Outcome.LeaveStatus,
		Unrouted:      res.Workflow.Unrouted(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return Detail{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := s.store.InsertRequestTx(ctx, tx, req)
	if err != nil {
		return Detail{}, err
	}
	req.ID = id
	if err := s.store.InsertWorkflowTx(ctx, tx, id, res.Workflow); err != nil {
		return Detail{}, err
	}

	meta := workflow.EventMeta{LeaveRequestID: id, CompanyID: viewer.CompanyID, ActorID: viewer.UserID}
	events := []workflow.AuditEvent{workflow.PolicyMatchEvent(meta, res.Policies)}
	events = append(events, workflow.FallbackEvents(meta, res.Workflow)...)
	events = append(events, workflow.OutcomeEvent(meta, res.Outcome, ""))
	publish, err := s.emit(ctx, tx, events...)
	if err != nil {
		return Detail{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Detail{}, err
	}
	publish(ctx)
	s.engine.Recorder().ObserveOutcome(res.Outcome.MasterState)

	s.log.Info("leave request submitted",
		"leaveRequestId", id,
		"companyId", viewer.CompanyID,
		"requesterId", viewer.UserID,
		"status", req.Status,
		"unrouted", req.Unrouted,
		"stuckSteps", len(res.Outcome.StuckStepIDs),
	)
	s.notifySubmitted(ctx, req, res)

	return Detail{Request: req, Workflow: res.Workflow, Outcome: res.Outcome}, nil
}

// ActOnStep records an approver's decision on one step and re-derives the request outcome.
func (s *Service) ActOnStep(ctx context.Context, viewer Viewer, requestID, stepID string, decision workflow.StepState, comment string) (Detail, error) {
	if decision != workflow.StepApproved && decision != workflow.StepRejected {
		return Detail{}, fmt.Errorf("%w: decision must be APPROVED or REJECTED", ErrInvalidInput)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return Detail{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := s.store.LockRequestTx(ctx, tx, viewer.CompanyID, requestID)
	if err != nil {
		return Detail{}, err
	}
	if req.Status != workflow.LeaveNew {
		return Detail{}, fmt.Errorf("%w: request is %s", ErrInvalidState, req.Status)
	}
	wf, err := s.store.WorkflowTx(ctx, tx, req.ID)
	if err != nil {
		return Detail{}, err
	}
	sf, step := wf.FindStep(stepID)
	if step == nil {
		return Detail{}, workflow.NewNotFoundError("workflow step", stepID)
	}
	if workflow.IsSelfApproval(viewer.UserID, req.RequesterID) {
		return Detail{}, ErrSelfApproval
	}
	if !contains(step.ResolverIDs, viewer.UserID) || !step.Required() {
		return Detail{}, ErrForbidden
	}
	switch step.State {
	case workflow.StepReady:
	case workflow.StepPending:
		return Detail{}, ErrNotActionable
	default:
		return Detail{}, ErrStepConflict
	}

	closed, err := s.store.CloseStepTx(ctx, tx, step.ID, decision, viewer.UserID, strings.TrimSpace(comment))
	if err != nil {
		return Detail{}, err
	}
	if !closed {
		return Detail{}, ErrStepConflict
	}
	from := step.State
	step.State = decision
	acted := *step

	var opened []string
	if workflow.SubFlowStateOf(*sf) == workflow.MasterPending {
		opened = sf.Advance()
	}
	if err := s.store.OpenStepsTx(ctx, tx, opened); err != nil {
		return Detail{}, err
	}

	outcome := workflow.AggregateOutcome(wf)
	meta := workflow.EventMeta{LeaveRequestID: req.ID, CompanyID: req.CompanyID, ActorID: viewer.UserID}
	events := []workflow.AuditEvent{workflow.StepActionEvent(meta, sf.ID, acted, from, strings.TrimSpace(comment))}

	previous := req.Status
	if outcome.LeaveStatus != previous {
		updated, err := s.store.UpdateStatusTx(ctx, tx, req.ID, previous, outcome.LeaveStatus)
		if err != nil {
			return Detail{}, err
		}
		if !updated {
			return Detail{}, ErrStepConflict
		}
		req.Status = outcome.LeaveStatus
		req.UpdatedAt = s.now()
		events = append(events, workflow.OutcomeEvent(meta, outcome, previous))
	}
	publish, err := s.emit(ctx, tx, events...)
	if err != nil {
		return Detail{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Detail{}, err
	}
	publish(ctx)

	if rec, ok := s.engine.Recorder().(stepRecorder); ok {
		rec.ObserveStepAction(decision)
	}
	s.log.Info("approval step decided",
		"leaveRequestId", req.ID,
		"stepId", acted.ID,
		"actorId", viewer.UserID,
		"decision", decision,
		"status", req.Status,
	)

	if req.Status != previous {
		s.engine.Recorder().ObserveOutcome(outcome.MasterState)
		s.notifyDecision(ctx, req, wf, viewer.UserID)
	} else {
		s.notifyApprovers(ctx, req, wf, opened)
	}
	return Detail{Request: req, Workflow: wf, Outcome: outcome}, nil
}

// Override lets a company admin decide the whole request. Step states are left as they are.
func (s *Service) Override(ctx context.Context, viewer Viewer, requestID string, decision workflow.LeaveStatus, reason string) (Detail, error) {
	if !viewer.IsAdmin {
		return Detail{}, ErrForbidden
	}
	if decision != workflow.LeaveApproved && decision != workflow.LeaveRejected {
		return Detail{}, fmt.Errorf("%w: decision must be APPROVED or REJECTED", ErrInvalidInput)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Detail{}, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return Detail{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := s.store.LockRequestTx(ctx, tx, viewer.CompanyID, requestID)
	if err != nil {
		return Detail{}, err
	}
	previous := req.Status
	if previous != workflow.LeaveNew {
		return Detail{}, fmt.Errorf("%w: request is %s", ErrInvalidState, previous)
	}
	updated, err := s.store.UpdateStatusTx(ctx, tx, req.ID, previous, decision)
	if err != nil {
		return Detail{}, err
	}
	if !updated {
		return Detail{}, ErrInvalidState
	}
	wf, err := s.store.WorkflowTx(ctx, tx, req.ID)
	if err != nil {
		return Detail{}, err
	}

	meta := workflow.EventMeta{LeaveRequestID: req.ID, CompanyID: req.CompanyID, ActorID: viewer.UserID}
	publish, err := s.emit(ctx, tx, workflow.OverrideEvent(meta, decision, reason, previous))
	if err != nil {
		return Detail{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Detail{}, err
	}
	publish(ctx)

	req.Status = decision
	req.UpdatedAt = s.now()
	if decision == workflow.LeaveApproved {
		s.engine.Recorder().ObserveOutcome(workflow.MasterApproved)
	} else {
		s.engine.Recorder().ObserveOutcome(workflow.MasterRejected)
	}
	s.log.Warn("leave request overridden",
		"leaveRequestId", req.ID,
		"actorId", viewer.UserID,
		"decision", decision,
		"previousStatus", previous,
	)
	s.notifyDecision(ctx, req, wf, viewer.UserID)
	return Detail{Request: req, Workflow: wf, Outcome: workflow.AggregateOutcome(wf)}, nil
}

// Get returns a request to its requester, its approvers and watchers, or a company admin.
func (s *Service) Get(ctx context.Context, viewer Viewer, requestID string) (Detail, error) {
	req, err := s.store.Request(ctx, viewer.CompanyID, requestID)
	if err != nil {
		return Detail{}, err
	}
	wf, activity, err := s.store.Workflow(ctx, req.ID)
	if err != nil {
		return Detail{}, err
	}
	if !canView(viewer, req, wf) {
		return Detail{}, ErrForbidden
	}
	return Detail{Request: req, Workflow: wf, Outcome: workflow.AggregateOutcome(wf), Activity: activity}, nil
}

func (s *Service) PendingForApprover(ctx context.Context, viewer Viewer) ([]PendingStep, error) {
	return s.store.PendingForApprover(ctx, viewer.CompanyID, viewer.UserID)
}

// emit writes events through q and returns the publish step to run once q has committed.
func (s *Service) emit(ctx context.Context, q querier.Querier, events ...workflow.AuditEvent) (func(context.Context), error) {
	noop := func(context.Context) {}
	if s.audit == nil {
		return noop, nil
	}
	emitter := s.audit(q)
	for _, evt := range events {
		if err := emitter.Emit(ctx, evt); err != nil {
			return noop, fmt.Errorf("audit %s: %w", evt.Action, err)
		}
	}
	if f, ok := emitter.(auditFlusher); ok {
		return f.Flush, nil
	}
	return noop, nil
}

func canView(viewer Viewer, req Request, wf workflow.WorkflowResolution) bool {
	if viewer.IsAdmin || viewer.UserID == req.RequesterID {
		return true
	}
	for _, r := range wf.Resolvers {
		if r.UserID == viewer.UserID {
			return true
		}
	}
	for _, w := range wf.Watchers {
		if w.UserID == viewer.UserID {
			return true
		}
	}
	for _, sf := range wf.SubFlows {
		for _, step := range sf.Steps() {
			if contains(step.ResolverIDs, viewer.UserID) {
				return true
			}
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
