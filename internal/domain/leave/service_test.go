package leave

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"absence/internal/domain/notifications"
	"absence/internal/domain/workflow"
	"absence/internal/domain/workflow/memstore"
	"absence/internal/platform/querier"
)

type fakeTx struct {
	pgx.Tx
	store *fakeStore
}

func (tx fakeTx) Commit(context.Context) error {
	if tx.store.commitErr != nil {
		return tx.store.commitErr
	}
	tx.store.commits++
	return nil
}

func (fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	mu       sync.Mutex
	types    map[string]LeaveType
	requests map[string]Request
	flows    map[string]workflow.WorkflowResolution
	activity map[string]StepActivity
	nextID   int
	commits  int
	// commitErr fails every Commit with the given error.
	commitErr error
	// raceClose makes the next CloseStepTx behave as if another writer closed the step first.
	raceClose bool
	reminded  map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		types: map[string]LeaveType{
			"lt-vacation": {ID: "lt-vacation", CompanyID: "acme", Name: "Vacation", RequestType: workflow.RequestTypeLeave},
			"lt-remote":   {ID: "lt-remote", CompanyID: "acme", Name: "Remote work", RequestType: "REMOTE_WORK"},
		},
		requests: map[string]Request{},
		flows:    map[string]workflow.WorkflowResolution{},
		activity: map[string]StepActivity{},
		reminded: map[string]time.Time{},
	}
}

func cloneWorkflow(wf workflow.WorkflowResolution) workflow.WorkflowResolution {
	data, _ := json.Marshal(wf)
	var out workflow.WorkflowResolution
	_ = json.Unmarshal(data, &out)
	return out
}

func (f *fakeStore) BeginTx(context.Context) (pgx.Tx, error) { return fakeTx{store: f}, nil }

func (f *fakeStore) LeaveType(_ context.Context, companyID, leaveTypeID string) (LeaveType, error) {
	lt, ok := f.types[leaveTypeID]
	if !ok || lt.CompanyID != companyID {
		return LeaveType{}, workflow.NewNotFoundError("leave type", leaveTypeID)
	}
	return lt, nil
}

func (f *fakeStore) Request(_ context.Context, companyID, requestID string) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[requestID]
	if !ok || req.CompanyID != companyID {
		return Request{}, workflow.NewNotFoundError("leave request", requestID)
	}
	return req, nil
}

func (f *fakeStore) Workflow(_ context.Context, requestID string) (workflow.WorkflowResolution, map[string]StepActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneWorkflow(f.flows[requestID]), f.activity, nil
}

func (f *fakeStore) PendingForApprover(context.Context, string, string) ([]PendingStep, error) {
	return []PendingStep{}, nil
}

func (f *fakeStore) StaleApprovals(_ context.Context, cutoff time.Time, limit int) ([]StaleApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []StaleApproval
	for id, req := range f.requests {
		if req.Status != workflow.LeaveNew || !req.CreatedAt.Before(cutoff) {
			continue
		}
		if at, ok := f.reminded[id]; ok && !at.Before(cutoff) {
			continue
		}
		var approvers []string
		for _, sf := range f.flows[id].SubFlows {
			for _, step := range sf.Steps() {
				if step.State == workflow.StepReady && step.Required() {
					approvers = append(approvers, step.ResolverIDs...)
				}
			}
		}
		if len(approvers) == 0 {
			continue
		}
		out = append(out, StaleApproval{RequestID: id, CompanyID: req.CompanyID, RequesterID: req.RequesterID, ApproverIDs: approvers})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkReminded(_ context.Context, requestIDs []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range requestIDs {
		f.reminded[id] = at
	}
	return nil
}

func (f *fakeStore) InsertRequestTx(_ context.Context, _ pgx.Tx, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	req.ID = "lr-" + strconv.Itoa(f.nextID)
	f.requests[req.ID] = req
	return req.ID, nil
}

func (f *fakeStore) InsertWorkflowTx(_ context.Context, _ pgx.Tx, requestID string, wf workflow.WorkflowResolution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flows[requestID] = cloneWorkflow(wf)
	return nil
}

func (f *fakeStore) LockRequestTx(ctx context.Context, _ pgx.Tx, companyID, requestID string) (Request, error) {
	return f.Request(ctx, companyID, requestID)
}

func (f *fakeStore) WorkflowTx(_ context.Context, _ pgx.Tx, requestID string) (workflow.WorkflowResolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneWorkflow(f.flows[requestID]), nil
}

func (f *fakeStore) CloseStepTx(_ context.Context, _ pgx.Tx, stepID string, to workflow.StepState, actorID, comment string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raceClose {
		f.raceClose = false
		return false, nil
	}
	for id, wf := range f.flows {
		_, step := wf.FindStep(stepID)
		if step == nil {
			continue
		}
		if !step.State.Open() {
			return false, nil
		}
		step.State = to
		f.flows[id] = wf
		f.activity[stepID] = StepActivity{ActedBy: actorID, Comment: comment}
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) OpenStepsTx(_ context.Context, _ pgx.Tx, stepIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stepID := range stepIDs {
		for _, wf := range f.flows {
			if _, step := wf.FindStep(stepID); step != nil && step.State == workflow.StepPending {
				step.State = workflow.StepReady
			}
		}
	}
	return nil
}

func (f *fakeStore) UpdateStatusTx(_ context.Context, _ pgx.Tx, requestID string, from, to workflow.LeaveStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[requestID]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	f.requests[requestID] = req
	return true, nil
}

type captureAudit struct {
	events    []workflow.AuditEvent
	published int
}

func (c *captureAudit) Emit(_ context.Context, evt workflow.AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *captureAudit) Flush(context.Context) {
	c.published = len(c.events)
}

func (c *captureAudit) actions() []workflow.AuditAction {
	out := make([]workflow.AuditAction, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Action)
	}
	return out
}

type captureNotifier struct {
	notices []notifications.Notice
}

func (c *captureNotifier) Notify(_ context.Context, notice notifications.Notice) error {
	c.notices = append(c.notices, notice)
	return nil
}

func (c *captureNotifier) recipientsOf(ntype string) []string {
	var out []string
	for _, n := range c.notices {
		if n.Type != ntype {
			continue
		}
		for _, r := range n.Recipients {
			out = append(out, r.UserID)
		}
	}
	return out
}

type harness struct {
	svc      *Service
	store    *fakeStore
	audit    *captureAudit
	notifier *captureNotifier
}

func newHarness(t *testing.T) harness {
	t.Helper()
	rules, err := memstore.Open("../workflow/memstore/testdata/org.yaml")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := workflow.NewEngine(rules, workflow.WithLogger(logger))
	h := harness{store: newFakeStore(), audit: &captureAudit{}, notifier: &captureNotifier{}}
	factory := func(querier.Querier) workflow.AuditEmitter { return h.audit }
	h.svc = NewService(h.store, engine, factory, h.notifier, logger)
	return h
}

func acme(userID string) Viewer {
	return Viewer{UserID: userID, CompanyID: "acme"}
}

func vacation(projectID string) SubmitInput {
	start := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	return SubmitInput{LeaveTypeID: "lt-vacation", ProjectID: projectID, StartDate: start, EndDate: start.AddDate(0, 0, 4)}
}

func stepAt(t *testing.T, d Detail, group int) workflow.SubFlowStep {
	t.Helper()
	if len(d.Workflow.SubFlows) == 0 || len(d.Workflow.SubFlows[0].Groups) <= group {
		t.Fatalf("no step group %d in %+v", group, d.Workflow)
	}
	return d.Workflow.SubFlows[0].Groups[group].Steps[0]
}

func TestSubmitPersistsWorkflowAuditAndNotifies(t *testing.T) {
	h := newHarness(t)

	d, err := h.svc.Submit(context.Background(), acme("peter"), vacation("apollo"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if d.Request.ID == "" || d.Request.Status != workflow.LeaveNew || d.Request.Unrouted {
		t.Fatalf("unexpected request: %+v", d.Request)
	}
	if h.store.commits != 1 {
		t.Fatalf("expected one commit, got %d", h.store.commits)
	}
	step := stepAt(t, d, 0)
	if step.State != workflow.StepReady || len(step.ResolverIDs) != 1 || step.ResolverIDs[0] != "bea" {
		t.Fatalf("unexpected first step: %+v", step)
	}

	actions := h.audit.actions()
	if len(actions) != 2 || actions[0] != workflow.AuditPolicyMatch || actions[1] != workflow.AuditOutcome {
		t.Fatalf("unexpected audit trail: %v", actions)
	}
	if h.audit.published != 2 {
		t.Fatalf("expected both events published after commit, got %d", h.audit.published)
	}
	for _, evt := range h.audit.events {
		if evt.EntityID != d.Request.ID || evt.CompanyID != "acme" || evt.ActorID != "peter" {
			t.Fatalf("audit event missing identity: %+v", evt)
		}
	}

	if got := h.notifier.recipientsOf(notifications.TypeApprovalRequired); len(got) != 1 || got[0] != "bea" {
		t.Fatalf("expected bea notified, got %v", got)
	}
	if got := h.notifier.recipientsOf(notifications.TypeLeaveSubmitted); len(got) != 1 || got[0] != "hank" {
		t.Fatalf("expected watcher hank notified, got %v", got)
	}
}

func TestFailedCommitPublishesNothing(t *testing.T) {
	h := newHarness(t)
	h.store.commitErr = errors.New("commit failed")

	if _, err := h.svc.Submit(context.Background(), acme("peter"), vacation("apollo")); err == nil {
		t.Fatal("expected commit error")
	}
	if len(h.audit.events) == 0 {
		t.Fatal("expected audit rows written inside the transaction")
	}
	if h.audit.published != 0 {
		t.Fatalf("expected no publishes for a rolled back request, got %d", h.audit.published)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := vacation("")
	in.EndDate = in.StartDate.AddDate(0, 0, -1)
	if _, err := h.svc.Submit(ctx, acme("peter"), in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	in = vacation("")
	in.LeaveTypeID = "lt-unknown"
	if _, err := h.svc.Submit(ctx, acme("peter"), in); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected missing leave type, got %v", err)
	}

	if _, err := h.svc.Submit(ctx, acme("ghost"), vacation("")); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected missing requester, got %v", err)
	}
	if h.store.commits != 0 {
		t.Fatalf("nothing should be committed, got %d commits", h.store.commits)
	}
}

func TestSubmitUnroutedAlertsAdmins(t *testing.T) {
	h := newHarness(t)
	in := vacation("")
	in.LeaveTypeID = "lt-remote"

	d, err := h.svc.Submit(context.Background(), acme("peter"), in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !d.Request.Unrouted || d.Request.Status != workflow.LeaveNew || d.Outcome.MasterState != workflow.MasterPending {
		t.Fatalf("expected unrouted pending request, got %+v / %+v", d.Request, d.Outcome)
	}
	payload := h.audit.events[0].Payload.(workflow.PolicyMatchPayload)
	if !payload.Unrouted || payload.Count != 0 {
		t.Fatalf("expected unrouted policy match event, got %+v", payload)
	}
	if got := h.notifier.recipientsOf(notifications.TypeLeaveUnrouted); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("expected company admin alice alerted, got %v", got)
	}
}

func TestSubmitSelfApprovalClosesImmediately(t *testing.T) {
	h := newHarness(t)

	d, err := h.svc.Submit(context.Background(), acme("dana"), vacation(""))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if d.Request.Status != workflow.LeaveApproved {
		t.Fatalf("expected approved request, got %s", d.Request.Status)
	}
	var skip *workflow.AuditEvent
	for i, evt := range h.audit.events {
		if evt.Action == workflow.AuditSelfApprovalSkip {
			skip = &h.audit.events[i]
		}
	}
	if skip == nil {
		t.Fatalf("expected self approval event, got %v", h.audit.actions())
	}
	if nominal := skip.Payload.(workflow.FallbackPayload).NominalResolverIDs; len(nominal) != 1 || nominal[0] != "dana" {
		t.Fatalf("expected nominal dana, got %v", nominal)
	}
	if got := h.notifier.recipientsOf(notifications.TypeLeaveApproved); len(got) == 0 || got[0] != "dana" {
		t.Fatalf("expected requester told about the approval, got %v", got)
	}
}

func TestSequentialApprovalAdvancesGroups(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d, err := h.svc.Submit(ctx, acme("peter"), vacation("hermes"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	first, second := stepAt(t, d, 0), stepAt(t, d, 1)

	if _, err := h.svc.ActOnStep(ctx, acme("dana"), d.Request.ID, second.ID, workflow.StepApproved, ""); !errors.Is(err, ErrNotActionable) {
		t.Fatalf("later group must wait, got %v", err)
	}
	if _, err := h.svc.ActOnStep(ctx, acme("bea"), d.Request.ID, first.ID, workflow.StepApproved, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-resolver must be refused, got %v", err)
	}

	d, err = h.svc.ActOnStep(ctx, acme("victor"), d.Request.ID, first.ID, workflow.StepApproved, "ok")
	if err != nil {
		t.Fatalf("victor approve: %v", err)
	}
	if d.Request.Status != workflow.LeaveNew || stepAt(t, d, 1).State != workflow.StepReady {
		t.Fatalf("expected second group opened, got %+v", d.Workflow.SubFlows[0].Groups)
	}
	if got := h.notifier.recipientsOf(notifications.TypeApprovalRequired); len(got) != 3 {
		t.Fatalf("expected victor then dana and sam asked, got %v", got)
	}

	d, err = h.svc.ActOnStep(ctx, acme("sam"), d.Request.ID, second.ID, workflow.StepApproved, "")
	if err != nil {
		t.Fatalf("sam approve: %v", err)
	}
	if d.Request.Status != workflow.LeaveApproved || d.Outcome.MasterState != workflow.MasterApproved {
		t.Fatalf("expected approved, got %s / %s", d.Request.Status, d.Outcome.MasterState)
	}
	last := h.audit.events[len(h.audit.events)-1]
	if last.Action != workflow.AuditOutcome || last.Payload.(workflow.OutcomePayload).PreviousStatus != workflow.LeaveNew {
		t.Fatalf("expected outcome event with previous status, got %+v", last)
	}

	if _, err := h.svc.ActOnStep(ctx, acme("dana"), d.Request.ID, second.ID, workflow.StepApproved, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("decided request must refuse actions, got %v", err)
	}
}

func TestRejectionShortCircuits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d, err := h.svc.Submit(ctx, acme("peter"), vacation("hermes"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	d, err = h.svc.ActOnStep(ctx, acme("victor"), d.Request.ID, stepAt(t, d, 0).ID, workflow.StepRejected, "busy season")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if d.Request.Status != workflow.LeaveRejected {
		t.Fatalf("expected rejected, got %s", d.Request.Status)
	}
	if got := h.notifier.recipientsOf(notifications.TypeLeaveRejected); len(got) == 0 || got[0] != "peter" {
		t.Fatalf("expected requester told, got %v", got)
	}
}

func TestActOnStepGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d, err := h.svc.Submit(ctx, acme("peter"), vacation("apollo"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	stepID := stepAt(t, d, 0).ID

	if _, err := h.svc.ActOnStep(ctx, acme("peter"), d.Request.ID, stepID, workflow.StepApproved, ""); !errors.Is(err, ErrSelfApproval) {
		t.Fatalf("expected self approval refusal, got %v", err)
	}
	if _, err := h.svc.ActOnStep(ctx, acme("bea"), d.Request.ID, stepID, workflow.StepPending, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid decision, got %v", err)
	}
	if _, err := h.svc.ActOnStep(ctx, acme("bea"), d.Request.ID, "missing", workflow.StepApproved, ""); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected missing step, got %v", err)
	}
	if _, err := h.svc.ActOnStep(ctx, Viewer{UserID: "bea", CompanyID: "globex"}, d.Request.ID, stepID, workflow.StepApproved, ""); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("other companies must not see the request, got %v", err)
	}

	h.store.raceClose = true
	if _, err := h.svc.ActOnStep(ctx, acme("bea"), d.Request.ID, stepID, workflow.StepApproved, ""); !errors.Is(err, ErrStepConflict) {
		t.Fatalf("expected conflict when the step closed concurrently, got %v", err)
	}
}

func TestOverrideRequiresAdminAndReason(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d, err := h.svc.Submit(ctx, acme("peter"), vacation("apollo"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	admin := Viewer{UserID: "alice", CompanyID: "acme", IsAdmin: true}

	if _, err := h.svc.Override(ctx, acme("bea"), d.Request.ID, workflow.LeaveApproved, "because"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := h.svc.Override(ctx, admin, d.Request.ID, workflow.LeaveApproved, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected missing reason, got %v", err)
	}

	d, err = h.svc.Override(ctx, admin, d.Request.ID, workflow.LeaveRejected, "coverage gap")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if d.Request.Status != workflow.LeaveRejected {
		t.Fatalf("expected rejected, got %s", d.Request.Status)
	}
	last := h.audit.events[len(h.audit.events)-1]
	payload, ok := last.Payload.(workflow.OverridePayload)
	if !ok || payload.PreviousStatus != workflow.LeaveNew || payload.Reason != "coverage gap" || last.ActorID != "alice" {
		t.Fatalf("unexpected override audit: %+v", last)
	}

	if _, err := h.svc.Override(ctx, admin, d.Request.ID, workflow.LeaveApproved, "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected decided request to refuse override, got %v", err)
	}
}

func TestGetVisibilityAndTrail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d, err := h.svc.Submit(ctx, acme("peter"), vacation("apollo"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, viewer := range []Viewer{acme("peter"), acme("bea"), acme("hank"), {UserID: "alice", CompanyID: "acme", IsAdmin: true}} {
		if _, err := h.svc.Get(ctx, viewer, d.Request.ID); err != nil {
			t.Fatalf("%s should see the request: %v", viewer.UserID, err)
		}
	}
	if _, err := h.svc.Get(ctx, acme("fiona"), d.Request.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected fiona refused, got %v", err)
	}

	pdf, err := h.svc.TrailPDF(ctx, acme("peter"), d.Request.ID)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(pdf) < 4 || string(pdf[:4]) != "%PDF" {
		t.Fatalf("expected a PDF document")
	}
}

func TestRemindStaleApprovalsOncePerWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	submitted := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return submitted }
	if _, err := h.svc.Submit(ctx, acme("peter"), vacation("apollo")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	h.svc.now = func() time.Time { return submitted.Add(12 * time.Hour) }
	if n, err := h.svc.RemindStaleApprovals(ctx, 48*time.Hour); err != nil || n != 0 {
		t.Fatalf("fresh request must not be reminded, got %d (%v)", n, err)
	}

	h.svc.now = func() time.Time { return submitted.Add(72 * time.Hour) }
	n, err := h.svc.RemindStaleApprovals(ctx, 48*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("expected one reminder, got %d (%v)", n, err)
	}
	if got := h.notifier.recipientsOf(notifications.TypeApprovalReminder); len(got) != 1 || got[0] != "bea" {
		t.Fatalf("expected reminder to bea, got %v", got)
	}

	h.svc.now = func() time.Time { return submitted.Add(80 * time.Hour) }
	if n, _ := h.svc.RemindStaleApprovals(ctx, 48*time.Hour); n != 0 {
		t.Fatalf("expected no repeat inside the window, got %d", n)
	}
}
