package leave

import (
	"context"
	"fmt"

	"absence/internal/domain/notifications"
	"absence/internal/domain/workflow"
)

func (s *Service) send(ctx context.Context, notice notifications.Notice) {
	if s.notifier == nil || len(notice.Recipients) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, notice); err != nil {
		s.log.Error("notification failed", "type", notice.Type, "leaveRequestId", notice.LeaveRequestID, "err", err)
	}
}

func (s *Service) notifySubmitted(ctx context.Context, req Request, res workflow.Resolution) {
	var ready []string
	for _, sf := range res.Workflow.SubFlows {
		for _, step := range sf.Steps() {
			if step.State == workflow.StepReady && step.Required() {
				ready = append(ready, step.ID)
			}
		}
	}
	s.notifyApprovers(ctx, req, res.Workflow, ready)
	s.notifyWatchers(ctx, req, res.Workflow, notifications.TypeLeaveSubmitted, req.RequesterID)

	if req.Unrouted || len(res.Outcome.StuckStepIDs) > 0 {
		admins, err := s.engine.CompanyAdminFallback(ctx, res.Context)
		if err != nil {
			s.log.Error("company admin lookup failed", "leaveRequestId", req.ID, "err", err)
		} else {
			ntype, body := notifications.TypeStepStuck, fmt.Sprintf("%d approval step(s) have no approver", len(res.Outcome.StuckStepIDs))
			if req.Unrouted {
				ntype, body = notifications.TypeLeaveUnrouted, "No approval policy matched this request"
			}
			s.send(ctx, notifications.Notice{
				CompanyID:      req.CompanyID,
				LeaveRequestID: req.ID,
				ActorID:        req.RequesterID,
				Type:           ntype,
				Title:          "Leave request needs manual routing",
				Body:           body,
				Recipients:     userRecipients(admins),
			})
		}
	}
	if req.Status != workflow.LeaveNew {
		s.notifyDecision(ctx, req, res.Workflow, "")
	}
}

// notifyApprovers tells the resolvers of the given steps that a decision is waiting.
func (s *Service) notifyApprovers(ctx context.Context, req Request, wf workflow.WorkflowResolution, stepIDs []string) {
	var ids []string
	for _, stepID := range stepIDs {
		if _, step := wf.FindStep(stepID); step != nil && step.Required() {
			ids = append(ids, step.ResolverIDs...)
		}
	}
	s.send(ctx, notifications.Notice{
		CompanyID:      req.CompanyID,
		LeaveRequestID: req.ID,
		ActorID:        req.RequesterID,
		Type:           notifications.TypeApprovalRequired,
		Title:          "Leave request awaiting your approval",
		Body:           fmt.Sprintf("%s from %s to %s", req.LeaveTypeName, req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02")),
		Recipients:     userRecipients(ids),
	})
}

func (s *Service) notifyWatchers(ctx context.Context, req Request, wf workflow.WorkflowResolution, ntype, actorID string) {
	recipients := make([]notifications.Recipient, 0, len(wf.Watchers))
	for _, w := range wf.Watchers {
		recipients = append(recipients, notifications.Recipient{UserID: w.UserID, Email: w.NotifyEmail, Push: w.NotifyPush})
	}
	s.send(ctx, notifications.Notice{
		CompanyID:      req.CompanyID,
		LeaveRequestID: req.ID,
		ActorID:        actorID,
		Type:           ntype,
		Title:          "Leave request update",
		Body:           fmt.Sprintf("%s request is %s", req.LeaveTypeName, req.Status),
		Recipients:     recipients,
	})
}

func (s *Service) notifyDecision(ctx context.Context, req Request, wf workflow.WorkflowResolution, actorID string) {
	ntype := notifications.TypeLeaveApproved
	if req.Status == workflow.LeaveRejected {
		ntype = notifications.TypeLeaveRejected
	}
	s.send(ctx, notifications.Notice{
		CompanyID:      req.CompanyID,
		LeaveRequestID: req.ID,
		ActorID:        actorID,
		Type:           ntype,
		Title:          fmt.Sprintf("Leave request %s", req.Status),
		Body:           fmt.Sprintf("%s from %s to %s", req.LeaveTypeName, req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02")),
		Recipients:     []notifications.Recipient{{UserID: req.RequesterID, Email: true}},
	})
	s.notifyWatchers(ctx, req, wf, ntype, actorID)
}

func userRecipients(ids []string) []notifications.Recipient {
	out := make([]notifications.Recipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, notifications.Recipient{UserID: id})
	}
	return out
}
