package leave

import (
	"context"
	"fmt"
	"time"

	"absence/internal/domain/notifications"
)

const reminderBatch = 200

// RemindStaleApprovals nudges approvers of requests that have waited longer than olderThan.
// Each request is reminded at most once per olderThan window.
func (s *Service) RemindStaleApprovals(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.now()
	stale, err := s.store.StaleApprovals(ctx, now.Add(-olderThan), reminderBatch)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(stale))
	for _, a := range stale {
		s.send(ctx, notifications.Notice{
			CompanyID:      a.CompanyID,
			LeaveRequestID: a.RequestID,
			ActorID:        a.RequesterID,
			Type:           notifications.TypeApprovalReminder,
			Title:          "Leave request still awaiting your approval",
			Body:           fmt.Sprintf("%s from %s to %s", a.LeaveTypeName, a.StartDate.Format("2006-01-02"), a.EndDate.Format("2006-01-02")),
			Recipients:     userRecipients(a.ApproverIDs),
		})
		ids = append(ids, a.RequestID)
	}
	if err := s.store.MarkReminded(ctx, ids, now); err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.log.Info("approval reminders sent", "requests", len(ids))
	}
	return len(ids), nil
}
