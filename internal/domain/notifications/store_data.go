package notifications

import (
	"context"
	"time"
)

func (s *Store) CreateNotification(ctx context.Context, companyID, userID, leaveRequestID, ntype, title, body string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (company_id, user_id, leave_request_id, type, title, body)
    VALUES ($1,$2,$3,$4,$5,$6)
  `, companyID, userID, nullIfEmpty(leaveRequestID), ntype, title, body)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, companyID, userID string, limit, offset int) ([]Notification, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, type, title, body, COALESCE(leave_request_id::text, ''), read_at, created_at
    FROM notifications
    WHERE company_id::text = $1 AND user_id::text = $2
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4
  `, companyID, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var readAt *time.Time
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &n.LeaveRequestID, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ReadAt = readAt
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, companyID, userID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM notifications
    WHERE company_id::text = $1 AND user_id::text = $2 AND read_at IS NULL
  `, companyID, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, companyID, userID, notificationID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE company_id::text = $1 AND user_id::text = $2 AND id::text = $3 AND read_at IS NULL
  `, companyID, userID, notificationID)
	return err
}

func (s *Store) EmailAddresses(ctx context.Context, companyID string, userIDs []string) (map[string]string, error) {
	out := map[string]string{}
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, email FROM users
    WHERE company_id::text = $1 AND id::text = ANY($2) AND deleted_at IS NULL
  `, companyID, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		out[id] = email
	}
	return out, rows.Err()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
