package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"absence/internal/platform/querier"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	CreatedAt  time.Time       `json:"createdAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorUser  string
}

type Service struct {
	DB querier.Querier
}

func New(db querier.Querier) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, companyID, actorID, action, entityType, entityID, requestID string, payload any) error {
	var payloadJSON []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		payloadJSON = encoded
	}

	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (company_id, actor_user_id, action, entity_type, entity_id, payload_json, request_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, companyID, actorID, action, entityType, entityID, payloadJSON, requestID)
	return err
}

func (s *Service) Count(ctx context.Context, companyID string, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", companyID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// List returns events in write order. Rows from one transaction share created_at, so seq decides.
func (s *Service) List(ctx context.Context, companyID string, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildListQuery(companyID, filter, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.CreatedAt, &evt.Payload); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildListQuery(companyID string, filter Filter, limit, offset int) (string, []any) {
	query, args := buildBaseQuery("SELECT id::text, actor_user_id, action, entity_type, entity_id, request_id, created_at, payload_json", companyID, filter)
	query += fmt.Sprintf(" ORDER BY seq LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	return query, append(args, limit, offset)
}

func buildBaseQuery(prefix, companyID string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE company_id::text = $1"
	args := []any{companyID}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", len(args)+1)
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", len(args)+1)
		args = append(args, filter.EntityID)
	}
	if filter.ActorUser != "" {
		query += fmt.Sprintf(" AND actor_user_id = $%d", len(args)+1)
		args = append(args, filter.ActorUser)
	}
	return query, args
}
