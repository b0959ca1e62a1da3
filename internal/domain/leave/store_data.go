package leave

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"absence/internal/domain/workflow"
	"absence/internal/platform/querier"
)

func (s *Store) LeaveType(ctx context.Context, companyID, leaveTypeID string) (LeaveType, error) {
	var lt LeaveType
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, company_id::text, name, request_type
    FROM leave_types
    WHERE company_id::text = $1 AND id::text = $2
  `, companyID, leaveTypeID).Scan(&lt.ID, &lt.CompanyID, &lt.Name, &lt.RequestType)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeaveType{}, workflow.NewNotFoundError("leave type", leaveTypeID)
	}
	return lt, err
}

const requestColumns = `
    r.id::text, r.company_id::text, r.requester_id::text, r.leave_type_id::text, lt.name,
    COALESCE(r.project_id::text, ''), r.request_type, r.start_date, r.end_date, r.reason,
    r.status, r.unrouted, r.created_at, r.updated_at`

func scanRequest(row pgx.Row, requestID string) (Request, error) {
	var req Request
	var status string
	err := row.Scan(&req.ID, &req.CompanyID, &req.RequesterID, &req.LeaveTypeID, &req.LeaveTypeName,
		&req.ProjectID, &req.RequestType, &req.StartDate, &req.EndDate, &req.Reason,
		&status, &req.Unrouted, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, workflow.NewNotFoundError("leave request", requestID)
	}
	req.Status = workflow.LeaveStatus(status)
	return req, err
}

func (s *Store) Request(ctx context.Context, companyID, requestID string) (Request, error) {
	row := s.DB.QueryRow(ctx, `SELECT`+requestColumns+`
    FROM leave_requests r
    JOIN leave_types lt ON lt.id = r.leave_type_id
    WHERE r.company_id::text = $1 AND r.id::text = $2
  `, companyID, requestID)
	return scanRequest(row, requestID)
}

func (s *Store) LockRequestTx(ctx context.Context, tx pgx.Tx, companyID, requestID string) (Request, error) {
	row := tx.QueryRow(ctx, `SELECT`+requestColumns+`
    FROM leave_requests r
    JOIN leave_types lt ON lt.id = r.leave_type_id
    WHERE r.company_id::text = $1 AND r.id::text = $2
    FOR UPDATE OF r
  `, companyID, requestID)
	return scanRequest(row, requestID)
}

func (s *Store) InsertRequestTx(ctx context.Context, tx pgx.Tx, req Request) (string, error) {
	var id string
	if err := tx.QueryRow(ctx, `
    INSERT INTO leave_requests (company_id, requester_id, leave_type_id, project_id, request_type, start_date, end_date, reason, status, unrouted)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    RETURNING id::text
  `, req.CompanyID, req.RequesterID, req.LeaveTypeID, nullIfEmpty(req.ProjectID), req.RequestType,
		req.StartDate, req.EndDate, req.Reason, string(req.Status), req.Unrouted).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) InsertWorkflowTx(ctx context.Context, tx pgx.Tx, requestID string, wf workflow.WorkflowResolution) error {
	for ordinal, sf := range wf.SubFlows {
		if _, err := tx.Exec(ctx, `
      INSERT INTO workflow_sub_flows (id, leave_request_id, policy_id, policy_name, ordinal, watcher_ids)
      VALUES ($1,$2,$3,$4,$5,$6)
    `, sf.ID, requestID, sf.PolicyID, sf.PolicyName, ordinal, sf.WatcherIDs); err != nil {
			return err
		}
		for stepOrdinal, step := range sf.Steps() {
			if _, err := tx.Exec(ctx, `
        INSERT INTO workflow_steps (id, sub_flow_id, leave_request_id, rule_id, sequence, position, resolver_kind, resolver_ref,
                                    scopes, action, parallel_group, resolver_ids, nominal_resolver_ids, fallback_used,
                                    fallback_level, skipped, state, ordinal)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
      `, step.ID, sf.ID, requestID, step.Step.RuleID, step.Step.Sequence, step.Step.Position,
				string(step.Step.ResolverKind), nullIfEmpty(step.Step.ResolverID), scopeStrings(step.Step.Scopes),
				string(step.Step.Action), nullIfEmpty(step.Step.ParallelGroup), nonNil(step.ResolverIDs),
				nonNil(step.NominalResolverIDs), step.FallbackUsed, string(step.FallbackLevel), step.Skipped,
				string(step.State), stepOrdinal); err != nil {
				return err
			}
		}
	}
	for _, r := range wf.Resolvers {
		if _, err := tx.Exec(ctx, `
      INSERT INTO workflow_resolvers (leave_request_id, user_id, resolver_kind, sequence)
      VALUES ($1,$2,$3,$4)
    `, requestID, r.UserID, string(r.Kind), r.Sequence); err != nil {
			return err
		}
	}
	for _, w := range wf.Watchers {
		if _, err := tx.Exec(ctx, `
      INSERT INTO workflow_watchers (leave_request_id, user_id, notify_email, notify_push)
      VALUES ($1,$2,$3,$4)
    `, requestID, w.UserID, w.NotifyEmail, w.NotifyPush); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Workflow(ctx context.Context, requestID string) (workflow.WorkflowResolution, map[string]StepActivity, error) {
	return loadWorkflow(ctx, s.DB, requestID)
}

func (s *Store) WorkflowTx(ctx context.Context, tx pgx.Tx, requestID string) (workflow.WorkflowResolution, error) {
	wf, _, err := loadWorkflow(ctx, tx, requestID)
	return wf, err
}

func loadWorkflow(ctx context.Context, q querier.Querier, requestID string) (workflow.WorkflowResolution, map[string]StepActivity, error) {
	wf := workflow.WorkflowResolution{
		Resolvers: []workflow.ResolverEntry{},
		Watchers:  []workflow.WatcherEntry{},
		SubFlows:  []workflow.SubFlow{},
	}
	activity := map[string]StepActivity{}

	rows, err := q.Query(ctx, `
    SELECT id::text, policy_id, policy_name, watcher_ids
    FROM workflow_sub_flows
    WHERE leave_request_id::text = $1
    ORDER BY ordinal
  `, requestID)
	if err != nil {
		return wf, nil, err
	}
	index := map[string]int{}
	for rows.Next() {
		var sf workflow.SubFlow
		if err := rows.Scan(&sf.ID, &sf.PolicyID, &sf.PolicyName, &sf.WatcherIDs); err != nil {
			rows.Close()
			return wf, nil, err
		}
		index[sf.ID] = len(wf.SubFlows)
		wf.SubFlows = append(wf.SubFlows, sf)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wf, nil, err
	}

	rows, err = q.Query(ctx, `
    SELECT id::text, sub_flow_id::text, rule_id, sequence, position, resolver_kind, COALESCE(resolver_ref, ''),
           scopes, action, COALESCE(parallel_group, ''), resolver_ids, nominal_resolver_ids, fallback_used,
           fallback_level, skipped, state, COALESCE(acted_by::text, ''), acted_at, comment
    FROM workflow_steps
    WHERE leave_request_id::text = $1
    ORDER BY sub_flow_id, ordinal
  `, requestID)
	if err != nil {
		return wf, nil, err
	}
	for rows.Next() {
		var step workflow.SubFlowStep
		var subFlowID, kind, action, level, state string
		var scopes []string
		var act StepActivity
		var actedAt *time.Time
		if err := rows.Scan(&step.ID, &subFlowID, &step.Step.RuleID, &step.Step.Sequence, &step.Step.Position, &kind,
			&step.Step.ResolverID, &scopes, &action, &step.Step.ParallelGroup, &step.ResolverIDs, &step.NominalResolverIDs,
			&step.FallbackUsed, &level, &step.Skipped, &state, &act.ActedBy, &actedAt, &act.Comment); err != nil {
			rows.Close()
			return wf, nil, err
		}
		step.Step.ResolverKind = workflow.ResolverKind(kind)
		step.Step.Action = workflow.Action(action)
		step.Step.Scopes = toScopes(scopes)
		step.FallbackLevel = workflow.FallbackLevel(level)
		step.State = workflow.StepState(state)
		act.ActedAt = actedAt
		if act.ActedBy != "" {
			activity[step.ID] = act
		}

		i, ok := index[subFlowID]
		if !ok {
			continue
		}
		sf := &wf.SubFlows[i]
		n := len(sf.Groups)
		if n == 0 || sf.Groups[n-1].Sequence != step.Step.Sequence {
			sf.Groups = append(sf.Groups, workflow.StepGroup{Sequence: step.Step.Sequence})
			n++
		}
		sf.Groups[n-1].Steps = append(sf.Groups[n-1].Steps, step)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wf, nil, err
	}

	rows, err = q.Query(ctx, `
    SELECT user_id::text, resolver_kind, sequence
    FROM workflow_resolvers
    WHERE leave_request_id::text = $1
    ORDER BY sequence, user_id
  `, requestID)
	if err != nil {
		return wf, nil, err
	}
	for rows.Next() {
		var entry workflow.ResolverEntry
		var kind string
		if err := rows.Scan(&entry.UserID, &kind, &entry.Sequence); err != nil {
			rows.Close()
			return wf, nil, err
		}
		entry.Kind = workflow.ResolverKind(kind)
		wf.Resolvers = append(wf.Resolvers, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wf, nil, err
	}

	rows, err = q.Query(ctx, `
    SELECT user_id::text, notify_email, notify_push
    FROM workflow_watchers
    WHERE leave_request_id::text = $1
    ORDER BY user_id
  `, requestID)
	if err != nil {
		return wf, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry workflow.WatcherEntry
		if err := rows.Scan(&entry.UserID, &entry.NotifyEmail, &entry.NotifyPush); err != nil {
			return wf, nil, err
		}
		wf.Watchers = append(wf.Watchers, entry)
	}
	return wf, activity, rows.Err()
}

func (s *Store) CloseStepTx(ctx context.Context, tx pgx.Tx, stepID string, to workflow.StepState, actorID, comment string) (bool, error) {
	tag, err := tx.Exec(ctx, `
    UPDATE workflow_steps
    SET state = $2, acted_by = $3, acted_at = now(), comment = $4
    WHERE id::text = $1 AND state IN ('PENDING', 'READY')
  `, stepID, string(to), actorID, comment)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) OpenStepsTx(ctx context.Context, tx pgx.Tx, stepIDs []string) error {
	if len(stepIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
    UPDATE workflow_steps SET state = 'READY'
    WHERE id::text = ANY($1) AND state = 'PENDING'
  `, stepIDs)
	return err
}

func (s *Store) UpdateStatusTx(ctx context.Context, tx pgx.Tx, requestID string, from, to workflow.LeaveStatus) (bool, error) {
	tag, err := tx.Exec(ctx, `
    UPDATE leave_requests SET status = $3, updated_at = now()
    WHERE id::text = $1 AND status = $2
  `, requestID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) PendingForApprover(ctx context.Context, companyID, userID string) ([]PendingStep, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT s.leave_request_id::text, s.sub_flow_id::text, s.id::text, f.policy_name, s.sequence, s.state,
           r.requester_id::text, u.name, lt.name, r.start_date, r.end_date, r.created_at
    FROM workflow_steps s
    JOIN workflow_sub_flows f ON f.id = s.sub_flow_id
    JOIN leave_requests r ON r.id = s.leave_request_id
    JOIN users u ON u.id = r.requester_id
    JOIN leave_types lt ON lt.id = r.leave_type_id
    WHERE r.company_id::text = $1 AND r.status = 'NEW' AND s.state = 'READY'
      AND s.action <> 'NOTIFY' AND $2 = ANY(s.resolver_ids)
    ORDER BY r.created_at, s.sequence
  `, companyID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PendingStep{}
	for rows.Next() {
		var p PendingStep
		var state string
		if err := rows.Scan(&p.RequestID, &p.SubFlowID, &p.StepID, &p.PolicyName, &p.Sequence, &state,
			&p.RequesterID, &p.RequesterName, &p.LeaveTypeName, &p.StartDate, &p.EndDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.State = workflow.StepState(state)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) StaleApprovals(ctx context.Context, cutoff time.Time, limit int) ([]StaleApproval, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT r.id::text, r.company_id::text, r.requester_id::text, lt.name, r.start_date, r.end_date,
           array_agg(DISTINCT approver ORDER BY approver)
    FROM leave_requests r
    JOIN leave_types lt ON lt.id = r.leave_type_id
    JOIN workflow_steps s ON s.leave_request_id = r.id
    CROSS JOIN LATERAL unnest(s.resolver_ids) AS approver
    WHERE r.status = 'NEW' AND s.state = 'READY' AND s.action <> 'NOTIFY'
      AND r.created_at < $1 AND (r.reminded_at IS NULL OR r.reminded_at < $1)
    GROUP BY r.id, r.company_id, r.requester_id, lt.name, r.start_date, r.end_date
    ORDER BY r.created_at
    LIMIT $2
  `, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StaleApproval
	for rows.Next() {
		var a StaleApproval
		if err := rows.Scan(&a.RequestID, &a.CompanyID, &a.RequesterID, &a.LeaveTypeName, &a.StartDate, &a.EndDate, &a.ApproverIDs); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) MarkReminded(ctx context.Context, requestIDs []string, at time.Time) error {
	if len(requestIDs) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `UPDATE leave_requests SET reminded_at = $2 WHERE id::text = ANY($1)`, requestIDs, at)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func scopeStrings(scopes []workflow.Scope) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, string(s))
	}
	return out
}

func toScopes(raw []string) []workflow.Scope {
	out := make([]workflow.Scope, 0, len(raw))
	for _, s := range raw {
		out = append(out, workflow.Scope(s))
	}
	return out
}
