package workflow

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) Requester(ctx context.Context, userID string) (Requester, error) {
	var r Requester
	err := s.DB.QueryRow(ctx, `
    SELECT u.id::text, u.company_id::text,
           COALESCE(u.department_id::text, ''), COALESCE(d.name, ''),
           COALESCE(u.default_role_id::text, ''), COALESCE(r.name, ''),
           COALESCE(u.area_id::text, ''), COALESCE(u.contract_type_id::text, ''),
           u.is_admin, u.activated
    FROM users u
    LEFT JOIN departments d ON d.id = u.department_id
    LEFT JOIN roles r ON r.id = u.default_role_id
    WHERE u.id::text = $1 AND u.deleted_at IS NULL
  `, userID).Scan(&r.ID, &r.CompanyID, &r.DepartmentID, &r.DepartmentName, &r.DefaultRoleID, &r.DefaultRoleName, &r.AreaID, &r.ContractTypeID, &r.IsAdmin, &r.Activated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Requester{}, notFound("user", userID)
	}
	if err != nil {
		return Requester{}, err
	}
	return r, nil
}

func (s *Store) Project(ctx context.Context, projectID string) (Project, error) {
	var p Project
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, company_id::text, name, project_type, status = 'ARCHIVED'
    FROM projects
    WHERE id::text = $1
  `, projectID).Scan(&p.ID, &p.CompanyID, &p.Name, &p.Type, &p.Archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, notFound("project", projectID)
	}
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *Store) ProjectRoles(ctx context.Context, userID string) ([]ProjectRole, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT p.id::text, p.project_type, COALESCE(up.role_id::text, ''), COALESCE(r.name, '')
    FROM user_projects up
    JOIN projects p ON p.id = up.project_id
    LEFT JOIN roles r ON r.id = up.role_id
    WHERE up.user_id::text = $1 AND up.active AND p.status <> 'ARCHIVED'
    ORDER BY p.id
  `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectRole
	for rows.Next() {
		var pr ProjectRole
		if err := rows.Scan(&pr.ProjectID, &pr.ProjectType, &pr.RoleID, &pr.RoleName); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (s *Store) ApprovalRules(ctx context.Context, filter RuleFilter) ([]ApprovalRule, error) {
	if len(filter.SubjectRoleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, `
    SELECT ar.id::text, ar.company_id::text, ar.name, ar.request_type,
           ar.subject_role_id::text, COALESCE(r.name, ''), COALESCE(ar.subject_area_id::text, ''),
           COALESCE(ar.project_type, ''), ar.approver_kind, COALESCE(ar.approver_id, ''),
           ar.scopes, ar.action, ar.sequence, ar.position, COALESCE(ar.parallel_group, ''), ar.active
    FROM approval_rules ar
    LEFT JOIN roles r ON r.id = ar.subject_role_id
    WHERE ar.company_id::text = $1
      AND ar.request_type = $2
      AND ar.active
      AND ar.subject_role_id::text = ANY($3)
      AND (ar.subject_area_id IS NULL OR ar.subject_area_id::text = $4)
    ORDER BY ar.sequence, ar.position, ar.id
  `, filter.CompanyID, filter.RequestType, filter.SubjectRoleIDs, filter.AreaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalRule
	for rows.Next() {
		var rule ApprovalRule
		var kind, action string
		var scopes []string
		if err := rows.Scan(&rule.ID, &rule.CompanyID, &rule.Name, &rule.RequestType,
			&rule.SubjectRoleID, &rule.SubjectRoleName, &rule.SubjectAreaID,
			&rule.ProjectType, &kind, &rule.ApproverID,
			&scopes, &action, &rule.Sequence, &rule.Position, &rule.ParallelGroup, &rule.Active); err != nil {
			return nil, err
		}
		rule.ApproverKind = ResolverKind(kind)
		rule.Action = Action(action)
		rule.Scopes = toScopes(scopes)
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *Store) WatcherRules(ctx context.Context, filter WatcherFilter) ([]WatcherRule, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT wr.id::text, wr.company_id::text, upper(trim(wr.request_type)), COALESCE(wr.project_type, ''),
           COALESCE(wr.subject_role_id::text, ''), COALESCE(wr.department_id::text, ''),
           COALESCE(wr.project_id::text, ''), COALESCE(p.status = 'ARCHIVED', false),
           COALESCE(wr.contract_type_id::text, ''), wr.resolver_kind, COALESCE(wr.resolver_id, ''),
           wr.scopes, wr.notify_email, wr.notify_push, wr.active
    FROM watcher_rules wr
    LEFT JOIN projects p ON p.id = wr.project_id
    WHERE wr.company_id::text = $1 AND upper(trim(wr.request_type)) = ANY($2) AND wr.active
    ORDER BY wr.id
  `, filter.CompanyID, filter.RequestTypes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WatcherRule
	for rows.Next() {
		var rule WatcherRule
		var kind string
		var scopes []string
		if err := rows.Scan(&rule.ID, &rule.CompanyID, &rule.RequestType, &rule.ProjectType,
			&rule.SubjectRoleID, &rule.DepartmentID,
			&rule.ProjectID, &rule.ProjectArchived,
			&rule.ContractTypeID, &kind, &rule.ResolverID,
			&scopes, &rule.NotifyEmail, &rule.NotifyPush, &rule.Active); err != nil {
			return nil, err
		}
		rule.ResolverKind = ResolverKind(kind)
		rule.Scopes = toScopes(scopes)
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *Store) UsersWithProjectRole(ctx context.Context, projectID, roleID string) ([]string, error) {
	return s.userIDs(ctx, `
    SELECT u.id::text
    FROM user_projects up
    JOIN users u ON u.id = up.user_id
    WHERE up.project_id::text = $1 AND up.role_id::text = $2 AND up.active
      AND u.activated AND u.deleted_at IS NULL
    ORDER BY u.id
  `, projectID, roleID)
}

func (s *Store) UsersWithDefaultRoleOnProject(ctx context.Context, projectID, roleID string) ([]string, error) {
	return s.userIDs(ctx, `
    SELECT u.id::text
    FROM user_projects up
    JOIN users u ON u.id = up.user_id
    WHERE up.project_id::text = $1 AND u.default_role_id::text = $2 AND up.active
      AND u.activated AND u.deleted_at IS NULL
    ORDER BY u.id
  `, projectID, roleID)
}

func (s *Store) UsersWithDefaultRole(ctx context.Context, companyID, roleID string) ([]string, error) {
	return s.userIDs(ctx, `
    SELECT id::text
    FROM users
    WHERE company_id::text = $1 AND default_role_id::text = $2
      AND activated AND deleted_at IS NULL
    ORDER BY id
  `, companyID, roleID)
}

func (s *Store) DepartmentManagers(ctx context.Context, departmentID string) ([]string, error) {
	return s.userIDs(ctx, `
    SELECT u.id::text
    FROM users u
    WHERE u.activated AND u.deleted_at IS NULL
      AND (
        u.id IN (SELECT ds.user_id FROM department_supervisors ds WHERE ds.department_id::text = $1)
        OR u.id = (SELECT d.boss_id FROM departments d WHERE d.id::text = $1)
      )
    ORDER BY u.id
  `, departmentID)
}

func (s *Store) CompanyAdmins(ctx context.Context, companyID string) ([]string, error) {
	return s.userIDs(ctx, `
    SELECT id::text
    FROM users
    WHERE company_id::text = $1 AND is_admin AND activated AND deleted_at IS NULL
    ORDER BY id
  `, companyID)
}

func (s *Store) UserProfiles(ctx context.Context, userIDs []string) (map[string]UserProfile, error) {
	out := make(map[string]UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, `
    SELECT u.id::text, u.company_id::text, COALESCE(u.department_id::text, ''), COALESCE(u.area_id::text, ''), u.activated,
           COALESCE(array_agg(up.project_id::text ORDER BY up.project_id)
             FILTER (WHERE up.active AND p.status <> 'ARCHIVED'), '{}')
    FROM users u
    LEFT JOIN user_projects up ON up.user_id = u.id
    LEFT JOIN projects p ON p.id = up.project_id
    WHERE u.id::text = ANY($1) AND u.deleted_at IS NULL
    GROUP BY u.id
  `, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p UserProfile
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.DepartmentID, &p.AreaID, &p.Activated, &p.ProjectIDs); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) userIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func toScopes(values []string) []Scope {
	out := make([]Scope, 0, len(values))
	for _, v := range values {
		out = append(out, Scope(v))
	}
	return out
}
