package memstore

import (
	"context"
	"sort"

	"absence/internal/domain/workflow"
)

// Store serves a Fixture as a workflow.RuleStore. It is read-only after construction.
type Store struct {
	fixture     Fixture
	users       map[string]User
	roles       map[string]Role
	departments map[string]Department
	projects    map[string]Project
}

var _ workflow.RuleStore = (*Store)(nil)

func New(f Fixture) *Store {
	s := &Store{
		fixture:     f,
		users:       make(map[string]User, len(f.Users)),
		roles:       make(map[string]Role, len(f.Roles)),
		departments: make(map[string]Department, len(f.Departments)),
		projects:    make(map[string]Project, len(f.Projects)),
	}
	for _, u := range f.Users {
		s.users[u.ID] = u
	}
	for _, r := range f.Roles {
		s.roles[r.ID] = r
	}
	for _, d := range f.Departments {
		s.departments[d.ID] = d
	}
	for _, p := range f.Projects {
		s.projects[p.ID] = p
	}
	return s
}

// Open loads a fixture file and wraps it in a Store.
func Open(path string) (*Store, error) {
	f, err := LoadFixture(path)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

func (s *Store) Fixture() Fixture {
	return s.fixture
}

func (s *Store) Requester(_ context.Context, userID string) (workflow.Requester, error) {
	u, ok := s.users[userID]
	if !ok || u.Deleted {
		return workflow.Requester{}, workflow.NewNotFoundError("user", userID)
	}
	return workflow.Requester{
		ID:              u.ID,
		CompanyID:       u.CompanyID,
		DepartmentID:    u.DepartmentID,
		DepartmentName:  s.departments[u.DepartmentID].Name,
		DefaultRoleID:   u.DefaultRoleID,
		DefaultRoleName: s.roles[u.DefaultRoleID].Name,
		AreaID:          u.AreaID,
		ContractTypeID:  u.ContractTypeID,
		IsAdmin:         u.IsAdmin,
		Activated:       !u.Inactive,
	}, nil
}

func (s *Store) Project(_ context.Context, projectID string) (workflow.Project, error) {
	p, ok := s.projects[projectID]
	if !ok {
		return workflow.Project{}, workflow.NewNotFoundError("project", projectID)
	}
	return workflow.Project{ID: p.ID, CompanyID: p.CompanyID, Name: p.Name, Type: p.Type, Archived: p.Archived}, nil
}

func (s *Store) ProjectRoles(_ context.Context, userID string) ([]workflow.ProjectRole, error) {
	var out []workflow.ProjectRole
	for _, m := range s.fixture.Memberships {
		if m.UserID != userID || m.Inactive {
			continue
		}
		p, ok := s.projects[m.ProjectID]
		if !ok || p.Archived {
			continue
		}
		out = append(out, workflow.ProjectRole{
			ProjectID:   p.ID,
			ProjectType: p.Type,
			RoleID:      m.RoleID,
			RoleName:    s.roles[m.RoleID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (s *Store) ApprovalRules(_ context.Context, filter workflow.RuleFilter) ([]workflow.ApprovalRule, error) {
	roles := make(map[string]bool, len(filter.SubjectRoleIDs))
	for _, id := range filter.SubjectRoleIDs {
		roles[id] = true
	}
	var out []workflow.ApprovalRule
	for _, r := range s.fixture.ApprovalRules {
		rule := s.rule(r)
		if !rule.Active || rule.CompanyID != filter.CompanyID || rule.RequestType != filter.RequestType {
			continue
		}
		if !roles[rule.SubjectRoleID] {
			continue
		}
		if rule.SubjectAreaID != "" && rule.SubjectAreaID != filter.AreaID {
			continue
		}
		out = append(out, rule)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) rule(r RuleSpec) workflow.ApprovalRule {
	requestType := r.RequestType
	if requestType == "" {
		requestType = workflow.RequestTypeLeave
	}
	return workflow.ApprovalRule{
		ID:              r.ID,
		CompanyID:       r.CompanyID,
		Name:            r.Name,
		RequestType:     requestType,
		SubjectRoleID:   r.SubjectRoleID,
		SubjectRoleName: s.roles[r.SubjectRoleID].Name,
		SubjectAreaID:   r.SubjectAreaID,
		ProjectType:     r.ProjectType,
		ApproverKind:    workflow.ResolverKind(r.ApproverKind),
		ApproverID:      r.ApproverID,
		Scopes:          scopes(r.Scopes),
		Action:          workflow.Action(r.Action),
		Sequence:        r.Sequence,
		Position:        r.Position,
		ParallelGroup:   r.ParallelGroup,
		Active:          !r.Disabled,
	}
}

func (s *Store) WatcherRules(_ context.Context, filter workflow.WatcherFilter) ([]workflow.WatcherRule, error) {
	types := make(map[string]bool, len(filter.RequestTypes))
	for _, t := range filter.RequestTypes {
		types[workflow.CanonicalRequestType(t)] = true
	}
	var out []workflow.WatcherRule
	for _, w := range s.fixture.WatcherRules {
		requestType := workflow.CanonicalRequestType(w.RequestType)
		if requestType == "" {
			requestType = workflow.RequestTypeLeave
		}
		if w.Disabled || w.CompanyID != filter.CompanyID || !types[requestType] {
			continue
		}
		out = append(out, workflow.WatcherRule{
			ID:              w.ID,
			CompanyID:       w.CompanyID,
			RequestType:     requestType,
			ProjectType:     w.ProjectType,
			SubjectRoleID:   w.SubjectRoleID,
			DepartmentID:    w.DepartmentID,
			ProjectID:       w.ProjectID,
			ProjectArchived: s.projects[w.ProjectID].Archived,
			ContractTypeID:  w.ContractTypeID,
			ResolverKind:    workflow.ResolverKind(w.ResolverKind),
			ResolverID:      w.ResolverID,
			Scopes:          scopes(w.Scopes),
			NotifyEmail:     w.NotifyEmail,
			NotifyPush:      w.NotifyPush,
			Active:          true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UsersWithProjectRole(_ context.Context, projectID, roleID string) ([]string, error) {
	var ids []string
	for _, m := range s.fixture.Memberships {
		if m.ProjectID == projectID && m.RoleID == roleID && !m.Inactive && s.usable(m.UserID) {
			ids = append(ids, m.UserID)
		}
	}
	return sorted(ids), nil
}

func (s *Store) UsersWithDefaultRoleOnProject(_ context.Context, projectID, roleID string) ([]string, error) {
	var ids []string
	for _, m := range s.fixture.Memberships {
		if m.ProjectID != projectID || m.Inactive || !s.usable(m.UserID) {
			continue
		}
		if s.users[m.UserID].DefaultRoleID == roleID {
			ids = append(ids, m.UserID)
		}
	}
	return sorted(ids), nil
}

func (s *Store) UsersWithDefaultRole(_ context.Context, companyID, roleID string) ([]string, error) {
	var ids []string
	for _, u := range s.fixture.Users {
		if u.CompanyID == companyID && u.DefaultRoleID == roleID && s.usable(u.ID) {
			ids = append(ids, u.ID)
		}
	}
	return sorted(ids), nil
}

func (s *Store) DepartmentManagers(_ context.Context, departmentID string) ([]string, error) {
	d, ok := s.departments[departmentID]
	if !ok {
		return nil, nil
	}
	candidates := append([]string{d.BossID}, d.Supervisors...)
	var ids []string
	for _, id := range candidates {
		if id != "" && s.usable(id) {
			ids = append(ids, id)
		}
	}
	return sorted(ids), nil
}

func (s *Store) CompanyAdmins(_ context.Context, companyID string) ([]string, error) {
	var ids []string
	for _, u := range s.fixture.Users {
		if u.CompanyID == companyID && u.IsAdmin && s.usable(u.ID) {
			ids = append(ids, u.ID)
		}
	}
	return sorted(ids), nil
}

func (s *Store) UserProfiles(_ context.Context, userIDs []string) (map[string]workflow.UserProfile, error) {
	out := make(map[string]workflow.UserProfile, len(userIDs))
	for _, id := range userIDs {
		u, ok := s.users[id]
		if !ok || u.Deleted {
			continue
		}
		profile := workflow.UserProfile{
			ID:           u.ID,
			CompanyID:    u.CompanyID,
			DepartmentID: u.DepartmentID,
			AreaID:       u.AreaID,
			Activated:    !u.Inactive,
		}
		for _, m := range s.fixture.Memberships {
			if m.UserID == id && !m.Inactive && !s.projects[m.ProjectID].Archived {
				profile.ProjectIDs = append(profile.ProjectIDs, m.ProjectID)
			}
		}
		sort.Strings(profile.ProjectIDs)
		out[id] = profile
	}
	return out, nil
}

func (s *Store) usable(userID string) bool {
	u, ok := s.users[userID]
	return ok && !u.Inactive && !u.Deleted
}

func scopes(values []string) []workflow.Scope {
	out := make([]workflow.Scope, 0, len(values))
	for _, v := range values {
		out = append(out, workflow.Scope(v))
	}
	return out
}

func sorted(ids []string) []string {
	sort.Strings(ids)
	out := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}
