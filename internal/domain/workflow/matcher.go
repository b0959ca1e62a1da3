package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// policyNamespace seeds deterministic policy IDs derived from trigger keys.
var policyNamespace = uuid.MustParse("6f1c5a52-1b0e-4a57-9a0c-3d1f4f2b7e10")

// subject is the loaded requester plus the project context of one resolution.
type subject struct {
	requester Requester
	project   *Project
	roles     []ProjectRole
}

func (s subject) requestContext(requestType string) RequestContext {
	rc := RequestContext{
		RequesterID:    s.requester.ID,
		CompanyID:      s.requester.CompanyID,
		RequestType:    requestType,
		DepartmentID:   s.requester.DepartmentID,
		AreaID:         s.requester.AreaID,
		ContractTypeID: s.requester.ContractTypeID,
	}
	if s.project != nil {
		rc.ProjectID = s.project.ID
	}
	projectIDs := make([]string, 0, len(s.roles))
	for _, role := range s.roles {
		projectIDs = append(projectIDs, role.ProjectID)
	}
	rc.ProjectIDs = uniqueSorted(projectIDs)
	return rc
}

// projectType is the type used for watcher matching: the context project, if any.
func (s subject) projectType() string {
	if s.project == nil {
		return ""
	}
	return s.project.Type
}

func (e *Engine) loadSubject(ctx context.Context, userID, projectID string) (subject, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return subject{}, notFound("user", userID)
	}
	requester, err := e.store.Requester(ctx, userID)
	if err != nil {
		return subject{}, err
	}
	roles, err := e.store.ProjectRoles(ctx, requester.ID)
	if err != nil {
		return subject{}, fmt.Errorf("load project roles: %w", err)
	}
	subj := subject{requester: requester, roles: roles}

	projectID = strings.TrimSpace(projectID)
	if projectID != "" {
		project, err := e.store.Project(ctx, projectID)
		if err != nil {
			return subject{}, err
		}
		if project.CompanyID != requester.CompanyID {
			return subject{}, notFound("project", projectID)
		}
		subj.project = &project
	}
	return subj, nil
}

// CandidateRole is a subject role a rule may be keyed to, with the project type it was held under.
type CandidateRole struct {
	RoleID      string `json:"roleId"`
	RoleName    string `json:"roleName"`
	ProjectID   string `json:"projectId,omitempty"`
	ProjectType string `json:"projectType,omitempty"`
}

// CandidateRoles returns the requester's candidate subject roles.
//
// With a project, the single effective role is the requester's role on that project,
// or the default role when they hold none there. Without a project, it is the union of
// the default role and every active project role.
func CandidateRoles(requester Requester, project *Project, roles []ProjectRole) []CandidateRole {
	if project != nil {
		for _, role := range roles {
			if role.ProjectID == project.ID && role.RoleID != "" {
				return []CandidateRole{{RoleID: role.RoleID, RoleName: role.RoleName, ProjectID: project.ID, ProjectType: project.Type}}
			}
		}
		if requester.DefaultRoleID == "" {
			return nil
		}
		return []CandidateRole{{RoleID: requester.DefaultRoleID, RoleName: requester.DefaultRoleName, ProjectID: project.ID, ProjectType: project.Type}}
	}

	var out []CandidateRole
	if requester.DefaultRoleID != "" {
		out = append(out, CandidateRole{RoleID: requester.DefaultRoleID, RoleName: requester.DefaultRoleName})
	}
	for _, role := range roles {
		if role.RoleID == "" {
			continue
		}
		out = append(out, CandidateRole{RoleID: role.RoleID, RoleName: role.RoleName, ProjectID: role.ProjectID, ProjectType: role.ProjectType})
	}
	return out
}

func candidateRoleIDs(candidates []CandidateRole) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.RoleID)
	}
	return uniqueSorted(ids)
}

// projectTypeMatches treats an empty rule type and the ALL/ANY tokens as wildcards.
func projectTypeMatches(ruleType, projectType string) bool {
	ruleType = strings.TrimSpace(ruleType)
	if ruleType == "" || strings.EqualFold(ruleType, ProjectTypeAll) || strings.EqualFold(ruleType, ProjectTypeAny) {
		return true
	}
	return projectType != "" && strings.EqualFold(ruleType, projectType)
}

func areaMatches(ruleArea, requesterArea string) bool {
	return ruleArea == "" || ruleArea == requesterArea
}

// triggerKey groups rule rows into one policy.
type triggerKey struct {
	CompanyID     string
	RequestType   string
	ProjectType   string
	SubjectRoleID string
	AreaID        string
}

func (k triggerKey) String() string {
	return strings.Join([]string{k.CompanyID, k.RequestType, k.ProjectType, k.SubjectRoleID, k.AreaID}, "|")
}

func keyFor(rule ApprovalRule) triggerKey {
	return triggerKey{
		CompanyID:     rule.CompanyID,
		RequestType:   rule.RequestType,
		ProjectType:   strings.ToUpper(strings.TrimSpace(rule.ProjectType)),
		SubjectRoleID: rule.SubjectRoleID,
		AreaID:        rule.SubjectAreaID,
	}
}

// FindMatchingPolicies returns one policy per matching rule group, in trigger-key order.
// No match is not an error: the result is empty.
func (e *Engine) FindMatchingPolicies(ctx context.Context, userID, projectID, requestType string) ([]Policy, error) {
	subj, err := e.loadSubject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return e.matchPolicies(ctx, subj, requestType)
}

func (e *Engine) matchPolicies(ctx context.Context, subj subject, requestType string) ([]Policy, error) {
	requestType = strings.TrimSpace(requestType)
	if requestType == "" {
		return nil, ErrInvalidRequestType
	}
	candidates := CandidateRoles(subj.requester, subj.project, subj.roles)
	roleIDs := candidateRoleIDs(candidates)
	if len(roleIDs) == 0 {
		return []Policy{}, nil
	}

	rules, err := e.store.ApprovalRules(ctx, RuleFilter{
		CompanyID:      subj.requester.CompanyID,
		RequestType:    requestType,
		SubjectRoleIDs: roleIDs,
		AreaID:         subj.requester.AreaID,
	})
	if err != nil {
		return nil, fmt.Errorf("load approval rules: %w", err)
	}

	groups := make(map[triggerKey][]ApprovalRule)
	for _, rule := range rules {
		if !ruleMatches(rule, subj, requestType, candidates) {
			continue
		}
		key := keyFor(rule)
		groups[key] = append(groups[key], rule)
	}
	if len(groups) == 0 {
		return []Policy{}, nil
	}

	keys := make([]triggerKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	watcherRules, err := e.store.WatcherRules(ctx, WatcherFilter{
		CompanyID:    subj.requester.CompanyID,
		RequestTypes: watcherRequestTypes(requestType),
	})
	if err != nil {
		return nil, fmt.Errorf("load watcher rules: %w", err)
	}

	policies := make([]Policy, 0, len(keys))
	for _, key := range keys {
		policy := buildPolicy(key, groups[key], subj, candidates)
		policy.Watchers = matchWatchers(watcherRules, key, subj, requestType)
		policies = append(policies, policy)
	}
	return policies, nil
}

func ruleMatches(rule ApprovalRule, subj subject, requestType string, candidates []CandidateRole) bool {
	if !rule.Active || rule.CompanyID != subj.requester.CompanyID || rule.RequestType != requestType {
		return false
	}
	if !areaMatches(rule.SubjectAreaID, subj.requester.AreaID) {
		return false
	}
	for _, c := range candidates {
		if c.RoleID == rule.SubjectRoleID && projectTypeMatches(rule.ProjectType, c.ProjectType) {
			return true
		}
	}
	return false
}

func buildPolicy(key triggerKey, rules []ApprovalRule, subj subject, candidates []CandidateRole) Policy {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Sequence != rules[j].Sequence {
			return rules[i].Sequence < rules[j].Sequence
		}
		if rules[i].Position != rules[j].Position {
			return rules[i].Position < rules[j].Position
		}
		return rules[i].ID < rules[j].ID
	})

	roleName := ""
	name := ""
	for _, rule := range rules {
		if roleName == "" {
			roleName = rule.SubjectRoleName
		}
		if name == "" {
			name = strings.TrimSpace(rule.Name)
		}
	}
	if roleName == "" {
		for _, c := range candidates {
			if c.RoleID == key.SubjectRoleID {
				roleName = c.RoleName
				break
			}
		}
	}
	if name == "" {
		name = fmt.Sprintf("%s / %s", key.RequestType, roleName)
		if key.ProjectType != "" {
			name += " / " + key.ProjectType
		}
	}

	steps := make([]Step, 0, len(rules))
	for _, rule := range rules {
		steps = append(steps, Step{
			RuleID:        rule.ID,
			Sequence:      rule.Sequence,
			Position:      rule.Position,
			ResolverKind:  rule.ApproverKind,
			ResolverID:    rule.ApproverID,
			Scopes:        normalizeScopes(rule.Scopes),
			Action:        normalizeAction(rule.Action),
			ParallelGroup: rule.ParallelGroup,
		})
	}

	return Policy{
		ID:   uuid.NewSHA1(policyNamespace, []byte(key.String())).String(),
		Name: name,
		Trigger: Trigger{
			RequestType:    key.RequestType,
			RoleName:       roleName,
			DepartmentName: subj.requester.DepartmentName,
			ProjectType:    key.ProjectType,
		},
		Steps:     steps,
		Watchers:  []Watcher{},
		Active:    true,
		CompanyID: key.CompanyID,
	}
}

// CanonicalRequestType is the form watcher request types are filtered and compared in.
// Stores apply it to stored rows so "all" and "ALL" select the same watchers.
func CanonicalRequestType(requestType string) string {
	return strings.ToUpper(strings.TrimSpace(requestType))
}

func watcherRequestTypes(requestType string) []string {
	return uniqueSorted([]string{CanonicalRequestType(requestType), RequestTypeLeave, RequestTypeAll})
}

// matchWatchers selects watcher rules for one policy. Rules tied to archived projects never match.
func matchWatchers(rules []WatcherRule, key triggerKey, subj subject, requestType string) []Watcher {
	projectType := subj.projectType()
	if projectType == "" {
		projectType = key.ProjectType
	}
	out := []Watcher{}
	for _, rule := range rules {
		if !rule.Active || rule.CompanyID != subj.requester.CompanyID || rule.ProjectArchived {
			continue
		}
		switch CanonicalRequestType(rule.RequestType) {
		case CanonicalRequestType(requestType), RequestTypeLeave, RequestTypeAll:
		default:
			continue
		}
		if !projectTypeMatches(rule.ProjectType, projectType) {
			continue
		}
		if rule.SubjectRoleID != "" && rule.SubjectRoleID != key.SubjectRoleID {
			continue
		}
		if rule.DepartmentID != "" && rule.DepartmentID != subj.requester.DepartmentID {
			continue
		}
		if rule.ContractTypeID != "" && rule.ContractTypeID != subj.requester.ContractTypeID {
			continue
		}
		if rule.ProjectID != "" && !subj.onProject(rule.ProjectID) {
			continue
		}
		out = append(out, Watcher{
			RuleID:       rule.ID,
			ResolverKind: rule.ResolverKind,
			ResolverID:   rule.ResolverID,
			Scopes:       normalizeScopes(rule.Scopes),
			NotifyEmail:  rule.NotifyEmail,
			NotifyPush:   rule.NotifyPush,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

func (s subject) onProject(projectID string) bool {
	if s.project != nil {
		return s.project.ID == projectID
	}
	for _, role := range s.roles {
		if role.ProjectID == projectID {
			return true
		}
	}
	return false
}

// normalizeScopes drops unknown tags, dedups and sorts. An empty set means GLOBAL.
func normalizeScopes(scopes []Scope) []Scope {
	seen := make(map[Scope]struct{}, len(scopes))
	out := make([]Scope, 0, len(scopes))
	for _, scope := range scopes {
		scope = Scope(strings.ToUpper(strings.TrimSpace(string(scope))))
		if !scope.Valid() {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	if len(out) == 0 {
		return []Scope{ScopeGlobal}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalizeAction(action Action) Action {
	switch Action(strings.ToUpper(strings.TrimSpace(string(action)))) {
	case ActionReject:
		return ActionReject
	case ActionNotify:
		return ActionNotify
	default:
		return ActionApprove
	}
}
