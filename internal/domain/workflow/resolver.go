package workflow

import (
	"context"
	"fmt"
	"strings"
)

// ResolveStep resolves one abstract step to user IDs and applies its scope filter.
// The result may be empty and may contain the requester.
func (e *Engine) ResolveStep(ctx context.Context, step Step, rc RequestContext) ([]string, error) {
	ids, err := e.resolveKind(ctx, step.ResolverKind, step.ResolverID, rc)
	if err != nil {
		return nil, err
	}
	return e.ApplyScope(ctx, ids, step.Scopes, rc)
}

func (e *Engine) resolveKind(ctx context.Context, kind ResolverKind, resolverID string, rc RequestContext) ([]string, error) {
	resolverID = strings.TrimSpace(resolverID)
	switch kind {
	case ResolverSpecificUser:
		return e.resolveSpecificUser(ctx, resolverID, rc)
	case ResolverRole:
		return e.resolveRole(ctx, resolverID, rc)
	case ResolverDepartmentManager:
		return e.resolveDepartmentManager(ctx, rc)
	case ResolverLineManager:
		return e.resolveLineManager(ctx, rc)
	default:
		e.log.Warn("unknown resolver kind", "kind", kind, "resolverId", resolverID)
		return []string{}, nil
	}
}

// resolveSpecificUser keeps the configured user only while they are an active member of
// the requester's company. A stale rule resolves empty and falls back.
func (e *Engine) resolveSpecificUser(ctx context.Context, userID string, rc RequestContext) ([]string, error) {
	if userID == "" {
		return []string{}, nil
	}
	profiles, err := e.store.UserProfiles(ctx, []string{userID})
	if err != nil {
		return nil, fmt.Errorf("resolve specific user %s: %w", userID, err)
	}
	profile, ok := profiles[userID]
	if !ok || !profile.Activated || profile.CompanyID != rc.CompanyID {
		e.log.Warn("approval rule names an unusable user", "userId", userID, "companyId", rc.CompanyID)
		return []string{}, nil
	}
	return []string{userID}, nil
}

func (e *Engine) resolveRole(ctx context.Context, roleID string, rc RequestContext) ([]string, error) {
	if roleID == "" {
		return []string{}, nil
	}
	if rc.ProjectID == "" {
		ids, err := e.store.UsersWithDefaultRole(ctx, rc.CompanyID, roleID)
		if err != nil {
			return nil, fmt.Errorf("resolve role %s: %w", roleID, err)
		}
		return uniqueSorted(ids), nil
	}
	ids, err := e.store.UsersWithProjectRole(ctx, rc.ProjectID, roleID)
	if err != nil {
		return nil, fmt.Errorf("resolve project role %s: %w", roleID, err)
	}
	if len(ids) > 0 {
		return uniqueSorted(ids), nil
	}
	ids, err = e.store.UsersWithDefaultRoleOnProject(ctx, rc.ProjectID, roleID)
	if err != nil {
		return nil, fmt.Errorf("resolve default role %s on project: %w", roleID, err)
	}
	return uniqueSorted(ids), nil
}

func (e *Engine) resolveDepartmentManager(ctx context.Context, rc RequestContext) ([]string, error) {
	if rc.DepartmentID == "" {
		return []string{}, nil
	}
	ids, err := e.store.DepartmentManagers(ctx, rc.DepartmentID)
	if err != nil {
		return nil, fmt.Errorf("resolve department managers: %w", err)
	}
	return uniqueSorted(ids), nil
}

// resolveLineManager has no hierarchy of its own yet and follows the department.
func (e *Engine) resolveLineManager(ctx context.Context, rc RequestContext) ([]string, error) {
	return e.resolveDepartmentManager(ctx, rc)
}

// ApplyScope narrows ids to users sharing every non-GLOBAL scope attribute with the requester.
func (e *Engine) ApplyScope(ctx context.Context, ids []string, scopes []Scope, rc RequestContext) ([]string, error) {
	ids = uniqueSorted(ids)
	if len(ids) == 0 || isGlobal(scopes) {
		return ids, nil
	}
	profiles, err := e.store.UserProfiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load user profiles: %w", err)
	}
	return FilterByScope(ids, profiles, scopes, rc), nil
}

func isGlobal(scopes []Scope) bool {
	for _, scope := range scopes {
		if scope != ScopeGlobal {
			return false
		}
	}
	return true
}

// FilterByScope keeps the users satisfying all scopes. Users without a profile are dropped.
func FilterByScope(ids []string, profiles map[string]UserProfile, scopes []Scope, rc RequestContext) []string {
	out := make([]string, 0, len(ids))
	for _, id := range uniqueSorted(ids) {
		profile, ok := profiles[id]
		if !ok {
			continue
		}
		if satisfiesAll(profile, scopes, rc) {
			out = append(out, id)
		}
	}
	return out
}

func satisfiesAll(profile UserProfile, scopes []Scope, rc RequestContext) bool {
	for _, scope := range scopes {
		switch scope {
		case ScopeGlobal:
		case ScopeSameArea:
			if rc.AreaID == "" || profile.AreaID != rc.AreaID {
				return false
			}
		case ScopeSameDepartment:
			if rc.DepartmentID == "" || profile.DepartmentID != rc.DepartmentID {
				return false
			}
		case ScopeSameProject:
			if rc.ProjectID != "" {
				if !containsID(profile.ProjectIDs, rc.ProjectID) {
					return false
				}
			} else if !intersects(profile.ProjectIDs, rc.ProjectIDs) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
