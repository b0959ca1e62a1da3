package workflow

import "context"

// Requester is the subject of a leave request as loaded from the org structure.
type Requester struct {
	ID              string
	CompanyID       string
	DepartmentID    string
	DepartmentName  string
	DefaultRoleID   string
	DefaultRoleName string
	AreaID          string
	ContractTypeID  string
	IsAdmin         bool
	Activated       bool
}

type Project struct {
	ID        string
	CompanyID string
	Name      string
	Type      string
	Archived  bool
}

// ProjectRole is an active project membership of a user.
type ProjectRole struct {
	ProjectID   string
	ProjectType string
	RoleID      string
	RoleName    string
}

// UserProfile carries the attributes used for scope filtering.
type UserProfile struct {
	ID           string
	CompanyID    string
	DepartmentID string
	AreaID       string
	ProjectIDs   []string
	Activated    bool
}

// ApprovalRule is one stored routing row. Rows sharing a trigger key form a policy.
type ApprovalRule struct {
	ID              string
	CompanyID       string
	Name            string
	RequestType     string
	SubjectRoleID   string
	SubjectRoleName string
	SubjectAreaID   string
	ProjectType     string
	ApproverKind    ResolverKind
	ApproverID      string
	Scopes          []Scope
	Action          Action
	Sequence        int
	Position        int
	ParallelGroup   string
	Active          bool
}

// WatcherRule is a notification-only routing row.
type WatcherRule struct {
	ID              string
	CompanyID       string
	RequestType     string
	ProjectType     string
	SubjectRoleID   string
	DepartmentID    string
	ProjectID       string
	ProjectArchived bool
	ContractTypeID  string
	ResolverKind    ResolverKind
	ResolverID      string
	Scopes          []Scope
	NotifyEmail     bool
	NotifyPush      bool
	Active          bool
}

type RuleFilter struct {
	CompanyID      string
	RequestType    string
	SubjectRoleIDs []string
	AreaID         string
}

type WatcherFilter struct {
	CompanyID    string
	RequestTypes []string
}

// RuleStore is the read-only view of rules and org structure the engine consumes.
type RuleStore interface {
	Requester(ctx context.Context, userID string) (Requester, error)
	Project(ctx context.Context, projectID string) (Project, error)
	ProjectRoles(ctx context.Context, userID string) ([]ProjectRole, error)
	ApprovalRules(ctx context.Context, filter RuleFilter) ([]ApprovalRule, error)
	WatcherRules(ctx context.Context, filter WatcherFilter) ([]WatcherRule, error)
	UsersWithProjectRole(ctx context.Context, projectID, roleID string) ([]string, error)
	UsersWithDefaultRoleOnProject(ctx context.Context, projectID, roleID string) ([]string, error)
	UsersWithDefaultRole(ctx context.Context, companyID, roleID string) ([]string, error)
	DepartmentManagers(ctx context.Context, departmentID string) ([]string, error)
	CompanyAdmins(ctx context.Context, companyID string) ([]string, error)
	UserProfiles(ctx context.Context, userIDs []string) (map[string]UserProfile, error)
}
