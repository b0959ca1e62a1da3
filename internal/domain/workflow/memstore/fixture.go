package memstore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is an org structure plus routing rules, as written in YAML fixture files.
type Fixture struct {
	Companies     []Company     `yaml:"companies"`
	Roles         []Role        `yaml:"roles"`
	Departments   []Department  `yaml:"departments"`
	Users         []User        `yaml:"users"`
	Projects      []Project     `yaml:"projects"`
	Memberships   []Membership  `yaml:"memberships"`
	ApprovalRules []RuleSpec    `yaml:"approvalRules"`
	WatcherRules  []WatcherSpec `yaml:"watcherRules"`
	LeaveTypes    []LeaveType   `yaml:"leaveTypes"`
}

type Company struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Role struct {
	ID        string `yaml:"id"`
	CompanyID string `yaml:"company"`
	Name      string `yaml:"name"`
}

type Department struct {
	ID          string   `yaml:"id"`
	CompanyID   string   `yaml:"company"`
	Name        string   `yaml:"name"`
	BossID      string   `yaml:"boss"`
	Supervisors []string `yaml:"supervisors"`
}

type User struct {
	ID             string `yaml:"id"`
	CompanyID      string `yaml:"company"`
	Email          string `yaml:"email"`
	Name           string `yaml:"name"`
	DepartmentID   string `yaml:"department"`
	DefaultRoleID  string `yaml:"defaultRole"`
	AreaID         string `yaml:"area"`
	ContractTypeID string `yaml:"contractType"`
	IsAdmin        bool   `yaml:"admin"`
	Inactive       bool   `yaml:"inactive"`
	Deleted        bool   `yaml:"deleted"`
}

type Project struct {
	ID        string `yaml:"id"`
	CompanyID string `yaml:"company"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Archived  bool   `yaml:"archived"`
}

type Membership struct {
	UserID    string `yaml:"user"`
	ProjectID string `yaml:"project"`
	RoleID    string `yaml:"role"`
	Inactive  bool   `yaml:"inactive"`
}

type RuleSpec struct {
	ID            string   `yaml:"id"`
	CompanyID     string   `yaml:"company"`
	Name          string   `yaml:"name"`
	RequestType   string   `yaml:"requestType"`
	SubjectRoleID string   `yaml:"subjectRole"`
	SubjectAreaID string   `yaml:"subjectArea"`
	ProjectType   string   `yaml:"projectType"`
	ApproverKind  string   `yaml:"approverKind"`
	ApproverID    string   `yaml:"approver"`
	Scopes        []string `yaml:"scopes"`
	Action        string   `yaml:"action"`
	Sequence      int      `yaml:"sequence"`
	Position      int      `yaml:"position"`
	ParallelGroup string   `yaml:"parallelGroup"`
	Disabled      bool     `yaml:"disabled"`
}

type WatcherSpec struct {
	ID             string   `yaml:"id"`
	CompanyID      string   `yaml:"company"`
	RequestType    string   `yaml:"requestType"`
	ProjectType    string   `yaml:"projectType"`
	SubjectRoleID  string   `yaml:"subjectRole"`
	DepartmentID   string   `yaml:"department"`
	ProjectID      string   `yaml:"project"`
	ContractTypeID string   `yaml:"contractType"`
	ResolverKind   string   `yaml:"resolverKind"`
	ResolverID     string   `yaml:"resolver"`
	Scopes         []string `yaml:"scopes"`
	NotifyEmail    bool     `yaml:"email"`
	NotifyPush     bool     `yaml:"push"`
	Disabled       bool     `yaml:"disabled"`
}

type LeaveType struct {
	ID          string `yaml:"id"`
	CompanyID   string `yaml:"company"`
	Name        string `yaml:"name"`
	RequestType string `yaml:"requestType"`
}

// LoadFixture reads and parses a YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return ParseFixture(data)
}

func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

// Validate checks that every reference in the fixture points at a declared entity.
func (f Fixture) Validate() error {
	users := map[string]bool{}
	for _, u := range f.Users {
		if u.ID == "" || u.CompanyID == "" {
			return fmt.Errorf("user %q: id and company are required", u.ID)
		}
		users[u.ID] = true
	}
	roles := map[string]bool{}
	for _, r := range f.Roles {
		roles[r.ID] = true
	}
	projects := map[string]bool{}
	for _, p := range f.Projects {
		projects[p.ID] = true
	}
	for _, u := range f.Users {
		if u.DefaultRoleID != "" && !roles[u.DefaultRoleID] {
			return fmt.Errorf("user %q: unknown default role %q", u.ID, u.DefaultRoleID)
		}
	}
	for _, m := range f.Memberships {
		if !users[m.UserID] || !projects[m.ProjectID] {
			return fmt.Errorf("membership %s/%s: unknown user or project", m.UserID, m.ProjectID)
		}
		if m.RoleID != "" && !roles[m.RoleID] {
			return fmt.Errorf("membership %s/%s: unknown role %q", m.UserID, m.ProjectID, m.RoleID)
		}
	}
	for _, d := range f.Departments {
		if d.BossID != "" && !users[d.BossID] {
			return fmt.Errorf("department %q: unknown boss %q", d.ID, d.BossID)
		}
		for _, s := range d.Supervisors {
			if !users[s] {
				return fmt.Errorf("department %q: unknown supervisor %q", d.ID, s)
			}
		}
	}
	for _, r := range f.ApprovalRules {
		if r.ID == "" || !roles[r.SubjectRoleID] {
			return fmt.Errorf("approval rule %q: id and a known subject role are required", r.ID)
		}
	}
	return nil
}
