package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"absence/internal/domain/workflow/memstore"
	"absence/internal/platform/config"
)

var seedNamespace = uuid.MustParse("0b6d8f5e-3c1a-4f7e-8a4d-5d2c9e1f7a30")

// FixtureID maps a fixture identifier onto a stable UUID. UUIDs pass through unchanged.
func FixtureID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if id, err := uuid.Parse(raw); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(seedNamespace, []byte(raw)).String()
}

func nullable(raw string) any {
	if id := FixtureID(raw); id != "" {
		return id
	}
	return nil
}

func nullableText(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// Seed loads the configured YAML fixture into the database. Rows that already exist are kept.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	f, err := memstore.LoadFixture(cfg.SeedFixture)
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := seedFixture(ctx, tx, f); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	slog.Info("seed fixture loaded", "path", cfg.SeedFixture, "users", len(f.Users), "rules", len(f.ApprovalRules))
	return nil
}

func seedFixture(ctx context.Context, tx pgx.Tx, f memstore.Fixture) error {
	for _, c := range f.Companies {
		if _, err := tx.Exec(ctx, `INSERT INTO companies (id, name) VALUES ($1,$2) ON CONFLICT (id) DO NOTHING`,
			FixtureID(c.ID), c.Name); err != nil {
			return fmt.Errorf("seed company %s: %w", c.ID, err)
		}
	}

	areas, contracts := map[[2]string]bool{}, map[[2]string]bool{}
	for _, u := range f.Users {
		if u.AreaID != "" {
			areas[[2]string{u.CompanyID, u.AreaID}] = true
		}
		if u.ContractTypeID != "" {
			contracts[[2]string{u.CompanyID, u.ContractTypeID}] = true
		}
	}
	for _, r := range f.ApprovalRules {
		if r.SubjectAreaID != "" {
			areas[[2]string{r.CompanyID, r.SubjectAreaID}] = true
		}
	}
	for key := range areas {
		if _, err := tx.Exec(ctx, `INSERT INTO areas (id, company_id, name) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`,
			FixtureID(key[1]), FixtureID(key[0]), key[1]); err != nil {
			return fmt.Errorf("seed area %s: %w", key[1], err)
		}
	}
	for key := range contracts {
		if _, err := tx.Exec(ctx, `INSERT INTO contract_types (id, company_id, name) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`,
			FixtureID(key[1]), FixtureID(key[0]), key[1]); err != nil {
			return fmt.Errorf("seed contract type %s: %w", key[1], err)
		}
	}

	for _, r := range f.Roles {
		if _, err := tx.Exec(ctx, `INSERT INTO roles (id, company_id, name) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`,
			FixtureID(r.ID), FixtureID(r.CompanyID), r.Name); err != nil {
			return fmt.Errorf("seed role %s: %w", r.ID, err)
		}
	}
	for _, d := range f.Departments {
		if _, err := tx.Exec(ctx, `INSERT INTO departments (id, company_id, name) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`,
			FixtureID(d.ID), FixtureID(d.CompanyID), d.Name); err != nil {
			return fmt.Errorf("seed department %s: %w", d.ID, err)
		}
	}
	for _, u := range f.Users {
		email := u.Email
		if email == "" {
			email = u.ID + "@" + u.CompanyID + ".example"
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO users (id, company_id, email, name, department_id, default_role_id, area_id, contract_type_id, is_admin, activated, deleted_at)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, CASE WHEN $11 THEN now() END)
      ON CONFLICT (id) DO NOTHING
    `, FixtureID(u.ID), FixtureID(u.CompanyID), email, u.Name, nullable(u.DepartmentID), nullable(u.DefaultRoleID),
			nullable(u.AreaID), nullable(u.ContractTypeID), u.IsAdmin, !u.Inactive, u.Deleted); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, d := range f.Departments {
		if d.BossID != "" {
			if _, err := tx.Exec(ctx, `UPDATE departments SET boss_id = $2 WHERE id = $1`, FixtureID(d.ID), FixtureID(d.BossID)); err != nil {
				return fmt.Errorf("seed department boss %s: %w", d.ID, err)
			}
		}
		for _, s := range d.Supervisors {
			if _, err := tx.Exec(ctx, `INSERT INTO department_supervisors (department_id, user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
				FixtureID(d.ID), FixtureID(s)); err != nil {
				return fmt.Errorf("seed supervisor %s: %w", s, err)
			}
		}
	}

	for _, p := range f.Projects {
		status := "ACTIVE"
		if p.Archived {
			status = "ARCHIVED"
		}
		if _, err := tx.Exec(ctx, `INSERT INTO projects (id, company_id, name, project_type, status) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
			FixtureID(p.ID), FixtureID(p.CompanyID), p.Name, p.Type, status); err != nil {
			return fmt.Errorf("seed project %s: %w", p.ID, err)
		}
	}
	for _, m := range f.Memberships {
		if _, err := tx.Exec(ctx, `INSERT INTO user_projects (user_id, project_id, role_id, active) VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING`,
			FixtureID(m.UserID), FixtureID(m.ProjectID), nullable(m.RoleID), !m.Inactive); err != nil {
			return fmt.Errorf("seed membership %s/%s: %w", m.UserID, m.ProjectID, err)
		}
	}

	for _, r := range f.ApprovalRules {
		if err := seedRule(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, w := range f.WatcherRules {
		if err := seedWatcher(ctx, tx, w); err != nil {
			return err
		}
	}
	for _, lt := range f.LeaveTypes {
		requestType := lt.RequestType
		if requestType == "" {
			requestType = "LEAVE_REQUEST"
		}
		if _, err := tx.Exec(ctx, `INSERT INTO leave_types (id, company_id, name, request_type) VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING`,
			FixtureID(lt.ID), FixtureID(lt.CompanyID), lt.Name, requestType); err != nil {
			return fmt.Errorf("seed leave type %s: %w", lt.ID, err)
		}
	}
	return nil
}

func seedRule(ctx context.Context, tx pgx.Tx, r memstore.RuleSpec) error {
	requestType := r.RequestType
	if requestType == "" {
		requestType = "LEAVE_REQUEST"
	}
	action := r.Action
	if action == "" {
		action = "APPROVE"
	}
	scopes := r.Scopes
	if len(scopes) == 0 {
		scopes = []string{"GLOBAL"}
	}
	_, err := tx.Exec(ctx, `
    INSERT INTO approval_rules (id, company_id, name, request_type, subject_role_id, subject_area_id, project_type,
                                approver_kind, approver_id, scopes, action, sequence, position, parallel_group, active)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    ON CONFLICT (id) DO NOTHING
  `, FixtureID(r.ID), FixtureID(r.CompanyID), r.Name, requestType, FixtureID(r.SubjectRoleID), nullable(r.SubjectAreaID),
		nullableText(r.ProjectType), r.ApproverKind, nullable(r.ApproverID), scopes, action, r.Sequence, r.Position,
		nullableText(r.ParallelGroup), !r.Disabled)
	if err != nil {
		return fmt.Errorf("seed approval rule %s: %w", r.ID, err)
	}
	return nil
}

func seedWatcher(ctx context.Context, tx pgx.Tx, w memstore.WatcherSpec) error {
	requestType := w.RequestType
	if requestType == "" {
		requestType = "LEAVE_REQUEST"
	}
	scopes := w.Scopes
	if len(scopes) == 0 {
		scopes = []string{"GLOBAL"}
	}
	_, err := tx.Exec(ctx, `
    INSERT INTO watcher_rules (id, company_id, request_type, project_type, subject_role_id, department_id, project_id,
                               contract_type_id, resolver_kind, resolver_id, scopes, notify_email, notify_push, active)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    ON CONFLICT (id) DO NOTHING
  `, FixtureID(w.ID), FixtureID(w.CompanyID), requestType, nullableText(w.ProjectType), nullable(w.SubjectRoleID),
		nullable(w.DepartmentID), nullable(w.ProjectID), nullable(w.ContractTypeID), w.ResolverKind, nullable(w.ResolverID),
		scopes, w.NotifyEmail, w.NotifyPush, !w.Disabled)
	if err != nil {
		return fmt.Errorf("seed watcher rule %s: %w", w.ID, err)
	}
	return nil
}
