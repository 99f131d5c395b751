package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

const pgUniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for roles and
// memberships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, active, created_at, updated_at FROM roles ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("roles: list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Active, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("roles: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: list roles: %w", err)
	}
	return roles, nil
}

// RoleStates returns every known role ID mapped to its active flag.
func (r *Repository) RoleStates(ctx context.Context) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, active FROM roles`)
	if err != nil {
		return nil, fmt.Errorf("roles: role states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var (
			id     string
			active bool
		)
		if err := rows.Scan(&id, &active); err != nil {
			return nil, fmt.Errorf("roles: scan role state: %w", err)
		}
		states[id] = active
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: role states: %w", err)
	}
	return states, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (id, name, description, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, active, created_at, updated_at`,
		role.ID, role.Name, role.Description, role.Active,
	)
	var created Role
	if err := row.Scan(&created.ID, &created.Name, &created.Description, &created.Active, &created.CreatedAt, &created.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Role{}, fmt.Errorf("role %s: %w", role.ID, httpx.ErrDuplicate)
		}
		return Role{}, fmt.Errorf("roles: create role: %w", err)
	}
	return created, nil
}

// AddMember assigns a role to a user. Adding an existing membership is a
// no-op.
func (r *Repository) AddMember(ctx context.Context, roleID, userEmail string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
		return fmt.Errorf("roles: check role: %w", err)
	}
	if !exists {
		return fmt.Errorf("role %s: %w", roleID, httpx.ErrNotFound)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_email, role_id)
		VALUES (lower($1), $2)
		ON CONFLICT (user_email, role_id) DO NOTHING`,
		strings.TrimSpace(userEmail), roleID,
	)
	if err != nil {
		return fmt.Errorf("roles: add member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a role.
func (r *Repository) RemoveMember(ctx context.Context, roleID, userEmail string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_email = lower($1) AND role_id = $2`, strings.TrimSpace(userEmail), roleID)
	if err != nil {
		return fmt.Errorf("roles: remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("membership of %s in role %s: %w", userEmail, roleID, httpx.ErrNotFound)
	}
	return nil
}

// ListMembers returns memberships for one role in assignment order.
func (r *Repository) ListMembers(ctx context.Context, roleID string) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_email, role_id, assigned_at FROM user_roles WHERE role_id = $1 ORDER BY assigned_at, user_email`, roleID)
	if err != nil {
		return nil, fmt.Errorf("roles: list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserEmail, &m.RoleID, &m.AssignedAt); err != nil {
			return nil, fmt.Errorf("roles: scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: list members: %w", err)
	}
	return members, nil
}
