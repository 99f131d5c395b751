package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-mfg/meridian-portal/internal/platform/db"
	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

// defaultPageSize bounds each page fetched from the grant store. Loaders
// always follow pagination to completion so precedence never evaluates a
// partial grant set.
const defaultPageSize = 200

// Repository provides PostgreSQL backed persistence for grants and
// memberships. Rows carrying an unrecognised permission level are skipped
// and reported as anomalies rather than silently defaulted.
type Repository struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	metrics  MetricsRecorder
	pageSize int
}

// NewRepository constructs a repository. metrics may be nil.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger, metrics MetricsRecorder) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger, metrics: metrics, pageSize: defaultPageSize}
}

const directGrantColumns = `id, user_email, feature_ids, level, COALESCE(granted_by, ''), granted_at, expires_at, COALESCE(notes, '')`

// DirectGrantsByUser returns every direct grant for the user in stored
// order, expired grants included (expiry is the engine's concern).
func (r *Repository) DirectGrantsByUser(ctx context.Context, userEmail string) ([]DirectGrant, error) {
	return r.pageDirectGrants(ctx, `WHERE user_email = lower($2) AND id > $1`, userEmail)
}

// ListAllDirectGrants returns every direct grant in the store, for the
// integrity scan.
func (r *Repository) ListAllDirectGrants(ctx context.Context) ([]DirectGrant, error) {
	return r.pageDirectGrants(ctx, `WHERE id > $1`)
}

func (r *Repository) pageDirectGrants(ctx context.Context, where string, extraArgs ...any) ([]DirectGrant, error) {
	var grants []DirectGrant
	lastID := ""
	for {
		args := append([]any{lastID}, extraArgs...)
		rows, err := r.pool.Query(ctx, `SELECT `+directGrantColumns+` FROM user_grants `+where+` ORDER BY id LIMIT `+fmt.Sprint(r.pageSize), args...)
		if err != nil {
			return nil, fmt.Errorf("permissions: list direct grants: %w", err)
		}
		page, last, scanned, err := r.collectDirectGrants(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, page...)
		if scanned < r.pageSize {
			break
		}
		lastID = last
	}
	return grants, nil
}

func (r *Repository) collectDirectGrants(rows pgx.Rows) ([]DirectGrant, string, int, error) {
	defer rows.Close()
	var (
		grants  []DirectGrant
		lastID  string
		scanned int
	)
	for rows.Next() {
		var (
			g        DirectGrant
			rawLevel string
		)
		if err := rows.Scan(&g.ID, &g.UserEmail, &g.FeatureIDs, &rawLevel, &g.GrantedBy, &g.GrantedAt, &g.ExpiresAt, &g.Notes); err != nil {
			return nil, "", 0, fmt.Errorf("permissions: scan direct grant: %w", err)
		}
		lastID = g.ID
		scanned++
		level, err := ParseLevel(rawLevel)
		if err != nil {
			r.anomaly(AnomalyBadLevel, "user grant carries unrecognised level",
				slog.String("grant_id", g.ID), slog.String("level", rawLevel))
			continue
		}
		g.Level = level
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, "", 0, fmt.Errorf("permissions: list direct grants: %w", err)
	}
	return grants, lastID, scanned, nil
}

// MembershipsByUser aggregates the user's role memberships into a single
// record, roles ordered by assignment time.
func (r *Repository) MembershipsByUser(ctx context.Context, userEmail string) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, assigned_at FROM user_roles
		WHERE user_email = lower($1)
		ORDER BY assigned_at, role_id`, strings.TrimSpace(userEmail))
	if err != nil {
		return nil, fmt.Errorf("permissions: list memberships: %w", err)
	}
	defer rows.Close()

	membership := Membership{UserEmail: strings.ToLower(strings.TrimSpace(userEmail))}
	for rows.Next() {
		var (
			roleID     string
			assignedAt time.Time
		)
		if err := rows.Scan(&roleID, &assignedAt); err != nil {
			return nil, fmt.Errorf("permissions: scan membership: %w", err)
		}
		if membership.AssignedAt.IsZero() {
			membership.AssignedAt = assignedAt
		}
		membership.RoleIDs = append(membership.RoleIDs, roleID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permissions: list memberships: %w", err)
	}
	if len(membership.RoleIDs) == 0 {
		return nil, nil
	}
	return []Membership{membership}, nil
}

const roleGrantColumns = `id, role_ids, feature_ids, level`

// RoleGrantsByRoles returns every role grant touching any of the given
// roles, in stored order.
func (r *Repository) RoleGrantsByRoles(ctx context.Context, roleIDs []string) ([]RoleGrant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	return r.pageRoleGrants(ctx, `WHERE role_ids && $2 AND id > $1`, roleIDs)
}

// ListAllRoleGrants returns every role grant in the store, for the
// integrity scan.
func (r *Repository) ListAllRoleGrants(ctx context.Context) ([]RoleGrant, error) {
	return r.pageRoleGrants(ctx, `WHERE id > $1`)
}

func (r *Repository) pageRoleGrants(ctx context.Context, where string, extraArgs ...any) ([]RoleGrant, error) {
	var grants []RoleGrant
	lastID := ""
	for {
		args := append([]any{lastID}, extraArgs...)
		rows, err := r.pool.Query(ctx, `SELECT `+roleGrantColumns+` FROM role_grants `+where+` ORDER BY id LIMIT `+fmt.Sprint(r.pageSize), args...)
		if err != nil {
			return nil, fmt.Errorf("permissions: list role grants: %w", err)
		}
		page, last, scanned, err := r.collectRoleGrants(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, page...)
		if scanned < r.pageSize {
			break
		}
		lastID = last
	}
	return grants, nil
}

func (r *Repository) collectRoleGrants(rows pgx.Rows) ([]RoleGrant, string, int, error) {
	defer rows.Close()
	var (
		grants  []RoleGrant
		lastID  string
		scanned int
	)
	for rows.Next() {
		var (
			g        RoleGrant
			rawLevel string
		)
		if err := rows.Scan(&g.ID, &g.RoleIDs, &g.FeatureIDs, &rawLevel); err != nil {
			return nil, "", 0, fmt.Errorf("permissions: scan role grant: %w", err)
		}
		lastID = g.ID
		scanned++
		level, err := ParseLevel(rawLevel)
		if err != nil {
			r.anomaly(AnomalyBadLevel, "role grant carries unrecognised level",
				slog.String("grant_id", g.ID), slog.String("level", rawLevel))
			continue
		}
		g.Level = level
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, "", 0, fmt.Errorf("permissions: list role grants: %w", err)
	}
	return grants, lastID, scanned, nil
}

// CreateDirectGrant inserts a direct grant, enforcing that a user holds at
// most one un-expired direct grant per feature. The check and insert run in
// one repeatable-read transaction.
func (r *Repository) CreateDirectGrant(ctx context.Context, grant DirectGrant) (DirectGrant, error) {
	grant.UserEmail = strings.ToLower(strings.TrimSpace(grant.UserEmail))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.checkGrantOverlap(ctx, tx, grant, ""); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO user_grants (id, user_email, feature_ids, level, granted_by, granted_at, expires_at, notes)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''))`,
			grant.ID, grant.UserEmail, grant.FeatureIDs, string(grant.Level),
			grant.GrantedBy, grant.GrantedAt, grant.ExpiresAt, grant.Notes,
		)
		if err != nil {
			return fmt.Errorf("permissions: insert direct grant: %w", err)
		}
		return nil
	})
	if err != nil {
		return DirectGrant{}, err
	}
	return grant, nil
}

// UpdateDirectGrant rewrites a grant's feature set, level, expiry and notes.
func (r *Repository) UpdateDirectGrant(ctx context.Context, grant DirectGrant) (DirectGrant, error) {
	var updated DirectGrant
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			current  DirectGrant
			rawLevel string
		)
		row := tx.QueryRow(ctx, `SELECT `+directGrantColumns+` FROM user_grants WHERE id = $1 FOR UPDATE`, grant.ID)
		if err := row.Scan(&current.ID, &current.UserEmail, &current.FeatureIDs, &rawLevel,
			&current.GrantedBy, &current.GrantedAt, &current.ExpiresAt, &current.Notes); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("grant %s: %w", grant.ID, httpx.ErrNotFound)
			}
			return fmt.Errorf("permissions: load direct grant: %w", err)
		}
		grant.UserEmail = current.UserEmail
		grant.GrantedBy = current.GrantedBy
		grant.GrantedAt = current.GrantedAt
		if err := r.checkGrantOverlap(ctx, tx, grant, grant.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE user_grants
			SET feature_ids = $2, level = $3, expires_at = $4, notes = NULLIF($5, '')
			WHERE id = $1`,
			grant.ID, grant.FeatureIDs, string(grant.Level), grant.ExpiresAt, grant.Notes,
		)
		if err != nil {
			return fmt.Errorf("permissions: update direct grant: %w", err)
		}
		updated = grant
		return nil
	})
	if err != nil {
		return DirectGrant{}, err
	}
	return updated, nil
}

// checkGrantOverlap rejects a grant whose features are already covered by
// another un-expired grant of the same user.
func (r *Repository) checkGrantOverlap(ctx context.Context, tx pgx.Tx, grant DirectGrant, excludeID string) error {
	rows, err := tx.Query(ctx, `
		SELECT id, feature_ids, expires_at FROM user_grants
		WHERE user_email = $1 AND id <> $2
		FOR UPDATE`, grant.UserEmail, excludeID)
	if err != nil {
		return fmt.Errorf("permissions: check grant overlap: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var existing DirectGrant
		if err := rows.Scan(&existing.ID, &existing.FeatureIDs, &existing.ExpiresAt); err != nil {
			return fmt.Errorf("permissions: scan grant overlap: %w", err)
		}
		if existing.Expired(now) {
			continue
		}
		for _, featureID := range grant.FeatureIDs {
			if existing.Covers(featureID) {
				return fmt.Errorf("feature %s already covered by grant %s: %w", featureID, existing.ID, httpx.ErrDuplicate)
			}
		}
	}
	return rows.Err()
}

// CreateRoleGrant inserts a role grant.
func (r *Repository) CreateRoleGrant(ctx context.Context, grant RoleGrant) (RoleGrant, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_grants (id, role_ids, feature_ids, level)
		VALUES ($1, $2, $3, $4)`,
		grant.ID, grant.RoleIDs, grant.FeatureIDs, string(grant.Level),
	)
	if err != nil {
		return RoleGrant{}, fmt.Errorf("permissions: insert role grant: %w", err)
	}
	return grant, nil
}

func (r *Repository) anomaly(kind, msg string, attrs ...any) {
	r.logger.Warn(msg, attrs...)
	if r.metrics != nil {
		r.metrics.GrantAnomaly(kind)
	}
}
