package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

const pgUniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for features.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const featureColumns = `id, name, menu_group, type, COALESCE(parent_id, ''), sort_order, description, active, created_at, updated_at`

// ListFeatures returns features in catalog order. When onlyActive is set,
// inactive features are excluded entirely.
func (r *Repository) ListFeatures(ctx context.Context, onlyActive bool) ([]Feature, error) {
	query := `SELECT ` + featureColumns + ` FROM features`
	if onlyActive {
		query += ` WHERE active`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list features: %w", err)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list features: %w", err)
	}
	return features, nil
}

// GetFeature fetches one feature by ID.
func (r *Repository) GetFeature(ctx context.Context, id string) (Feature, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+featureColumns+` FROM features WHERE id = $1`, id)
	f, err := scanFeature(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Feature{}, fmt.Errorf("feature %s: %w", id, httpx.ErrNotFound)
		}
		return Feature{}, fmt.Errorf("catalog: get feature: %w", err)
	}
	return f, nil
}

// CreateFeature inserts a new feature.
func (r *Repository) CreateFeature(ctx context.Context, f Feature) (Feature, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO features (id, name, menu_group, type, parent_id, sort_order, description, active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		RETURNING `+featureColumns,
		f.ID, f.Name, f.MenuGroup, f.Type, f.ParentID, f.SortOrder, f.Description, f.Active,
	)
	created, err := scanFeature(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Feature{}, fmt.Errorf("feature %s: %w", f.ID, httpx.ErrDuplicate)
		}
		return Feature{}, fmt.Errorf("catalog: create feature: %w", err)
	}
	return created, nil
}

// UpdateFeature updates mutable attributes of a feature. The ID itself is
// immutable once referenced by a grant, so it is never rewritten.
func (r *Repository) UpdateFeature(ctx context.Context, f Feature) (Feature, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE features
		SET name = $2, menu_group = $3, type = $4, parent_id = NULLIF($5, ''),
		    sort_order = $6, description = $7, active = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+featureColumns,
		f.ID, f.Name, f.MenuGroup, f.Type, f.ParentID, f.SortOrder, f.Description, f.Active,
	)
	updated, err := scanFeature(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Feature{}, fmt.Errorf("feature %s: %w", f.ID, httpx.ErrNotFound)
		}
		return Feature{}, fmt.Errorf("catalog: update feature: %w", err)
	}
	return updated, nil
}

func scanFeature(row pgx.Row) (Feature, error) {
	var f Feature
	err := row.Scan(&f.ID, &f.Name, &f.MenuGroup, &f.Type, &f.ParentID,
		&f.SortOrder, &f.Description, &f.Active, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}
