package permissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

// GrantAdminStore covers the mutations the admin service performs.
type GrantAdminStore interface {
	DirectGrantsByUser(ctx context.Context, userEmail string) ([]DirectGrant, error)
	CreateDirectGrant(ctx context.Context, grant DirectGrant) (DirectGrant, error)
	UpdateDirectGrant(ctx context.Context, grant DirectGrant) (DirectGrant, error)
	CreateRoleGrant(ctx context.Context, grant RoleGrant) (RoleGrant, error)
}

// Service performs the administrative grant mutations. It enforces
// structural validation only; resolution semantics live in the Resolver.
type Service struct {
	store GrantAdminStore
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(store GrantAdminStore) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateGrantInput carries the fields of a new direct grant.
type CreateGrantInput struct {
	UserEmail  string
	FeatureIDs []string
	Level      string
	GrantedBy  string
	ExpiresAt  *time.Time
	Notes      string
}

// CreateUserPermission validates and inserts a direct grant.
func (s *Service) CreateUserPermission(ctx context.Context, input CreateGrantInput) (DirectGrant, error) {
	email := strings.ToLower(strings.TrimSpace(input.UserEmail))
	if email == "" {
		return DirectGrant{}, fmt.Errorf("user_email is required: %w", httpx.ErrValidation)
	}
	featureIDs, err := normalizeFeatureIDs(input.FeatureIDs)
	if err != nil {
		return DirectGrant{}, err
	}
	level, err := ParseLevel(input.Level)
	if err != nil {
		return DirectGrant{}, fmt.Errorf("level must be one of edit, view, hidden: %w", httpx.ErrValidation)
	}
	grant := DirectGrant{
		ID:         uuid.NewString(),
		UserEmail:  email,
		FeatureIDs: featureIDs,
		Level:      level,
		GrantedBy:  strings.TrimSpace(input.GrantedBy),
		GrantedAt:  s.now(),
		ExpiresAt:  input.ExpiresAt,
		Notes:      strings.TrimSpace(input.Notes),
	}
	return s.store.CreateDirectGrant(ctx, grant)
}

// UpdateGrantInput carries the mutable fields of an existing direct grant.
type UpdateGrantInput struct {
	FeatureIDs []string
	Level      string
	ExpiresAt  *time.Time
	Notes      string
}

// UpdateUserPermission validates and rewrites a direct grant.
func (s *Service) UpdateUserPermission(ctx context.Context, grantID string, input UpdateGrantInput) (DirectGrant, error) {
	if strings.TrimSpace(grantID) == "" {
		return DirectGrant{}, fmt.Errorf("grant id is required: %w", httpx.ErrValidation)
	}
	featureIDs, err := normalizeFeatureIDs(input.FeatureIDs)
	if err != nil {
		return DirectGrant{}, err
	}
	level, err := ParseLevel(input.Level)
	if err != nil {
		return DirectGrant{}, fmt.Errorf("level must be one of edit, view, hidden: %w", httpx.ErrValidation)
	}
	return s.store.UpdateDirectGrant(ctx, DirectGrant{
		ID:         grantID,
		FeatureIDs: featureIDs,
		Level:      level,
		ExpiresAt:  input.ExpiresAt,
		Notes:      strings.TrimSpace(input.Notes),
	})
}

// CreateRoleGrantInput carries the fields of a new role grant.
type CreateRoleGrantInput struct {
	RoleIDs    []string
	FeatureIDs []string
	Level      string
}

// CreateRoleGrant validates and inserts a role grant.
func (s *Service) CreateRoleGrant(ctx context.Context, input CreateRoleGrantInput) (RoleGrant, error) {
	roleIDs := trimAll(input.RoleIDs)
	if len(roleIDs) == 0 {
		return RoleGrant{}, fmt.Errorf("at least one role id is required: %w", httpx.ErrValidation)
	}
	featureIDs, err := normalizeFeatureIDs(input.FeatureIDs)
	if err != nil {
		return RoleGrant{}, err
	}
	level, err := ParseLevel(input.Level)
	if err != nil {
		return RoleGrant{}, fmt.Errorf("level must be one of edit, view, hidden: %w", httpx.ErrValidation)
	}
	return s.store.CreateRoleGrant(ctx, RoleGrant{
		ID:         uuid.NewString(),
		RoleIDs:    roleIDs,
		FeatureIDs: featureIDs,
		Level:      level,
	})
}

// ListUserGrants returns every direct grant for a user, expired included.
func (s *Service) ListUserGrants(ctx context.Context, userEmail string) ([]DirectGrant, error) {
	email := strings.ToLower(strings.TrimSpace(userEmail))
	if email == "" {
		return nil, fmt.Errorf("user_email is required: %w", httpx.ErrValidation)
	}
	return s.store.DirectGrantsByUser(ctx, email)
}

func normalizeFeatureIDs(ids []string) ([]string, error) {
	trimmed := trimAll(ids)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("at least one feature id is required: %w", httpx.ErrValidation)
	}
	return trimmed, nil
}

func trimAll(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
