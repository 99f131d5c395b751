package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

// RepositoryPort defines data access methods for roles and memberships.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	AddMember(ctx context.Context, roleID, userEmail string) error
	RemoveMember(ctx context.Context, roleID, userEmail string) error
	ListMembers(ctx context.Context, roleID string) ([]Member, error)
}

// Service handles role business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// CreateRole validates and inserts a new role.
func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	role.ID = strings.TrimSpace(role.ID)
	role.Name = strings.TrimSpace(role.Name)
	if role.ID == "" {
		return Role{}, fmt.Errorf("role id is required: %w", httpx.ErrValidation)
	}
	if role.Name == "" {
		return Role{}, fmt.Errorf("role name is required: %w", httpx.ErrValidation)
	}
	return s.repo.CreateRole(ctx, role)
}

// AddMember assigns a role to a user.
func (s *Service) AddMember(ctx context.Context, roleID, userEmail string) error {
	if strings.TrimSpace(userEmail) == "" {
		return fmt.Errorf("user_email is required: %w", httpx.ErrValidation)
	}
	return s.repo.AddMember(ctx, roleID, userEmail)
}

// RemoveMember removes a user from a role.
func (s *Service) RemoveMember(ctx context.Context, roleID, userEmail string) error {
	if strings.TrimSpace(userEmail) == "" {
		return fmt.Errorf("user_email is required: %w", httpx.ErrValidation)
	}
	return s.repo.RemoveMember(ctx, roleID, userEmail)
}

// ListMembers returns memberships for one role.
func (s *Service) ListMembers(ctx context.Context, roleID string) ([]Member, error) {
	return s.repo.ListMembers(ctx, roleID)
}
