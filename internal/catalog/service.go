package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-mfg/meridian-portal/internal/platform/httpx"
)

// RepositoryPort defines data access methods for features.
type RepositoryPort interface {
	ListFeatures(ctx context.Context, onlyActive bool) ([]Feature, error)
	GetFeature(ctx context.Context, id string) (Feature, error)
	CreateFeature(ctx context.Context, f Feature) (Feature, error)
	UpdateFeature(ctx context.Context, f Feature) (Feature, error)
}

// Service handles feature catalog business logic.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService builds a Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// ListFeatures returns the full catalog, inactive features included.
func (s *Service) ListFeatures(ctx context.Context) ([]Feature, error) {
	return s.repo.ListFeatures(ctx, false)
}

// ListActive returns active features in catalog order, served from cache
// when available.
func (s *Service) ListActive(ctx context.Context) ([]Feature, error) {
	if features, ok := s.cache.GetActive(ctx); ok {
		return features, nil
	}
	features, err := s.repo.ListFeatures(ctx, true)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetActive(ctx, features); err != nil && s.logger != nil {
		s.logger.Warn("cache active features", slog.Any("error", err))
	}
	return features, nil
}

// CreateFeature validates and inserts a new feature.
func (s *Service) CreateFeature(ctx context.Context, f Feature) (Feature, error) {
	f.ID = strings.TrimSpace(f.ID)
	f.Name = strings.TrimSpace(f.Name)
	if f.ID == "" {
		return Feature{}, fmt.Errorf("feature id is required: %w", httpx.ErrValidation)
	}
	if f.Name == "" {
		return Feature{}, fmt.Errorf("feature name is required: %w", httpx.ErrValidation)
	}
	if !validFeatureType(f.Type) {
		return Feature{}, fmt.Errorf("feature type %q is not one of menu, feature, action: %w", f.Type, httpx.ErrValidation)
	}
	created, err := s.repo.CreateFeature(ctx, f)
	if err != nil {
		return Feature{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

// UpdateFeature validates and updates an existing feature.
func (s *Service) UpdateFeature(ctx context.Context, f Feature) (Feature, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return Feature{}, fmt.Errorf("feature name is required: %w", httpx.ErrValidation)
	}
	if !validFeatureType(f.Type) {
		return Feature{}, fmt.Errorf("feature type %q is not one of menu, feature, action: %w", f.Type, httpx.ErrValidation)
	}
	updated, err := s.repo.UpdateFeature(ctx, f)
	if err != nil {
		return Feature{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("invalidate feature cache", slog.Any("error", err))
	}
}

func validFeatureType(t string) bool {
	switch t {
	case TypeMenu, TypeFeature, TypeAction:
		return true
	}
	return false
}
