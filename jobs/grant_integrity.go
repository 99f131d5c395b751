package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-mfg/meridian-portal/internal/permissions"
)

// IntegrityStore loads the full grant relations for scanning.
type IntegrityStore interface {
	ListAllDirectGrants(ctx context.Context) ([]permissions.DirectGrant, error)
	ListAllRoleGrants(ctx context.Context) ([]permissions.RoleGrant, error)
}

// RoleStates reports every known role ID mapped to its active flag.
type RoleStates interface {
	RoleStates(ctx context.Context) (map[string]bool, error)
}

// IntegrityReport summarises one scan over the grant store.
type IntegrityReport struct {
	DuplicateDirectGrants int `json:"duplicateDirectGrants"`
	DanglingRoleGrants    int `json:"danglingRoleGrants"`
	ExpiredDirectGrants   int `json:"expiredDirectGrants"`
}

// IntegrityScanner walks the grant store looking for records that violate
// the data model's assumptions. Findings are logged and counted; the scan
// never mutates anything — expired grants in particular are audit history.
type IntegrityScanner struct {
	grants  IntegrityStore
	roles   RoleStates
	logger  *slog.Logger
	metrics permissions.MetricsRecorder
	now     func() time.Time
}

// NewIntegrityScanner builds an IntegrityScanner. metrics may be nil.
func NewIntegrityScanner(grants IntegrityStore, roles RoleStates, logger *slog.Logger, metrics permissions.MetricsRecorder) *IntegrityScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityScanner{grants: grants, roles: roles, logger: logger, metrics: metrics, now: time.Now}
}

// Run executes one scan and returns the report.
func (s *IntegrityScanner) Run(ctx context.Context) (IntegrityReport, error) {
	var report IntegrityReport

	direct, err := s.grants.ListAllDirectGrants(ctx)
	if err != nil {
		return report, err
	}
	roleGrants, err := s.grants.ListAllRoleGrants(ctx)
	if err != nil {
		return report, err
	}
	roleStates, err := s.roles.RoleStates(ctx)
	if err != nil {
		return report, err
	}

	now := s.now()

	// A user+feature pair must hold at most one un-expired direct grant;
	// resolution breaks ties deterministically but the condition itself is
	// an administrative error worth surfacing.
	covered := make(map[string]string)
	for _, g := range direct {
		if g.Expired(now) {
			report.ExpiredDirectGrants++
			continue
		}
		for _, featureID := range g.FeatureIDs {
			key := g.UserEmail + "\x00" + featureID
			if firstID, dup := covered[key]; dup {
				report.DuplicateDirectGrants++
				s.anomaly(permissions.AnomalyDuplicate, "duplicate un-expired direct grant",
					slog.String("user_email", g.UserEmail),
					slog.String("feature_id", featureID),
					slog.String("grant_id", g.ID),
					slog.String("first_grant_id", firstID))
				continue
			}
			covered[key] = g.ID
		}
	}

	for _, g := range roleGrants {
		for _, roleID := range g.RoleIDs {
			if _, known := roleStates[roleID]; !known {
				report.DanglingRoleGrants++
				s.anomaly(permissions.AnomalyDanglingRole, "role grant references unknown role",
					slog.String("grant_id", g.ID),
					slog.String("role_id", roleID))
			}
		}
	}

	s.logger.Info("grant integrity scan finished",
		slog.Int("duplicate_direct_grants", report.DuplicateDirectGrants),
		slog.Int("dangling_role_grants", report.DanglingRoleGrants),
		slog.Int("expired_direct_grants", report.ExpiredDirectGrants))
	return report, nil
}

// HandleTask processes TaskGrantIntegrity tasks.
func (s *IntegrityScanner) HandleTask(ctx context.Context, t *asynq.Task) error {
	_, err := s.Run(ctx)
	return err
}

func (s *IntegrityScanner) anomaly(kind, msg string, attrs ...any) {
	s.logger.Warn(msg, attrs...)
	if s.metrics != nil {
		s.metrics.GrantAnomaly(kind)
	}
}
