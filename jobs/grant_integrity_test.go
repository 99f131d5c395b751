package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-mfg/meridian-portal/internal/permissions"
)

type memoryIntegrityStore struct {
	direct     []permissions.DirectGrant
	roleGrants []permissions.RoleGrant
}

func (s *memoryIntegrityStore) ListAllDirectGrants(ctx context.Context) ([]permissions.DirectGrant, error) {
	return s.direct, nil
}

func (s *memoryIntegrityStore) ListAllRoleGrants(ctx context.Context) ([]permissions.RoleGrant, error) {
	return s.roleGrants, nil
}

type memoryRoleStates map[string]bool

func (s memoryRoleStates) RoleStates(ctx context.Context) (map[string]bool, error) {
	return s, nil
}

type countingMetrics map[string]int

func (m countingMetrics) CheckResolved(source string) { m["check:"+source]++ }
func (m countingMetrics) GrantAnomaly(kind string)    { m[kind]++ }

func TestIntegrityScanCleanStore(t *testing.T) {
	scanner := NewIntegrityScanner(&memoryIntegrityStore{
		direct: []permissions.DirectGrant{
			{ID: "g1", UserEmail: "a@x.com", FeatureIDs: []string{"F1"}, Level: permissions.LevelView},
		},
		roleGrants: []permissions.RoleGrant{
			{ID: "rg1", RoleIDs: []string{"R1"}, FeatureIDs: []string{"F1"}, Level: permissions.LevelEdit},
		},
	}, memoryRoleStates{"R1": true}, nil, nil)

	report, err := scanner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.DuplicateDirectGrants)
	require.Zero(t, report.DanglingRoleGrants)
	require.Zero(t, report.ExpiredDirectGrants)
}

func TestIntegrityScanFindsDuplicates(t *testing.T) {
	metrics := countingMetrics{}
	scanner := NewIntegrityScanner(&memoryIntegrityStore{
		direct: []permissions.DirectGrant{
			{ID: "g1", UserEmail: "a@x.com", FeatureIDs: []string{"F1", "F2"}, Level: permissions.LevelView},
			{ID: "g2", UserEmail: "a@x.com", FeatureIDs: []string{"F1"}, Level: permissions.LevelEdit},
			{ID: "g3", UserEmail: "b@x.com", FeatureIDs: []string{"F1"}, Level: permissions.LevelEdit},
		},
	}, memoryRoleStates{}, nil, metrics)

	report, err := scanner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.DuplicateDirectGrants, "same feature under a different user is fine")
	require.Equal(t, 1, metrics[permissions.AnomalyDuplicate])
}

func TestIntegrityScanExpiredGrantsNotDuplicates(t *testing.T) {
	yesterday := time.Now().Add(-24 * time.Hour)
	scanner := NewIntegrityScanner(&memoryIntegrityStore{
		direct: []permissions.DirectGrant{
			{ID: "g1", UserEmail: "a@x.com", FeatureIDs: []string{"F1"}, Level: permissions.LevelView, ExpiresAt: &yesterday},
			{ID: "g2", UserEmail: "a@x.com", FeatureIDs: []string{"F1"}, Level: permissions.LevelEdit},
		},
	}, memoryRoleStates{}, nil, nil)

	report, err := scanner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.DuplicateDirectGrants, "expired grant does not conflict with its replacement")
	require.Equal(t, 1, report.ExpiredDirectGrants)
}

func TestIntegrityScanFindsDanglingRoleGrants(t *testing.T) {
	metrics := countingMetrics{}
	scanner := NewIntegrityScanner(&memoryIntegrityStore{
		roleGrants: []permissions.RoleGrant{
			{ID: "rg1", RoleIDs: []string{"R1", "ghost"}, FeatureIDs: []string{"F1"}, Level: permissions.LevelView},
			{ID: "rg2", RoleIDs: []string{"inactive"}, FeatureIDs: []string{"F2"}, Level: permissions.LevelHidden},
		},
	}, memoryRoleStates{"R1": true, "inactive": false}, nil, metrics)

	report, err := scanner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.DanglingRoleGrants, "inactive but known roles are not dangling")
	require.Equal(t, 1, metrics[permissions.AnomalyDanglingRole])
}
