package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-mfg/meridian-portal/internal/catalog"
)

type memoryGrantStore struct {
	direct      map[string][]DirectGrant
	memberships map[string][]Membership
	roleGrants  []RoleGrant
	failWith    error
}

func newMemoryGrantStore() *memoryGrantStore {
	return &memoryGrantStore{
		direct:      make(map[string][]DirectGrant),
		memberships: make(map[string][]Membership),
	}
}

func (s *memoryGrantStore) DirectGrantsByUser(ctx context.Context, userEmail string) ([]DirectGrant, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.direct[userEmail], nil
}

func (s *memoryGrantStore) MembershipsByUser(ctx context.Context, userEmail string) ([]Membership, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.memberships[userEmail], nil
}

func (s *memoryGrantStore) RoleGrantsByRoles(ctx context.Context, roleIDs []string) ([]RoleGrant, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	member := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		member[id] = struct{}{}
	}
	var out []RoleGrant
	for _, g := range s.roleGrants {
		for _, roleID := range g.RoleIDs {
			if _, ok := member[roleID]; ok {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

type memoryFeatureSource struct {
	features []catalog.Feature
	failWith error
}

func (s *memoryFeatureSource) ListActive(ctx context.Context) ([]catalog.Feature, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []catalog.Feature
	for _, f := range s.features {
		if f.Active {
			out = append(out, f)
		}
	}
	return out, nil
}

type memoryRoleSource struct {
	states   map[string]bool
	failWith error
}

func (s *memoryRoleSource) RoleStates(ctx context.Context) (map[string]bool, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.states, nil
}

type recordingMetrics struct {
	sources   map[string]int
	anomalies map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{sources: make(map[string]int), anomalies: make(map[string]int)}
}

func (m *recordingMetrics) CheckResolved(source string) { m.sources[source]++ }
func (m *recordingMetrics) GrantAnomaly(kind string)    { m.anomalies[kind]++ }

type resolverFixture struct {
	store    *memoryGrantStore
	features *memoryFeatureSource
	roles    *memoryRoleSource
	metrics  *recordingMetrics
	resolver *Resolver
}

func newResolverFixture(defaultLevel Level) *resolverFixture {
	f := &resolverFixture{
		store:    newMemoryGrantStore(),
		features: &memoryFeatureSource{},
		roles:    &memoryRoleSource{states: make(map[string]bool)},
		metrics:  newRecordingMetrics(),
	}
	f.resolver = NewResolver(ResolverConfig{
		Store:        f.store,
		Features:     f.features,
		Roles:        f.roles,
		DefaultLevel: defaultLevel,
		Metrics:      f.metrics,
	})
	return f
}

func TestCheckPermissionDirectGrantWins(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.store.direct["a@x.com"] = []DirectGrant{
		{ID: "g1", UserEmail: "a@x.com", FeatureIDs: []string{"F1"}, Level: LevelView},
	}
	f.roles.states["R1"] = true
	f.store.memberships["a@x.com"] = []Membership{{UserEmail: "a@x.com", RoleIDs: []string{"R1"}}}
	f.store.roleGrants = []RoleGrant{{ID: "rg1", RoleIDs: []string{"R1"}, FeatureIDs: []string{"F1"}, Level: LevelEdit}}

	result, err := f.resolver.CheckPermission(context.Background(), "a@x.com", "F1")
	require.NoError(t, err)
	require.Equal(t, LevelView, result.Level)
	require.False(t, result.CanEdit)
	require.True(t, result.CanView)
	require.Equal(t, 1, f.metrics.sources[SourceDirect])
}

func TestCheckPermissionExpiredGrantFallsThrough(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	yesterday := time.Now().Add(-24 * time.Hour)
	f.store.direct["c@x.com"] = []DirectGrant{
		{ID: "g1", UserEmail: "c@x.com", FeatureIDs: []string{"F3"}, Level: LevelEdit, ExpiresAt: &yesterday},
	}
	f.roles.states["R2"] = true
	f.store.memberships["c@x.com"] = []Membership{{UserEmail: "c@x.com", RoleIDs: []string{"R2"}}}
	f.store.roleGrants = []RoleGrant{{ID: "rg1", RoleIDs: []string{"R2"}, FeatureIDs: []string{"F3"}, Level: LevelView}}

	result, err := f.resolver.CheckPermission(context.Background(), "c@x.com", "F3")
	require.NoError(t, err)
	require.Equal(t, LevelView, result.Level)
	require.Equal(t, 1, f.metrics.sources[SourceRole])
}

func TestCheckPermissionRoleGrantHidden(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.roles.states["R1"] = true
	f.store.memberships["b@x.com"] = []Membership{{UserEmail: "b@x.com", RoleIDs: []string{"R1"}}}
	f.store.roleGrants = []RoleGrant{{ID: "rg1", RoleIDs: []string{"R1"}, FeatureIDs: []string{"F2"}, Level: LevelHidden}}

	result, err := f.resolver.CheckPermission(context.Background(), "b@x.com", "F2")
	require.NoError(t, err)
	require.Equal(t, LevelHidden, result.Level)
	require.False(t, result.CanView)
	require.True(t, result.IsHidden)
}

func TestCheckPermissionDefaultFailOpen(t *testing.T) {
	f := newResolverFixture(LevelEdit)

	result, err := f.resolver.CheckPermission(context.Background(), "d@x.com", "F4")
	require.NoError(t, err)
	require.Equal(t, LevelEdit, result.Level)
	require.True(t, result.CanEdit)
	require.Equal(t, 1, f.metrics.sources[SourceDefault])
}

func TestCheckPermissionConfigurableFailClosed(t *testing.T) {
	f := newResolverFixture(LevelHidden)

	result, err := f.resolver.CheckPermission(context.Background(), "d@x.com", "F4")
	require.NoError(t, err)
	require.Equal(t, LevelHidden, result.Level)
	require.True(t, result.IsHidden)
}

func TestCheckPermissionRoleConflictMostRestrictiveWins(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.roles.states["R1"] = true
	f.roles.states["R2"] = true
	f.store.memberships["u@x.com"] = []Membership{{UserEmail: "u@x.com", RoleIDs: []string{"R1", "R2"}}}
	f.store.roleGrants = []RoleGrant{
		{ID: "rg1", RoleIDs: []string{"R1"}, FeatureIDs: []string{"F1"}, Level: LevelEdit},
		{ID: "rg2", RoleIDs: []string{"R2"}, FeatureIDs: []string{"F1"}, Level: LevelHidden},
	}

	result, err := f.resolver.CheckPermission(context.Background(), "u@x.com", "F1")
	require.NoError(t, err)
	require.Equal(t, LevelHidden, result.Level)

	// Same pair with view instead of hidden resolves to view.
	f.store.roleGrants[1].Level = LevelView
	result, err = f.resolver.CheckPermission(context.Background(), "u@x.com", "F1")
	require.NoError(t, err)
	require.Equal(t, LevelView, result.Level)
}

func TestCheckPermissionMultipleDirectGrantsDeterministic(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.store.direct["u@x.com"] = []DirectGrant{
		{ID: "g1", UserEmail: "u@x.com", FeatureIDs: []string{"F1"}, Level: LevelHidden},
		{ID: "g2", UserEmail: "u@x.com", FeatureIDs: []string{"F1"}, Level: LevelEdit},
	}

	result, err := f.resolver.CheckPermission(context.Background(), "u@x.com", "F1")
	require.NoError(t, err)
	require.Equal(t, LevelHidden, result.Level, "first grant in stored order wins")
}

func TestCheckPermissionUnknownRoleIsAnomaly(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.store.memberships["u@x.com"] = []Membership{{UserEmail: "u@x.com", RoleIDs: []string{"ghost"}}}
	f.store.roleGrants = []RoleGrant{{ID: "rg1", RoleIDs: []string{"ghost"}, FeatureIDs: []string{"F1"}, Level: LevelHidden}}

	result, err := f.resolver.CheckPermission(context.Background(), "u@x.com", "F1")
	require.NoError(t, err)
	require.Equal(t, LevelEdit, result.Level, "grant behind unknown role must not apply")
	require.Equal(t, 1, f.metrics.anomalies[AnomalyUnknownRole])
}

func TestCheckPermissionInactiveRoleSkipped(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.roles.states["R1"] = false
	f.store.memberships["u@x.com"] = []Membership{{UserEmail: "u@x.com", RoleIDs: []string{"R1"}}}
	f.store.roleGrants = []RoleGrant{{ID: "rg1", RoleIDs: []string{"R1"}, FeatureIDs: []string{"F1"}, Level: LevelHidden}}

	result, err := f.resolver.CheckPermission(context.Background(), "u@x.com", "F1")
	require.NoError(t, err)
	require.Equal(t, LevelEdit, result.Level)
	require.Empty(t, f.metrics.anomalies, "inactive role is not an anomaly")
}

func TestCheckPermissionStoreFailurePropagates(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.store.failWith = errors.New("connection refused")

	_, err := f.resolver.CheckPermission(context.Background(), "u@x.com", "F1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrResolutionUnavailable)
}

func TestAllPermissionsMatchesSingleChecks(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.features.features = []catalog.Feature{
		{ID: "F1", Active: true},
		{ID: "F2", Active: true},
		{ID: "F3", Active: true},
		{ID: "F4", Active: true},
		{ID: "F5", Active: true},
		{ID: "F6", Active: false},
		{ID: "F7", Active: false},
	}
	f.store.direct["u@x.com"] = []DirectGrant{
		{ID: "g1", UserEmail: "u@x.com", FeatureIDs: []string{"F1", "F3"}, Level: LevelView},
	}
	f.roles.states["R1"] = true
	f.store.memberships["u@x.com"] = []Membership{{UserEmail: "u@x.com", RoleIDs: []string{"R1"}}}
	f.store.roleGrants = []RoleGrant{{ID: "rg1", RoleIDs: []string{"R1"}, FeatureIDs: []string{"F2"}, Level: LevelHidden}}

	results, err := f.resolver.AllPermissions(context.Background(), "u@x.com")
	require.NoError(t, err)
	require.Len(t, results, 5, "one result per active feature, inactive excluded")

	for i, want := range []string{"F1", "F2", "F3", "F4", "F5"} {
		require.Equal(t, want, results[i].FeatureID, "catalog order preserved")
		single, err := f.resolver.CheckPermission(context.Background(), "u@x.com", want)
		require.NoError(t, err)
		require.Equal(t, single, results[i], "batch result equals single check for %s", want)
	}
}

func TestAllPermissionsFeatureSourceFailurePropagates(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	f.features.failWith = errors.New("catalog down")

	_, err := f.resolver.AllPermissions(context.Background(), "u@x.com")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrResolutionUnavailable)
}

func TestCheckPermissionRequiresUserEmail(t *testing.T) {
	f := newResolverFixture(LevelEdit)
	_, err := f.resolver.CheckPermission(context.Background(), "", "F1")
	require.Error(t, err)
}
