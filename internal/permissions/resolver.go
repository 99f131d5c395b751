package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-mfg/meridian-portal/internal/catalog"
)

// ErrResolutionUnavailable marks an infrastructure failure while loading
// grants or catalogs. It is never mapped to a permission level: "could not
// determine" is distinct from "no rule configured".
var ErrResolutionUnavailable = errors.New("permissions: resolution unavailable")

// Authority sources reported on the check metric.
const (
	SourceDirect  = "direct"
	SourceRole    = "role"
	SourceDefault = "default"
)

// Anomaly kinds reported on the grant anomaly metric.
const (
	AnomalyUnknownRole  = "unknown_role"
	AnomalyBadLevel     = "bad_level"
	AnomalyDuplicate    = "duplicate_direct_grant"
	AnomalyDanglingRole = "dangling_role_grant"
)

// GrantStore loads the grant relations the engine consumes. Implementations
// must follow pagination to completion before returning.
type GrantStore interface {
	DirectGrantsByUser(ctx context.Context, userEmail string) ([]DirectGrant, error)
	MembershipsByUser(ctx context.Context, userEmail string) ([]Membership, error)
	RoleGrantsByRoles(ctx context.Context, roleIDs []string) ([]RoleGrant, error)
}

// FeatureSource enumerates active features in catalog order.
type FeatureSource interface {
	ListActive(ctx context.Context) ([]catalog.Feature, error)
}

// RoleSource reports every known role ID mapped to its active flag.
type RoleSource interface {
	RoleStates(ctx context.Context) (map[string]bool, error)
}

// MetricsRecorder receives resolution observability events.
type MetricsRecorder interface {
	CheckResolved(source string)
	GrantAnomaly(kind string)
}

// Resolver is the permission resolution engine. It is stateless and
// side-effect-free per call: every check re-reads current grant state, so
// any number of goroutines may share one Resolver without locking.
type Resolver struct {
	store        GrantStore
	features     FeatureSource
	roles        RoleSource
	defaultLevel Level
	logger       *slog.Logger
	metrics      MetricsRecorder
	now          func() time.Time
}

// ResolverConfig collects the engine's collaborators. DefaultLevel is the
// verdict for features no rule governs; the product default is edit
// (fail-open), deployments wanting fail-closed set hidden.
type ResolverConfig struct {
	Store        GrantStore
	Features     FeatureSource
	Roles        RoleSource
	DefaultLevel Level
	Logger       *slog.Logger
	Metrics      MetricsRecorder
	Now          func() time.Time
}

// NewResolver constructs the engine.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		store:        cfg.Store,
		features:     cfg.Features,
		roles:        cfg.Roles,
		defaultLevel: cfg.DefaultLevel,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
	if r.defaultLevel == "" {
		r.defaultLevel = LevelEdit
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// snapshot holds one consistent read of the user's grant state. Both the
// single check and the batch evaluate against a snapshot, so a batch result
// always matches the equivalent sequence of single checks.
type snapshot struct {
	direct     []DirectGrant
	roleGrants []RoleGrant
	now        time.Time
}

// CheckPermission resolves the verdict for one (user, feature) pair.
// Precedence, first match wins: un-expired direct grant, then role-derived
// grants reduced most-restrictive-wins, then the configured default. The
// feature need not exist in the catalog; an ungoverned feature resolves to
// the default rather than erroring.
func (r *Resolver) CheckPermission(ctx context.Context, userEmail, featureID string) (CheckResult, error) {
	if userEmail == "" {
		return CheckResult{}, errors.New("permissions: user email required")
	}
	snap, err := r.loadSnapshot(ctx, userEmail)
	if err != nil {
		return CheckResult{}, err
	}
	return r.evaluate(snap, featureID), nil
}

// AllPermissions resolves the verdict for every active feature in catalog
// order. The grant state is fetched once and all features are evaluated
// against that in-memory snapshot.
func (r *Resolver) AllPermissions(ctx context.Context, userEmail string) ([]CheckResult, error) {
	if userEmail == "" {
		return nil, errors.New("permissions: user email required")
	}

	var (
		snap     snapshot
		features []catalog.Feature
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = r.loadSnapshot(gctx, userEmail)
		return err
	})
	g.Go(func() error {
		var err error
		features, err = r.features.ListActive(gctx)
		if err != nil {
			return fmt.Errorf("%w: list active features: %v", ErrResolutionUnavailable, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]CheckResult, 0, len(features))
	for _, f := range features {
		results = append(results, r.evaluate(snap, f.ID))
	}
	return results, nil
}

func (r *Resolver) loadSnapshot(ctx context.Context, userEmail string) (snapshot, error) {
	var (
		direct      []DirectGrant
		memberships []Membership
		roleStates  map[string]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		direct, err = r.store.DirectGrantsByUser(gctx, userEmail)
		if err != nil {
			return fmt.Errorf("%w: load direct grants: %v", ErrResolutionUnavailable, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		memberships, err = r.store.MembershipsByUser(gctx, userEmail)
		if err != nil {
			return fmt.Errorf("%w: load memberships: %v", ErrResolutionUnavailable, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		roleStates, err = r.roles.RoleStates(gctx)
		if err != nil {
			return fmt.Errorf("%w: load role catalog: %v", ErrResolutionUnavailable, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}

	memberRoles := r.validMemberRoles(userEmail, memberships, roleStates)

	snap := snapshot{direct: direct, now: r.now()}
	if len(memberRoles) > 0 {
		roleGrants, err := r.store.RoleGrantsByRoles(ctx, memberRoles)
		if err != nil {
			return snapshot{}, fmt.Errorf("%w: load role grants: %v", ErrResolutionUnavailable, err)
		}
		snap.roleGrants = roleGrants
	}
	return snap, nil
}

// validMemberRoles filters the user's memberships down to known, active
// roles, preserving membership order. A membership naming an unknown role is
// a ConfigurationAnomaly: skipped, logged and counted, so one bad record
// cannot swing a verdict. An inactive role is a legitimate administrative
// toggle and is skipped silently.
func (r *Resolver) validMemberRoles(userEmail string, memberships []Membership, roleStates map[string]bool) []string {
	var roleIDs []string
	seen := make(map[string]struct{})
	for _, m := range memberships {
		for _, roleID := range m.RoleIDs {
			if _, dup := seen[roleID]; dup {
				continue
			}
			seen[roleID] = struct{}{}
			active, known := roleStates[roleID]
			if !known {
				r.logger.Warn("membership references unknown role",
					slog.String("user_email", userEmail),
					slog.String("role_id", roleID))
				if r.metrics != nil {
					r.metrics.GrantAnomaly(AnomalyUnknownRole)
				}
				continue
			}
			if !active {
				continue
			}
			roleIDs = append(roleIDs, roleID)
		}
	}
	return roleIDs
}

func (r *Resolver) evaluate(snap snapshot, featureID string) CheckResult {
	// 1. Direct grants, stored order. Multiple simultaneous direct grants
	// for one feature are an administrative anomaly that the integrity scan
	// reports; resolution stays deterministic by taking the first.
	for _, g := range snap.direct {
		if g.Expired(snap.now) {
			continue
		}
		if g.Covers(featureID) {
			r.resolved(SourceDirect)
			return NewCheckResult(featureID, g.Level)
		}
	}

	// 2. Role-derived grants, reduced most-restrictive-wins.
	var levels []Level
	for _, g := range snap.roleGrants {
		if g.Covers(featureID) {
			levels = append(levels, g.Level)
		}
	}
	if len(levels) > 0 {
		r.resolved(SourceRole)
		return NewCheckResult(featureID, MostRestrictive(levels))
	}

	// 3. Default.
	r.resolved(SourceDefault)
	return NewCheckResult(featureID, r.defaultLevel)
}

func (r *Resolver) resolved(source string) {
	if r.metrics != nil {
		r.metrics.CheckResolved(source)
	}
}
