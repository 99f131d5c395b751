// Package permissions implements the portal's permission resolution engine:
// it turns the grants applicable to a (user, feature) pair into a single
// deterministic verdict.
package permissions

import (
	"fmt"
	"time"
)

// Level expresses the strongest allowed interaction with a feature.
type Level string

// Permission levels in display order of authority: edit implies view,
// hidden implies neither.
const (
	LevelEdit   Level = "edit"
	LevelView   Level = "view"
	LevelHidden Level = "hidden"
)

// ParseLevel maps a stored level string to the enum. The mapping is total:
// any value outside the three levels is an error, never a silent default.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelEdit, LevelView, LevelHidden:
		return Level(s), nil
	}
	return "", fmt.Errorf("permissions: unknown level %q", s)
}

// restrictiveness orders levels for conflict resolution. Higher is more
// restrictive.
func (l Level) restrictiveness() int {
	switch l {
	case LevelHidden:
		return 2
	case LevelView:
		return 1
	default:
		return 0
	}
}

// MostRestrictive reduces a non-empty set of levels to the most restrictive
// one (hidden > view > edit). Conflicting role grants resolve through this
// reduction rather than iteration order.
func MostRestrictive(levels []Level) Level {
	winner := LevelEdit
	for _, l := range levels {
		if l.restrictiveness() > winner.restrictiveness() {
			winner = l
		}
	}
	return winner
}

// DirectGrant assigns a level to one user for a set of features. It is the
// strongest authority source.
type DirectGrant struct {
	ID         string     `json:"id"`
	UserEmail  string     `json:"userEmail"`
	FeatureIDs []string   `json:"featureIds"`
	Level      Level      `json:"level"`
	GrantedBy  string     `json:"grantedBy,omitempty"`
	GrantedAt  time.Time  `json:"grantedAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Expired reports whether the grant's expiry has passed. Expired grants are
// ignored during resolution but never deleted, preserving audit history.
func (g DirectGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// Covers reports whether the grant applies to the given feature.
func (g DirectGrant) Covers(featureID string) bool {
	for _, id := range g.FeatureIDs {
		if id == featureID {
			return true
		}
	}
	return false
}

// RoleGrant assigns a level to a set of roles for a set of features. Role
// grants are standing policy and carry no expiry.
type RoleGrant struct {
	ID         string   `json:"id"`
	RoleIDs    []string `json:"roleIds"`
	FeatureIDs []string `json:"featureIds"`
	Level      Level    `json:"level"`
}

// Covers reports whether the grant applies to the given feature.
func (g RoleGrant) Covers(featureID string) bool {
	for _, id := range g.FeatureIDs {
		if id == featureID {
			return true
		}
	}
	return false
}

// Membership links a user to the roles they hold.
type Membership struct {
	UserEmail  string    `json:"userEmail"`
	RoleIDs    []string  `json:"roleIds"`
	AssignedAt time.Time `json:"assignedAt"`
}

// CheckResult is the engine's verdict for one (user, feature) pair. It is
// derived and never persisted.
type CheckResult struct {
	FeatureID string `json:"featureId"`
	Level     Level  `json:"level"`
	CanEdit   bool   `json:"canEdit"`
	CanView   bool   `json:"canView"`
	IsHidden  bool   `json:"isHidden"`
}

// NewCheckResult derives the convenience flags from the level.
func NewCheckResult(featureID string, level Level) CheckResult {
	return CheckResult{
		FeatureID: featureID,
		Level:     level,
		CanEdit:   level == LevelEdit,
		CanView:   level == LevelEdit || level == LevelView,
		IsHidden:  level == LevelHidden,
	}
}
