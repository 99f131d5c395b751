// Package catalog maintains the feature catalog: the universe of protectable
// portal capabilities that permission grants can reference.
package catalog

import "time"

// Feature types as stored in the catalog.
const (
	TypeMenu    = "menu"
	TypeFeature = "feature"
	TypeAction  = "action"
)

// Feature is a protectable capability. The ID is stable and must never change
// once a grant references it.
type Feature struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MenuGroup   string    `json:"menuGroup"`
	Type        string    `json:"type"`
	ParentID    string    `json:"parentId,omitempty"`
	SortOrder   int       `json:"sortOrder"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
