package domain

import (
	"strings"
	"time"
)

// PermissionLevel is the strength of a share grant: VIEW < EDIT < ADMIN.
type PermissionLevel string

const (
	PermissionView  PermissionLevel = "VIEW"
	PermissionEdit  PermissionLevel = "EDIT"
	PermissionAdmin PermissionLevel = "ADMIN"
)

var permissionRank = map[PermissionLevel]int{
	PermissionView:  1,
	PermissionEdit:  2,
	PermissionAdmin: 3,
}

// ParsePermissionLevel validates a raw permission string.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch p := PermissionLevel(strings.ToUpper(strings.TrimSpace(s))); p {
	case PermissionView, PermissionEdit, PermissionAdmin:
		return p, nil
	default:
		return "", Validation("invalid permission level")
	}
}

// AtLeast reports whether the level grants at least the given strength.
func (p PermissionLevel) AtLeast(min PermissionLevel) bool {
	return permissionRank[p] >= permissionRank[min]
}

// List is a named collection of tasks. Lists form a tree via ParentID;
// a list may never be its own ancestor.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListInput carries the caller-supplied fields for list creation or rename.
type ListInput struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// Validate rejects malformed input before any write happens.
func (in ListInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return Validation("name is required")
	}
	if len(in.Name) > 255 {
		return Validation("name exceeds 255 characters")
	}
	return nil
}

// Share grants a principal access to a list at a permission level.
// At most one share exists per (list, principal) pair.
type Share struct {
	ListID    string          `json:"listId"`
	UserID    string          `json:"userId"`
	Level     PermissionLevel `json:"permissionLevel"`
	CreatedAt time.Time       `json:"createdAt"`
}
