// Package node defines the cached node entity, its permission grants, and the
// insertion-ordered Collection that backs the client-side mirror.
package node

import (
	"encoding/json"
	"slices"
	"time"
)

// Role identifies what kind of node an entry is. The server orders list
// results by role.
type Role int

// RoleMedia marks nodes created by a media upload.
const RoleMedia Role = 4

// PermissionLevel is the access level a Permission grants on a node.
type PermissionLevel int

// Permission levels, lowest to highest.
const (
	PermNone PermissionLevel = iota
	PermRead
	PermWrite
	PermAdmin
	PermOwner
)

// String returns the lowercase name of the level.
func (l PermissionLevel) String() string {
	switch l {
	case PermNone:
		return "none"
	case PermRead:
		return "read"
	case PermWrite:
		return "write"
	case PermAdmin:
		return "admin"
	case PermOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Permission is a single grant of a level on a node to a user.
type Permission struct {
	ID        string          `json:"id" yaml:"id"`
	NodeID    string          `json:"node_id" yaml:"node_id"`
	UserID    string          `json:"user_id" yaml:"user_id"`
	Level     PermissionLevel `json:"permission" yaml:"permission"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
}

// Node is a cached hierarchical entity. Descriptive fields mirror the server
// record; Shared, Permissions and Partial are client-side state that list
// payloads never carry.
type Node struct {
	ID            string          `json:"id" yaml:"id"`
	UserID        string          `json:"user_id" yaml:"user_id"`
	ParentID      string          `json:"parent_id,omitempty" yaml:"parent_id,omitempty"` // "" = root
	Name          string          `json:"name" yaml:"name"`
	Description   string          `json:"description,omitempty" yaml:"description,omitempty"`
	Tags          string          `json:"tags,omitempty" yaml:"tags,omitempty"` // raw, comma-separated
	Role          Role            `json:"role" yaml:"role"`
	Color         string          `json:"color,omitempty" yaml:"color,omitempty"`
	Icon          string          `json:"icon,omitempty" yaml:"icon,omitempty"`
	Theme         string          `json:"theme,omitempty" yaml:"theme,omitempty"`
	Accessibility int             `json:"accessibility" yaml:"accessibility"`
	Access        int             `json:"access" yaml:"access"`
	Display       int             `json:"display" yaml:"display"`
	Order         int             `json:"order" yaml:"order"`
	Size          int64           `json:"size" yaml:"size"`
	Metadata      json.RawMessage `json:"metadata,omitempty" yaml:"-"`
	Content       string          `json:"content,omitempty" yaml:"content,omitempty"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"updated_at"`

	Shared      bool         `json:"shared" yaml:"shared"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
	Partial     bool         `json:"partial" yaml:"partial"`
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// IsMedia reports whether the node was created by a media upload.
func (n *Node) IsMedia() bool {
	return n.Role == RoleMedia
}

// Clone returns a deep copy so callers can hold a node without sharing
// slices with the cache.
func (n Node) Clone() Node {
	n.Permissions = slices.Clone(n.Permissions)
	n.Metadata = slices.Clone(n.Metadata)

	return n
}

// MergeDescriptive copies the server-owned fields of src into n, leaving the
// client-side state (Shared, Permissions, Partial) untouched.
func (n *Node) MergeDescriptive(src *Node) {
	shared, perms, partial := n.Shared, n.Permissions, n.Partial
	*n = src.Clone()
	n.Shared, n.Permissions, n.Partial = shared, perms, partial
}
