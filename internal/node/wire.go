package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Timestamp validation bounds. Out-of-range values decode as the zero time
// and are logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// ID is a server snowflake. The server serializes it as a JSON string, but
// older endpoints emit bare numbers, so both are accepted.
type ID string

// UnmarshalJSON accepts "123", 123 and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("node: decoding id: %w", err)
		}

		*id = ID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("node: decoding id: %w", err)
	}

	*id = ID(n.String())

	return nil
}

// Record mirrors the server's node JSON exactly. Callers use Node via
// ToNode() normalization.
type Record struct {
	ID               ID              `json:"id"`
	UserID           ID              `json:"user_id"`
	ParentID         *ID             `json:"parent_id"`
	Name             string          `json:"name"`
	Description      *string         `json:"description"`
	Tags             *string         `json:"tags"`
	Role             int             `json:"role"`
	Color            *string         `json:"color"`
	Icon             *string         `json:"icon"`
	Theme            *string         `json:"theme"`
	Accessibility    *int            `json:"accessibility"`
	Access           int             `json:"access"`
	Display          int             `json:"display"`
	Order            int             `json:"order"`
	Size             *int64          `json:"size"`
	Metadata         json.RawMessage `json:"metadata"`
	Content          *string         `json:"content"`
	CreatedTimestamp int64           `json:"created_timestamp"`
	UpdatedTimestamp int64           `json:"updated_timestamp"`
}

// PermissionRecord mirrors the server's permission JSON.
type PermissionRecord struct {
	ID               ID    `json:"id"`
	NodeID           ID    `json:"node_id"`
	UserID           ID    `json:"user_id"`
	Permission       int   `json:"permission"`
	CreatedTimestamp int64 `json:"created_timestamp"`
}

// DetailRecord is the result of a single-node fetch: the node plus its
// permission grants.
type DetailRecord struct {
	Node        Record             `json:"node"`
	Permissions []PermissionRecord `json:"permissions"`
}

// ToNode normalizes a wire record. The returned node has no client-side
// state set; callers decide Partial, Shared and Permissions.
func (r *Record) ToNode(logger *slog.Logger) Node {
	n := Node{
		ID:       string(r.ID),
		UserID:   string(r.UserID),
		Name:     r.Name,
		Role:     Role(r.Role),
		Access:   r.Access,
		Display:  r.Display,
		Order:    r.Order,
		Metadata: r.Metadata,
	}

	if r.ParentID != nil {
		n.ParentID = string(*r.ParentID)
	}

	n.Description = deref(r.Description)
	n.Tags = deref(r.Tags)
	n.Color = deref(r.Color)
	n.Icon = deref(r.Icon)
	n.Theme = deref(r.Theme)
	n.Content = deref(r.Content)

	if r.Accessibility != nil {
		n.Accessibility = *r.Accessibility
	}

	if r.Size != nil {
		n.Size = *r.Size
	}

	n.CreatedAt = parseMillis(r.CreatedTimestamp, "created_timestamp", n.ID, logger)
	n.UpdatedAt = parseMillis(r.UpdatedTimestamp, "updated_timestamp", n.ID, logger)

	return n
}

// ToPermission normalizes a wire permission record.
func (p *PermissionRecord) ToPermission(logger *slog.Logger) Permission {
	return Permission{
		ID:        string(p.ID),
		NodeID:    string(p.NodeID),
		UserID:    string(p.UserID),
		Level:     PermissionLevel(p.Permission),
		CreatedAt: parseMillis(p.CreatedTimestamp, "created_timestamp", string(p.ID), logger),
	}
}

// ToPermissions normalizes a permission list. The result is never nil so a
// full node always reports an explicit (possibly empty) grant list.
func ToPermissions(records []PermissionRecord, logger *slog.Logger) []Permission {
	perms := make([]Permission, 0, len(records))
	for i := range records {
		perms = append(perms, records[i].ToPermission(logger))
	}

	return perms
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// parseMillis converts a unix-millisecond timestamp. Zero stays zero;
// values outside the valid year range are dropped with a warning.
func parseMillis(ms int64, field, id string, logger *slog.Logger) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	t := time.UnixMilli(ms).UTC()
	if t.Year() < minValidYear || t.Year() > maxValidYear {
		if logger == nil {
			logger = slog.Default()
		}

		logger.Warn("timestamp out of valid range, ignoring",
			slog.String("field", field),
			slog.String("node_id", id),
			slog.Int64("raw", ms),
		)

		return time.Time{}
	}

	return t
}
