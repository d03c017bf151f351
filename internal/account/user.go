package account

import (
	"time"

	"github.com/structured-notes/notes-go/internal/node"
)

// Role is the account's server-side role.
type Role int

// Account roles.
const (
	RoleUser Role = iota
	RoleAdmin
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}

	return "user"
}

// User is the signed-in account.
type User struct {
	ID        string    `json:"id" yaml:"id"`
	Username  string    `json:"username" yaml:"username"`
	Email     string    `json:"email" yaml:"email"`
	Firstname string    `json:"firstname,omitempty" yaml:"firstname,omitempty"`
	Lastname  string    `json:"lastname,omitempty" yaml:"lastname,omitempty"`
	Avatar    string    `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Role      Role      `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Registration is the payload for creating an account.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

// userRecord mirrors the server's user JSON.
type userRecord struct {
	ID               node.ID `json:"id"`
	Username         string  `json:"username"`
	Email            string  `json:"email"`
	Firstname        *string `json:"firstname"`
	Lastname         *string `json:"lastname"`
	Avatar           *string `json:"avatar"`
	Role             int     `json:"role"`
	CreatedTimestamp int64   `json:"created_timestamp"`
	UpdatedTimestamp int64   `json:"updated_timestamp"`
}

func (r *userRecord) toUser() User {
	u := User{
		ID:       string(r.ID),
		Username: r.Username,
		Email:    r.Email,
		Role:     Role(r.Role),
	}

	if r.Firstname != nil {
		u.Firstname = *r.Firstname
	}

	if r.Lastname != nil {
		u.Lastname = *r.Lastname
	}

	if r.Avatar != nil {
		u.Avatar = *r.Avatar
	}

	if r.CreatedTimestamp != 0 {
		u.CreatedAt = time.UnixMilli(r.CreatedTimestamp)
	}

	if r.UpdatedTimestamp != 0 {
		u.UpdatedAt = time.UnixMilli(r.UpdatedTimestamp)
	}

	return u
}
