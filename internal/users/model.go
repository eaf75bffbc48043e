package users

import (
	"strings"
	"time"
)

// Role is an administrative role.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known administrative role.
func (r Role) Valid() bool {
	return r == RoleSuperadmin || r == RoleAdmin
}

// User is an account able to sign in.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// AdminUser grants an administrative role to an account.
type AdminUser struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Email     string    `gorm:"column:email;size:320" json:"email"`
	Role      Role      `gorm:"column:role;size:32;not null" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName exposes the table backing admin grants.
func (AdminUser) TableName() string {
	return "admin_users"
}

// RevokedToken records a signed-out session token until it would have expired anyway.
type RevokedToken struct {
	TokenID   string    `gorm:"column:token_id;primaryKey;size:64"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
}

// TableName exposes the table backing revoked tokens.
func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(normalize(value))
}
