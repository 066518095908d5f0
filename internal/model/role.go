package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is a named bundle of permissions. System roles have no company and cannot be deleted.
type Role struct {
	ID           uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name         string       `gorm:"type:varchar(100);not null;uniqueIndex:idx_roles_company_name" json:"name"`
	Description  string       `gorm:"type:text" json:"description"`
	IsSystemRole bool         `gorm:"default:false" json:"is_system_role"`
	CompanyID    *uuid.UUID   `gorm:"type:uuid;index;uniqueIndex:idx_roles_company_name" json:"company_id"`
	Permissions  []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Permission is a single allowed action, identified by its code (e.g. "users.edit").
// A nil CompanyID marks a system-wide permission.
type Permission struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code      string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Name      string     `gorm:"type:varchar(255);not null" json:"name"`
	Module    string     `gorm:"type:varchar(50);not null;index" json:"module"`
	CompanyID *uuid.UUID `gorm:"type:uuid;index" json:"company_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// RolePermission grants a permission to a role. The pair is the primary key.
type RolePermission struct {
	RoleID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"role_id"`
	PermissionID uuid.UUID `gorm:"type:uuid;primaryKey" json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (RolePermission) TableName() string {
	return TableRolePermissions
}

// UserRole assigns a role to a user. A user may hold several roles.
type UserRole struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	RoleID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserRole) TableName() string {
	return TableUserRoles
}
