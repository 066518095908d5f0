package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateBackup          = "CREATE_BACKUP"
	ActionRestoreBackup         = "RESTORE_BACKUP"
	ActionRestoreBackupFailed   = "RESTORE_BACKUP_FAILED"
	ActionDeleteBackup          = "DELETE_BACKUP"
	ActionCreateRole            = "CREATE_ROLE"
	ActionUpdateRole            = "UPDATE_ROLE"
	ActionDeleteRole            = "DELETE_ROLE"
	ActionUpdateRolePermissions = "UPDATE_ROLE_PERMISSIONS"
	ActionAssignUserRole        = "ASSIGN_USER_ROLE"
	ActionRemoveUserRole        = "REMOVE_USER_ROLE"
)

// AuditLog tracks Who, What, and When for critical changes inside a company
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"company_id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for CLI and automated runs
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(255);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
