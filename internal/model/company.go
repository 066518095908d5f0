package model

import (
	"time"

	"github.com/google/uuid"
)

// Table names shared by the record store, the resolver and the backup archive.
const (
	TableCompanies       = "companies"
	TableEmployees       = "employees"
	TableCustomers       = "customers"
	TableSuppliers       = "suppliers"
	TableCategories      = "categories"
	TableProducts        = "products"
	TableServices        = "services"
	TableSales           = "sales"
	TableServiceOrders   = "service_orders"
	TableShippingOrders  = "shipping_orders"
	TableRoles           = "roles"
	TablePermissions     = "permissions"
	TableRolePermissions = "role_permissions"
	TableUserRoles       = "user_roles"
	TableUsers           = "users"
	TableAuditLogs       = "audit_logs"
)

// Company is the tenant. Almost every other row carries its id in company_id.
type Company struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Document  *string   `gorm:"type:varchar(50);uniqueIndex" json:"document"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	Phone     string    `gorm:"type:varchar(50)" json:"phone"`
	Address   string    `gorm:"type:text" json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
