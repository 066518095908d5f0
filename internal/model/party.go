package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Employee is a member of the tenant's staff. Sales and service orders may reference one.
type Employee struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company   *Company        `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Email     string          `gorm:"type:varchar(255)" json:"email"`
	Phone     string          `gorm:"type:varchar(50)" json:"phone"`
	Position  string          `gorm:"type:varchar(100)" json:"position"`
	Salary    decimal.Decimal `gorm:"type:decimal(14,2);default:0" json:"salary"`
	IsActive  bool            `gorm:"not null" json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Customer buys products and services from the tenant.
type Customer struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company   *Company  `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Document  string    `gorm:"type:varchar(50)" json:"document"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	Phone     string    `gorm:"type:varchar(50)" json:"phone"`
	Address   string    `gorm:"type:text" json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Supplier provides products to the tenant.
type Supplier struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID     uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company       *Company  `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Document      string    `gorm:"type:varchar(50)" json:"document"`
	ContactPerson string    `gorm:"type:varchar(255)" json:"contact_person"`
	Email         string    `gorm:"type:varchar(255)" json:"email"`
	Phone         string    `gorm:"type:varchar(50)" json:"phone"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
