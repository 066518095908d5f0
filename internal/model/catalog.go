package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryKind constants
const (
	CategoryKindProduct = "product"
	CategoryKindService = "service"
)

// Category groups products or services.
type Category struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID   uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company     *Company  `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Kind        string    `gorm:"type:varchar(20);not null" json:"kind" validate:"omitempty,oneof=product service"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Product is a stocked item sold by the tenant.
type Product struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company    *Company        `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	CategoryID *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Category   *Category       `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"-"`
	SupplierID *uuid.UUID      `gorm:"type:uuid;index" json:"supplier_id"`
	Supplier   *Supplier       `gorm:"foreignKey:SupplierID;constraint:OnDelete:SET NULL" json:"-"`
	SKU        string          `gorm:"type:varchar(100);index" json:"sku"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Price      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"price"`
	Stock      int             `gorm:"type:int;default:0;not null" json:"stock"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Service is a billable service offered by the tenant.
type Service struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company     *Company        `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	CategoryID  *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Category    *Category       `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"-"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
