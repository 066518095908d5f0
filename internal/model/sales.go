package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order status constants shared by sales, service orders and shipping orders
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Sale records a product sold to a customer.
type Sale struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company    *Company        `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	CustomerID uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id" validate:"required"`
	Customer   *Customer       `gorm:"foreignKey:CustomerID;constraint:OnDelete:RESTRICT" json:"-"`
	ProductID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id" validate:"required"`
	Product    *Product        `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT" json:"-"`
	EmployeeID *uuid.UUID      `gorm:"type:uuid;index" json:"employee_id"`
	Employee   *Employee       `gorm:"foreignKey:EmployeeID;constraint:OnDelete:SET NULL" json:"-"`
	Quantity   int             `gorm:"type:int;not null" json:"quantity" validate:"gte=0"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unit_price"`
	Total      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`
	Status     string          `gorm:"type:varchar(20);not null" json:"status"`
	SoldAt     time.Time       `json:"sold_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ServiceOrder schedules a service for a customer.
type ServiceOrder struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company     *Company        `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	CustomerID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id" validate:"required"`
	Customer    *Customer       `gorm:"foreignKey:CustomerID;constraint:OnDelete:RESTRICT" json:"-"`
	ServiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"service_id" validate:"required"`
	Service     *Service        `gorm:"foreignKey:ServiceID;constraint:OnDelete:RESTRICT" json:"-"`
	EmployeeID  *uuid.UUID      `gorm:"type:uuid;index" json:"employee_id"`
	Employee    *Employee       `gorm:"foreignKey:EmployeeID;constraint:OnDelete:SET NULL" json:"-"`
	Description string          `gorm:"type:text" json:"description"`
	Total       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total"`
	Status      string          `gorm:"type:varchar(20);not null" json:"status"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ShippingOrder tracks the delivery of a sale.
type ShippingOrder struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" validate:"required"`
	CompanyID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id" validate:"required"`
	Company      *Company        `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"-"`
	CustomerID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id" validate:"required"`
	Customer     *Customer       `gorm:"foreignKey:CustomerID;constraint:OnDelete:RESTRICT" json:"-"`
	SaleID       *uuid.UUID      `gorm:"type:uuid;index" json:"sale_id"`
	Sale         *Sale           `gorm:"foreignKey:SaleID;constraint:OnDelete:SET NULL" json:"-"`
	Carrier      string          `gorm:"type:varchar(100)" json:"carrier"`
	TrackingCode string          `gorm:"type:varchar(100)" json:"tracking_code"`
	Address      string          `gorm:"type:text;not null" json:"address"`
	Freight      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"freight"`
	Status       string          `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
