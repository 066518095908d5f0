package database

import (
	"fmt"
	"time"

	"erpcore/internal/model"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table the application owns, parents before children.
func Models() []any {
	return []any{
		&model.Company{},
		&model.Employee{},
		&model.Customer{},
		&model.Supplier{},
		&model.Category{},
		&model.Product{},
		&model.Service{},
		&model.Sale{},
		&model.ServiceOrder{},
		&model.ShippingOrder{},
		&model.Permission{},
		&model.Role{},
		&model.RolePermission{},
		&model.User{},
		&model.UserRole{},
		&model.AuditLog{},
	}
}

// printer routes gorm's log lines through zerolog.
type printer struct {
	logger zerolog.Logger
}

func (p printer) Printf(format string, args ...any) {
	p.logger.Warn().Str("component", "gorm").Msg(fmt.Sprintf(format, args...))
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(printer{logger: logger}, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates or updates the schema. The join tables carry their own models so
// backups can read and write them like any other table.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&model.Role{}, "Permissions", &model.RolePermission{}); err != nil {
		return fmt.Errorf("failed to set up role_permissions: %w", err)
	}
	if err := db.SetupJoinTable(&model.User{}, "Roles", &model.UserRole{}); err != nil {
		return fmt.Errorf("failed to set up user_roles: %w", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}
