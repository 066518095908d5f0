package repository

import (
	"context"

	"erpcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context, companyID uuid.UUID, page, limit int) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return newStoreError(model.TableUsers, "insert", GetDB(ctx, r.db).Omit(clause.Associations).Create(user).Error)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, newStoreError(model.TableUsers, "select", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", email).Error; err != nil {
		return nil, newStoreError(model.TableUsers, "select", err)
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, companyID uuid.UUID, page, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := GetDB(ctx, r.db).Where("company_id = ?", companyID).Session(&gorm.Session{})
	if err := db.Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, newStoreError(model.TableUsers, "count", err)
	}

	offset := (page - 1) * limit
	if err := db.Order("full_name asc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, newStoreError(model.TableUsers, "select", err)
	}

	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return newStoreError(model.TableUsers, "update", GetDB(ctx, r.db).Omit(clause.Associations).Save(user).Error)
}

// Delete soft deletes the user and drops its role assignments.
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("user_id = ?", id).Delete(&model.UserRole{}).Error; err != nil {
		return newStoreError(model.TableUserRoles, "delete", err)
	}
	return newStoreError(model.TableUsers, "delete", db.Where("id = ?", id).Delete(&model.User{}).Error)
}
