package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"erpcore/internal/model"
	"erpcore/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=6"`
}

type UpdateUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone"`
	Status   string `json:"status" binding:"omitempty,oneof=active inactive suspended blocked"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Status    string    `json:"status"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User. Every lookup
// except Login and RefreshToken is limited to one company.
type UserService interface {
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	CreateUser(ctx context.Context, companyID uuid.UUID, req CreateUserRequest) (*UserResponse, error)
	GetUserByID(ctx context.Context, companyID uuid.UUID, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, companyID uuid.UUID, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, companyID uuid.UUID, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, companyID uuid.UUID, id string) error
}

type userService struct {
	repo   repository.UserRepository
	tokens *TokenIssuer
	cost   int
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, tokens *TokenIssuer) UserService {
	return &userService{repo: repo, tokens: tokens, cost: bcrypt.DefaultCost}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		CompanyID: user.CompanyID,
		FullName:  user.FullName,
		Email:     user.Email,
		Phone:     user.Phone,
		Status:    user.Status,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("login lookup failed")
		}
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredential
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrInactiveUser
	}

	return s.tokens.Issue(user.ID, user.CompanyID)
}

// RefreshToken exchanges a valid refresh token for a new pair, provided the user is
// still active.
func (s *userService) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	claims, err := s.tokens.Parse(req.RefreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, _ := claims.UserID()
	companyID, _ := claims.Company()

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil || user.CompanyID != companyID {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrInactiveUser
	}
	return s.tokens.Issue(user.ID, user.CompanyID)
}

func (s *userService) CreateUser(ctx context.Context, companyID uuid.UUID, req CreateUserRequest) (*UserResponse, error) {
	email := normalizeEmail(req.Email)
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email already exists: %w", repository.ErrConflict)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:        uuid.New(),
		CompanyID: companyID,
		FullName:  strings.TrimSpace(req.FullName),
		Email:     email,
		Phone:     req.Phone,
		Password:  string(hashedPassword),
		Status:    model.UserStatusActive,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapToResponse(user), nil
}

func (s *userService) GetUserByID(ctx context.Context, companyID uuid.UUID, id string) (*UserResponse, error) {
	user, err := s.companyUser(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, companyID uuid.UUID, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, companyID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}

	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, companyID uuid.UUID, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.companyUser(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	if req.FullName != "" {
		user.FullName = strings.TrimSpace(req.FullName)
	}
	if email := normalizeEmail(req.Email); email != "" && email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, email); err == nil {
			return nil, fmt.Errorf("email already exists: %w", repository.ErrConflict)
		}
		user.Email = email
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.Status != "" {
		user.Status = req.Status
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, companyID uuid.UUID, id string) error {
	user, err := s.companyUser(ctx, companyID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// companyUser loads a user and hides users of other companies behind ErrNotFound.
func (s *userService) companyUser(ctx context.Context, companyID uuid.UUID, id string) (*model.User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", errors.Join(ErrInvalidInput, err))
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if user.CompanyID != companyID {
		return nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
