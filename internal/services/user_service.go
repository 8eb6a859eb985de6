package services

//go:generate mockgen -source=user_service.go -destination=mocks/mock_identity_store.go -package=mocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/internhub/backend/internal/models"
	"github.com/internhub/backend/pkg/crypto"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// IdentityStore is the slice of user storage password recovery depends on.
// Password hashing is the implementation's responsibility.
type IdentityStore interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	SetPassword(ctx context.Context, userID uuid.UUID, newPassword string) error
}

type UserService struct {
	db         *gorm.DB
	bcryptCost int
}

func NewUserService(db *gorm.DB, bcryptCost int) *UserService {
	return &UserService{db: db, bcryptCost: bcryptCost}
}

// FindByPhone retrieves a user by exact canonical phone number
func (s *UserService) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetPassword hashes newPassword and stores it for the user
func (s *UserService) SetPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	hashed, err := crypto.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password", hashed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// EnsureDefaultAdmin creates the configured admin account if no account with
// that email exists. It reports whether an account was created.
func (s *UserService) EnsureDefaultAdmin(ctx context.Context, name, email, password, phone string) (bool, error) {
	if email == "" || password == "" {
		return false, errors.New("default admin email and password are required")
	}

	if _, err := s.GetUserByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}

	hashed, err := crypto.HashPassword(password, s.bcryptCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	admin := &models.User{
		Name:     name,
		Email:    email,
		Phone:    phone,
		Password: hashed,
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return false, err
	}
	return true, nil
}
