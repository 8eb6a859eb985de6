package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/internhub/backend/internal/config"
	"github.com/internhub/backend/internal/models"
	"github.com/internhub/backend/pkg/crypto"
	jwtpkg "github.com/internhub/backend/pkg/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDeactivated  = errors.New("account is deactivated")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidTokenType    = errors.New("invalid token type")
	ErrTokenBlacklisted    = errors.New("token is blacklisted")
)

const tokenBlacklistPrefix = "blacklist:token:"

type AuthService struct {
	db    *gorm.DB
	redis redis.UniversalClient
	cfg   *config.Config
	log   *logrus.Logger
}

func NewAuthService(db *gorm.DB, redis redis.UniversalClient, cfg *config.Config, log *logrus.Logger) *AuthService {
	return &AuthService{
		db:    db,
		redis: redis,
		cfg:   cfg,
		log:   log,
	}
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, email, password string) (string, string, *models.User, error) {
	var user models.User

	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", nil, ErrInvalidCredentials
		}
		return "", "", nil, err
	}

	if !user.IsActive {
		return "", "", nil, ErrAccountDeactivated
	}

	if !crypto.CheckPassword(password, user.Password) {
		s.log.WithField("user_id", user.ID).Debug("password check failed")
		return "", "", nil, ErrInvalidCredentials
	}

	accessToken, err := jwtpkg.GenerateToken(user.ID.String(), user.Role, jwtpkg.AccessToken, s.cfg.JWTSecret, s.cfg.JWTAccessTokenDuration)
	if err != nil {
		return "", "", nil, err
	}

	refreshToken, err := jwtpkg.GenerateToken(user.ID.String(), user.Role, jwtpkg.RefreshToken, s.cfg.JWTSecret, s.cfg.JWTRefreshTokenDuration)
	if err != nil {
		return "", "", nil, err
	}

	// Store refresh token in database
	refreshTokenModel := &models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(s.cfg.JWTRefreshTokenDuration),
	}

	if err := s.db.WithContext(ctx).Create(refreshTokenModel).Error; err != nil {
		return "", "", nil, err
	}

	return accessToken, refreshToken, &user, nil
}

// RefreshToken generates new access token from refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := jwtpkg.ValidateToken(refreshToken, s.cfg.JWTSecret)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	if claims.TokenType != jwtpkg.RefreshToken {
		return "", ErrInvalidTokenType
	}

	// Revoked tokens are deleted, so a missing row means the session is gone
	var tokenModel models.RefreshToken
	if err := s.db.WithContext(ctx).Where("token = ?", refreshToken).First(&tokenModel).Error; err != nil {
		return "", ErrInvalidRefreshToken
	}

	if time.Now().After(tokenModel.ExpiresAt) {
		return "", ErrInvalidRefreshToken
	}

	return jwtpkg.GenerateToken(claims.UserID, claims.Role, jwtpkg.AccessToken, s.cfg.JWTSecret, s.cfg.JWTAccessTokenDuration)
}

// Logout revokes the user's refresh tokens and blacklists the presented
// access token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, accessToken string, expiresAt time.Time) error {
	if err := s.RevokeRefreshTokens(ctx, userID); err != nil {
		return err
	}

	ttl := time.Until(expiresAt)
	if accessToken == "" || ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, tokenBlacklistPrefix+accessToken, userID.String(), ttl).Err(); err != nil {
		s.log.WithError(err).Warn("could not blacklist access token")
	}
	return nil
}

// RevokeRefreshTokens deletes every refresh token of the user.
func (s *AuthService) RevokeRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// ValidateAccessToken validates an access token and returns claims
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*jwtpkg.Claims, error) {
	claims, err := jwtpkg.ValidateToken(token, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != jwtpkg.AccessToken {
		return nil, ErrInvalidTokenType
	}

	// If redis is down, we allow the request to proceed
	exists, err := s.redis.Exists(ctx, tokenBlacklistPrefix+token).Result()
	if err != nil {
		s.log.WithError(err).Warn("could not check token blacklist")
	} else if exists > 0 {
		return nil, ErrTokenBlacklisted
	}

	return claims, nil
}

// CleanupExpiredTokens removes expired refresh tokens
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", time.Now()).Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}
