package services

//go:generate mockgen -source=recovery_service.go -destination=mocks/mock_session_revoker.go -package=mocks

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/internhub/backend/internal/models"
	"github.com/internhub/backend/pkg/validation"
	"github.com/sirupsen/logrus"
)

// RecoveryConfig controls who may recover a password by phone.
type RecoveryConfig struct {
	// EligibleRole is the only role allowed to use phone recovery.
	EligibleRole string
	// DebugEcho returns the issued code in the receipt. Never enable in production.
	DebugEcho bool
}

// SessionRevoker invalidates existing sessions after a password change.
type SessionRevoker interface {
	RevokeRefreshTokens(ctx context.Context, userID uuid.UUID) error
}

// ChallengeReceipt is what a caller learns after a challenge was issued.
type ChallengeReceipt struct {
	MaskedPhone string
	Delivered   bool
	// Warning is set when the code could not be delivered. The challenge
	// stays valid.
	Warning   error
	DebugCode string
}

// RecoveryService runs the phone based password recovery flow.
type RecoveryService struct {
	store      ChallengeStore
	identities IdentityStore
	notifier   Notifier
	auditor    RecoveryAuditor
	sessions   SessionRevoker
	cfg        RecoveryConfig
	log        *logrus.Logger
}

// NewRecoveryService wires the recovery flow. auditor and sessions may be nil.
func NewRecoveryService(
	store ChallengeStore,
	identities IdentityStore,
	notifier Notifier,
	auditor RecoveryAuditor,
	sessions SessionRevoker,
	cfg RecoveryConfig,
	log *logrus.Logger,
) *RecoveryService {
	if cfg.EligibleRole == "" {
		cfg.EligibleRole = models.RoleIntern
	}
	return &RecoveryService{
		store:      store,
		identities: identities,
		notifier:   notifier,
		auditor:    auditor,
		sessions:   sessions,
		cfg:        cfg,
		log:        log,
	}
}

// RequestChallenge issues a fresh code for the account registered under
// phoneRaw, replacing any outstanding one.
func (s *RecoveryService) RequestChallenge(ctx context.Context, phoneRaw string) (*ChallengeReceipt, error) {
	phone, ok := validation.ValidatePhone(phoneRaw)
	if !ok {
		return nil, ErrInvalidPhoneFormat
	}

	user, err := s.resolveIdentity(ctx, phone)
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, phone, user)
}

// ResendChallenge behaves like RequestChallenge unless a live challenge
// exists, in which case it returns a *CooldownError and sends nothing.
func (s *RecoveryService) ResendChallenge(ctx context.Context, phoneRaw string) (*ChallengeReceipt, error) {
	phone, ok := validation.ValidatePhone(phoneRaw)
	if !ok {
		return nil, ErrInvalidPhoneFormat
	}

	remaining, err := s.store.CooldownRemaining(ctx, phone)
	if err != nil {
		return nil, s.unavailable("cooldown lookup", phone, err)
	}
	if remaining > 0 {
		cooldown := &CooldownError{Remaining: remaining}
		s.audit(ctx, models.AuditRecoveryResendRefused, nil, phone, map[string]interface{}{
			"remaining_minutes": cooldown.Minutes(),
		})
		return nil, cooldown
	}

	user, err := s.resolveIdentity(ctx, phone)
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, phone, user)
}

// VerifyAndReset checks code against the outstanding challenge for phoneRaw
// and, on success, sets newPassword on the bound account. The challenge is
// claimed before the password is written so only one caller can succeed.
func (s *RecoveryService) VerifyAndReset(ctx context.Context, phoneRaw, code, newPassword string) error {
	phone, ok := validation.ValidatePhone(phoneRaw)
	if !ok {
		return ErrInvalidPhoneFormat
	}
	if !validation.ValidateOTPCode(code) {
		return ErrInvalidCodeFormat
	}

	challenge, err := s.store.Peek(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return ErrChallengeNotFoundOrExpired
		}
		return s.unavailable("peek challenge", phone, err)
	}
	userID := challenge.Identity.UserID

	if !codesEqual(challenge.Code, code) {
		return s.recordMismatch(ctx, phone, userID)
	}

	if err := s.checkBinding(ctx, challenge); err != nil {
		if !errors.Is(err, ErrSecurityBindingViolation) {
			return err
		}
		if delErr := s.store.Delete(ctx, phone); delErr != nil {
			s.log.WithError(delErr).WithField("phone", validation.MaskPhone(phone)).Error("failed to delete challenge after binding violation")
		}
		s.audit(ctx, models.AuditRecoveryBindingViolation, &userID, phone, nil)
		return ErrSecurityBindingViolation
	}

	if !validation.ValidateNewPassword(newPassword) {
		return ErrWeakPassword
	}

	claimed, err := s.store.Consume(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return ErrChallengeNotFoundOrExpired
		}
		return s.unavailable("consume challenge", phone, err)
	}
	// A concurrent Issue may have replaced the challenge we verified.
	if !codesEqual(claimed.Code, code) || claimed.Identity != challenge.Identity {
		return ErrChallengeNotFoundOrExpired
	}

	if err := s.identities.SetPassword(ctx, userID, newPassword); err != nil {
		return s.unavailable("set password", phone, err)
	}

	if s.sessions != nil {
		if err := s.sessions.RevokeRefreshTokens(ctx, userID); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to revoke sessions after password recovery")
		}
	}

	s.audit(ctx, models.AuditRecoveryCompleted, &userID, phone, nil)
	s.log.WithFields(logrus.Fields{
		"phone":   validation.MaskPhone(phone),
		"user_id": userID,
	}).Info("password reset via phone recovery")

	return nil
}

func (s *RecoveryService) resolveIdentity(ctx context.Context, phone string) (*models.User, error) {
	user, err := s.identities.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnregisteredIdentity
		}
		return nil, s.unavailable("find identity", phone, err)
	}
	if !user.HasPhone() {
		return nil, ErrUnregisteredIdentity
	}
	if user.Role != s.cfg.EligibleRole {
		return nil, ErrIneligibleRole
	}
	return user, nil
}

func (s *RecoveryService) issue(ctx context.Context, phone string, user *models.User) (*ChallengeReceipt, error) {
	challenge, err := s.store.Issue(ctx, phone, BoundIdentity{
		UserID: user.ID,
		Role:   user.Role,
		Phone:  user.Phone,
	})
	if err != nil {
		return nil, s.unavailable("issue challenge", phone, err)
	}

	masked := validation.MaskPhone(phone)
	receipt := &ChallengeReceipt{
		MaskedPhone: masked,
		Delivered:   true,
	}
	if s.cfg.DebugEcho {
		receipt.DebugCode = challenge.Code
	}

	s.audit(ctx, models.AuditRecoveryRequested, &user.ID, phone, nil)

	if err := s.notifier.Send(ctx, phone, challenge.Code); err != nil {
		s.log.WithError(err).WithField("phone", masked).Warn("recovery code dispatch failed")
		s.audit(ctx, models.AuditRecoveryDispatchFailed, &user.ID, phone, map[string]interface{}{
			"error": err.Error(),
		})
		receipt.Delivered = false
		receipt.Warning = fmt.Errorf("%w: %v", ErrDispatchFailure, err)
		return receipt, nil
	}

	s.log.WithField("phone", masked).Info("recovery code issued")
	return receipt, nil
}

func (s *RecoveryService) recordMismatch(ctx context.Context, phone string, userID uuid.UUID) error {
	remaining, err := s.store.RecordFailedAttempt(ctx, phone)
	switch {
	case errors.Is(err, ErrChallengeGone):
		s.audit(ctx, models.AuditRecoveryAttemptsExceeded, &userID, phone, nil)
		return ErrAttemptsExceeded
	case errors.Is(err, ErrChallengeNotFound):
		return ErrChallengeNotFoundOrExpired
	case err != nil:
		return s.unavailable("record failed attempt", phone, err)
	}

	s.audit(ctx, models.AuditRecoveryCodeMismatch, &userID, phone, map[string]interface{}{
		"remaining_attempts": remaining,
	})
	return &CodeMismatchError{Remaining: remaining}
}

// checkBinding confirms the account the challenge was issued for still holds
// the same phone number and an eligible role.
func (s *RecoveryService) checkBinding(ctx context.Context, challenge *Challenge) error {
	bound := challenge.Identity

	user, err := s.identities.FindByPhone(ctx, bound.Phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrSecurityBindingViolation
		}
		return s.unavailable("re-check identity", challenge.Key, err)
	}

	if user.ID != bound.UserID || user.Phone != bound.Phone || user.Role != s.cfg.EligibleRole {
		return ErrSecurityBindingViolation
	}
	return nil
}

func (s *RecoveryService) audit(ctx context.Context, action string, userID *uuid.UUID, phone string, details map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, AuditEntry{
		UserID:  userID,
		Action:  action,
		Phone:   validation.MaskPhone(phone),
		Details: details,
	})
}

func (s *RecoveryService) unavailable(op, phone string, err error) error {
	s.log.WithError(err).WithFields(logrus.Fields{
		"op":    op,
		"phone": validation.MaskPhone(phone),
	}).Error("password recovery backend failure")
	return fmt.Errorf("%w: %s: %v", ErrRecoveryUnavailable, op, err)
}

func codesEqual(stored, submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}
