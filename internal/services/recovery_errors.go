package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidPhoneFormat         = errors.New("invalid phone number format")
	ErrInvalidCodeFormat          = errors.New("otp must be exactly 6 digits")
	ErrUnregisteredIdentity       = errors.New("no account is registered with this phone number")
	ErrIneligibleRole             = errors.New("phone based password recovery is not available for this account")
	ErrChallengeNotFoundOrExpired = errors.New("otp not found or expired, please request a new one")
	ErrCodeMismatch               = errors.New("invalid otp")
	ErrAttemptsExceeded           = errors.New("too many invalid attempts, please request a new otp")
	ErrSecurityBindingViolation   = errors.New("account details changed since the otp was issued, please request a new otp")
	ErrWeakPassword               = errors.New("password must be at least 6 characters long")
	ErrDispatchFailure            = errors.New("otp could not be delivered")
	ErrCooldownActive             = errors.New("an otp was already sent")
	ErrRecoveryUnavailable        = errors.New("password recovery is temporarily unavailable")
)

// CodeMismatchError is returned for a wrong code while attempts remain.
type CodeMismatchError struct {
	Remaining int
}

func (e *CodeMismatchError) Error() string {
	return fmt.Sprintf("%s, %d attempt(s) remaining", ErrCodeMismatch.Error(), e.Remaining)
}

func (e *CodeMismatchError) Unwrap() error {
	return ErrCodeMismatch
}

// CooldownError is returned by ResendChallenge while a live challenge exists.
type CooldownError struct {
	Remaining time.Duration
}

// Minutes is the remaining cooldown rounded up to whole minutes.
func (e *CooldownError) Minutes() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int((e.Remaining + time.Minute - 1) / time.Minute)
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s, please wait %d minute(s) before requesting a new one", ErrCooldownActive.Error(), e.Minutes())
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}
