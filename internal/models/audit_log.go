package models

import (
	"time"

	"github.com/google/uuid"
)

// Recovery audit actions
const (
	AuditRecoveryRequested        = "recovery_requested"
	AuditRecoveryResendRefused    = "recovery_resend_refused"
	AuditRecoveryDispatchFailed   = "recovery_dispatch_failed"
	AuditRecoveryCodeMismatch     = "recovery_code_mismatch"
	AuditRecoveryAttemptsExceeded = "recovery_attempts_exceeded"
	AuditRecoveryBindingViolation = "recovery_binding_violation"
	AuditRecoveryCompleted        = "recovery_completed"
)

// AuditLog represents a security relevant event on an account
type AuditLog struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Action    string     `gorm:"type:varchar(100);not null;index" json:"action"`
	Phone     string     `gorm:"type:varchar(20)" json:"phone,omitempty"` // masked
	Details   string     `gorm:"type:text" json:"details,omitempty"`      // JSON string with additional info
	IPAddress string     `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent string     `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
