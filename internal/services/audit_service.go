package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/internhub/backend/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecoveryAuditor receives security relevant recovery events. Implementations
// must not fail the calling request.
type RecoveryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry is a single event; Phone must already be masked.
type AuditEntry struct {
	UserID  *uuid.UUID
	Action  string
	Phone   string
	Details map[string]interface{}
}

type requestMetaKey struct{}

type requestMeta struct {
	ip        string
	userAgent string
}

// WithRequestMeta attaches the caller's IP and user agent for audit entries.
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, requestMeta{ip: ip, userAgent: userAgent})
}

func requestMetaFrom(ctx context.Context) requestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return meta
}

type AuditService struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewAuditService(db *gorm.DB, log *logrus.Logger) *AuditService {
	return &AuditService{
		db:  db,
		log: log,
	}
}

// Record persists an audit entry. Write failures are logged only.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	detailsJSON := ""
	if entry.Details != nil {
		if jsonBytes, err := json.Marshal(entry.Details); err == nil {
			detailsJSON = string(jsonBytes)
		}
	}

	meta := requestMetaFrom(ctx)
	row := &models.AuditLog{
		UserID:    entry.UserID,
		Action:    entry.Action,
		Phone:     entry.Phone,
		Details:   detailsJSON,
		IPAddress: meta.ip,
		UserAgent: meta.userAgent,
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.log.WithError(err).WithField("action", entry.Action).Warn("failed to write audit log")
	}
}

// GetRecentActions retrieves recent audit entries with pagination
func (s *AuditService) GetRecentActions(ctx context.Context, page, limit int, userID *uuid.UUID, action string) ([]*models.AuditLog, int64, error) {
	var logs []*models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	if action != "" {
		query = query.Where("action = ?", action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
