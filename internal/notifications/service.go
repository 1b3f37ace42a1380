package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/enums"
	pkgerrors "github.com/talava/dispatch-backend/pkg/errors"
	"github.com/talava/dispatch-backend/pkg/logger"
)

// Service stores and serves per-user notifications. Notify is best-effort:
// it logs failures and never propagates them to the caller.
type Service interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string, payload any)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
}

type service struct {
	db   *gorm.DB
	logg *logger.Logger
}

// NewService builds the notification service.
func NewService(conn *gorm.DB, logg *logger.Logger) (Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("db connection required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{db: conn, logg: logg}, nil
}

func (s *service) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string, payload any) {
	if userID == uuid.Nil || !kind.IsValid() {
		return
	}

	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			s.logg.Warn(ctx, "notification payload not serializable: "+err.Error())
		} else {
			raw = encoded
		}
	}

	notification := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Payload: raw,
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		s.logg.Warn(ctx, "notification write failed: "+err.Error())
	}
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	return notifications, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil || notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and notification id required")
	}
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
		Update("read_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark notification read")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found or already read")
	}
	return nil
}
