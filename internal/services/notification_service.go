package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/teamboard/teamboard-api/internal/metrics"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/realtime"
	"github.com/teamboard/teamboard-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService creates recipient-addressed notifications and pushes
// them to the recipient's active sessions.
type NotificationService struct {
	notifRepo repository.NotificationRepository
	hub       *realtime.Hub
	logger    *zap.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(notifRepo repository.NotificationRepository, hub *realtime.Hub, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		notifRepo: notifRepo,
		hub:       hub,
		logger:    logger,
	}
}

// Deliver creates the notification record and pushes it to every session of
// the recipient. The push is best effort; only the record write can fail.
func (s *NotificationService) Deliver(ctx context.Context, recipientID uint64, ntype models.NotificationType, message string, taskID *uint64) (*models.Notification, error) {
	n := &models.Notification{
		RecipientID: recipientID,
		Type:        ntype,
		Message:     message,
		TaskID:      taskID,
	}
	if err := s.notifRepo.Create(ctx, n); err != nil {
		metrics.NotificationFailures.Inc()
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(ntype)).Inc()

	ev, err := realtime.NewEvent(realtime.EventNotificationCreated, n)
	if err != nil {
		s.logger.Warn("failed to serialize notification event",
			zap.Uint64("notification_id", n.ID),
			zap.Error(err),
		)
		return n, nil
	}
	s.hub.SendToUser(recipientID, ev)

	return n, nil
}

// ListForUser returns the recipient's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, recipientID uint64, unreadOnly bool) ([]models.Notification, error) {
	notifications, err := s.notifRepo.ListByRecipient(ctx, recipientID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead marks one of the recipient's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID uint64) error {
	if err := s.notifRepo.MarkRead(ctx, id, recipientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification of the recipient as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID uint64) error {
	if err := s.notifRepo.MarkAllRead(ctx, recipientID); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
