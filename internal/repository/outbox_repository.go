package repository

import (
	"context"

	"github.com/teamboard/teamboard-api/internal/models"
	"gorm.io/gorm"
)

// GormOutboxRepository is a GORM implementation of OutboxRepository
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Create records a pending side-effect
func (r *GormOutboxRepository) Create(ctx context.Context, event *models.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListPending returns up to limit pending events, oldest first
func (r *GormOutboxRepository) ListPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.OutboxPending).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// MarkSent marks an event as published
func (r *GormOutboxRepository) MarkSent(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Update("status", models.OutboxSent).Error
}

// MarkFailed bumps the retry count; once the count exceeds maxRetries the
// event is parked as failed and never retried again.
func (r *GormOutboxRepository) MarkFailed(ctx context.Context, id uint64, maxRetries int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.OutboxEvent
		if err := tx.First(&event, id).Error; err != nil {
			return err
		}
		event.RetryCount++
		if event.RetryCount >= maxRetries {
			event.Status = models.OutboxFailed
		}
		return tx.Save(&event).Error
	})
}
