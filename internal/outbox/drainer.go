package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teamboard/teamboard-api/internal/metrics"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/realtime"
	"github.com/teamboard/teamboard-api/internal/repository"
	"go.uber.org/zap"
)

// Deliverer creates a notification record and pushes it to the recipient's
// sessions. Implemented by services.NotificationService.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID uint64, ntype models.NotificationType, message string, taskID *uint64) (*models.Notification, error)
}

// Drainer publishes pending outbox rows: project-addressed rows fan out to
// the room, recipient-addressed rows become notifications. Task mutations
// commit their outbox rows in the mutation transaction, so a crash between
// commit and dispatch loses nothing.
type Drainer struct {
	outboxRepo    repository.OutboxRepository
	hub           *realtime.Hub
	notifications Deliverer
	logger        *zap.Logger

	interval   time.Duration
	batchSize  int
	maxRetries int
}

// NewDrainer creates a Drainer with default batching.
func NewDrainer(outboxRepo repository.OutboxRepository, hub *realtime.Hub, notifications Deliverer, logger *zap.Logger, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Drainer{
		outboxRepo:    outboxRepo,
		hub:           hub,
		notifications: notifications,
		logger:        logger,
		interval:      interval,
		batchSize:     100,
		maxRetries:    5,
	}
}

// Start runs the drain loop until ctx is cancelled. Run it in a goroutine.
func (d *Drainer) Start(ctx context.Context) {
	d.logger.Info("starting outbox drainer",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox drainer stopped")
			return
		case <-ticker.C:
			d.DrainOnce(ctx)
		}
	}
}

// DrainOnce processes one batch of pending events.
func (d *Drainer) DrainOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.OutboxDrainDuration.Observe(time.Since(start).Seconds())
	}()

	events, err := d.outboxRepo.ListPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to list pending outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := d.publish(ctx, &event); err != nil {
			d.logger.Error("failed to publish outbox event",
				zap.Uint64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			metrics.OutboxDrained.WithLabelValues("failed").Inc()
			if err := d.outboxRepo.MarkFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("failed to mark outbox event as failed",
					zap.Uint64("event_id", event.ID),
					zap.Error(err),
				)
			}
			continue
		}

		metrics.OutboxDrained.WithLabelValues("sent").Inc()
		if err := d.outboxRepo.MarkSent(ctx, event.ID); err != nil {
			d.logger.Error("failed to mark outbox event as sent",
				zap.Uint64("event_id", event.ID),
				zap.Error(err),
			)
		}
	}
}

func (d *Drainer) publish(ctx context.Context, event *models.OutboxEvent) error {
	if event.RecipientID != nil {
		var payload NotificationPayload
		if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
			return err
		}
		_, err := d.notifications.Deliver(ctx, *event.RecipientID, payload.Type, payload.Message, payload.TaskID)
		return err
	}

	ev := realtime.Event{
		Type: realtime.EventType(event.EventType),
		Data: json.RawMessage(event.Payload),
	}
	// Per-session delivery is best effort; the hub logs and counts drops.
	d.hub.BroadcastToProject(event.ProjectID, ev)
	return nil
}
