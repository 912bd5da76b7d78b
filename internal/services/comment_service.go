package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/teamboard/teamboard-api/internal/authz"
	"github.com/teamboard/teamboard-api/internal/constants"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/outbox"
	"github.com/teamboard/teamboard-api/internal/realtime"
	"github.com/teamboard/teamboard-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrCommentBodyRequired = errors.New("comment body is required")
	ErrCommentTooLong      = errors.New("comment exceeds maximum length")
)

// CommentService handles task comments. Any project member may comment;
// comments broadcast to the room and notify the task's assignee.
type CommentService struct {
	repos  *repository.Repositories
	authz  *authz.Service
	logger *zap.Logger
}

// NewCommentService creates a new CommentService.
func NewCommentService(repos *repository.Repositories, authzService *authz.Service, logger *zap.Logger) *CommentService {
	return &CommentService{
		repos:  repos,
		authz:  authzService,
		logger: logger,
	}
}

// Create adds a comment to a task.
func (s *CommentService) Create(ctx context.Context, taskID, authorID uint64, body string) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrCommentBodyRequired
	}
	if len(body) > constants.MaxCommentLength {
		return nil, ErrCommentTooLong
	}

	task, err := s.repos.Tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	if _, err := s.authz.ResolveRole(ctx, task.ProjectID, authorID); err != nil {
		if errors.Is(err, authz.ErrNotAMember) {
			return nil, ErrNotProjectMember
		}
		return nil, err
	}

	comment := &models.Comment{
		TaskID:   taskID,
		AuthorID: authorID,
		Body:     body,
	}

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Comments.Create(ctx, comment); err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		if err := enqueueBroadcast(ctx, tx, realtime.EventCommentAdded, task.ProjectID, comment); err != nil {
			return err
		}
		// Notify the assignee unless they wrote the comment themselves.
		if task.AssigneeID != nil && *task.AssigneeID != authorID {
			return enqueueCommentNotification(ctx, tx, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return comment, nil
}

// ListByTask returns a task's comments, oldest first.
func (s *CommentService) ListByTask(ctx context.Context, taskID uint64) ([]models.Comment, error) {
	if _, err := s.repos.Tasks.FindByID(ctx, taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	comments, err := s.repos.Comments.ListByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

func enqueueCommentNotification(ctx context.Context, tx *repository.Repositories, task *models.Task) error {
	taskID := task.ID
	payload := outbox.NotificationPayload{
		Type:    models.NotificationCommentAdded,
		Message: fmt.Sprintf("New comment on task %q", task.Title),
		TaskID:  &taskID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize notification payload: %w", err)
	}
	event := &models.OutboxEvent{
		EventType:   string(realtime.EventNotificationCreated),
		ProjectID:   task.ProjectID,
		RecipientID: task.AssigneeID,
		Payload:     string(data),
		Status:      models.OutboxPending,
	}
	if err := tx.Outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}
