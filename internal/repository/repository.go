package repository

import (
	"context"
	"time"

	"github.com/teamboard/teamboard-api/internal/models"
	"gorm.io/gorm"
)

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create creates a new task
	Create(ctx context.Context, task *models.Task) error

	// FindByID finds a task by ID with optional preloading
	FindByID(ctx context.Context, id uint64, preload ...string) (*models.Task, error)

	// List retrieves tasks with filtering and pagination
	List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error)

	// Update persists a task. Single update statement; concurrent writers
	// resolve by last write wins.
	Update(ctx context.Context, task *models.Task) error

	// Delete soft deletes a task
	Delete(ctx context.Context, id uint64) error
}

// TaskFilter holds filtering options for listing tasks
type TaskFilter struct {
	ProjectIDs  []uint64
	Status      *models.TaskStatus
	Priority    *models.TaskPriority
	CreatorID   *uint64
	AssigneeID  *uint64
	DueDateFrom *time.Time
	DueDateTo   *time.Time
	SortByDueDate bool
	Page        int
	PageSize    int
}

// ProjectRepository defines the interface for project and membership data access
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id uint64) (*models.Project, error)
	FindByInviteCode(ctx context.Context, code string) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error

	// Archive soft deletes a project; tasks and memberships stay in place.
	Archive(ctx context.Context, id uint64) error

	AddMember(ctx context.Context, member *models.ProjectMember) error
	RemoveMember(ctx context.Context, projectID, userID uint64) error
	FindMember(ctx context.Context, projectID, userID uint64) (*models.ProjectMember, error)
	UpdateMemberRole(ctx context.Context, projectID, userID uint64, role models.ProjectRole) error
	ListMembers(ctx context.Context, projectID uint64) ([]models.ProjectMember, error)
	ListMembersByUserID(ctx context.Context, userID uint64) ([]models.ProjectMember, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uint64) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// HistoryRepository records the append-only audit trail. Entries are only
// ever created; there is no update or delete.
type HistoryRepository interface {
	Create(ctx context.Context, entry *models.HistoryEntry) error
	ListByTaskID(ctx context.Context, taskID uint64) ([]models.HistoryEntry, error)
}

// CommentRepository defines the interface for comment data access
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByTaskID(ctx context.Context, taskID uint64) ([]models.Comment, error)
}

// NotificationRepository defines the interface for notification data access
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID uint64, unreadOnly bool) ([]models.Notification, error)

	// MarkRead flips the read flag; scoped to the recipient so nobody can
	// mark another user's notifications.
	MarkRead(ctx context.Context, id, recipientID uint64) error
	MarkAllRead(ctx context.Context, recipientID uint64) error
}

// OutboxRepository defines the interface for pending side-effect records
type OutboxRepository interface {
	Create(ctx context.Context, event *models.OutboxEvent) error
	ListPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkSent(ctx context.Context, id uint64) error

	// MarkFailed bumps the retry count and flips the row to failed once it
	// exceeds maxRetries.
	MarkFailed(ctx context.Context, id uint64, maxRetries int) error
}

// Repositories bundles all repositories over one database handle.
type Repositories struct {
	db *gorm.DB

	Users         UserRepository
	Projects      ProjectRepository
	Tasks         TaskRepository
	History       HistoryRepository
	Comments      CommentRepository
	Notifications NotificationRepository
	Outbox        OutboxRepository
}

// New builds the GORM-backed repository set.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		Users:         NewUserRepository(db),
		Projects:      NewProjectRepository(db),
		Tasks:         NewTaskRepository(db),
		History:       NewHistoryRepository(db),
		Comments:      NewCommentRepository(db),
		Notifications: NewNotificationRepository(db),
		Outbox:        NewOutboxRepository(db),
	}
}

// WithTx runs fn inside a single database transaction. The repository set
// passed to fn is bound to the transaction handle, so every write in fn
// commits or rolls back together.
func (r *Repositories) WithTx(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
