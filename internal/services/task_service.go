package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

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
	ErrTaskNotFound         = errors.New("task not found")
	ErrNotProjectMember     = errors.New("user is not a member of the project")
	ErrTaskPermissionDenied = errors.New("user does not have permission to modify this task")
	ErrAssigneeNotMember    = errors.New("assignee is not a member of the project")
	ErrTitleRequired        = errors.New("title is required")
	ErrTitleTooLong         = errors.New("title exceeds maximum length")
	ErrDescriptionTooLong   = errors.New("description exceeds maximum length")
	ErrInvalidStatus        = errors.New("invalid task status")
	ErrInvalidPriority      = errors.New("invalid task priority")
)

// TaskService owns the task state machine: it validates transitions,
// persists them, records the audit trail and enqueues broadcast and
// notification intents in the same transaction.
type TaskService struct {
	repos  *repository.Repositories
	authz  *authz.Service
	logger *zap.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(repos *repository.Repositories, authzService *authz.Service, logger *zap.Logger) *TaskService {
	return &TaskService{
		repos:  repos,
		authz:  authzService,
		logger: logger,
	}
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	ProjectID   uint64
	CreatorID   uint64
	Title       string
	Description string
	Priority    models.TaskPriority
	AssigneeID  *uint64
	DueDate     *time.Time
}

// UpdateFieldsInput carries a partial update. Nil fields are left untouched.
type UpdateFieldsInput struct {
	Title        *string
	Description  *string
	Priority     *models.TaskPriority
	DueDate      *time.Time
	ClearDueDate bool
}

// ListTasksInput represents filters for listing tasks
type ListTasksInput struct {
	UserID        uint64
	ProjectID     *uint64
	AssignedToMe  bool
	DueToday      bool
	Status        *models.TaskStatus
	Priority      *models.TaskPriority
	SortByDueDate bool
	Page          int
	PageSize      int
}

// Create creates a task. The creator must be a project member; an assignee,
// if given, must be one too. Status always starts at TODO and task creation
// itself produces no history entry.
func (s *TaskService) Create(ctx context.Context, input CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if len(title) > constants.MaxTitleLength {
		return nil, ErrTitleTooLong
	}
	if len(input.Description) > constants.MaxDescriptionLength {
		return nil, ErrDescriptionTooLong
	}

	if _, err := s.authz.ResolveRole(ctx, input.ProjectID, input.CreatorID); err != nil {
		if errors.Is(err, authz.ErrNotAMember) {
			return nil, ErrNotProjectMember
		}
		return nil, err
	}

	if input.AssigneeID != nil {
		if err := s.ensureProjectMember(ctx, input.ProjectID, *input.AssigneeID); err != nil {
			return nil, err
		}
	}

	priority := input.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}
	if !models.ValidTaskPriority(priority) {
		return nil, ErrInvalidPriority
	}

	task := &models.Task{
		Title:       title,
		Description: input.Description,
		Status:      models.TaskStatusTodo,
		Priority:    priority,
		AssigneeID:  input.AssigneeID,
		CreatorID:   input.CreatorID,
		ProjectID:   input.ProjectID,
		DueDate:     input.DueDate,
	}

	err := s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Tasks.Create(ctx, task); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		if err := enqueueBroadcast(ctx, tx, realtime.EventTaskCreated, task.ProjectID, task); err != nil {
			return err
		}
		if task.AssigneeID != nil {
			if err := enqueueAssignedNotification(ctx, tx, task); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, task.ID)
}

// UpdateStatus moves a task to a new board stage. Any stage is reachable
// from any other; completed work can be reopened. A same-status call is a
// pure no-op: no write, no history, no broadcast.
func (s *TaskService) UpdateStatus(ctx context.Context, taskID, callerID uint64, newStatus models.TaskStatus) (*models.Task, error) {
	if !models.ValidTaskStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	task, err := s.loadForMutation(ctx, taskID, callerID)
	if err != nil {
		return nil, err
	}

	if task.Status == newStatus {
		return s.reload(ctx, task.ID)
	}

	oldStatus := task.Status
	task.Status = newStatus

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		entry := &models.HistoryEntry{
			TaskID:      task.ID,
			ChangedByID: callerID,
			ChangeType:  models.ChangeStatus,
			OldValue:    string(oldStatus),
			NewValue:    string(newStatus),
		}
		if err := tx.History.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to record history: %w", err)
		}
		return enqueueBroadcast(ctx, tx, realtime.EventTaskStatusChanged, task.ProjectID, task)
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, task.ID)
}

// UpdateAssignee changes or clears a task's assignee. The new assignee must
// be a project member. Only an actual change produces history, a broadcast
// and — when the new value is non-nil — a TaskAssigned notification.
func (s *TaskService) UpdateAssignee(ctx context.Context, taskID, callerID uint64, newAssigneeID *uint64) (*models.Task, error) {
	task, err := s.loadForMutation(ctx, taskID, callerID)
	if err != nil {
		return nil, err
	}

	if newAssigneeID != nil {
		if err := s.ensureProjectMember(ctx, task.ProjectID, *newAssigneeID); err != nil {
			return nil, err
		}
	}

	if sameAssignee(task.AssigneeID, newAssigneeID) {
		return s.reload(ctx, task.ID)
	}

	oldAssigneeID := task.AssigneeID
	task.AssigneeID = newAssigneeID

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("failed to update assignee: %w", err)
		}
		entry := &models.HistoryEntry{
			TaskID:      task.ID,
			ChangedByID: callerID,
			ChangeType:  models.ChangeAssignee,
			OldValue:    formatAssignee(oldAssigneeID),
			NewValue:    formatAssignee(newAssigneeID),
		}
		if err := tx.History.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to record history: %w", err)
		}
		if err := enqueueBroadcast(ctx, tx, realtime.EventTaskAssigned, task.ProjectID, task); err != nil {
			return err
		}
		// Unassignment never notifies.
		if newAssigneeID != nil {
			return enqueueAssignedNotification(ctx, tx, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, task.ID)
}

// UpdateFields applies a partial update. Each provided field that differs
// from the stored value produces its own history entry; omitted fields are
// never touched.
func (s *TaskService) UpdateFields(ctx context.Context, taskID, callerID uint64, input UpdateFieldsInput) (*models.Task, error) {
	task, err := s.loadForMutation(ctx, taskID, callerID)
	if err != nil {
		return nil, err
	}

	var entries []models.HistoryEntry

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		if len(title) > constants.MaxTitleLength {
			return nil, ErrTitleTooLong
		}
		if title != task.Title {
			entries = append(entries, historyEntry(task.ID, callerID, models.ChangeTitle, task.Title, title))
			task.Title = title
		}
	}
	if input.Description != nil {
		if len(*input.Description) > constants.MaxDescriptionLength {
			return nil, ErrDescriptionTooLong
		}
		if *input.Description != task.Description {
			entries = append(entries, historyEntry(task.ID, callerID, models.ChangeDescription, task.Description, *input.Description))
			task.Description = *input.Description
		}
	}
	if input.Priority != nil {
		if !models.ValidTaskPriority(*input.Priority) {
			return nil, ErrInvalidPriority
		}
		if *input.Priority != task.Priority {
			entries = append(entries, historyEntry(task.ID, callerID, models.ChangePriority, string(task.Priority), string(*input.Priority)))
			task.Priority = *input.Priority
		}
	}
	if input.ClearDueDate {
		if task.DueDate != nil {
			entries = append(entries, historyEntry(task.ID, callerID, models.ChangeDueDate, formatDueDate(task.DueDate), formatDueDate(nil)))
			task.DueDate = nil
		}
	} else if input.DueDate != nil {
		if task.DueDate == nil || !task.DueDate.Equal(*input.DueDate) {
			entries = append(entries, historyEntry(task.ID, callerID, models.ChangeDueDate, formatDueDate(task.DueDate), formatDueDate(input.DueDate)))
			task.DueDate = input.DueDate
		}
	}

	if len(entries) == 0 {
		return s.reload(ctx, task.ID)
	}

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		for i := range entries {
			if err := tx.History.Create(ctx, &entries[i]); err != nil {
				return fmt.Errorf("failed to record history: %w", err)
			}
		}
		return enqueueBroadcast(ctx, tx, realtime.EventTaskUpdated, task.ProjectID, task)
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, task.ID)
}

// Delete soft deletes a task. Owners, managers and the creator may delete.
func (s *TaskService) Delete(ctx context.Context, taskID, callerID uint64) error {
	task, err := s.find(ctx, taskID)
	if err != nil {
		return err
	}

	role, err := s.authz.ResolveRole(ctx, task.ProjectID, callerID)
	if err != nil {
		if errors.Is(err, authz.ErrNotAMember) {
			return ErrTaskPermissionDenied
		}
		return err
	}
	if !authz.CanManageProject(role) && task.CreatorID != callerID {
		return ErrTaskPermissionDenied
	}

	return s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Tasks.Delete(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		payload := map[string]uint64{"id": task.ID, "project_id": task.ProjectID}
		return enqueueBroadcast(ctx, tx, realtime.EventTaskDeleted, task.ProjectID, payload)
	})
}

// Get returns a task with related data.
func (s *TaskService) Get(ctx context.Context, taskID uint64) (*models.Task, error) {
	return s.reload(ctx, taskID)
}

// History returns a task's audit trail in append order.
func (s *TaskService) History(ctx context.Context, taskID uint64) ([]models.HistoryEntry, error) {
	if _, err := s.find(ctx, taskID); err != nil {
		return nil, err
	}
	entries, err := s.repos.History.ListByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

// List returns tasks accessible to a user based on the provided filters.
func (s *TaskService) List(ctx context.Context, input ListTasksInput) ([]models.Task, int64, error) {
	projectIDs, err := s.resolveAccessibleProjectIDs(ctx, input.UserID, input.ProjectID)
	if err != nil {
		return nil, 0, err
	}

	if len(projectIDs) == 0 {
		return []models.Task{}, 0, nil
	}

	filter := repository.TaskFilter{
		ProjectIDs:    projectIDs,
		Page:          input.Page,
		PageSize:      input.PageSize,
		SortByDueDate: input.SortByDueDate,
	}

	if input.Status != nil {
		filter.Status = input.Status
	}
	if input.Priority != nil {
		filter.Priority = input.Priority
	}
	if input.AssignedToMe {
		filter.AssigneeID = &input.UserID
	}
	if input.DueToday {
		now := time.Now()
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		endOfDay := startOfDay.Add(24 * time.Hour)
		filter.DueDateFrom = &startOfDay
		filter.DueDateTo = &endOfDay
	}

	tasks, total, err := s.repos.Tasks.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, total, nil
}

// find loads the bare task row.
func (s *TaskService) find(ctx context.Context, taskID uint64) (*models.Task, error) {
	task, err := s.repos.Tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// loadForMutation loads the task and verifies the caller may change its
// status or assignee: owner, manager, or current assignee.
func (s *TaskService) loadForMutation(ctx context.Context, taskID, callerID uint64) (*models.Task, error) {
	task, err := s.find(ctx, taskID)
	if err != nil {
		return nil, err
	}

	role, err := s.authz.ResolveRole(ctx, task.ProjectID, callerID)
	if err != nil {
		if errors.Is(err, authz.ErrNotAMember) {
			return nil, ErrTaskPermissionDenied
		}
		return nil, err
	}
	if !authz.CanMutateTask(role, task, callerID) {
		return nil, ErrTaskPermissionDenied
	}

	return task, nil
}

func (s *TaskService) reload(ctx context.Context, taskID uint64) (*models.Task, error) {
	task, err := s.repos.Tasks.FindByID(ctx, taskID, "Creator", "Assignee")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to reload task: %w", err)
	}
	return task, nil
}

func (s *TaskService) ensureProjectMember(ctx context.Context, projectID, userID uint64) error {
	if _, err := s.authz.ResolveRole(ctx, projectID, userID); err != nil {
		if errors.Is(err, authz.ErrNotAMember) {
			return ErrAssigneeNotMember
		}
		return err
	}
	return nil
}

func (s *TaskService) resolveAccessibleProjectIDs(ctx context.Context, userID uint64, projectID *uint64) ([]uint64, error) {
	if projectID != nil {
		if _, err := s.authz.ResolveRole(ctx, *projectID, userID); err != nil {
			if errors.Is(err, authz.ErrNotAMember) {
				return nil, ErrNotProjectMember
			}
			return nil, err
		}
		return []uint64{*projectID}, nil
	}

	memberships, err := s.repos.Projects.ListMembersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project memberships: %w", err)
	}

	projectIDs := make([]uint64, 0, len(memberships))
	for _, m := range memberships {
		projectIDs = append(projectIDs, m.ProjectID)
	}

	return projectIDs, nil
}

func historyEntry(taskID, changedByID uint64, changeType models.ChangeType, oldValue, newValue string) models.HistoryEntry {
	return models.HistoryEntry{
		TaskID:      taskID,
		ChangedByID: changedByID,
		ChangeType:  changeType,
		OldValue:    oldValue,
		NewValue:    newValue,
	}
}

func sameAssignee(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func formatAssignee(id *uint64) string {
	if id == nil {
		return "null"
	}
	return strconv.FormatUint(*id, 10)
}

func formatDueDate(t *time.Time) string {
	if t == nil {
		return "null"
	}
	return t.Format(time.RFC3339)
}

// enqueueBroadcast records the intent to fan an event out to the project
// room, inside the caller's transaction.
func enqueueBroadcast(ctx context.Context, tx *repository.Repositories, eventType realtime.EventType, projectID uint64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize event payload: %w", err)
	}
	event := &models.OutboxEvent{
		EventType: string(eventType),
		ProjectID: projectID,
		Payload:   string(data),
		Status:    models.OutboxPending,
	}
	if err := tx.Outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue broadcast: %w", err)
	}
	return nil
}

// enqueueAssignedNotification records the intent to notify the task's
// current assignee, inside the caller's transaction.
func enqueueAssignedNotification(ctx context.Context, tx *repository.Repositories, task *models.Task) error {
	taskID := task.ID
	payload := outbox.NotificationPayload{
		Type:    models.NotificationTaskAssigned,
		Message: fmt.Sprintf("You were assigned to task %q", task.Title),
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
