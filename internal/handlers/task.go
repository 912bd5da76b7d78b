package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teamboard/teamboard-api/internal/dto"
	apierrors "github.com/teamboard/teamboard-api/internal/errors"
	"github.com/teamboard/teamboard-api/internal/middleware"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/services"
	"github.com/teamboard/teamboard-api/internal/utils"
)

// TaskHandler coordinates task, history and comment HTTP handlers.
type TaskHandler struct {
	taskService    *services.TaskService
	commentService *services.CommentService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService *services.TaskService, commentService *services.CommentService) *TaskHandler {
	return &TaskHandler{
		taskService:    taskService,
		commentService: commentService,
	}
}

// Create creates a task on the project from the route. The caller must be a
// project member; status always starts at TODO.
func (h *TaskHandler) Create(c *gin.Context) {
	type CreateTaskRequest struct {
		Title       string     `json:"title" binding:"required"`
		Description string     `json:"description"`
		Priority    string     `json:"priority"`
		AssigneeID  *uint64    `json:"assignee_id"`
		DueDate     *time.Time `json:"due_date"`
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	project, _, ok := projectFromContext(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), services.CreateTaskInput{
		ProjectID:   project.ID,
		CreatorID:   userID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    models.TaskPriority(req.Priority),
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
	})
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task))
}

// List returns tasks across the caller's projects, filtered and paginated.
// Supported query parameters: project_id, status, priority, assigned_to_me,
// due_today, sort=due_date, page, page_size.
func (h *TaskHandler) List(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	pagination := utils.GetPaginationParams(c)
	input := services.ListTasksInput{
		UserID:        userID,
		AssignedToMe:  c.Query("assigned_to_me") == "true",
		DueToday:      c.Query("due_today") == "true",
		SortByDueDate: c.Query("sort") == "due_date",
		Page:          pagination.Page,
		PageSize:      pagination.Limit,
	}

	if raw := c.Query("project_id"); raw != "" {
		projectID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid project ID")
			return
		}
		input.ProjectID = &projectID
	}
	if raw := c.Query("status"); raw != "" {
		status := models.TaskStatus(raw)
		if !models.ValidTaskStatus(status) {
			apierrors.BadRequest(c, "Invalid task status")
			return
		}
		input.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority := models.TaskPriority(raw)
		if !models.ValidTaskPriority(priority) {
			apierrors.BadRequest(c, "Invalid task priority")
			return
		}
		input.Priority = &priority
	}

	tasks, total, err := h.taskService.List(c.Request.Context(), input)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": dto.ToTaskDTOs(tasks),
		"pagination": utils.PaginationResponse{
			Page:  pagination.Page,
			Limit: pagination.Limit,
			Total: total,
		},
	})
}

// Get returns a single task. Access is enforced by RequireTaskAccess.
func (h *TaskHandler) Get(c *gin.Context) {
	task, ok := taskFromContext(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(task))
}

// UpdateStatus moves a task to a new board stage.
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	type UpdateStatusRequest struct {
		Status models.TaskStatus `json:"status" binding:"required"`
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	task, ok := taskFromContext(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	updated, err := h.taskService.UpdateStatus(c.Request.Context(), task.ID, userID, req.Status)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*updated))
}

// UpdateAssignee changes or clears the task's assignee. A null assignee_id
// unassigns the task.
func (h *TaskHandler) UpdateAssignee(c *gin.Context) {
	type UpdateAssigneeRequest struct {
		AssigneeID *uint64 `json:"assignee_id"`
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	task, ok := taskFromContext(c)
	if !ok {
		return
	}

	var req UpdateAssigneeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	updated, err := h.taskService.UpdateAssignee(c.Request.Context(), task.ID, userID, req.AssigneeID)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*updated))
}

// Update applies a partial update to the task's editable fields. Omitted
// fields are left untouched; set clear_due_date to remove the due date.
func (h *TaskHandler) Update(c *gin.Context) {
	type UpdateTaskRequest struct {
		Title        *string    `json:"title"`
		Description  *string    `json:"description"`
		Priority     *string    `json:"priority"`
		DueDate      *time.Time `json:"due_date"`
		ClearDueDate bool       `json:"clear_due_date"`
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	task, ok := taskFromContext(c)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	input := services.UpdateFieldsInput{
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      req.DueDate,
		ClearDueDate: req.ClearDueDate,
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		input.Priority = &priority
	}

	updated, err := h.taskService.UpdateFields(c.Request.Context(), task.ID, userID, input)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*updated))
}

// Delete soft deletes the task. Owners, managers and the creator may delete.
func (h *TaskHandler) Delete(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	task, ok := taskFromContext(c)
	if !ok {
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), task.ID, userID); err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

// History returns the task's audit trail in append order.
func (h *TaskHandler) History(c *gin.Context) {
	task, ok := taskFromContext(c)
	if !ok {
		return
	}

	entries, err := h.taskService.History(c.Request.Context(), task.ID)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": dto.ToHistoryEntryDTOs(entries)})
}

// CreateComment adds a comment to the task.
func (h *TaskHandler) CreateComment(c *gin.Context) {
	type CreateCommentRequest struct {
		Body string `json:"body" binding:"required"`
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	task, ok := taskFromContext(c)
	if !ok {
		return
	}

	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	comment, err := h.commentService.Create(c.Request.Context(), task.ID, userID, req.Body)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToCommentDTO(*comment))
}

// ListComments returns the task's comments, oldest first.
func (h *TaskHandler) ListComments(c *gin.Context) {
	task, ok := taskFromContext(c)
	if !ok {
		return
	}

	comments, err := h.commentService.ListByTask(c.Request.Context(), task.ID)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"comments": dto.ToCommentDTOs(comments)})
}

func taskFromContext(c *gin.Context) (models.Task, bool) {
	taskInterface, exists := c.Get("task")
	if !exists {
		apierrors.InternalError(c, "Task not loaded")
		return models.Task{}, false
	}
	task, ok := taskInterface.(models.Task)
	if !ok {
		apierrors.InternalError(c, "Invalid task data")
		return models.Task{}, false
	}
	return task, true
}

func respondTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		apierrors.NotFound(c, "Task not found")
	case errors.Is(err, services.ErrNotProjectMember):
		apierrors.Forbidden(c, "You are not a member of this project")
	case errors.Is(err, services.ErrTaskPermissionDenied):
		apierrors.Forbidden(c, "You do not have permission to modify this task")
	case errors.Is(err, services.ErrAssigneeNotMember):
		apierrors.InvalidOperation(c, "Assignee must be a member of the project")
	case errors.Is(err, services.ErrTitleRequired):
		apierrors.BadRequest(c, "Title is required")
	case errors.Is(err, services.ErrTitleTooLong):
		apierrors.BadRequest(c, "Title exceeds maximum length")
	case errors.Is(err, services.ErrDescriptionTooLong):
		apierrors.BadRequest(c, "Description exceeds maximum length")
	case errors.Is(err, services.ErrInvalidStatus):
		apierrors.InvalidOperation(c, "Invalid task status")
	case errors.Is(err, services.ErrInvalidPriority):
		apierrors.BadRequest(c, "Invalid task priority")
	case errors.Is(err, services.ErrCommentBodyRequired):
		apierrors.BadRequest(c, "Comment body is required")
	case errors.Is(err, services.ErrCommentTooLong):
		apierrors.BadRequest(c, "Comment exceeds maximum length")
	default:
		apierrors.InternalError(c, "")
	}
}
