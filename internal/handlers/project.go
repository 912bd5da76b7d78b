package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/teamboard/teamboard-api/internal/dto"
	apierrors "github.com/teamboard/teamboard-api/internal/errors"
	"github.com/teamboard/teamboard-api/internal/middleware"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/services"
)

// ProjectHandler coordinates project and membership HTTP handlers.
type ProjectHandler struct {
	projectService *services.ProjectService
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
	}
}

// Create creates a project owned by the caller.
func (h *ProjectHandler) Create(c *gin.Context) {
	type CreateProjectRequest struct {
		Name string `json:"name" binding:"required,max=100"`
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), services.CreateProjectInput{
		Name:    req.Name,
		OwnerID: userID,
	})
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToProjectDTO(*project, true))
}

// List returns the projects the caller belongs to.
func (h *ProjectHandler) List(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	memberships, err := h.projectService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		apierrors.InternalError(c, "Failed to list projects")
		return
	}

	type projectEntry struct {
		dto.ProjectDTO
		Role models.ProjectRole `json:"role"`
	}

	entries := make([]projectEntry, 0, len(memberships))
	for _, m := range memberships {
		entries = append(entries, projectEntry{
			ProjectDTO: dto.ToProjectDTO(m.Project, m.Role != models.RoleMember),
			Role:       m.Role,
		})
	}

	c.JSON(http.StatusOK, gin.H{"projects": entries})
}

// Get returns a project and its member list. The invite code is only shown
// to owners and managers.
func (h *ProjectHandler) Get(c *gin.Context) {
	project, member, ok := projectFromContext(c)
	if !ok {
		return
	}

	_, members, err := h.projectService.GetWithMembers(c.Request.Context(), project.ID)
	if err != nil {
		respondProjectError(c, err)
		return
	}

	memberDTOs := make([]dto.ProjectMemberDTO, 0, len(members))
	for _, m := range members {
		memberDTOs = append(memberDTOs, dto.ToProjectMemberDTO(m))
	}

	showInvite := member.Role == models.RoleOwner || member.Role == models.RoleManager
	c.JSON(http.StatusOK, gin.H{
		"project": dto.ToProjectDTO(project, showInvite),
		"members": memberDTOs,
	})
}

// Rename updates the project name. Owners and managers only.
func (h *ProjectHandler) Rename(c *gin.Context) {
	type RenameRequest struct {
		Name string `json:"name" binding:"required,max=100"`
	}

	project, _, ok := projectFromContext(c)
	if !ok {
		return
	}

	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	updated, err := h.projectService.Rename(c.Request.Context(), project.ID, req.Name)
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*updated, true))
}

// Archive soft deletes the project. Owner only.
func (h *ProjectHandler) Archive(c *gin.Context) {
	project, _, ok := projectFromContext(c)
	if !ok {
		return
	}

	if err := h.projectService.Archive(c.Request.Context(), project.ID); err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Project archived"})
}

// Join adds the caller to a project by invite code.
func (h *ProjectHandler) Join(c *gin.Context) {
	type JoinRequest struct {
		InviteCode string `json:"invite_code" binding:"required"`
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.JoinByInvite(c.Request.Context(), userID, req.InviteCode)
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project, false))
}

// RegenerateInviteCode rotates the project's invite code. Owners and
// managers only.
func (h *ProjectHandler) RegenerateInviteCode(c *gin.Context) {
	project, _, ok := projectFromContext(c)
	if !ok {
		return
	}

	updated, err := h.projectService.RegenerateInviteCode(c.Request.Context(), project.ID)
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*updated, true))
}

// RemoveMember removes a member from the project and clears their task
// assignments. Owners and managers only.
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	project, member, ok := projectFromContext(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid user ID")
		return
	}

	if err := h.projectService.RemoveMember(c.Request.Context(), project.ID, member.UserID, targetID); err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// TransferOwnership makes another member the project owner. Owner only.
func (h *ProjectHandler) TransferOwnership(c *gin.Context) {
	type TransferRequest struct {
		UserID uint64 `json:"user_id" binding:"required"`
	}

	project, member, ok := projectFromContext(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	updated, err := h.projectService.TransferOwnership(c.Request.Context(), project.ID, member.UserID, req.UserID)
	if err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*updated, false))
}

// ChangeMemberRole switches a member between manager and member. Owners and
// managers only.
func (h *ProjectHandler) ChangeMemberRole(c *gin.Context) {
	type ChangeRoleRequest struct {
		Role models.ProjectRole `json:"role" binding:"required"`
	}

	project, _, ok := projectFromContext(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid user ID")
		return
	}

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	if err := h.projectService.ChangeMemberRole(c.Request.Context(), project.ID, targetID, req.Role); err != nil {
		respondProjectError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member role updated"})
}

func projectFromContext(c *gin.Context) (models.Project, models.ProjectMember, bool) {
	projectInterface, exists := c.Get("project")
	if !exists {
		apierrors.InternalError(c, "Project not loaded")
		return models.Project{}, models.ProjectMember{}, false
	}
	project, ok := projectInterface.(models.Project)
	if !ok {
		apierrors.InternalError(c, "Invalid project data")
		return models.Project{}, models.ProjectMember{}, false
	}

	memberInterface, exists := c.Get("project_member")
	if !exists {
		apierrors.InternalError(c, "Project member not loaded")
		return models.Project{}, models.ProjectMember{}, false
	}
	member, ok := memberInterface.(models.ProjectMember)
	if !ok {
		apierrors.InternalError(c, "Invalid project member data")
		return models.Project{}, models.ProjectMember{}, false
	}

	return project, member, true
}

func respondProjectError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrProjectNotFound):
		apierrors.NotFound(c, "Project not found")
	case errors.Is(err, services.ErrInvalidProjectName):
		apierrors.BadRequest(c, "Project name cannot be empty")
	case errors.Is(err, services.ErrInvalidInviteCode):
		apierrors.NotFound(c, "Invalid invite code")
	case errors.Is(err, services.ErrAlreadyProjectMember):
		apierrors.Conflict(c, "You are already a member of this project")
	case errors.Is(err, services.ErrCannotRemoveYourself):
		apierrors.InvalidOperation(c, "You cannot remove yourself from the project")
	case errors.Is(err, services.ErrCannotRemoveOwner):
		apierrors.InvalidOperation(c, "The project owner cannot be removed")
	case errors.Is(err, services.ErrMemberNotFound):
		apierrors.NotFound(c, "Project member not found")
	case errors.Is(err, services.ErrNotOwner):
		apierrors.Forbidden(c, "Only the project owner can perform this action")
	case errors.Is(err, services.ErrInvalidRole):
		apierrors.BadRequest(c, "Invalid member role")
	case errors.Is(err, services.ErrInviteCodeGenerationFailed):
		apierrors.InternalError(c, "Failed to generate invite code")
	default:
		apierrors.InternalError(c, "")
	}
}
