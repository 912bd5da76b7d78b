package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/teamboard/teamboard-api/internal/authz"
	"github.com/teamboard/teamboard-api/internal/database"
	apierrors "github.com/teamboard/teamboard-api/internal/errors"
	"github.com/teamboard/teamboard-api/internal/models"
)

// RequireProjectAccess checks that the project exists and the caller is a
// member. A missing project yields 404 and a membership miss yields 403, so
// clients can tell "missing" from "no access".
func RequireProjectAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectIDStr := c.Param("id")
		projectID, err := strconv.ParseUint(projectIDStr, 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid project ID")
			c.Abort()
			return
		}

		userID, exists := GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		var project models.Project
		if err := database.GetDB().First(&project, projectID).Error; err != nil {
			apierrors.NotFound(c, "Project not found")
			c.Abort()
			return
		}

		var member models.ProjectMember
		err = database.GetDB().
			Where("project_id = ? AND user_id = ?", projectID, userID).
			First(&member).Error
		if err != nil {
			apierrors.Forbidden(c, "You are not a member of this project")
			c.Abort()
			return
		}

		c.Set("project", project)
		c.Set("project_member", member)
		c.Next()
	}
}

// RequireProjectManager checks that the caller may manage the project
// (change settings, invite or remove members). Owners and managers qualify.
func RequireProjectManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		member, ok := projectMemberFromContext(c)
		if !ok {
			return
		}

		if !authz.CanManageProject(member.Role) {
			apierrors.Forbidden(c, "Only project owners and managers can perform this action")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireProjectOwner checks that the caller owns the project.
func RequireProjectOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		member, ok := projectMemberFromContext(c)
		if !ok {
			return
		}

		if member.Role != models.RoleOwner {
			apierrors.Forbidden(c, "Only the project owner can perform this action")
			c.Abort()
			return
		}

		c.Next()
	}
}

func projectMemberFromContext(c *gin.Context) (models.ProjectMember, bool) {
	memberInterface, exists := c.Get("project_member")
	if !exists {
		apierrors.Forbidden(c, "Project access required")
		c.Abort()
		return models.ProjectMember{}, false
	}

	member, ok := memberInterface.(models.ProjectMember)
	if !ok {
		apierrors.InternalError(c, "Invalid project member data")
		c.Abort()
		return models.ProjectMember{}, false
	}

	return member, true
}
