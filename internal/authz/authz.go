package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/repository"
	"gorm.io/gorm"
)

// ErrNotAMember is returned when the user has no membership row for the
// project. Callers must keep it distinct from "project not found".
var ErrNotAMember = errors.New("user is not a member of the project")

// Service answers role and capability questions for project members.
type Service struct {
	projectRepo repository.ProjectRepository
}

// NewService creates a new authorization Service.
func NewService(projectRepo repository.ProjectRepository) *Service {
	return &Service{projectRepo: projectRepo}
}

// ResolveRole returns the caller's role within a project, or ErrNotAMember.
func (s *Service) ResolveRole(ctx context.Context, projectID, userID uint64) (models.ProjectRole, error) {
	member, err := s.projectRepo.FindMember(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotAMember
		}
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}
	return member.Role, nil
}

// CanManageProject reports whether the role may change project settings,
// invite or remove members.
func CanManageProject(role models.ProjectRole) bool {
	return role == models.RoleOwner || role == models.RoleManager
}

// CanMutateTask reports whether the caller may change a task's status or
// assignee: owners and managers always, otherwise only the current assignee.
func CanMutateTask(role models.ProjectRole, task *models.Task, userID uint64) bool {
	if CanManageProject(role) {
		return true
	}
	return task.AssigneeID != nil && *task.AssigneeID == userID
}
