package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/repository"
	"github.com/teamboard/teamboard-api/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound            = errors.New("project not found")
	ErrInvalidProjectName         = errors.New("project name cannot be empty")
	ErrInviteCodeGenerationFailed = errors.New("failed to generate invite code")
	ErrInvalidInviteCode          = errors.New("invalid invite code")
	ErrAlreadyProjectMember       = errors.New("user is already a member of this project")
	ErrCannotRemoveYourself       = errors.New("cannot remove yourself from the project")
	ErrCannotRemoveOwner          = errors.New("cannot remove the project owner")
	ErrMemberNotFound             = errors.New("project member not found")
	ErrNotOwner                   = errors.New("only the project owner can perform this action")
	ErrInvalidRole                = errors.New("invalid member role")
)

// ProjectService provides business logic for project and membership
// operations.
type ProjectService struct {
	repos         *repository.Repositories
	notifications *NotificationService
	logger        *zap.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(repos *repository.Repositories, notifications *NotificationService, logger *zap.Logger) *ProjectService {
	return &ProjectService{
		repos:         repos,
		notifications: notifications,
		logger:        logger,
	}
}

// CreateProjectInput represents parameters to create a new project.
type CreateProjectInput struct {
	Name    string
	OwnerID uint64
}

// Create creates a project and makes the creator its Owner.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrInvalidProjectName
	}

	inviteCode, err := utils.GenerateInviteCode()
	if err != nil {
		return nil, ErrInviteCodeGenerationFailed
	}

	project := &models.Project{
		Name:       input.Name,
		OwnerID:    input.OwnerID,
		InviteCode: inviteCode,
	}

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Projects.Create(ctx, project); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		member := &models.ProjectMember{
			ProjectID: project.ID,
			UserID:    input.OwnerID,
			Role:      models.RoleOwner,
			JoinedAt:  time.Now(),
		}
		if err := tx.Projects.AddMember(ctx, member); err != nil {
			return fmt.Errorf("failed to add owner to project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return project, nil
}

// ListForUser returns the projects the user belongs to.
func (s *ProjectService) ListForUser(ctx context.Context, userID uint64) ([]models.ProjectMember, error) {
	memberships, err := s.repos.Projects.ListMembersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return memberships, nil
}

// GetWithMembers returns a project and all of its members.
func (s *ProjectService) GetWithMembers(ctx context.Context, projectID uint64) (*models.Project, []models.ProjectMember, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.repos.Projects.ListMembers(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list project members: %w", err)
	}

	return project, members, nil
}

// Rename updates a project's name.
func (s *ProjectService) Rename(ctx context.Context, projectID uint64, name string) (*models.Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidProjectName
	}

	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	project.Name = name
	if err := s.repos.Projects.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	return project, nil
}

// Archive soft deletes a project.
func (s *ProjectService) Archive(ctx context.Context, projectID uint64) error {
	if _, err := s.findProject(ctx, projectID); err != nil {
		return err
	}

	if err := s.repos.Projects.Archive(ctx, projectID); err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}

	return nil
}

// JoinByInvite adds a user to a project via invite code. The project owner
// gets a best-effort notification about the new member.
func (s *ProjectService) JoinByInvite(ctx context.Context, userID uint64, inviteCode string) (*models.Project, error) {
	project, err := s.repos.Projects.FindByInviteCode(ctx, inviteCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidInviteCode
		}
		return nil, fmt.Errorf("failed to find project by invite code: %w", err)
	}

	if _, err := s.repos.Projects.FindMember(ctx, project.ID, userID); err == nil {
		return nil, ErrAlreadyProjectMember
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to verify membership: %w", err)
	}

	member := &models.ProjectMember{
		ProjectID: project.ID,
		UserID:    userID,
		Role:      models.RoleMember,
		JoinedAt:  time.Now(),
	}

	if err := s.repos.Projects.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to add member to project: %w", err)
	}

	s.notifyOwnerOfJoin(ctx, project, userID)

	return project, nil
}

// RegenerateInviteCode generates a new invite code for the project.
func (s *ProjectService) RegenerateInviteCode(ctx context.Context, projectID uint64) (*models.Project, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	code, err := utils.GenerateInviteCode()
	if err != nil {
		return nil, ErrInviteCodeGenerationFailed
	}

	project.InviteCode = code
	if err := s.repos.Projects.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update invite code: %w", err)
	}

	return project, nil
}

// RemoveMember removes a member from the project and clears their task
// assignments there, recording the assignment changes in the audit trail.
func (s *ProjectService) RemoveMember(ctx context.Context, projectID, actorID, targetID uint64) error {
	if targetID == actorID {
		return ErrCannotRemoveYourself
	}

	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID == targetID {
		return ErrCannotRemoveOwner
	}

	if _, err := s.repos.Projects.FindMember(ctx, projectID, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to find member: %w", err)
	}

	return s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Projects.RemoveMember(ctx, projectID, targetID); err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}

		// A task's assignee must remain a member of its project.
		assigned, _, err := tx.Tasks.List(ctx, repository.TaskFilter{
			ProjectIDs: []uint64{projectID},
			AssigneeID: &targetID,
		})
		if err != nil {
			return fmt.Errorf("failed to list assigned tasks: %w", err)
		}
		for i := range assigned {
			task := assigned[i]
			entry := historyEntry(task.ID, actorID, models.ChangeAssignee,
				formatAssignee(task.AssigneeID), formatAssignee(nil))
			task.AssigneeID = nil
			if err := tx.Tasks.Update(ctx, &task); err != nil {
				return fmt.Errorf("failed to unassign task: %w", err)
			}
			if err := tx.History.Create(ctx, &entry); err != nil {
				return fmt.Errorf("failed to record history: %w", err)
			}
		}
		return nil
	})
}

// TransferOwnership makes another member the project Owner. The previous
// owner becomes a Manager. Only the current owner may transfer.
func (s *ProjectService) TransferOwnership(ctx context.Context, projectID, actorID, targetID uint64) (*models.Project, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	if targetID == actorID {
		return project, nil
	}

	if _, err := s.repos.Projects.FindMember(ctx, projectID, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to find member: %w", err)
	}

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Projects.UpdateMemberRole(ctx, projectID, targetID, models.RoleOwner); err != nil {
			return fmt.Errorf("failed to promote new owner: %w", err)
		}
		if err := tx.Projects.UpdateMemberRole(ctx, projectID, actorID, models.RoleManager); err != nil {
			return fmt.Errorf("failed to demote previous owner: %w", err)
		}
		project.OwnerID = targetID
		if err := tx.Projects.Update(ctx, project); err != nil {
			return fmt.Errorf("failed to update project owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return project, nil
}

// ChangeMemberRole switches a member between Manager and Member. Ownership
// moves only through TransferOwnership.
func (s *ProjectService) ChangeMemberRole(ctx context.Context, projectID, targetID uint64, role models.ProjectRole) error {
	if role != models.RoleManager && role != models.RoleMember {
		return ErrInvalidRole
	}

	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID == targetID {
		return ErrInvalidRole
	}

	if _, err := s.repos.Projects.FindMember(ctx, projectID, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to find member: %w", err)
	}

	if err := s.repos.Projects.UpdateMemberRole(ctx, projectID, targetID, role); err != nil {
		return fmt.Errorf("failed to change member role: %w", err)
	}

	return nil
}

func (s *ProjectService) findProject(ctx context.Context, projectID uint64) (*models.Project, error) {
	project, err := s.repos.Projects.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return project, nil
}

func (s *ProjectService) notifyOwnerOfJoin(ctx context.Context, project *models.Project, joinerID uint64) {
	joiner, err := s.repos.Users.FindByID(ctx, joinerID)
	if err != nil {
		s.logger.Warn("failed to load joining user for notification", zap.Error(err))
		return
	}
	message := fmt.Sprintf("%s joined project %q", joiner.Username, project.Name)
	if _, err := s.notifications.Deliver(ctx, project.OwnerID, models.NotificationProjectInvitation, message, nil); err != nil {
		s.logger.Warn("failed to notify project owner of join",
			zap.Uint64("project_id", project.ID),
			zap.Error(err),
		)
	}
}
