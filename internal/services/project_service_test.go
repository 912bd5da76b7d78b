package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/teamboard/teamboard-api/internal/authz"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/realtime"
	"github.com/teamboard/teamboard-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ProjectServiceTestSuite defines the test suite for ProjectService
type ProjectServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	repos   *repository.Repositories
	service *ProjectService
	tasks   *TaskService
	ctx     context.Context
}

// SetupTest runs before each test
func (suite *ProjectServiceTestSuite) SetupTest() {
	var err error

	suite.db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.Require().NoError(err)

	err = suite.db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectMember{},
		&models.Task{},
		&models.HistoryEntry{},
		&models.Comment{},
		&models.Notification{},
		&models.OutboxEvent{},
	)
	suite.Require().NoError(err)

	suite.repos = repository.New(suite.db)
	logger := zap.NewNop()
	notifications := NewNotificationService(suite.repos.Notifications, realtime.NewHub(logger), logger)
	suite.service = NewProjectService(suite.repos, notifications, logger)
	suite.tasks = NewTaskService(suite.repos, authz.NewService(suite.repos.Projects), logger)
	suite.ctx = context.Background()
}

// TearDownTest runs after each test
func (suite *ProjectServiceTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func (suite *ProjectServiceTestSuite) createTestUser(username string) *models.User {
	user := &models.User{
		Username:     username,
		PasswordHash: "hashedpassword",
	}
	suite.Require().NoError(suite.db.Create(user).Error)
	return user
}

func (suite *ProjectServiceTestSuite) createProject(name string, ownerID uint64) *models.Project {
	project, err := suite.service.Create(suite.ctx, CreateProjectInput{
		Name:    name,
		OwnerID: ownerID,
	})
	suite.Require().NoError(err)
	return project
}

func (suite *ProjectServiceTestSuite) addMember(projectID, userID uint64, role models.ProjectRole) {
	member := &models.ProjectMember{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  time.Now(),
	}
	suite.Require().NoError(suite.db.Create(member).Error)
}

func (suite *ProjectServiceTestSuite) TestCreate_MakesCreatorOwner() {
	owner := suite.createTestUser("owner")

	project := suite.createProject("Board", owner.ID)

	suite.NotEmpty(project.InviteCode)
	member, err := suite.repos.Projects.FindMember(suite.ctx, project.ID, owner.ID)
	suite.NoError(err)
	suite.Equal(models.RoleOwner, member.Role)
}

func (suite *ProjectServiceTestSuite) TestCreate_EmptyName() {
	owner := suite.createTestUser("owner")

	_, err := suite.service.Create(suite.ctx, CreateProjectInput{Name: "  ", OwnerID: owner.ID})

	suite.ErrorIs(err, ErrInvalidProjectName)
}

func (suite *ProjectServiceTestSuite) TestJoinByInvite_AddsMemberAndNotifiesOwner() {
	owner := suite.createTestUser("owner")
	joiner := suite.createTestUser("joiner")
	project := suite.createProject("Board", owner.ID)

	joined, err := suite.service.JoinByInvite(suite.ctx, joiner.ID, project.InviteCode)

	suite.NoError(err)
	suite.Equal(project.ID, joined.ID)

	member, err := suite.repos.Projects.FindMember(suite.ctx, project.ID, joiner.ID)
	suite.NoError(err)
	suite.Equal(models.RoleMember, member.Role)

	notifications, err := suite.repos.Notifications.ListByRecipient(suite.ctx, owner.ID, false)
	suite.NoError(err)
	suite.Require().Len(notifications, 1)
	suite.Equal(models.NotificationProjectInvitation, notifications[0].Type)
}

func (suite *ProjectServiceTestSuite) TestJoinByInvite_InvalidCode() {
	joiner := suite.createTestUser("joiner")

	_, err := suite.service.JoinByInvite(suite.ctx, joiner.ID, "NOPE")

	suite.ErrorIs(err, ErrInvalidInviteCode)
}

func (suite *ProjectServiceTestSuite) TestJoinByInvite_AlreadyMember() {
	owner := suite.createTestUser("owner")
	project := suite.createProject("Board", owner.ID)

	_, err := suite.service.JoinByInvite(suite.ctx, owner.ID, project.InviteCode)

	suite.ErrorIs(err, ErrAlreadyProjectMember)
}

func (suite *ProjectServiceTestSuite) TestRegenerateInviteCode_RotatesCode() {
	owner := suite.createTestUser("owner")
	project := suite.createProject("Board", owner.ID)
	oldCode := project.InviteCode

	updated, err := suite.service.RegenerateInviteCode(suite.ctx, project.ID)

	suite.NoError(err)
	suite.NotEqual(oldCode, updated.InviteCode)
}

func (suite *ProjectServiceTestSuite) TestRemoveMember_ClearsTaskAssignments() {
	owner := suite.createTestUser("owner")
	worker := suite.createTestUser("worker")
	project := suite.createProject("Board", owner.ID)
	suite.addMember(project.ID, worker.ID, models.RoleMember)

	task, err := suite.tasks.Create(suite.ctx, CreateTaskInput{
		ProjectID:  project.ID,
		CreatorID:  owner.ID,
		Title:      "Handover",
		AssigneeID: &worker.ID,
	})
	suite.Require().NoError(err)

	err = suite.service.RemoveMember(suite.ctx, project.ID, owner.ID, worker.ID)
	suite.NoError(err)

	_, err = suite.repos.Projects.FindMember(suite.ctx, project.ID, worker.ID)
	suite.Error(err)

	reloaded, err := suite.tasks.Get(suite.ctx, task.ID)
	suite.Require().NoError(err)
	suite.Nil(reloaded.AssigneeID)

	entries, err := suite.repos.History.ListByTaskID(suite.ctx, task.ID)
	suite.NoError(err)
	suite.Require().Len(entries, 1)
	suite.Equal(models.ChangeAssignee, entries[0].ChangeType)
	suite.Equal("null", entries[0].NewValue)
	suite.Equal(owner.ID, entries[0].ChangedByID)
}

func (suite *ProjectServiceTestSuite) TestRemoveMember_CannotRemoveYourself() {
	owner := suite.createTestUser("owner")
	project := suite.createProject("Board", owner.ID)

	err := suite.service.RemoveMember(suite.ctx, project.ID, owner.ID, owner.ID)

	suite.ErrorIs(err, ErrCannotRemoveYourself)
}

func (suite *ProjectServiceTestSuite) TestRemoveMember_CannotRemoveOwner() {
	owner := suite.createTestUser("owner")
	manager := suite.createTestUser("manager")
	project := suite.createProject("Board", owner.ID)
	suite.addMember(project.ID, manager.ID, models.RoleManager)

	err := suite.service.RemoveMember(suite.ctx, project.ID, manager.ID, owner.ID)

	suite.ErrorIs(err, ErrCannotRemoveOwner)
}

func (suite *ProjectServiceTestSuite) TestTransferOwnership_SwapsRoles() {
	owner := suite.createTestUser("owner")
	successor := suite.createTestUser("successor")
	project := suite.createProject("Board", owner.ID)
	suite.addMember(project.ID, successor.ID, models.RoleMember)

	updated, err := suite.service.TransferOwnership(suite.ctx, project.ID, owner.ID, successor.ID)

	suite.NoError(err)
	suite.Equal(successor.ID, updated.OwnerID)

	newOwner, err := suite.repos.Projects.FindMember(suite.ctx, project.ID, successor.ID)
	suite.NoError(err)
	suite.Equal(models.RoleOwner, newOwner.Role)

	previous, err := suite.repos.Projects.FindMember(suite.ctx, project.ID, owner.ID)
	suite.NoError(err)
	suite.Equal(models.RoleManager, previous.Role)
}

func (suite *ProjectServiceTestSuite) TestTransferOwnership_OnlyOwner() {
	owner := suite.createTestUser("owner")
	manager := suite.createTestUser("manager")
	project := suite.createProject("Board", owner.ID)
	suite.addMember(project.ID, manager.ID, models.RoleManager)

	_, err := suite.service.TransferOwnership(suite.ctx, project.ID, manager.ID, manager.ID)

	suite.ErrorIs(err, ErrNotOwner)
}

func (suite *ProjectServiceTestSuite) TestChangeMemberRole_CannotTouchOwner() {
	owner := suite.createTestUser("owner")
	project := suite.createProject("Board", owner.ID)

	err := suite.service.ChangeMemberRole(suite.ctx, project.ID, owner.ID, models.RoleMember)

	suite.ErrorIs(err, ErrInvalidRole)
}

func (suite *ProjectServiceTestSuite) TestChangeMemberRole_PromotesToManager() {
	owner := suite.createTestUser("owner")
	worker := suite.createTestUser("worker")
	project := suite.createProject("Board", owner.ID)
	suite.addMember(project.ID, worker.ID, models.RoleMember)

	err := suite.service.ChangeMemberRole(suite.ctx, project.ID, worker.ID, models.RoleManager)

	suite.NoError(err)
	member, err := suite.repos.Projects.FindMember(suite.ctx, project.ID, worker.ID)
	suite.NoError(err)
	suite.Equal(models.RoleManager, member.Role)
}

// TestProjectServiceTestSuite runs the test suite
func TestProjectServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ProjectServiceTestSuite))
}
