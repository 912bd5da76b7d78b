package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/teamboard/teamboard-api/internal/authz"
	"github.com/teamboard/teamboard-api/internal/constants"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// CommentServiceTestSuite defines the test suite for CommentService
type CommentServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	repos   *repository.Repositories
	service *CommentService
	tasks   *TaskService
	ctx     context.Context
}

// SetupTest runs before each test
func (suite *CommentServiceTestSuite) SetupTest() {
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
	authzService := authz.NewService(suite.repos.Projects)
	suite.service = NewCommentService(suite.repos, authzService, logger)
	suite.tasks = NewTaskService(suite.repos, authzService, logger)
	suite.ctx = context.Background()
}

// TearDownTest runs after each test
func (suite *CommentServiceTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func (suite *CommentServiceTestSuite) createTestUser(username string) *models.User {
	user := &models.User{Username: username, PasswordHash: "hashedpassword"}
	suite.Require().NoError(suite.db.Create(user).Error)
	return user
}

func (suite *CommentServiceTestSuite) createBoard(ownerID uint64) *models.Project {
	project := &models.Project{Name: "Board", OwnerID: ownerID, InviteCode: "BOARD_CODE"}
	suite.Require().NoError(suite.db.Create(project).Error)
	suite.addMember(project.ID, ownerID, models.RoleOwner)
	return project
}

func (suite *CommentServiceTestSuite) addMember(projectID, userID uint64, role models.ProjectRole) {
	member := &models.ProjectMember{ProjectID: projectID, UserID: userID, Role: role, JoinedAt: time.Now()}
	suite.Require().NoError(suite.db.Create(member).Error)
}

func (suite *CommentServiceTestSuite) recipientRows() []models.OutboxEvent {
	events, err := suite.repos.Outbox.ListPending(suite.ctx, 100)
	suite.Require().NoError(err)
	var rows []models.OutboxEvent
	for _, ev := range events {
		if ev.RecipientID != nil {
			rows = append(rows, ev)
		}
	}
	return rows
}

func (suite *CommentServiceTestSuite) TestCreate_BroadcastsAndNotifiesAssignee() {
	owner := suite.createTestUser("owner")
	worker := suite.createTestUser("worker")
	project := suite.createBoard(owner.ID)
	suite.addMember(project.ID, worker.ID, models.RoleMember)

	task, err := suite.tasks.Create(suite.ctx, CreateTaskInput{
		ProjectID:  project.ID,
		CreatorID:  owner.ID,
		Title:      "Discussed task",
		AssigneeID: &worker.ID,
	})
	suite.Require().NoError(err)
	before := len(suite.recipientRows())

	comment, err := suite.service.Create(suite.ctx, task.ID, owner.ID, "Looks good to me")

	suite.NoError(err)
	suite.Equal("Looks good to me", comment.Body)

	rows := suite.recipientRows()
	suite.Require().Len(rows, before+1)
	suite.Equal(worker.ID, *rows[len(rows)-1].RecipientID)
}

func (suite *CommentServiceTestSuite) TestCreate_AssigneeCommentingSkipsOwnNotification() {
	owner := suite.createTestUser("owner")
	worker := suite.createTestUser("worker")
	project := suite.createBoard(owner.ID)
	suite.addMember(project.ID, worker.ID, models.RoleMember)

	task, err := suite.tasks.Create(suite.ctx, CreateTaskInput{
		ProjectID:  project.ID,
		CreatorID:  owner.ID,
		Title:      "Discussed task",
		AssigneeID: &worker.ID,
	})
	suite.Require().NoError(err)
	before := len(suite.recipientRows())

	_, err = suite.service.Create(suite.ctx, task.ID, worker.ID, "On it")

	suite.NoError(err)
	suite.Len(suite.recipientRows(), before)
}

func (suite *CommentServiceTestSuite) TestCreate_NonMemberDenied() {
	owner := suite.createTestUser("owner")
	outsider := suite.createTestUser("outsider")
	project := suite.createBoard(owner.ID)

	task, err := suite.tasks.Create(suite.ctx, CreateTaskInput{
		ProjectID: project.ID,
		CreatorID: owner.ID,
		Title:     "Private task",
	})
	suite.Require().NoError(err)

	_, err = suite.service.Create(suite.ctx, task.ID, outsider.ID, "Let me in")

	suite.ErrorIs(err, ErrNotProjectMember)
}

func (suite *CommentServiceTestSuite) TestCreate_EmptyBody() {
	owner := suite.createTestUser("owner")
	project := suite.createBoard(owner.ID)
	task, err := suite.tasks.Create(suite.ctx, CreateTaskInput{
		ProjectID: project.ID,
		CreatorID: owner.ID,
		Title:     "Task",
	})
	suite.Require().NoError(err)

	_, err = suite.service.Create(suite.ctx, task.ID, owner.ID, "   ")

	suite.ErrorIs(err, ErrCommentBodyRequired)
}

func (suite *CommentServiceTestSuite) TestCreate_TooLong() {
	owner := suite.createTestUser("owner")
	project := suite.createBoard(owner.ID)
	task, err := suite.tasks.Create(suite.ctx, CreateTaskInput{
		ProjectID: project.ID,
		CreatorID: owner.ID,
		Title:     "Task",
	})
	suite.Require().NoError(err)

	_, err = suite.service.Create(suite.ctx, task.ID, owner.ID, strings.Repeat("a", constants.MaxCommentLength+1))

	suite.ErrorIs(err, ErrCommentTooLong)
}

func (suite *CommentServiceTestSuite) TestListByTask_OldestFirst() {
	owner := suite.createTestUser("owner")
	project := suite.createBoard(owner.ID)
	task, err := suite.tasks.Create(suite.ctx, CreateTaskInput{
		ProjectID: project.ID,
		CreatorID: owner.ID,
		Title:     "Task",
	})
	suite.Require().NoError(err)

	_, err = suite.service.Create(suite.ctx, task.ID, owner.ID, "first")
	suite.Require().NoError(err)
	_, err = suite.service.Create(suite.ctx, task.ID, owner.ID, "second")
	suite.Require().NoError(err)

	comments, err := suite.service.ListByTask(suite.ctx, task.ID)

	suite.NoError(err)
	suite.Require().Len(comments, 2)
	suite.Equal("first", comments[0].Body)
	suite.Equal("second", comments[1].Body)
}

// TestCommentServiceTestSuite runs the test suite
func TestCommentServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CommentServiceTestSuite))
}
