package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/teamboard/teamboard-api/internal/authz"
	"github.com/teamboard/teamboard-api/internal/dto"
	apierrors "github.com/teamboard/teamboard-api/internal/errors"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/repository"
	"github.com/teamboard/teamboard-api/internal/services"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TaskHandlerTestSuite defines the test suite for TaskHandler
type TaskHandlerTestSuite struct {
	suite.Suite
	db      *gorm.DB
	repos   *repository.Repositories
	handler *TaskHandler
}

// SetupTest runs before each test
func (suite *TaskHandlerTestSuite) SetupTest() {
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
	taskService := services.NewTaskService(suite.repos, authzService, logger)
	commentService := services.NewCommentService(suite.repos, authzService, logger)
	suite.handler = NewTaskHandler(taskService, commentService)

	gin.SetMode(gin.TestMode)
}

// TearDownTest runs after each test
func (suite *TaskHandlerTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

// Helper functions to create test data

func (suite *TaskHandlerTestSuite) createTestUser(username string) *models.User {
	user := &models.User{Username: username, PasswordHash: "hashedpassword"}
	suite.Require().NoError(suite.db.Create(user).Error)
	return user
}

func (suite *TaskHandlerTestSuite) createTestProject(name string, ownerID uint64) *models.Project {
	project := &models.Project{Name: name, OwnerID: ownerID, InviteCode: name + "_CODE"}
	suite.Require().NoError(suite.db.Create(project).Error)
	suite.createTestMember(project.ID, ownerID, models.RoleOwner)
	return project
}

func (suite *TaskHandlerTestSuite) createTestMember(projectID, userID uint64, role models.ProjectRole) *models.ProjectMember {
	member := &models.ProjectMember{ProjectID: projectID, UserID: userID, Role: role, JoinedAt: time.Now()}
	suite.Require().NoError(suite.db.Create(member).Error)
	return member
}

func (suite *TaskHandlerTestSuite) createTestTask(title string, creatorID, projectID uint64) *models.Task {
	task := &models.Task{
		Title:     title,
		Status:    models.TaskStatusTodo,
		Priority:  models.TaskPriorityMedium,
		CreatorID: creatorID,
		ProjectID: projectID,
	}
	suite.Require().NoError(suite.db.Create(task).Error)
	return task
}

// createAuthContext builds a gin context with the request and user identity,
// simulating RequireAuth.
func (suite *TaskHandlerTestSuite) createAuthContext(method, url string, body []byte, userID uint64) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set("user_id", userID)

	return c, w
}

// setTaskContext simulates RequireTaskAccess
func (suite *TaskHandlerTestSuite) setTaskContext(c *gin.Context, task models.Task, member models.ProjectMember) {
	c.Set("task", task)
	c.Set("project_member", member)
}

// setProjectContext simulates RequireProjectAccess
func (suite *TaskHandlerTestSuite) setProjectContext(c *gin.Context, project models.Project, member models.ProjectMember) {
	c.Set("project", project)
	c.Set("project_member", member)
}

func (suite *TaskHandlerTestSuite) TestCreate_Success() {
	owner := suite.createTestUser("owner")
	project := suite.createTestProject("Board", owner.ID)
	member, err := suite.repos.Projects.FindMember(context.Background(), project.ID, owner.ID)
	suite.Require().NoError(err)

	body, err := json.Marshal(map[string]any{
		"title":    "Ship the release",
		"priority": "HIGH",
	})
	suite.Require().NoError(err)

	c, w := suite.createAuthContext(http.MethodPost, "/api/projects/1/tasks", body, owner.ID)
	suite.setProjectContext(c, *project, *member)

	suite.handler.Create(c)

	suite.Equal(http.StatusCreated, w.Code)

	var response dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	suite.Equal("Ship the release", response.Title)
	suite.Equal(models.TaskStatusTodo, response.Status)
	suite.Equal(models.TaskPriorityHigh, response.Priority)
}

func (suite *TaskHandlerTestSuite) TestCreate_MissingTitle() {
	owner := suite.createTestUser("owner")
	project := suite.createTestProject("Board", owner.ID)
	member, err := suite.repos.Projects.FindMember(context.Background(), project.ID, owner.ID)
	suite.Require().NoError(err)

	body, err := json.Marshal(map[string]any{"description": "no title"})
	suite.Require().NoError(err)

	c, w := suite.createAuthContext(http.MethodPost, "/api/projects/1/tasks", body, owner.ID)
	suite.setProjectContext(c, *project, *member)

	suite.handler.Create(c)

	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *TaskHandlerTestSuite) TestGet_Success() {
	owner := suite.createTestUser("owner")
	project := suite.createTestProject("Board", owner.ID)
	task := suite.createTestTask("Readable", owner.ID, project.ID)
	member, err := suite.repos.Projects.FindMember(context.Background(), project.ID, owner.ID)
	suite.Require().NoError(err)

	c, w := suite.createAuthContext(http.MethodGet, "/api/tasks/1", nil, owner.ID)
	suite.setTaskContext(c, *task, *member)

	suite.handler.Get(c)

	suite.Equal(http.StatusOK, w.Code)

	var response dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	suite.Equal(task.ID, response.ID)
	suite.Equal("Readable", response.Title)
}

func (suite *TaskHandlerTestSuite) TestUpdateStatus_Success() {
	owner := suite.createTestUser("owner")
	project := suite.createTestProject("Board", owner.ID)
	task := suite.createTestTask("Movable", owner.ID, project.ID)
	member, err := suite.repos.Projects.FindMember(context.Background(), project.ID, owner.ID)
	suite.Require().NoError(err)

	body, err := json.Marshal(map[string]string{"status": "IN_PROGRESS"})
	suite.Require().NoError(err)

	c, w := suite.createAuthContext(http.MethodPatch, "/api/tasks/1/status", body, owner.ID)
	suite.setTaskContext(c, *task, *member)

	suite.handler.UpdateStatus(c)

	suite.Equal(http.StatusOK, w.Code)

	var response dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	suite.Equal(models.TaskStatusInProgress, response.Status)
}

func (suite *TaskHandlerTestSuite) TestUpdateStatus_InvalidStatusRejected() {
	owner := suite.createTestUser("owner")
	project := suite.createTestProject("Board", owner.ID)
	task := suite.createTestTask("Movable", owner.ID, project.ID)
	member, err := suite.repos.Projects.FindMember(context.Background(), project.ID, owner.ID)
	suite.Require().NoError(err)

	body, err := json.Marshal(map[string]string{"status": "SHIPPED"})
	suite.Require().NoError(err)

	c, w := suite.createAuthContext(http.MethodPatch, "/api/tasks/1/status", body, owner.ID)
	suite.setTaskContext(c, *task, *member)

	suite.handler.UpdateStatus(c)

	suite.Equal(http.StatusUnprocessableEntity, w.Code)

	var response apierrors.APIError
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	suite.Equal(apierrors.ErrCodeInvalidOperation, response.Code)
}

func (suite *TaskHandlerTestSuite) TestUpdateStatus_PlainMemberForbidden() {
	owner := suite.createTestUser("owner")
	bystander := suite.createTestUser("bystander")
	project := suite.createTestProject("Board", owner.ID)
	member := suite.createTestMember(project.ID, bystander.ID, models.RoleMember)
	task := suite.createTestTask("Guarded", owner.ID, project.ID)

	body, err := json.Marshal(map[string]string{"status": "DONE"})
	suite.Require().NoError(err)

	c, w := suite.createAuthContext(http.MethodPatch, "/api/tasks/1/status", body, bystander.ID)
	suite.setTaskContext(c, *task, *member)

	suite.handler.UpdateStatus(c)

	suite.Equal(http.StatusForbidden, w.Code)

	var response apierrors.APIError
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	suite.Equal(apierrors.ErrCodeForbidden, response.Code)
}

func (suite *TaskHandlerTestSuite) TestUpdateAssignee_NonMemberRejected() {
	owner := suite.createTestUser("owner")
	outsider := suite.createTestUser("outsider")
	project := suite.createTestProject("Board", owner.ID)
	task := suite.createTestTask("Assignable", owner.ID, project.ID)
	member, err := suite.repos.Projects.FindMember(context.Background(), project.ID, owner.ID)
	suite.Require().NoError(err)

	body, err := json.Marshal(map[string]any{"assignee_id": outsider.ID})
	suite.Require().NoError(err)

	c, w := suite.createAuthContext(http.MethodPatch, "/api/tasks/1/assignee", body, owner.ID)
	suite.setTaskContext(c, *task, *member)

	suite.handler.UpdateAssignee(c)

	suite.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (suite *TaskHandlerTestSuite) TestHistory_ReturnsEntries() {
	owner := suite.createTestUser("owner")
	project := suite.createTestProject("Board", owner.ID)
	task := suite.createTestTask("Audited", owner.ID, project.ID)
	member, err := suite.repos.Projects.FindMember(context.Background(), project.ID, owner.ID)
	suite.Require().NoError(err)

	entry := &models.HistoryEntry{
		TaskID:      task.ID,
		ChangedByID: owner.ID,
		ChangeType:  models.ChangeStatus,
		OldValue:    "TODO",
		NewValue:    "IN_PROGRESS",
	}
	suite.Require().NoError(suite.db.Create(entry).Error)

	c, w := suite.createAuthContext(http.MethodGet, "/api/tasks/1/history", nil, owner.ID)
	suite.setTaskContext(c, *task, *member)

	suite.handler.History(c)

	suite.Equal(http.StatusOK, w.Code)

	var response struct {
		History []dto.HistoryEntryDTO `json:"history"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	suite.Require().Len(response.History, 1)
	suite.Equal(models.ChangeStatus, response.History[0].ChangeType)
}

func (suite *TaskHandlerTestSuite) TestCreateComment_Success() {
	owner := suite.createTestUser("owner")
	project := suite.createTestProject("Board", owner.ID)
	task := suite.createTestTask("Discussed", owner.ID, project.ID)
	member, err := suite.repos.Projects.FindMember(context.Background(), project.ID, owner.ID)
	suite.Require().NoError(err)

	body, err := json.Marshal(map[string]string{"body": "Nice work"})
	suite.Require().NoError(err)

	c, w := suite.createAuthContext(http.MethodPost, "/api/tasks/1/comments", body, owner.ID)
	suite.setTaskContext(c, *task, *member)

	suite.handler.CreateComment(c)

	suite.Equal(http.StatusCreated, w.Code)

	var response dto.CommentDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	suite.Equal("Nice work", response.Body)
}

// TestTaskHandlerTestSuite runs the test suite
func TestTaskHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(TaskHandlerTestSuite))
}
