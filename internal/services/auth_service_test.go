package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/teamboard/teamboard-api/internal/models"
	"github.com/teamboard/teamboard-api/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// AuthServiceTestSuite defines the test suite for AuthService
type AuthServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *AuthService
	ctx     context.Context
}

// SetupTest runs before each test
func (suite *AuthServiceTestSuite) SetupTest() {
	var err error

	suite.db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.Require().NoError(err)

	err = suite.db.AutoMigrate(&models.User{})
	suite.Require().NoError(err)

	suite.service = NewAuthService(repository.NewUserRepository(suite.db))
	suite.ctx = context.Background()
}

// TearDownTest runs after each test
func (suite *AuthServiceTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func (suite *AuthServiceTestSuite) TestSignup_Success() {
	user, err := suite.service.Signup(suite.ctx, SignupInput{
		Username: "alice",
		Password: "supersecret",
	})

	suite.NoError(err)
	suite.Equal("alice", user.Username)
	suite.NotEqual("supersecret", user.PasswordHash)
}

func (suite *AuthServiceTestSuite) TestSignup_DuplicateUsername() {
	_, err := suite.service.Signup(suite.ctx, SignupInput{Username: "alice", Password: "supersecret"})
	suite.Require().NoError(err)

	_, err = suite.service.Signup(suite.ctx, SignupInput{Username: "alice", Password: "othersecret"})

	suite.ErrorIs(err, ErrUsernameTaken)
}

func (suite *AuthServiceTestSuite) TestSignup_ShortPassword() {
	_, err := suite.service.Signup(suite.ctx, SignupInput{Username: "alice", Password: "short"})

	suite.ErrorIs(err, ErrPasswordTooShort)
}

func (suite *AuthServiceTestSuite) TestLogin_Success() {
	created, err := suite.service.Signup(suite.ctx, SignupInput{Username: "alice", Password: "supersecret"})
	suite.Require().NoError(err)

	user, err := suite.service.Login(suite.ctx, LoginInput{Username: "alice", Password: "supersecret"})

	suite.NoError(err)
	suite.Equal(created.ID, user.ID)
}

func (suite *AuthServiceTestSuite) TestLogin_WrongPassword() {
	_, err := suite.service.Signup(suite.ctx, SignupInput{Username: "alice", Password: "supersecret"})
	suite.Require().NoError(err)

	_, err = suite.service.Login(suite.ctx, LoginInput{Username: "alice", Password: "wrong"})

	suite.ErrorIs(err, ErrInvalidCredentials)
}

func (suite *AuthServiceTestSuite) TestLogin_UnknownUser() {
	_, err := suite.service.Login(suite.ctx, LoginInput{Username: "ghost", Password: "whatever"})

	suite.ErrorIs(err, ErrInvalidCredentials)
}

// TestAuthServiceTestSuite runs the test suite
func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
