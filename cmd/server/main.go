package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teamboard/teamboard-api/internal/authz"
	"github.com/teamboard/teamboard-api/internal/config"
	"github.com/teamboard/teamboard-api/internal/constants"
	"github.com/teamboard/teamboard-api/internal/database"
	"github.com/teamboard/teamboard-api/internal/handlers"
	"github.com/teamboard/teamboard-api/internal/logging"
	"github.com/teamboard/teamboard-api/internal/middleware"
	"github.com/teamboard/teamboard-api/internal/outbox"
	"github.com/teamboard/teamboard-api/internal/realtime"
	"github.com/teamboard/teamboard-api/internal/repository"
	"github.com/teamboard/teamboard-api/internal/services"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	logger := logging.Init(cfg.GinMode)
	defer logger.Sync() //nolint:errcheck

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize Gin router
	r := gin.Default()

	// Setup session middleware with Redis
	redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
	store, err := redisStore.NewStore(
		10,        // Redis pool size
		"tcp",     // network type
		redisAddr, // Redis address from config
		"",        // username (empty for default user)
		"",        // password (empty = no password)
		[]byte(cfg.SessionSecret), // authentication key
	)
	if err != nil {
		logger.Fatal("failed to create Redis store", zap.Error(err))
	}
	isProduction := cfg.GinMode == "release"
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: 2, // SameSite=Lax (1=Strict, 2=Lax, 3=None)
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	// Wire repositories, services and the realtime hub
	repos := repository.New(database.GetDB())
	authzService := authz.NewService(repos.Projects)
	hub := realtime.NewHub(logger)

	authService := services.NewAuthService(repos.Users)
	notificationService := services.NewNotificationService(repos.Notifications, hub, logger)
	projectService := services.NewProjectService(repos, notificationService, logger)
	taskService := services.NewTaskService(repos, authzService, logger)
	commentService := services.NewCommentService(repos, authzService, logger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	projectHandler := handlers.NewProjectHandler(projectService)
	taskHandler := handlers.NewTaskHandler(taskService, commentService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	streamHandler := handlers.NewStreamHandler(hub, authzService, logger)

	// Background outbox drainer
	drainCtx, stopDrainer := context.WithCancel(context.Background())
	drainer := outbox.NewDrainer(repos.Outbox, hub, notificationService, logger, cfg.OutboxInterval)
	go drainer.Start(drainCtx)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", middleware.RequireAuth(), authHandler.Me)
		}

		// Project routes (protected)
		projects := api.Group("/projects")
		projects.Use(middleware.RequireAuth())
		{
			projects.POST("", projectHandler.Create)
			projects.GET("", projectHandler.List)
			projects.POST("/join", projectHandler.Join)
			projects.GET("/:id", middleware.RequireProjectAccess(), projectHandler.Get)
			projects.PUT("/:id", middleware.RequireProjectAccess(), middleware.RequireProjectManager(), projectHandler.Rename)
			projects.DELETE("/:id", middleware.RequireProjectAccess(), middleware.RequireProjectOwner(), projectHandler.Archive)
			projects.POST("/:id/regenerate-code", middleware.RequireProjectAccess(), middleware.RequireProjectManager(), projectHandler.RegenerateInviteCode)
			projects.POST("/:id/transfer", middleware.RequireProjectAccess(), middleware.RequireProjectOwner(), projectHandler.TransferOwnership)
			projects.DELETE("/:id/members/:user_id", middleware.RequireProjectAccess(), middleware.RequireProjectManager(), projectHandler.RemoveMember)
			projects.PATCH("/:id/members/:user_id", middleware.RequireProjectAccess(), middleware.RequireProjectManager(), projectHandler.ChangeMemberRole)
			projects.POST("/:id/tasks", middleware.RequireProjectAccess(), taskHandler.Create)
		}

		// Task routes (protected)
		tasks := api.Group("/tasks")
		tasks.Use(middleware.RequireAuth())
		{
			tasks.GET("", taskHandler.List)
			tasks.GET("/:id", middleware.RequireTaskAccess(), taskHandler.Get)
			tasks.PATCH("/:id", middleware.RequireTaskAccess(), taskHandler.Update)
			tasks.DELETE("/:id", middleware.RequireTaskAccess(), taskHandler.Delete)
			tasks.PATCH("/:id/status", middleware.RequireTaskAccess(), taskHandler.UpdateStatus)
			tasks.PATCH("/:id/assignee", middleware.RequireTaskAccess(), taskHandler.UpdateAssignee)
			tasks.GET("/:id/history", middleware.RequireTaskAccess(), taskHandler.History)
			tasks.POST("/:id/comments", middleware.RequireTaskAccess(), taskHandler.CreateComment)
			tasks.GET("/:id/comments", middleware.RequireTaskAccess(), taskHandler.ListComments)
		}

		// Notification routes (protected)
		notifications := api.Group("/notifications")
		notifications.Use(middleware.RequireAuth())
		{
			notifications.GET("", notificationHandler.List)
			notifications.PATCH("/:id/read", notificationHandler.MarkRead)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
		}

		// Realtime stream routes (protected)
		stream := api.Group("/stream")
		stream.Use(middleware.RequireAuth())
		{
			stream.GET("", streamHandler.Stream)
			stream.POST("/:session_id/join", streamHandler.JoinRoom)
			stream.POST("/:session_id/leave", streamHandler.LeaveRoom)
		}
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown: stop accepting requests, stop the drainer, then
	// close every push session.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	stopDrainer()
	hub.Shutdown()
}
