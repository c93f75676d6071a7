package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"profilehub/api/internal/cache"
	"profilehub/api/internal/config"
	"profilehub/api/internal/jobs"
	"profilehub/api/internal/media/validator"
	"profilehub/api/internal/middleware"
	"profilehub/api/internal/models"
	"profilehub/api/internal/repository"
	"profilehub/api/internal/service"
	"profilehub/api/internal/storage"
)

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	auth         *service.AuthService
	profile      *service.ProfileService
	verification *service.VerificationService
	users        *repository.UserRepository
	pruner       *jobs.Pruner
	db           *pgxpool.Pool
	cache        *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, redisClient *redis.Client, store *storage.ObjectStore, pruner *jobs.Pruner, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	imageValidator := validator.New(cfg.Upload.StrictValidation, cfg.Upload.MinDimension, cfg.Upload.MaxDimension)
	limiter := cache.NewRateLimiter(redisClient, cfg.Security.ResendLimit, cfg.Security.ResendWindow)

	return HandlerSet{
		log:          log,
		cfg:          cfg,
		auth:         service.NewAuthService(userRepo, sessionRepo, cfg, log),
		profile:      service.NewProfileService(userRepo, store, imageValidator, cfg, log),
		verification: service.NewVerificationService(userRepo, limiter, cfg, log),
		users:        userRepo,
		pruner:       pruner,
		db:           db,
		cache:        redisClient,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/verify-email", h.VerifyEmail)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.cfg, h.users))
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
		protected.POST("/resend-verification", h.ResendVerification)
	}

	users := v1.Group("/users")
	users.Use(middleware.Auth(h.cfg, h.users))
	users.POST("/:userId/profile-picture", h.UploadProfilePicture)
	users.GET("/:userId/profile-picture", h.GetProfilePicture)
	users.GET("/:userId/profile-picture/history", h.ProfilePictureHistory)
	users.DELETE("/:userId/profile-picture", h.DeleteProfilePicture)

	admin := v1.Group("/admin")
	admin.Use(
		middleware.Auth(h.cfg, h.users),
		middleware.RequireRoles(models.UserRoleAdmin, models.UserRoleManager),
	)
	admin.POST("/maintenance/prune-archives", h.PruneArchives)
}
