package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gotus/internal/apperr"
	"gotus/internal/config"
	"gotus/internal/identity"
	"gotus/internal/middleware"
	"gotus/internal/security"
	"gotus/internal/service"
)

// Pinger is anything the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth      *service.AuthService
	Directory *service.DirectoryService
	// Identity resolves callers for /auth/session. Nil means staff tokens only.
	Identity identity.Resolver
	Store    Pinger
	// Cache is optional; health reports "disabled" without it.
	Cache *redis.Client
}

type HandlerSet struct {
	log       zerolog.Logger
	cfg       *config.AppConfig
	auth      *service.AuthService
	directory *service.DirectoryService
	identity  identity.Resolver
	extract   security.TokenExtractor
	store     Pinger
	cache     *redis.Client
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) HandlerSet {
	extract := security.DefaultExtractor(cfg.Security.CookieName)
	resolver := deps.Identity
	if resolver == nil {
		resolver = identity.NewStaffTokenResolver(extract, deps.Auth)
	}
	return HandlerSet{
		log:       log,
		cfg:       cfg,
		auth:      deps.Auth,
		directory: deps.Directory,
		identity:  resolver,
		extract:   extract,
		store:     deps.Store,
		cache:     deps.Cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	auth := router.Group("/auth")
	auth.POST("/signin", h.SignIn)
	auth.GET("/me", h.Me)
	auth.POST("/signout", h.SignOut)
	auth.POST("/refresh", h.Refresh)
	auth.GET("/session", middleware.Identify(h.identity), h.Session)

	admin := router.Group("/admin")
	admin.Use(middleware.AdminGate(h.extract, h.auth, h.directory, h.log))
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
	admin.GET("/users/:id", h.GetUser)
	admin.PUT("/users/:id", h.UpdateUser)
	admin.DELETE("/users/:id", h.DeleteUser)
	admin.GET("/census", h.Census)
}

// respondError renders err as {"error": message}. Internal failures are
// logged with the request id and shown generically.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("route", c.FullPath()).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

func (h HandlerSet) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.log.Debug().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("request body rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}
