package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/auth"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/contents"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/realtime"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/storage"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey        = "soulmatch_user_id"
	sessionClaimsContextKey = "soulmatch_session_claims"
	adminRoleContextKey     = "soulmatch_admin_role"

	defaultHeartbeatInterval = 25 * time.Second
	storageRoutePrefix       = "/storage"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingProfilesService  = errors.New("profiles service dependency required")
	errMissingMessagingService = errors.New("messaging service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP handler. Bucket and Realtime are optional: without them photo
// uploads and message streams answer with an error. Without Contents the content routes are absent.
type Dependencies struct {
	Sessions          SessionValidator
	Users             *users.Service
	Profiles          *profiles.Service
	Messaging         *messaging.Service
	Contents          *contents.Service
	Bucket            *storage.Bucket
	Realtime          realtime.Subscriber
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Profiles == nil {
		return nil, errMissingProfilesService
	}
	if deps.Messaging == nil {
		return nil, errMissingMessagingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		sessions:          deps.Sessions,
		users:             deps.Users,
		profiles:          deps.Profiles,
		messaging:         deps.Messaging,
		contents:          deps.Contents,
		bucket:            deps.Bucket,
		realtime:          deps.Realtime,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/auth/signup", handler.handleSignUp)
	router.POST("/auth/signin", handler.handleSignIn)
	if deps.Bucket != nil {
		router.StaticFS(storageRoutePrefix, deps.Bucket.FileSystem())
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/signout", handler.handleSignOut)

	protected.GET("/profile", handler.handleGetProfile)
	protected.PATCH("/profile", handler.handleUpdateProfile)
	protected.POST("/profile/photos", handler.handleUploadPhoto)

	protected.GET("/match/profiles", handler.handleListCandidates)

	protected.POST("/messages/conversations", handler.handleOpenConversation)
	protected.GET("/messages/conversations", handler.handleListConversations)
	protected.GET("/messages/profile", handler.handlePartnerProfile)
	protected.GET("/messages/conversations/:id/messages", handler.handleListMessages)
	protected.POST("/messages/conversations/:id/messages", handler.handleSendMessage)
	protected.GET("/messages/conversations/:id/stream", handler.handleMessageStream)

	admin := protected.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.GET("/users", handler.handleAdminListUsers)
	admin.POST("/users", handler.handleAdminCreateUser)
	admin.PATCH("/users/:id", handler.handleAdminUpdateUser)
	if deps.Contents != nil {
		admin.GET("/contents", handler.handleListContents)
		admin.POST("/contents", handler.handleCreateContent)
		admin.PATCH("/contents/:id", handler.handleUpdateContent)
		admin.DELETE("/contents/:id", handler.handleDeleteContent)
	}

	superadmin := admin.Group("/admins")
	superadmin.Use(handler.requireSuperadmin)
	superadmin.GET("", handler.handleListAdmins)
	superadmin.POST("", handler.handleCreateAdmin)
	superadmin.PATCH("/:id", handler.handleUpdateAdmin)
	superadmin.DELETE("/:id", handler.handleDeleteAdmin)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	users             *users.Service
	profiles          *profiles.Service
	messaging         *messaging.Service
	contents          *contents.Service
	bucket            *storage.Bucket
	realtime          realtime.Subscriber
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(string) bool { return true },
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponsePayload{
				Error:   "unauthorized",
				Message: errInvalidAuthorization.Error(),
			})
			return
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("token validation failed", zap.Error(err))
		default:
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponsePayload{
			Error:   "unauthorized",
			Message: "session token rejected",
		})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	role, err := h.users.RequireAdmin(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(adminRoleContextKey, role)
	c.Next()
}

func (h *httpHandler) requireSuperadmin(c *gin.Context) {
	if err := h.users.RequireSuperadmin(c.Request.Context(), c.GetString(userIDContextKey)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Next()
}

func sessionClaims(c *gin.Context) auth.SessionClaims {
	value, ok := c.Get(sessionClaimsContextKey)
	if !ok {
		return auth.SessionClaims{}
	}
	claims, _ := value.(auth.SessionClaims)
	return claims
}
