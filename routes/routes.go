package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"preventanyl/controllers"
	"preventanyl/middleware"
	"preventanyl/models"
)

// Controllers groups every HTTP handler the router mounts.
type Controllers struct {
	Auth      *controllers.AuthController
	Kit       *controllers.KitController
	Help      *controllers.HelpController
	Device    *controllers.DeviceController
	WebSocket *controllers.WebSocketController
	Health    *controllers.HealthController
}

// Options carries the cross-cutting settings of the router.
type Options struct {
	Environment           string
	CORSOrigins           []string
	Redis                 *redis.Client // optional, enables rate limiting
	Auth                  *middleware.AuthMiddleware
	APIRequestsPerMinute  int
	HelpRequestsPerMinute int
}

// SetupRoutes initializes all application routes
func SetupRoutes(ctrl *Controllers, opts Options) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.NewErrorHandler(opts.Environment, logrus.StandardLogger()).Handle())
	router.Use(middleware.DefaultLoggerMiddleware())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(opts.CORSOrigins)))

	router.GET("/health", ctrl.Health.Health)
	SetupWebSocketRoutes(router, ctrl.WebSocket)

	api := router.Group("/api/v1")
	api.Use(middleware.APIRateLimit(opts.Redis, opts.APIRequestsPerMinute))

	SetupAuthRoutes(api, ctrl.Auth, opts)
	SetupKitRoutes(api, ctrl.Kit, opts)
	SetupHelpRoutes(api, ctrl.Help, opts)
	SetupDeviceRoutes(api, ctrl.Device)

	// Admin routes (requires admin privileges)
	admin := api.Group("/admin")
	admin.Use(opts.Auth.RequireAuth(), opts.Auth.RequireRole(models.RoleAdmin))
	{
		admin.GET("/help/dispatches", ctrl.Help.ListDispatches)
		admin.GET("/help/angels", ctrl.Help.CountAngels)
		admin.GET("/ws/stats", ctrl.WebSocket.Stats)
	}

	return router
}
