package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/handler"
	"swiftdrop/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler    *handler.RideHandler
	DriverHandler  *handler.DriverHandler
	WalletHandler  *handler.WalletHandler
	PaymentHandler *handler.PaymentHandler
	Verifier       *middleware.TokenVerifier
	RedisClient    *redis.Client // nil disables Idempotency-Key support
	NewRelicApp    *newrelic.Application
	Logger         *slog.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")

	// Gateway callbacks authenticate by signature, not bearer token.
	v1.POST("/payments/webhook", deps.PaymentHandler.Webhook)

	api := v1.Group("")
	api.Use(middleware.AuthMiddleware(deps.Verifier))
	if deps.NewRelicApp != nil {
		api.Use(middleware.NewRelicAttributes())
	}
	if deps.RedisClient != nil {
		api.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	}
	{
		// Ride routes.
		rides := api.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("", deps.RideHandler.GetAll)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.PUT("/:id/accept", middleware.RequireRoles(domain.RoleDriver), deps.RideHandler.AcceptRide)
			rides.PUT("/:id/status", deps.RideHandler.UpdateStatus)
			rides.DELETE("/:id/cancel", deps.RideHandler.CancelRide)

			rides.POST("/:id/payment", deps.PaymentHandler.PayForRide)
			rides.PUT("/:id/confirm-cash", middleware.RequireRoles(domain.RoleDriver, domain.RoleAdmin), deps.PaymentHandler.ConfirmCash)
		}

		// Payment routes.
		api.POST("/payments/verify", deps.PaymentHandler.Verify)

		// Wallet routes.
		wallets := api.Group("/wallets")
		{
			wallets.GET("", deps.WalletHandler.GetWallet)
			wallets.POST("/fund", deps.WalletHandler.Fund)
			wallets.POST("/withdraw", deps.WalletHandler.Withdraw)
			wallets.DELETE("/:owner", middleware.RequireRoles(domain.RoleAdmin), deps.WalletHandler.DeleteWallet)
		}

		// Driver routes.
		drivers := api.Group("/drivers", middleware.RequireRoles(domain.RoleDriver))
		{
			drivers.POST("/profile", deps.DriverHandler.CreateProfile)
			drivers.GET("/profile", deps.DriverHandler.GetProfile)
			drivers.PUT("/availability", deps.DriverHandler.SetAvailability)
		}

		// Admin driver directory.
		admin := api.Group("/drivers", middleware.RequireRoles(domain.RoleAdmin))
		{
			admin.GET("", deps.DriverHandler.ListDrivers)
			admin.GET("/:id", deps.DriverHandler.GetDriver)
		}
	}

	return router
}
