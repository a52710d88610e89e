package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/acadio/assess-backend/internal/config"
	"github.com/acadio/assess-backend/internal/handler"
	"github.com/acadio/assess-backend/internal/middleware"
	"github.com/acadio/assess-backend/internal/response"
	"github.com/acadio/assess-backend/internal/token"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Audio   *handler.AudioHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(issuer *token.Issuer, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Compress API responses.
	router.Use(middleware.Brotli())

	// Serve uploaded recordings statically with aggressive caching (1 year).
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for sandbox-backed code runs (20 requests per minute per
	// IP). Validation runs every test case, so unmetered calls could occupy
	// the sandbox for everyone.
	codeLimiter := middleware.NewRateLimiter(20, time.Minute)

	// ─── 1. Session entry (token issued here) ──────────────────────────
	api := router.Group("/api/v1")
	{
		api.POST("/tests/:testId/session", handlers.Session.Start)
	}

	// ─── 2. Live session (attempt token) ───────────────────────────────
	sessionAPI := router.Group("/api/v1/session")
	sessionAPI.Use(middleware.RequireAttemptToken(issuer))
	{
		sessionAPI.GET("/paper", handlers.Session.Paper)
		sessionAPI.GET("/state", handlers.Session.State)
		sessionAPI.POST("/navigate", handlers.Session.Navigate)
		sessionAPI.PATCH("/answers/:questionId", handlers.Session.PatchAnswer)
		sessionAPI.POST("/violations", handlers.Session.ReportViolation)
		sessionAPI.POST("/submit", handlers.Session.Submit)
		sessionAPI.POST("/questions/:questionId/audio", handlers.Audio.Upload)

		sessionAPI.POST("/questions/:questionId/run", codeLimiter.Middleware(), handlers.Session.RunSample)
		sessionAPI.POST("/questions/:questionId/validate", codeLimiter.Middleware(), handlers.Session.ValidateCode)
	}

	// ─── 3. WebSocket Group (token via query param) ────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAttemptWSToken(issuer))
	{
		ws.GET("/session/stream", handlers.WS.SessionStream)
	}

	return router
}
