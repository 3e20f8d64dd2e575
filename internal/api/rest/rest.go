package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/feral-file/ff-storefront-indexer/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		// Feed submissions and read-only filter surface (open)
		v1.POST("/candidates", handler.SubmitCandidate)
		v1.GET("/candidates", handler.ListCandidates)
		v1.GET("/candidates/:id", handler.GetCandidate)

		// Operator actions (requires authentication)
		operator := v1.Group("/candidates/:id", middleware.Auth(authCfg))
		operator.POST("/lock", handler.LockTags)
		operator.DELETE("/lock", handler.UnlockTags)
		operator.POST("/retry", handler.ResetRetryBudget)
	}
}
