package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reconcilia-matching-engine/internal/api_gateway/handler"
	"github.com/reconcilia-matching-engine/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	reconciliationHandler *handler.ReconciliationHandler,
	allocationHandler *handler.AllocationHandler,
) {
	// CorrelationID runs before Logger so request logs carry the id
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Scan and escalation operations
		reconciliation := v1.Group("/reconciliation")
		{
			reconciliation.POST("/scan", reconciliationHandler.Scan)
			reconciliation.POST("/escalations/:decision_id/retry", reconciliationHandler.RetryEscalation)
		}

		// Synchronous suggestion lookups, anchored on either side
		v1.GET("/transactions/:id/suggestions", reconciliationHandler.TransactionSuggestions)
		v1.GET("/documents/:id/suggestions", reconciliationHandler.DocumentSuggestions)

		// Decision audit trail
		decisions := v1.Group("/decisions")
		{
			decisions.GET("", reconciliationHandler.DecisionHistory)
			decisions.GET("/:id", reconciliationHandler.GetDecision)
		}

		// Learned counterparty behavior
		v1.GET("/vendor-patterns/:counterparty", reconciliationHandler.VendorPattern)

		// Allocation ledger operations
		allocations := v1.Group("/allocations")
		{
			allocations.POST("", allocationHandler.Confirm)
			allocations.DELETE("/:id", allocationHandler.Unlink)
		}
		v1.POST("/suggestions/reject", allocationHandler.Reject)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
