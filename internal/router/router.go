package router

import (
	"github.com/gin-gonic/gin"

	"docsieve/internal/handler"
	"docsieve/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	extractionH *handler.ExtractionHandler,
	batchH *handler.BatchHandler,
	healthH *handler.HealthHandler,
	corsOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(corsOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	extractions := v1.Group("/extractions")
	extractions.POST("", extractionH.Extract)
	extractions.POST("/bulk", extractionH.ExtractBulk)
	extractions.GET("", extractionH.ListRecords)
	extractions.GET("/:id", extractionH.GetRecord)
	extractions.GET("/:id/document", extractionH.SourceDocument)
	extractions.POST("/:id/retry", extractionH.Retry)

	batches := v1.Group("/batches")
	batches.POST("", batchH.Submit)
	batches.GET("/:id", batchH.GetJob)
	batches.POST("/:id/poll", batchH.Poll)
	batches.POST("/sweep", batchH.Sweep)

	return r
}
