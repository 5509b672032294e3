package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check stays outside auth so probes don't need credentials
	r.GET("/health", healthHandler(deps))

	videoHandler := handler.NewVideoHandler(deps)

	v1 := r.Group("/api/v1")
	v1.Use(APIKeyAuthMiddleware(deps.APIKey))
	{
		videos := v1.Group("/videos")
		{
			// POST /api/v1/videos - Submit a video generation job
			videos.POST("", videoHandler.GenerateVideo)

			// GET /api/v1/videos - List jobs with filtering and pagination
			videos.GET("", videoHandler.ListVideos)

			// GET /api/v1/videos/:job_id - Job status with per-segment progress
			videos.GET("/:job_id", videoHandler.GetStatus)

			// GET /api/v1/videos/:job_id/result - Presigned download URL
			videos.GET("/:job_id/result", videoHandler.GetResult)

			// POST /api/v1/videos/:job_id/cancel - Cancel a job
			videos.POST("/:job_id/cancel", videoHandler.CancelVideo)
		}

		// GET /api/v1/voices - Available narration voices
		v1.GET("/voices", videoHandler.ListVoices)
	}

	return r
}

// healthHandler reports the health of each backing service
func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		components := gin.H{}

		for name, check := range deps.HealthChecks {
			if err := check(c.Request.Context()); err != nil {
				components[name] = "unhealthy"
				status = http.StatusServiceUnavailable
			} else {
				components[name] = "healthy"
			}
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":     overall,
			"service":    "video-api-service",
			"components": components,
		})
	}
}
