package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/renomarket/dispatch-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "webhook-service",
		})
	})

	webhookHandler := handler.NewWebhookHandler(deps)
	punchlistHandler := handler.NewPunchlistHandler(deps)
	assignmentHandler := handler.NewAssignmentHandler(deps)

	// Carrier callbacks: form-encoded posts from the messaging provider.
	webhooks := r.Group("/webhooks")
	{
		// POST /webhooks/messages - Inbound SMS/WhatsApp message
		webhooks.POST("/messages", webhookHandler.HandleMessage)

		// POST /webhooks/status - Delivery status for outbound messages
		webhooks.POST("/status", webhookHandler.HandleStatus)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/projects/:project_id/punchlist - Extract work items from a transcript
		v1.POST("/projects/:project_id/punchlist", punchlistHandler.CreatePunchlist)

		assignments := v1.Group("/assignments")
		{
			// POST /api/v1/assignments - Offer a work item to a contractor
			assignments.POST("", assignmentHandler.CreateAssignment)

			// GET /api/v1/assignments - List assignments with filtering and pagination
			assignments.GET("", assignmentHandler.ListAssignments)

			// GET /api/v1/assignments/:assignment_id - Get assignment details
			assignments.GET("/:assignment_id", assignmentHandler.GetAssignment)
		}
	}

	return r
}
