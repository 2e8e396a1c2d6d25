package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/container"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/handlers"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/middleware"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	// Set Gin mode for production
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Add middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())

	// API version 1
	v1 := r.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "OK",
				"service": "cleaning-service-api",
			})
		})

		// Settlement entry points. The gateway calls these, not users: the
		// redirect carries the session id, the webhook its signature.
		v1.GET("/payments/success", handlers.PaymentSuccessRedirect(container.Settlement, container.Gateway))
		v1.POST("/payments/webhook", handlers.PaymentWebhook(container.Settlement, container.Gateway, container.Logger))
	}

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(container.Logger))

	bookingRoutes := protected.Group("/bookings")
	{
		bookingRoutes.POST("/", handlers.CreateBooking(container.Bookings))
		bookingRoutes.GET("/", handlers.ListBookings(container.Bookings))
		bookingRoutes.GET("/:id", handlers.GetBooking(container.Bookings))

		// provider actions
		bookingRoutes.PATCH("/:id/accept", handlers.AcceptBooking(container.Bookings))
		bookingRoutes.PATCH("/:id/reject", handlers.RejectBooking(container.Bookings))
		bookingRoutes.POST("/:id/completion-code", handlers.IssueCompletionCode(container.Bookings))

		// owner actions
		bookingRoutes.PATCH("/:id/cancel", handlers.CancelBooking(container.Bookings))
		bookingRoutes.POST("/:id/complete", handlers.CompleteBooking(container.Bookings))
		bookingRoutes.POST("/:id/review", handlers.RateBooking(container.Bookings))
		bookingRoutes.GET("/:id/refund-eligibility", handlers.RefundEligibility(container.Refunds))
		bookingRoutes.POST("/:id/refund", handlers.RefundBooking(container.Refunds))
	}

	providerRoutes := protected.Group("/providers")
	{
		providerRoutes.GET("/:id/slots", handlers.ListFreeSlots(container.Availability, container.Catalog))
	}

	notificationRoutes := protected.Group("/notifications")
	{
		notificationRoutes.GET("/", handlers.ListNotifications(container.Notifications))
	}

	return r
}
