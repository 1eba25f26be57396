package routes

import (
	"net/http"
	"time"

	"tutorbook/handlers"
	"tutorbook/middleware"
	"tutorbook/models"
	"tutorbook/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Limiters holds the per-IP limiters applied to route groups.
type Limiters struct {
	API     *middleware.RateLimiter
	Webhook *middleware.RateLimiter
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		status := utils.GetHealthStatus()
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "message": "Hi, I'm Tutorbook"})
	})
}

// RegisterPublicRoutes registers endpoints that need no token.
func RegisterPublicRoutes(r *gin.Engine, hb *handlers.HandlerBundle, l Limiters) {
	api := r.Group("/api", l.API.Middleware())
	{
		api.GET("/slots", hb.ListOpenSlotsHandler)
		api.GET("/tutors/:tutorId/cells", hb.ListCellsHandler)
		api.GET("/payments/return", hb.PaymentReturnHandler)
	}
	// Providers retry aggressively, so webhooks get their own budget.
	r.POST("/api/payments/webhook", l.Webhook.Middleware(), hb.WebhookHandler)
}

// RegisterTutorRoutes registers slot, availability and money endpoints for tutors.
func RegisterTutorRoutes(r *gin.Engine, hb *handlers.HandlerBundle, l Limiters) {
	tutor := r.Group("/api", l.API.Middleware(), middleware.JWTAuthMiddleware(), middleware.RequireRole(models.ActorTutor))
	{
		tutor.POST("/slots", hb.CreateSlotHandler)
		tutor.DELETE("/slots/:id", hb.CancelSlotHandler)
		tutor.POST("/availability/rules", hb.CreateRuleHandler)
		tutor.PUT("/availability/rules/:id/cells", hb.SetCellOverrideHandler)

		tutor.POST("/bookings/:id/decision", hb.DecideHandler)
		tutor.POST("/bookings/:id/complete", hb.MarkCompleteHandler)

		tutor.GET("/escrow/balance", hb.GetBalanceHandler)
		tutor.GET("/escrow/entries", hb.ListEntriesHandler)
		tutor.POST("/withdrawals", hb.RequestWithdrawalHandler)
		tutor.GET("/withdrawals", hb.ListWithdrawalsHandler)
		tutor.DELETE("/withdrawals/:id", hb.CancelWithdrawalHandler)
	}
}

// RegisterBookingRoutes sets up the endpoints for the booking engine.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle, l Limiters) {
	bookings := r.Group("/api", l.API.Middleware(), middleware.JWTAuthMiddleware())
	{
		bookings.GET("/bookings", hb.ListBookingsHandler)
		bookings.GET("/bookings/:id", hb.GetBookingHandler)
		bookings.POST("/bookings/:id/cancel", hb.CancelBookingHandler)
		bookings.POST("/bookings/:id/dispute", hb.DisputeHandler)
		bookings.POST("/payments/:orderCode/verify", hb.VerifyPaymentHandler)

		learner := bookings.Group("", middleware.RequireRole(models.ActorLearner))
		learner.POST("/bookings", hb.CreateBookingHandler)
		learner.POST("/bookings/:id/confirm", hb.ConfirmCompletionHandler)
	}
}

// RegisterAdminRoutes sets up endpoints for operator actions.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle, l Limiters) {
	adminGroup := r.Group("/api/admin", l.API.Middleware(), middleware.JWTAuthMiddleware(), middleware.RequireRole(models.ActorOperator))
	{
		adminGroup.POST("/bookings/:id/resolve", hb.AdminHandler.ResolveDisputeHandler)
		adminGroup.POST("/sweep", hb.AdminHandler.SweepHandler)
		adminGroup.GET("/reconcile", hb.AdminHandler.ReconcileAllHandler)
		adminGroup.GET("/reconcile/:tutorId", hb.AdminHandler.ReconcileHandler)

		adminGroup.GET("/withdrawals", hb.AdminHandler.ListWithdrawalsHandler)
		adminGroup.POST("/withdrawals/:id/processing", hb.AdminHandler.MarkWithdrawalProcessingHandler)
		adminGroup.POST("/withdrawals/:id/complete", hb.AdminHandler.CompleteWithdrawalHandler)
		adminGroup.POST("/withdrawals/:id/fail", hb.AdminHandler.FailWithdrawalHandler)
	}
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, l Limiters) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r)
	RegisterPublicRoutes(r, hb, l)
	RegisterTutorRoutes(r, hb, l)
	RegisterBookingRoutes(r, hb, l)
	RegisterAdminRoutes(r, hb, l)
}
