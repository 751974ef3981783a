package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saeid-a/FinCoachBack/internal/config"
	"github.com/saeid-a/FinCoachBack/internal/handlers"
	"github.com/saeid-a/FinCoachBack/internal/middleware"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/ratelimit"
	"github.com/saeid-a/FinCoachBack/internal/services"
	chatws "github.com/saeid-a/FinCoachBack/internal/websocket"
)

type Services struct {
	Auth        *services.AuthService
	Chat        *services.ChatService
	Attachments *services.AttachmentService
	Payments    *services.PaymentService
	Credits     *services.CreditService
	Items       *services.ItemService
	Inquiries   *services.InquiryService
	Sweeper     *services.SweeperService
}

type Dependencies struct {
	Config   *config.Config
	Services Services
	Hub      *chatws.Hub
	// AuthLimiter throttles unauthenticated endpoints per client IP. Nil disables it.
	AuthLimiter *ratelimit.Limiter
}

func RegisterRoutes(app *fiber.App, deps Dependencies) error {
	cfg := deps.Config
	svc := deps.Services

	authHandler := handlers.NewAuthHandler(svc.Auth)
	chatHandler := handlers.NewChatHandler(svc.Chat, svc.Attachments, deps.Hub, svc.Auth)
	paymentHandler := handlers.NewPaymentHandler(svc.Payments)
	creditHandler := handlers.NewCreditHandler(svc.Credits)
	itemHandler := handlers.NewItemHandler(svc.Items, svc.Inquiries)
	sweeperHandler := handlers.NewSweeperHandler(svc.Sweeper)

	requireAuth := middleware.AuthRequired(svc.Auth)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	throttle := func(c *fiber.Ctx) error { return c.Next() }
	if deps.AuthLimiter != nil {
		throttle = middleware.RateLimitByIP(deps.AuthLimiter)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	functions := app.Group("/functions/v1", middleware.FunctionCORS(cfg.CORSOrigins))
	functions.Post("/create-razorpay-order", requireAuth, paymentHandler.CreateOrder)
	functions.Post("/verify-razorpay-payment", requireAuth, paymentHandler.VerifyPayment)
	functions.Post("/cancel-booking", requireAuth, paymentHandler.CancelBooking)
	functions.Post("/cancel-session", requireAuth, paymentHandler.CancelSession)
	functions.Post("/abandon-checkout", requireAuth, paymentHandler.AbandonCheckout)
	functions.Post("/razorpay-webhook", paymentHandler.Webhook)
	functions.Post("/request-credits", requireAuth, creditHandler.RequestCredits)
	functions.Post("/approve-credit-request", requireAuth, creditHandler.Review)
	functions.Post("/send-inquiry", throttle, itemHandler.SubmitInquiry)
	functions.Post("/auto-expire-bookings", middleware.CronSecret(cfg.CronSecret), sweeperHandler.AutoExpire)

	api := app.Group("/api/v1", cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))

	auth := api.Group("/auth")
	auth.Post("/register", throttle, authHandler.Register)
	auth.Post("/login", throttle, authHandler.Login)
	auth.Post("/password/forgot", throttle, authHandler.RequestPasswordReset)
	auth.Post("/password/reset", throttle, authHandler.ResetPassword)
	auth.Get("/me", requireAuth, authHandler.Me)
	auth.Post("/refresh", requireAuth, authHandler.Refresh)
	auth.Post("/logout", requireAuth, authHandler.SignOut)

	api.Get("/items", itemHandler.List)
	api.Get("/items/:id", itemHandler.Get)
	api.Post("/items", requireAuth, adminOnly, itemHandler.Create)

	conversations := api.Group("/conversations", requireAuth)
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.OpenConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)
	conversations.Post("/:id/read", chatHandler.MarkRead)
	conversations.Post("/:id/attachments", chatHandler.UploadAttachment)
	conversations.Get("/:id/attachments/url", chatHandler.AttachmentURL)

	bookings := api.Group("/bookings", requireAuth)
	bookings.Get("", paymentHandler.ListBookings)

	credits := api.Group("/credits", requireAuth)
	credits.Get("/balances", creditHandler.Balances)
	credits.Get("/requests/mine", creditHandler.ListMine)
	credits.Get("/requests", adminOnly, creditHandler.ListRequests)

	api.Use("/ws", chatHandler.WebSocketAuth)
	api.Get("/ws", websocket.New(chatHandler.HandleWebSocket))

	return registerDocsRoutes(app, cfg)
}
