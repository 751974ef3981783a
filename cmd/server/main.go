package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/config"
	"github.com/saeid-a/FinCoachBack/internal/database"
	"github.com/saeid-a/FinCoachBack/internal/gateway"
	"github.com/saeid-a/FinCoachBack/internal/logger"
	"github.com/saeid-a/FinCoachBack/internal/middleware"
	"github.com/saeid-a/FinCoachBack/internal/notify"
	"github.com/saeid-a/FinCoachBack/internal/policy"
	"github.com/saeid-a/FinCoachBack/internal/ratelimit"
	"github.com/saeid-a/FinCoachBack/internal/realtime"
	"github.com/saeid-a/FinCoachBack/internal/routes"
	"github.com/saeid-a/FinCoachBack/internal/services"
	chatws "github.com/saeid-a/FinCoachBack/internal/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	maxBodyBytes    = 12 << 20
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.AppEnv)

	if cfg.DBUrl == "" {
		return errors.New("DB_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DBUrl, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	feed, err := openFeed(cfg, log)
	if err != nil {
		return err
	}
	defer feed.Close()

	tables := policy.DefaultTables()
	if cfg.RefundPolicyFile != "" {
		if tables, err = policy.LoadTables(cfg.RefundPolicyFile); err != nil {
			return err
		}
		log.Info().Str("file", cfg.RefundPolicyFile).Msg("loaded refund tables")
	}

	svc := buildServices(cfg, pool, feed, tables, log)

	hub := chatws.NewHub(log)
	subscription, err := feed.Subscribe(0, hub.Publish)
	if err != nil {
		return fmt.Errorf("subscribe to change feed: %w", err)
	}
	defer subscription.Unsubscribe()

	app := fiber.New(fiber.Config{
		AppName:               "FinCoach",
		BodyLimit:             maxBodyBytes,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(middleware.Observe(log))

	if err := routes.RegisterRoutes(app, routes.Dependencies{
		Config:      cfg,
		Services:    svc,
		Hub:         hub,
		AuthLimiter: ratelimit.New(1, 10),
	}); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("server starting")
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	if cfg.SweeperInterval > 0 {
		g.Go(func() error {
			log.Info().Dur("interval", cfg.SweeperInterval).Msg("in-process sweeper enabled")
			return svc.Sweeper.Loop(gctx, cfg.SweeperInterval)
		})
	}

	return g.Wait()
}

func openFeed(cfg *config.Config, log zerolog.Logger) (realtime.Feed, error) {
	if cfg.NATSUrl == "" {
		log.Warn().Msg("NATS_URL not set, using in-process change feed")
		return realtime.NewMemoryFeed(), nil
	}
	return realtime.NewNATSFeed(cfg.NATSUrl, log)
}

func buildServices(
	cfg *config.Config,
	pool *pgxpool.Pool,
	feed realtime.Feed,
	tables policy.Tables,
	log zerolog.Logger,
) routes.Services {
	var mailer notify.Mailer = notify.LogMailer{Log: log}
	if cfg.ResendAPIKey != "" {
		mailer = notify.NewResendMailer(cfg.ResendBaseURL, cfg.ResendAPIKey, cfg.OutboundTimeout)
	} else {
		log.Warn().Msg("RESEND_API_KEY not set, emails are logged only")
	}
	dispatcher := notify.NewDispatcher(mailer, cfg.EmailFrom, log)

	var gw gateway.Gateway
	if cfg.PaymentsConfigured() {
		gw = gateway.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.OutboundTimeout)
	} else {
		log.Warn().Msg("Razorpay credentials not set, using the mock gateway")
		gw = gateway.NewMockGateway(cfg.RazorpayKeyID)
	}

	var objects services.ObjectStore
	if cfg.StorageConfigured() {
		objects = services.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey, cfg.OutboundTimeout)
	}

	chat := services.NewChatService(pool, feed, ratelimit.New(cfg.ChatSendRPS, cfg.ChatSendBurst), log)
	return routes.Services{
		Auth:        services.NewAuthService(pool, dispatcher, cfg.JWTSecret, cfg.JWTTTL, log),
		Chat:        chat,
		Attachments: services.NewAttachmentService(chat, objects, log),
		Payments: services.NewPaymentService(pool, gw, dispatcher, tables, services.PaymentConfig{
			Currency:      cfg.Currency,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
		}, log),
		Credits:   services.NewCreditService(pool, dispatcher, cfg.AdminEmail, log),
		Items:     services.NewItemService(pool, cfg.Currency),
		Inquiries: services.NewInquiryService(dispatcher, cfg.AdminEmail, log),
		Sweeper:   services.NewSweeperService(pool, log),
	}
}
