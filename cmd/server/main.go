package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/NitroDevv/tgbot/internal/config"
	"github.com/NitroDevv/tgbot/internal/keepalive"
	"github.com/NitroDevv/tgbot/internal/repository"
	"github.com/NitroDevv/tgbot/internal/runner"
	"github.com/NitroDevv/tgbot/internal/service"
	"github.com/NitroDevv/tgbot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	repo, err := repository.New(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	for _, dir := range []string{cfg.Storage.TemplatesDir(), cfg.Storage.InstancesDir(), cfg.Storage.PaymentsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create data dir %s: %v", dir, err)
		}
	}

	launcher := runner.NewExecLauncher()

	// Create services
	ledgerSvc := service.NewLedgerService(repo)
	userSvc := service.NewUserService(repo)
	gateSvc := service.NewGateService(repo, config.SubscriptionGateCacheTTL)
	paymentSvc := service.NewPaymentService(repo, ledgerSvc)
	referralSvc := service.NewReferralService(repo, ledgerSvc)
	provisionSvc := service.NewProvisionService(repo, ledgerSvc, launcher, cfg.Storage.InstancesDir())
	lifecycleSvc := service.NewLifecycleService(repo, launcher)
	adminSvc := service.NewAdminService(repo, ledgerSvc)

	// Create Telegram bot
	var bot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.NewBot(cfg, userSvc, gateSvc, ledgerSvc, paymentSvc, referralSvc, provisionSvc, lifecycleSvc, adminSvc)
		if err != nil {
			log.Printf("Warning: Failed to create Telegram bot: %v", err)
		} else {
			gateSvc.SetChecker(bot)
			paymentSvc.SetNotifier(bot)
			referralSvc.SetNotifier(bot)
			lifecycleSvc.SetNotifier(bot)
			adminSvc.SetNotifier(bot)
			log.Printf("Telegram bot @%s initialized", bot.GetBotUsername())
		}
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := repo.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Internal endpoints (for external cron schedulers)
	internal := app.Group("/internal")
	internal.Post("/cron/expire", func(c *fiber.Ctx) error {
		expired, err := lifecycleSvc.Tick(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok", "expired": expired})
	})

	internal.Post("/cron/notify", func(c *fiber.Ctx) error {
		sent, err := lifecycleSvc.NotifyExpiring(c.Context(), 5)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok", "notified": sent})
	})

	// Start background jobs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if bot != nil {
		go bot.StartPolling(ctx)
		log.Println("Telegram bot started with long polling")
	}

	worker := service.NewLifecycleWorker(lifecycleSvc, os.Getenv("LIFECYCLE_CRON"))
	if err := worker.Start(ctx); err != nil {
		log.Fatalf("Failed to start lifecycle worker: %v", err)
	}

	go keepalive.New(cfg.KeepAlive.ExternalURL, cfg.KeepAlive.Interval).Start(ctx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancel()
		_ = app.Shutdown()
	}()

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
