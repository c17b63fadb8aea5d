package main

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/api/handlers"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/api/middleware"
	job "github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/jobs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/logger"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/monitor"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/notify"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/publish"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/queue"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/ratelimit"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	slog.SetDefault(logger.New(cfg.LogLevel, cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	clientRepo := repository.NewClientRepository(db)
	contentItemRepo := repository.NewContentItemRepository(db)
	contentMediaRepo := repository.NewContentMediaRepository(db)
	attemptLogRepo := repository.NewAttemptLogRepository(db)
	publishJobRepo := repository.NewPublishJobRepository(db)
	retryItemRepo := repository.NewRetryItemRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	frequencyTargetRepo := repository.NewFrequencyTargetRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)

	notifier := notify.Multi{notify.NewLogNotifier(slog.Default())}
	if cfg.SlackWebhookURL != "" {
		notifier = append(notifier, notify.NewSlackNotifier(cfg.SlackWebhookURL))
	}

	r2Service := service.NewR2Service(cfg.R2, &http.Client{Timeout: cfg.Platforms.MediaTimeout})
	contentService := service.NewContentService(db, contentItemRepo, contentMediaRepo, attemptLogRepo, r2Service)
	accountService := service.NewAccountService(cfg.Platforms, cfg.EncryptionKey, socialAccountRepo)
	apiKeyService := service.NewApiKeyService(apiKeyRepo, clientRepo)

	adapters := service.NewRegistry()
	adapters.Register(models.ChannelFacebook, service.NewFacebookService(cfg.Platforms, false))
	adapters.Register(models.ChannelFacebookStory, service.NewFacebookService(cfg.Platforms, true))
	adapters.Register(models.ChannelInstagram, service.NewInstagramService(cfg.Platforms, false))
	adapters.Register(models.ChannelInstagramStory, service.NewInstagramService(cfg.Platforms, true))
	adapters.Register(models.ChannelYoutube, service.NewYoutubeService(cfg.Platforms, r2Service))
	adapters.Register(models.ChannelTiktok, service.NewTiktokService(cfg.Platforms))
	adapters.Register(models.ChannelBlog, service.NewBlogService(cfg.Platforms.Timeout))

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(rdb), ratelimit.NewQuotaTracker(rdb), cfg.RateLimits)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.Scheduler.MaxRetries
	retries := retry.NewQueue(retryItemRepo, policy, notifier, retry.Options{
		Capacity:  cfg.Scheduler.RetryQueueCap,
		Keep:      cfg.Scheduler.RetryQueueKeep,
		Lease:     cfg.Scheduler.RetryLease,
		BatchSize: cfg.Scheduler.BatchSize,
	})

	dispatcher := publish.NewDispatcher(
		contentItemRepo,
		contentMediaRepo,
		attemptLogRepo,
		accountService,
		adapters,
		limiter,
		retries,
		notifier,
		publish.Renderer{Template: cfg.MessageTemplate, Campaign: cfg.UTMCampaign})
	retries.Register(models.OperationPublishChannel, dispatcher.RetryChannel)

	scheduler := publish.NewScheduler(
		db,
		contentItemRepo,
		publishJobRepo,
		retryItemRepo,
		dispatcher,
		queue.NewAsynqTrigger(client),
		cfg.Scheduler.Concurrency,
		cfg.Scheduler.BatchSize)

	frequencyMonitor := monitor.NewMonitor(frequencyTargetRepo, attemptLogRepo, notifier, rdb, cfg.Scheduler.FrequencyAlertIn)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	auth := handlers.NewAuthHandler(*cfg, apiKeyService)
	app.Post("/auth/token", auth.Token)
	app.Post("/auth/logout", auth.Logout)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())
	admin := middleware.RequireAdmin()

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/clients", admin, apiKeys.CreateClient)
	api.Post("/keys", apiKeys.CreateApiKey)
	api.Get("/keys", apiKeys.ListKeys)
	api.Delete("/keys/:id", apiKeys.RemoveAPIKey)

	content := handlers.NewContentHandler(contentService, scheduler)
	api.Post("/content", content.CreateContent)
	api.Get("/content", content.ListContent)
	api.Get("/content/:id", content.GetContent)
	api.Get("/content/:id/status", content.Status)
	api.Post("/content/:id/schedule", content.Schedule)
	api.Delete("/content/:id/schedule", content.Unschedule)
	api.Post("/content/:id/publish", content.PublishNow)

	accounts := handlers.NewAccountHandler(accountService)
	api.Post("/accounts", accounts.ConnectAccount)
	api.Get("/accounts", accounts.ListAccounts)

	frequency := handlers.NewFrequencyHandler(frequencyMonitor, frequencyTargetRepo)
	api.Get("/frequency/:client_id", frequency.Report)
	api.Put("/frequency", frequency.SetTarget)

	ops := handlers.NewOpsHandler(retries, limiter)
	api.Get("/retries", admin, ops.ListRetries)
	api.Post("/retries/:id/run", admin, ops.RunRetry)
	api.Get("/ratelimits/:platform", admin, ops.RateLimitUsage)

	// cron jobs
	jobs := &job.Jobs{
		Scheduler: scheduler,
		Retries:   retries,
		Monitor:   frequencyMonitor,
		Tokens:    job.NewTokenRefreshJob(socialAccountRepo, accountService),
	}

	c := cron.New()
	if err := jobs.Register(c, cfg.Scheduler); err != nil {
		log.Fatalf("Failed to register cron jobs: %v", err)
	}
	c.Start()
	defer c.Stop()

	//queue
	queueW := queue.NewQueue(scheduler)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.Scheduler.Concurrency,
	})

	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeFirePublishJob, queueW.HandleFirePublishJobTask)

		slog.Info("starting the asynq server")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server is running", "addr", cfg.ListenAddr)

	gracefulShutdown(app, server)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}
	server.Shutdown()

	slog.Info("server shutdown complete")
}
