package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/iliyamo/campus-placement/internal/config"
	"github.com/iliyamo/campus-placement/internal/database"
	"github.com/iliyamo/campus-placement/internal/handler"
	"github.com/iliyamo/campus-placement/internal/logger"
	"github.com/iliyamo/campus-placement/internal/middleware"
	"github.com/iliyamo/campus-placement/internal/queue"
	"github.com/iliyamo/campus-placement/internal/repository"
	"github.com/iliyamo/campus-placement/internal/router"
	"github.com/iliyamo/campus-placement/internal/service"
	"github.com/iliyamo/campus-placement/internal/storage"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	migrate := pflag.Bool("migrate", true, "apply database migrations on startup")
	consumer := pflag.Bool("consumer", false, "run the notification consumer in this process")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		// No logger yet; the error only concerns a malformed dotenv file.
		panic(err)
	}
	cfg := config.Load()
	qcfg := config.LoadQueueConfig()
	ucfg := config.LoadUploadConfig()

	log, err := logger.New(config.LoadLogConfig())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, qcfg, ucfg, *migrate, *consumer || qcfg.RunConsumer, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, qcfg config.QueueConfig, ucfg config.UploadConfig,
	migrate, runConsumer bool, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		dsn := database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err := database.RunMigrations(dsn, log); err != nil {
			return err
		}
	}

	// Redis is optional: nil disables rate limiting and caching.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	placements := repository.NewPlacementRepo(db)
	regs := repository.NewRegistrationRepo(db)
	mailbox := repository.NewNotificationRepo(db)

	// Notifications go through RabbitMQ when enabled, otherwise straight
	// into the mailbox table.
	var notifier service.Notifier = mailbox
	if qcfg.Enabled {
		pub := queue.NewPublisher(qcfg.URL, qcfg.Queue, log)
		defer func() { _ = pub.Close() }()
		notifier = pub
		if runConsumer {
			c := queue.NewConsumer(qcfg.URL, qcfg.Queue, qcfg.Prefetch,
				time.Duration(qcfg.ReconnectWait)*time.Second, mailbox, log)
			go func() {
				if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("notification consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	opts := []service.Option{service.WithFanoutLimit(cfg.NotifyConcurrency)}
	if ucfg.Enabled() {
		cld, err := storage.NewCloudinary(ucfg)
		if err != nil {
			return err
		}
		opts = append(opts, service.WithResumeStore(cld))
	} else {
		log.Info("cloudinary not configured; only resume_url registrations accepted")
	}
	svc := service.NewPlacementService(placements, regs, users, notifier, log, opts...)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(log))

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)

	router.RegisterRoutes(e, db, rdb)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, log), cfg.JWTSecret)
	router.RegisterPlacements(e, handler.NewPlacementHandler(svc, log, ucfg.MaxFileBytes), cfg.JWTSecret, limiter, cache)
	router.RegisterNotifications(e, handler.NewNotificationHandler(mailbox, log), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
