package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/config"
	"github.com/iliyamo/theatre-booking/internal/database"
	"github.com/iliyamo/theatre-booking/internal/handler"
	"github.com/iliyamo/theatre-booking/internal/logger"
	"github.com/iliyamo/theatre-booking/internal/middleware"
	"github.com/iliyamo/theatre-booking/internal/queue"
	"github.com/iliyamo/theatre-booking/internal/repository"
	"github.com/iliyamo/theatre-booking/internal/router"
	"github.com/iliyamo/theatre-booking/internal/service"
	"github.com/iliyamo/theatre-booking/internal/validate"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.IsProd())
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
	}

	// Repositories
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	actors := repository.NewActorRepo(db)
	genres := repository.NewGenreRepo(db)
	plays := repository.NewPlayRepo(db)
	halls := repository.NewTheatreHallRepo(db)
	perfs := repository.NewPerformanceRepo(db)
	reviews := repository.NewReviewRepo(db)
	reservations := repository.NewReservationRepo(db)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := users.EnsureStaff(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			log.Fatal("ensure staff user failed", zap.Error(err))
		}
		log.Info("staff user ready", zap.String("email", cfg.AdminEmail), zap.Bool("created", created))
	}

	// Redis backs the cache and the rate limiter; both become no-ops
	// without it.
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable, cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)

	// Messaging
	qcfg := config.LoadQueueConfig()
	publisher := service.NewPublisher(qcfg, log)
	if qcfg.Enabled {
		go func() {
			if err := queue.StartReservationConsumer(ctx, qcfg, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("reservation consumer stopped", zap.Error(err))
			}
		}()
	}

	// Services
	ratings := service.NewRatingService(reviews, plays, log)
	booking := service.NewBookingService(reservations, perfs, publisher, log)

	// Handlers
	authH := handler.NewAuthHandler(cfg, users, tokens, log)
	catalog := router.Catalog{
		Actors: handler.NewActorHandler(actors, log),
		Genres: handler.NewGenreHandler(genres, log),
		Plays: handler.NewPlayHandler(plays, reviews, ratings, handler.MediaConfig{
			Dir: cfg.MediaDir, URL: cfg.MediaURL, MaxUploadBytes: cfg.MaxUploadBytes,
		}, log),
		Performances: handler.NewPerformanceHandler(perfs, log),
		Halls:        handler.NewTheatreHallHandler(halls, log),
		Reviews:      handler.NewReviewHandler(reviews, ratings, log),
	}
	reservationH := handler.NewReservationHandler(reservations, booking, log)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validate.Echo{}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadBytes+1<<20)))
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))

	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		log.Fatal("media dir", zap.Error(err))
	}
	e.Static(cfg.MediaURL, cfg.MediaDir)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterCatalog(e, catalog, cfg.JWTSecret, cache)
	router.RegisterReservations(e, reservationH, cfg.JWTSecret, cache)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}
