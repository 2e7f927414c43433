package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SatyamPandey-07/lms--3/internal/bootstrap"
	"github.com/SatyamPandey-07/lms--3/internal/config"
	"github.com/SatyamPandey-07/lms--3/internal/database"
	"github.com/SatyamPandey-07/lms--3/internal/handlers"
	"github.com/SatyamPandey-07/lms--3/internal/repositories"
	"github.com/SatyamPandey-07/lms--3/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Error("database migration failed", "err", err)
			os.Exit(1)
		}
	}

	titleRepo := repositories.NewTitleRepository(db)
	rentalRepo := repositories.NewRentalRepository(db)
	patronRepo := repositories.NewPatronRepository(db)
	adminRepo := repositories.NewAdminRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, _, err := bootstrap.SeedAdmin(ctx, db, adminRepo, cfg.Admin, log); err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	libraryService := services.NewLibraryService(db, log, titleRepo, rentalRepo, patronRepo)

	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(log))

	handlers.RegisterRoutes(router, libraryService, cfg.JWTSecret, func() error { return database.Ping(db) })

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown", "err", err)
		}
	}()

	log.Info("starting server", "addr", cfg.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
