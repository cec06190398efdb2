// Command server runs the tahsilat gateway HTTP API.
//
//	@title						Tahsilat Gateway API
//	@version					1.0
//	@description				Collections ledger gateway: queries, stored records, announcements and user sessions.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/tahsilat-gateway/docs"
	"github.com/tbourn/tahsilat-gateway/internal/cache"
	"github.com/tbourn/tahsilat-gateway/internal/config"
	httpapi "github.com/tbourn/tahsilat-gateway/internal/http"
	"github.com/tbourn/tahsilat-gateway/internal/identity"
	"github.com/tbourn/tahsilat-gateway/internal/ledger"
	"github.com/tbourn/tahsilat-gateway/internal/observability"
	"github.com/tbourn/tahsilat-gateway/internal/repo"
	"github.com/tbourn/tahsilat-gateway/internal/sysutil"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, cfg.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, cfg.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenDatabase(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database failed")
	}
	if err := observability.InstrumentDB(db, cfg.OTEL); err != nil {
		log.Fatal().Err(err).Msg("gorm tracing plugin failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	l := ledger.New(cfg.Ledger)
	if cfg.Cache.Enabled {
		store, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			log.Fatal().Err(err).Str("redis", cfg.Cache.RedisAddr).Msg("cache setup failed")
		}
		if c, ok := store.(io.Closer); ok {
			defer c.Close()
		}
		l = cache.NewLedger(l, store, cfg.Cache.TTL)
	}
	idp := identity.NewHTTPClient(cfg.Identity)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, l, idp, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("base_path", cfg.APIBasePath).
			Bool("ledger_mock", cfg.Ledger.UseMock).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
