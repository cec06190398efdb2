// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Responses carrying personal data are never cacheable
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/tahsilat-gateway/internal/config"
	"github.com/tbourn/tahsilat-gateway/internal/http/handlers"
	"github.com/tbourn/tahsilat-gateway/internal/http/middleware"
	"github.com/tbourn/tahsilat-gateway/internal/identity"
	"github.com/tbourn/tahsilat-gateway/internal/ledger"
	"github.com/tbourn/tahsilat-gateway/internal/services"
)

// Login attempts are limited per client IP independently of the global
// limiter: one token every five seconds, bursts of five.
const (
	loginRPS   = 0.2
	loginBurst = 5
)

// maxBodyBytes caps request bodies for all endpoints.
const maxBodyBytes = 1 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (not for /metrics or PDF downloads)
//  8. Rate limiter (per user/IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, l ledger.Client, idp identity.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics"}),
		gzip.WithExcludedPathsRegexs([]string{".*/belge-getir/.*"}),
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "Content-Disposition", "ETag", "Retry-After"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "Kaynak bulunamadı")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "İzin verilmeyen yöntem")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Tahsilat API çalışıyor",
			"version": cfg.Version,
		})
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← db/ledger/identity
	tokens := services.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	authSvc := services.NewAuthService(db, idp, tokens)
	h := handlers.New(
		services.NewCollectionService(db, l),
		authSvc,
		services.NewProfileService(db),
		services.NewAnnouncementService(db),
	)
	requireAuth := middleware.RequireAuth(authSvc)
	loginRL := middleware.NewRateLimiter(loginRPS, loginBurst, middleware.KeyByIP())

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		auth := api.Group("/auth")
		auth.POST("/login", loginRL.Handler(), middleware.NoStore(), h.Login)
		auth.POST("/refresh", middleware.NoStore(), h.RefreshToken)
		auth.GET("/me", requireAuth, middleware.NoStore(), h.Me)

		users := api.Group("/users", requireAuth, middleware.NoStore())
		users.GET("/profile", h.GetProfile)
		users.PATCH("/profile", h.UpdateProfile)

		// Collections; the document download is public.
		api.GET("/tahsilat/belge-getir/:tahsilat_id", h.Document)
		coll := api.Group("/tahsilat", requireAuth, middleware.NoStore())
		coll.POST("/sorgu", h.Query)
		coll.GET("/liste", h.ListRecords)
		coll.GET("/detay/:id", h.GetRecord)
		coll.DELETE("/detay/:id", h.DeleteRecord)
		coll.GET("/detay-getir/:tahsilat_id", h.RemoteDetail)
		coll.GET("/sorgu-gecmisi", h.QueryHistory)
		coll.GET("/istatistikler", h.Statistics)
		coll.POST("/yenile/:id", h.Refresh)

		// Announcements
		ann := api.Group("/duyurular")
		ann.GET("/liste", h.ListAnnouncements)
		ann.GET("/detay/:id", h.GetAnnouncement)
		ann.GET("/kategoriler", h.AnnouncementCategories)
		ann.GET("/tipler", h.AnnouncementTypes)
		ann.GET("/istatistikler", h.AnnouncementStatistics)

		admin := ann.Group("", requireAuth, middleware.NoStore())
		admin.POST("/olustur", h.CreateAnnouncement)
		admin.PATCH("/guncelle/:id", h.UpdateAnnouncement)
		admin.PUT("/guncelle/:id", h.UpdateAnnouncement)
		admin.DELETE("/sil/:id", h.DeleteAnnouncement)
		admin.POST("/yayinla/:id", h.TogglePublish)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
