// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate the correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logging
//  5. Body size limiter and gzip
//  6. Metrics
//  7. Idempotency validator (before the rate limiter so replays bypass it)
//  8. Rate limiter (per sender/IP)
//  9. CORS and security headers
package httpapi

import (
	"context"
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

	"github.com/careward/hospital-chat/internal/config"
	"github.com/careward/hospital-chat/internal/domain"
	"github.com/careward/hospital-chat/internal/http/handlers"
	"github.com/careward/hospital-chat/internal/http/middleware"
	"github.com/careward/hospital-chat/internal/hub"
	"github.com/careward/hospital-chat/internal/repo"
	"github.com/careward/hospital-chat/internal/search"
	"github.com/careward/hospital-chat/internal/services"
)

// appointmentRepoShim adapts the repository free functions to the
// services.AppointmentRepo interface. This keeps services decoupled from
// the concrete repo package while reusing the existing functions.
type appointmentRepoShim struct{}

func (appointmentRepoShim) CreateAppointment(ctx context.Context, db *gorm.DB, patientName, doctorName string, scheduledAt time.Time) (*domain.Appointment, error) {
	return repo.CreateAppointment(ctx, db, patientName, doctorName, scheduledAt)
}

func (appointmentRepoShim) ListAppointments(ctx context.Context, db *gorm.DB) ([]domain.Appointment, error) {
	return repo.ListAppointments(ctx, db)
}

func (appointmentRepoShim) GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error) {
	return repo.GetAppointment(ctx, db, id)
}

func (appointmentRepoShim) CountAppointments(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountAppointments(ctx, db)
}

func (appointmentRepoShim) ListAppointmentsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Appointment, error) {
	return repo.ListAppointmentsPage(ctx, db, offset, limit)
}

func (appointmentRepoShim) UpdateAppointmentStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	return repo.UpdateAppointmentStatus(ctx, db, id, status)
}

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine: observability, idempotency and rate limiting, CORS and security
// headers, health and metrics endpoints, the versioned JSON API under
// cfg.APIBasePath, and the websocket stream under /ws.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, h *hub.Hub, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (patient names travel in bodies,
	// never in URLs, so scrubbing query strings and headers suffices here)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderSender},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (64 KiB: chat payloads are small) + gzip
	r.Use(limitBody(64 << 10))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, sender, roomID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, sender, roomID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per sender/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeySenderOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all when none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept",
		middleware.HeaderSender, middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					hdr := c.Writer.Header()
					hdr.Set("Access-Control-Allow-Origin", origin)
					hdr.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and the request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (dev/staging only)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	apptSvc := services.NewAppointmentService(db, appointmentRepoShim{})
	msgSvc := &services.MessageService{
		DB:           db,
		MaxBodyRunes: cfg.MaxBodyRunes,
	}

	hnd := handlers.New(apptSvc, msgSvc, search.NewRanker())
	hnd.IdempotencyTTL = cfg.IdempotencyTTL
	stream := handlers.NewStreamHandler(apptSvc, h)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Appointments
		api.POST("/appointments", hnd.BookAppointment)
		api.GET("/appointments", hnd.ListAppointments)
		api.GET("/appointments/:id", hnd.GetAppointment)
		api.PUT("/appointments/:id/status", hnd.UpdateAppointmentStatus)

		// Messages
		api.GET("/appointments/:id/messages", hnd.ListMessages)
		api.POST("/appointments/:id/messages", hnd.SendMessage)
		api.DELETE("/appointments/:id/messages/:msgID", hnd.DeleteMessage)
		api.GET("/appointments/:id/messages/search", hnd.SearchMessages)
	}

	// Live stream
	r.GET("/ws/appointments/:id", stream.Subscribe)
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Requests exceeding the cap error on body read.
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
