package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	crudhttp "github.com/Apurer/go-gin-crud-server/internal/crud/adapters/http"
	catalogmapper "github.com/Apurer/go-gin-crud-server/internal/domains/catalog/adapters/http/mapper"
	catalogapp "github.com/Apurer/go-gin-crud-server/internal/domains/catalog/application"
	"github.com/Apurer/go-gin-crud-server/internal/domains/catalog/domain"
	"github.com/Apurer/go-gin-crud-server/internal/platform/migrations"
	apierrors "github.com/Apurer/go-gin-crud-server/internal/shared/errors"
)

// RouterDeps are the collaborators the HTTP surface is built from.
type RouterDeps struct {
	Services catalogapp.Services
	// DB is nil when the process runs on in-memory stores.
	DB          *gorm.DB
	Logger      *slog.Logger
	ServiceName string
}

// NewRouter mounts /ping, /initdb and the catalog resources.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "panic while serving request",
			slog.String("path", c.Request.URL.Path),
			slog.Any("panic", recovered),
		)
		apierrors.RespondError(c, fmt.Errorf("panic: %v", recovered))
		c.Abort()
	}))
	if deps.ServiceName != "" {
		router.Use(otelgin.Middleware(deps.ServiceName))
	}
	router.Use(accessLog(logger))

	router.GET("/ping", ping)
	router.POST("/initdb", initDB(deps.DB, logger))

	bands := crudhttp.NewResource[domain.Band, domain.BandCreate, domain.BandUpdate, catalogmapper.Band](
		deps.Services.Bands,
		catalogmapper.PresentBands,
		crudhttp.WithLogger(logger),
	)
	bands.Register(router)

	songs := crudhttp.NewResource[domain.Song, domain.SongCreate, domain.SongUpdate, catalogmapper.Song](
		deps.Services.Songs,
		catalogmapper.SongPresenter(deps.Services.Bands),
		crudhttp.WithLogger(logger),
	)
	songs.Register(router)

	router.NoRoute(func(c *gin.Context) {
		apierrors.Respond(c, apierrors.ErrNotFound.WithDetail("no route for "+c.Request.Method+" "+c.Request.URL.Path))
	})
	return router
}

// Get /ping
func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ping": "pong!"})
}

// Post /initdb
// Creates the catalog schema. Without a database there is nothing to do.
func initDB(db *gorm.DB, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.Status(http.StatusNoContent)
			return
		}
		if err := migrations.Run(c.Request.Context(), db); err != nil {
			logger.ErrorContext(c.Request.Context(), "schema bootstrap failed", slog.String("error", err.Error()))
			apierrors.RespondError(c, err)
			return
		}
		logger.InfoContext(c.Request.Context(), "schema bootstrap completed")
		c.Status(http.StatusNoContent)
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.String()))
		}
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "request completed", attrs...)
	}
}
