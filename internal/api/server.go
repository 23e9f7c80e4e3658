// Package api exposes the Notification HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notification-relay/internal/common/config"
	"notification-relay/internal/common/logger"
)

// Publisher enqueues a notification job as JSON.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, v interface{}) error
}

// TemplateCatalog answers whether a template id exists.
type TemplateCatalog interface {
	Has(id string) bool
}

type Config struct {
	Address         string
	AllowAllOrigins bool
	AllowOrigins    []string
	EmailQueue      string
	ShutdownTimeout time.Duration
	Debug           bool
}

// ConfigFromApp maps the HTTP and queue sections of the service configuration.
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		Address:         cfg.HTTP.Address,
		AllowAllOrigins: cfg.HTTP.AllowAllOrigins(),
		AllowOrigins:    cfg.HTTP.CORSAllowedOrigins,
		EmailQueue:      cfg.RabbitMQ.EmailQueue,
		ShutdownTimeout: config.GetDuration(cfg.HTTP.ShutdownTimeout),
		Debug:           cfg.App.Environment == "development",
	}
}

type Dependencies struct {
	Publisher Publisher
	Templates TemplateCatalog
	Logger    logger.Logger
}

type Server struct {
	gin       *gin.Engine
	http      *http.Server
	config    Config
	publisher Publisher
	templates TemplateCatalog
	logger    logger.Logger
	now       func() time.Time
}

func NewServer(cfg Config, deps Dependencies) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.Named("api")
	zl := log.Zap()

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(zl, time.RFC3339, true),
		ginzap.RecoveryWithZap(zl, true),
		cors.New(corsConfig(cfg)),
	)

	s := &Server{
		gin:       engine,
		config:    cfg,
		publisher: deps.Publisher,
		templates: deps.Templates,
		logger:    log,
		now:       time.Now,
	}
	s.routes()

	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func corsConfig(cfg Config) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if cfg.AllowAllOrigins || len(cfg.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return c
}

func (s *Server) routes() {
	s.gin.GET("/health", s.health)
	s.gin.GET("/metrics", gin.WrapH(promhttp.Handler()))

	notify := s.gin.Group("/api/notify")
	notify.POST("/email", s.sendEmail)
	notify.POST("/reminder", s.scheduleReminder)
	notify.GET("/status/:id", s.status)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves until Shutdown is called.
func (s *Server) Listen() error {
	s.logger.Info("HTTP server listening", map[string]interface{}{"address": s.config.Address})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.http.Shutdown(ctx)
}
