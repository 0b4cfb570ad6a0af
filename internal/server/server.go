// Package server wires the conversion operations into a gin HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BUNny0021/PDF-Ofice/internal/config"
	"github.com/BUNny0021/PDF-Ofice/internal/convert"
	"github.com/BUNny0021/PDF-Ofice/internal/metrics"
	"github.com/BUNny0021/PDF-Ofice/internal/operations"
	"github.com/BUNny0021/PDF-Ofice/internal/pdf"
	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
	"github.com/BUNny0021/PDF-Ofice/internal/registry"
	"github.com/BUNny0021/PDF-Ofice/internal/staging"
	"github.com/BUNny0021/PDF-Ofice/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Options configures a Server
type Options struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Version string
	// Registry receives the service metrics; a fresh registry is created when nil
	Registry *prometheus.Registry
}

// Server is the HTTP front of the conversion service
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	version    string
	engine     *gin.Engine
	area       *staging.Area
	operations *registry.Registry
	metrics    *metrics.Metrics
	promReg    *prometheus.Registry
	office     *convert.Office
	rasteriser *convert.Rasteriser
}

// New builds the staging area, converters and routes described by opts.Config
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	promReg := opts.Registry
	if promReg == nil {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := metrics.MustNewMetrics(promReg)

	area, err := staging.NewArea(cfg.StagingDir, opts.Logger,
		staging.WithMaxFileSize(cfg.MaxFileSize),
		staging.WithCleanupFailureHook(m.CleanupFailed),
		staging.WithSweepHook(m.AddSwept),
	)
	if err != nil {
		return nil, err
	}

	runner := convert.NewRunner(opts.Logger, cfg.ConverterConcurrency, cfg.ConverterTimeout, m)

	s := &Server{
		cfg:        cfg,
		logger:     opts.Logger,
		version:    opts.Version,
		area:       area,
		operations: registry.New(opts.Logger, cfg.DisabledOperations),
		metrics:    m,
		promReg:    promReg,
		office:     convert.NewOffice(runner, cfg.OfficeBinary),
		rasteriser: convert.NewRasteriser(runner, cfg.PdftoppmPath(), convert.DefaultDPI),
	}

	deps := operations.Deps{
		Area:       area,
		Engine:     pdf.NewEngine(opts.Logger),
		Office:     s.office,
		Rasteriser: s.rasteriser,
		Logger:     opts.Logger,
	}
	for _, op := range operations.All(deps) {
		s.operations.Register(op)
	}

	s.engine = s.routes(pipeline.New(area, opts.Logger,
		pipeline.WithRecorder(m),
		pipeline.WithMaxRequestSize(cfg.MaxRequestSize),
	))

	return s, nil
}

func (s *Server) routes(p *pipeline.Pipeline) *gin.Engine {
	engine := gin.New()
	engine.Use(requestID(), requestLogger(s.logger), recovery(s.logger))
	if len(s.cfg.CORSOrigins) > 0 {
		engine.Use(corsMiddleware(s.cfg.CORSOrigins))
	}

	api := engine.Group("/api")
	api.GET("/operations", s.listOperations)
	api.GET("/operations/:name", s.describeOperation)

	convertGroup := api.Group("", rateLimit(s.cfg.RateLimit, s.cfg.RateBurst, s.metrics))
	for _, op := range s.operations.Operations() {
		def := op.Definition()
		convertGroup.POST(strings.TrimPrefix(def.Path, "/api"), p.Handler(op))
	}

	engine.GET("/healthz", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{})))

	engine.NoRoute(s.notFound())
	return engine
}

// Handler returns the root HTTP handler, traced when OpenTelemetry is enabled
func (s *Server) Handler() http.Handler {
	return telemetry.WrapHandler(s.engine)
}

// Area returns the staging area
func (s *Server) Area() *staging.Area {
	return s.area
}

// Operations returns the registry of served operations
func (s *Server) Operations() *registry.Registry {
	return s.operations
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests within the shutdown timeout.
// The staging janitor runs for the lifetime of the server.
func (s *Server) Run(ctx context.Context) error {
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.area.RunJanitor(janitorCtx, s.cfg.SweepInterval, s.cfg.SweepMaxAge)

	server := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second, // Close idle connections
		MaxHeaderBytes:    1 << 20,           // 1MB max header size
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case serverErr <- err:
			case <-ctx.Done():
			}
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"addr":       s.cfg.ListenAddr,
		"staging":    s.area.Dir(),
		"operations": len(s.operations.Names()),
	}).Info("HTTP server listening")

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (s *Server) listOperations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": s.operations.Definitions()})
}

func (s *Server) describeOperation(c *gin.Context) {
	op, ok := s.operations.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, pipeline.ErrorResponse{
			Message:   "Unknown operation.",
			RequestID: c.GetString(pipeline.RequestIDKey),
		})
		return
	}
	c.JSON(http.StatusOK, op.Definition())
}

// HealthStatus is the body of /healthz
type HealthStatus struct {
	Status     string          `json:"status"`
	Version    string          `json:"version,omitempty"`
	Converters map[string]bool `json:"converters"`
	Staging    bool            `json:"staging_writable"`
}

func (s *Server) health(c *gin.Context) {
	status := HealthStatus{
		Status:  "ok",
		Version: s.version,
		Converters: map[string]bool{
			"office":     available(s.office.Binary()),
			"rasteriser": available(s.rasteriser.Binary()),
		},
		Staging: writable(s.area.Dir()),
	}

	for _, ok := range status.Converters {
		if !ok {
			status.Status = "degraded"
		}
	}
	if !status.Staging {
		status.Status = "degraded"
	}

	c.JSON(http.StatusOK, status)
}

func available(binary string) bool {
	_, err := convert.Check(binary)
	return err == nil
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name) == nil
}

// notFound serves the static front end for unknown GET paths and a JSON 404 for everything else
func (s *Server) notFound() gin.HandlerFunc {
	var static http.Handler
	if s.cfg.StaticDir != "" {
		static = http.FileServer(http.Dir(s.cfg.StaticDir))
	}

	return func(c *gin.Context) {
		method := c.Request.Method
		isRead := method == http.MethodGet || method == http.MethodHead
		if static != nil && isRead && !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			static.ServeHTTP(c.Writer, c.Request)
			return
		}

		c.JSON(http.StatusNotFound, pipeline.ErrorResponse{
			Message:   "Not found.",
			RequestID: c.GetString(pipeline.RequestIDKey),
		})
	}
}
