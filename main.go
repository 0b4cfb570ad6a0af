package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/BUNny0021/PDF-Ofice/internal/config"
	"github.com/BUNny0021/PDF-Ofice/internal/convert"
	"github.com/BUNny0021/PDF-Ofice/internal/server"
	"github.com/BUNny0021/PDF-Ofice/internal/staging"
	"github.com/BUNny0021/PDF-Ofice/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	// DefaultMemoryLimit is the default memory limit for the Go application (2GB)
	DefaultMemoryLimit = 2 * 1024 * 1024 * 1024
)

// parseLogLevel parses the LOG_LEVEL value and returns the appropriate logrus level.
// Defaults to InfoLevel if not set or invalid.
func parseLogLevel(value string) logrus.Level {
	// Normalise to lowercase for comparison
	value = strings.ToLower(strings.TrimSpace(value))

	switch value {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// setMemoryLimit configures the Go runtime memory limit
func setMemoryLimit() {
	var memLimit int64 = DefaultMemoryLimit
	if memLimitStr := os.Getenv("PDF_OFFICE_MEMORY_LIMIT"); memLimitStr != "" {
		if parsed, err := strconv.ParseInt(memLimitStr, 10, 64); err == nil && parsed > 0 {
			memLimit = parsed
		}
	}

	// Soft limit, uploads are streamed to disk so this mostly bounds buffered results
	debug.SetMemoryLimit(memLimit)
}

func main() {
	setMemoryLimit()

	// A missing .env is normal outside development
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	app := &cli.Command{
		Name:    "pdf-office",
		Usage:   "HTTP service converting between PDF, office documents and images",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("PDF_OFFICE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format (text or json)",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Address to listen on (default :5000)",
				Sources: cli.EnvVars("LISTEN_ADDR"),
			},
			&cli.StringFlag{
				Name:    "port",
				Usage:   "Port to listen on, shorthand for --listen :<port>",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "staging-dir",
				Usage:   "Directory holding uploads and intermediate files",
				Sources: cli.EnvVars("STAGING_DIR"),
			},
			&cli.StringFlag{
				Name:    "static-dir",
				Usage:   "Directory with the browser front end, served for unknown GET paths",
				Sources: cli.EnvVars("STATIC_DIR"),
			},
			&cli.StringFlag{
				Name:    "office-binary",
				Usage:   "Office converter binary (soffice)",
				Sources: cli.EnvVars("OFFICE_BINARY", "SOFFICE_PATH"),
			},
			&cli.StringFlag{
				Name:    "poppler-path",
				Usage:   "Directory containing pdftoppm",
				Sources: cli.EnvVars("POPPLER_PATH"),
			},
			&cli.IntFlag{
				Name:    "converter-concurrency",
				Usage:   "Maximum number of converter processes running at once",
				Sources: cli.EnvVars("CONVERTER_CONCURRENCY"),
			},
			&cli.DurationFlag{
				Name:    "converter-timeout",
				Usage:   "Deadline for a single converter run (0 disables)",
				Sources: cli.EnvVars("CONVERTER_TIMEOUT"),
			},
			&cli.FloatFlag{
				Name:    "rate-limit",
				Usage:   "Conversion requests per second allowed per client (0 disables)",
				Sources: cli.EnvVars("RATE_LIMIT"),
			},
			&cli.StringSliceFlag{
				Name:    "cors-origin",
				Usage:   "Allowed CORS origin, repeatable (* allows any)",
				Sources: cli.EnvVars("CORS_ORIGINS"),
			},
			&cli.StringSliceFlag{
				Name:  "disable",
				Usage: "Operation to leave unrouted, repeatable (see also DISABLED_OPERATIONS)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP server (default)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return serve(ctx, cmd, logger)
				},
			},
			{
				Name:  "check",
				Usage: "Verify the external converters and staging directory are usable",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return check(cmd, logger)
				},
			},
			{
				Name:  "sweep",
				Usage: "Remove orphaned staging entries once and exit",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "max-age",
						Usage: "Remove entries older than this (defaults to sweep_max_age)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return sweep(cmd, logger)
				},
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("pdf-office version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd, logger)
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

// loadConfig reads the configuration file and applies the flag and environment overrides
func loadConfig(cmd *cli.Command, logger *logrus.Logger) (*config.Config, error) {
	configureLogger(logger, cmd.String("log-level"), cmd.String("log-format"))

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if v := cmd.String("listen"); v != "" {
		cfg.ListenAddr = v
	} else if v := cmd.String("port"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := cmd.String("staging-dir"); v != "" {
		cfg.StagingDir = v
	}
	if v := cmd.String("static-dir"); v != "" {
		cfg.StaticDir = v
	}
	if v := cmd.String("office-binary"); v != "" {
		cfg.OfficeBinary = v
	}
	if v := cmd.String("poppler-path"); v != "" {
		cfg.PopplerPath = v
	}
	if cmd.IsSet("converter-concurrency") {
		cfg.ConverterConcurrency = cmd.Int("converter-concurrency")
	}
	if cmd.IsSet("converter-timeout") {
		cfg.ConverterTimeout = cmd.Duration("converter-timeout")
	}
	if cmd.IsSet("rate-limit") {
		cfg.RateLimit = cmd.Float("rate-limit")
	}
	if origins := cmd.StringSlice("cors-origin"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	cfg.DisabledOperations = append(cfg.DisabledOperations, cmd.StringSlice("disable")...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configureLogger(logger *logrus.Logger, level, format string) {
	logLevel := parseLogLevel(level)
	logger.SetLevel(logLevel)
	logrus.SetLevel(logLevel)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if logLevel < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	// gin's own writer is only used for its debug route table
	gin.DefaultWriter = logger.WriterLevel(logrus.DebugLevel)
	gin.DefaultErrorWriter = logger.WriterLevel(logrus.ErrorLevel)
}

func serve(ctx context.Context, cmd *cli.Command, logger *logrus.Logger) error {
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	shutdownTracer, err := telemetry.InitTracer(logger, Version)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise tracing, continuing without it")
	}
	defer func() {
		if shutdownTracer == nil {
			return
		}
		if err := shutdownTracer(); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	logger.Infof("Starting pdf-office version %s (commit: %s, built: %s)", Version, Commit, BuildDate)

	srv, err := server.New(server.Options{Config: cfg, Logger: logger, Version: Version})
	if err != nil {
		return err
	}

	for _, binary := range []string{cfg.OfficeBinary, cfg.PdftoppmPath()} {
		if _, err := convert.Check(binary); err != nil {
			logger.WithError(err).Warn("Converter not available, dependent operations will fail")
		}
	}

	return srv.Run(ctx)
}

func check(cmd *cli.Command, logger *logrus.Logger) error {
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	var errs []error
	for _, binary := range []string{cfg.OfficeBinary, cfg.PdftoppmPath()} {
		path, err := convert.Check(binary)
		if err != nil {
			errs = append(errs, err)
			fmt.Printf("MISSING  %s\n", binary)
			continue
		}
		fmt.Printf("OK       %s (%s)\n", binary, path)
	}

	area, err := staging.NewArea(cfg.StagingDir, discardLogger())
	if err != nil {
		errs = append(errs, err)
		fmt.Printf("MISSING  staging directory %s\n", cfg.StagingDir)
	} else {
		fmt.Printf("OK       staging directory %s\n", area.Dir())
	}

	return errors.Join(errs...)
}

func sweep(cmd *cli.Command, logger *logrus.Logger) error {
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	maxAge := cfg.SweepMaxAge
	if cmd.IsSet("max-age") {
		maxAge = cmd.Duration("max-age")
	}
	if maxAge <= 0 {
		return fmt.Errorf("max age must be positive, got %s", maxAge)
	}

	area, err := staging.NewArea(cfg.StagingDir, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	removed, err := area.Sweep(maxAge)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"dir":      area.Dir(),
		"removed":  removed,
		"max_age":  maxAge.String(),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Staging sweep complete")
	return nil
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
