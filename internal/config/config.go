package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultListenAddr matches the port the original front end expects
	DefaultListenAddr = ":5000"

	// DefaultMaxFileSize is the per-upload limit (100MB)
	DefaultMaxFileSize = 100 * 1024 * 1024

	// DefaultMaxRequestSize is the limit for a whole multipart body (256MB)
	DefaultMaxRequestSize = 256 * 1024 * 1024

	// DefaultConverterConcurrency caps concurrent office/rasteriser processes
	DefaultConverterConcurrency = 2

	DefaultOfficeBinary   = "soffice"
	DefaultSweepInterval  = 10 * time.Minute
	DefaultSweepMaxAge    = time.Hour
	DefaultShutdownPeriod = 15 * time.Second
)

// Config holds the startup configuration of the service.
// Values come from an optional YAML file and are then overridden by CLI flags and environment variables.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	StagingDir string `yaml:"staging_dir"`
	StaticDir  string `yaml:"static_dir"`

	// External converters
	OfficeBinary         string        `yaml:"office_binary"`
	PopplerPath          string        `yaml:"poppler_path"`
	ConverterConcurrency int           `yaml:"converter_concurrency"`
	ConverterTimeout     time.Duration `yaml:"converter_timeout"` // 0 means no timeout

	// Upload limits
	MaxFileSize    int64 `yaml:"max_file_size"`
	MaxRequestSize int64 `yaml:"max_request_size"`

	// HTTP surface
	RateLimit          float64  `yaml:"rate_limit"` // requests per second, 0 disables limiting
	RateBurst          int      `yaml:"rate_burst"`
	CORSOrigins        []string `yaml:"cors_origins"`
	DisabledOperations []string `yaml:"disabled_operations"`

	// Staging janitor
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepMaxAge   time.Duration `yaml:"sweep_max_age"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a configuration populated with sensible defaults
func Default() *Config {
	return &Config{
		ListenAddr:           DefaultListenAddr,
		StagingDir:           filepath.Join(os.TempDir(), "pdf-office-uploads"),
		OfficeBinary:         DefaultOfficeBinary,
		PopplerPath:          defaultPopplerPath(),
		ConverterConcurrency: DefaultConverterConcurrency,
		MaxFileSize:          DefaultMaxFileSize,
		MaxRequestSize:       DefaultMaxRequestSize,
		RateBurst:            20,
		CORSOrigins:          []string{"*"},
		SweepInterval:        DefaultSweepInterval,
		SweepMaxAge:          DefaultSweepMaxAge,
		ShutdownTimeout:      DefaultShutdownPeriod,
	}
}

// Load reads a YAML configuration file on top of the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that the configuration can be used to start the server
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr must not be empty"))
	}
	if strings.TrimSpace(c.StagingDir) == "" {
		errs = append(errs, errors.New("staging_dir must not be empty"))
	}
	if strings.TrimSpace(c.OfficeBinary) == "" {
		errs = append(errs, errors.New("office_binary must not be empty"))
	}
	if c.ConverterConcurrency < 1 {
		errs = append(errs, fmt.Errorf("converter_concurrency must be at least 1, got %d", c.ConverterConcurrency))
	}
	if c.ConverterTimeout < 0 {
		errs = append(errs, fmt.Errorf("converter_timeout must not be negative, got %s", c.ConverterTimeout))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize))
	}
	if c.MaxRequestSize < c.MaxFileSize {
		errs = append(errs, fmt.Errorf("max_request_size (%d) must not be smaller than max_file_size (%d)", c.MaxRequestSize, c.MaxFileSize))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("rate_burst must be at least 1 when rate_limit is set, got %d", c.RateBurst))
	}
	if c.SweepInterval < 0 || c.SweepMaxAge < 0 {
		errs = append(errs, errors.New("sweep_interval and sweep_max_age must not be negative"))
	}

	return errors.Join(errs...)
}

// PdftoppmPath returns the full path to the pdftoppm binary inside PopplerPath
func (c *Config) PdftoppmPath() string {
	if c.PopplerPath == "" {
		return "pdftoppm"
	}
	return filepath.Join(c.PopplerPath, "pdftoppm")
}

// defaultPopplerPath returns the usual install location of the poppler utilities
func defaultPopplerPath() string {
	if _, err := os.Stat("/usr/bin/pdftoppm"); err == nil {
		return "/usr/bin"
	}
	// Fall back to PATH lookup
	return ""
}
