package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, time.Duration(0), cfg.ConverterTimeout, "converters have no timeout unless configured")
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: ":8080"
office_binary: /opt/libreoffice/program/soffice
converter_concurrency: 4
converter_timeout: 90s
cors_origins:
  - https://example.com
disabled_operations: [pdftoword, wordtopdf]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "/opt/libreoffice/program/soffice", cfg.OfficeBinary)
	assert.Equal(t, 4, cfg.ConverterConcurrency)
	assert.Equal(t, 90*time.Second, cfg.ConverterTimeout)
	assert.Equal(t, []string{"https://example.com"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"pdftoword", "wordtopdf"}, cfg.DisabledOperations)

	// Untouched keys keep their defaults
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.MaxFileSize)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unterminated"), 0600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen address", func(c *Config) { c.ListenAddr = " " }},
		{"empty staging dir", func(c *Config) { c.StagingDir = "" }},
		{"empty office binary", func(c *Config) { c.OfficeBinary = "" }},
		{"zero concurrency", func(c *Config) { c.ConverterConcurrency = 0 }},
		{"negative timeout", func(c *Config) { c.ConverterTimeout = -time.Second }},
		{"zero file size", func(c *Config) { c.MaxFileSize = 0 }},
		{"request smaller than file", func(c *Config) { c.MaxRequestSize = c.MaxFileSize - 1 }},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }},
		{"rate without burst", func(c *Config) { c.RateLimit = 5; c.RateBurst = 0 }},
		{"negative sweep", func(c *Config) { c.SweepMaxAge = -time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPdftoppmPath(t *testing.T) {
	cfg := Default()
	cfg.PopplerPath = "/usr/local/bin"
	assert.Equal(t, "/usr/local/bin/pdftoppm", cfg.PdftoppmPath())

	cfg.PopplerPath = ""
	assert.Equal(t, "pdftoppm", cfg.PdftoppmPath())
}
