package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DocumentDirectory = t.TempDir()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeStdio, cfg.Mode)
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "formcheck", cfg.ServerName)
	assert.NotEmpty(t, cfg.Version)
	assert.NotEmpty(t, cfg.DocumentDirectory)
	assert.Equal(t, "templates", filepath.Base(cfg.TemplateDirectory))
	assert.Equal(t, DefaultOCRLanguage, cfg.OCRLanguage)
	assert.Zero(t, cfg.OCRRate)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid stdio", func(*Config) {}, ""},
		{"valid server", func(c *Config) { c.Mode = ModeServer }, ""},
		{"stdio ignores port", func(c *Config) { c.Port = 0 }, ""},
		{"invalid mode", func(c *Config) { c.Mode = "invalid" }, "mode must be"},
		{"server port too low", func(c *Config) { c.Mode = ModeServer; c.Port = 0 }, "port must be"},
		{"server port too high", func(c *Config) { c.Mode = ModeServer; c.Port = 65536 }, "port must be"},
		{"empty document directory", func(c *Config) { c.DocumentDirectory = "" }, "document directory"},
		{"empty template directory", func(c *Config) { c.TemplateDirectory = "" }, "template directory"},
		{"zero max file size", func(c *Config) { c.MaxFileSize = 0 }, "file size"},
		{"negative threshold", func(c *Config) { c.AcceptThreshold = -0.1 }, "threshold"},
		{"zero threshold", func(c *Config) { c.AcceptThreshold = 0 }, ""},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"zero timeout", func(c *Config) { c.ExtractorTimeout = 0 }, "timeout"},
		{"ocr url without host", func(c *Config) { c.OCRURL = "http://" }, "invalid OCR URL"},
		{"ocr url ftp", func(c *Config) { c.OCRURL = "ftp://tika" }, "invalid OCR URL"},
		{"ocr rate without burst", func(c *Config) { c.OCRRate = 1; c.OCRBurst = 0 }, "burst"},
		{"invalid log level", func(c *Config) { c.LogLevel = "verbose" }, "invalid log level"},
		{"invalid log format", func(c *Config) { c.LogFormat = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateCreatesDocumentDirectory(t *testing.T) {
	cfg := validConfig(t)
	cfg.DocumentDirectory = filepath.Join(cfg.DocumentDirectory, "scans", "incoming")

	require.NoError(t, cfg.Validate())

	info, err := os.Stat(cfg.DocumentDirectory)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfig_Address(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 8080, "127.0.0.1:8080"},
		{"0.0.0.0", 3000, "0.0.0.0:3000"},
		{"localhost", 443, "localhost:443"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			cfg := &Config{Host: tt.host, Port: tt.port}
			assert.Equal(t, tt.want, cfg.Address())
		})
	}
}

func TestConfig_Modes(t *testing.T) {
	cfg := &Config{Mode: ModeStdio}
	assert.True(t, cfg.IsStdioMode())
	assert.False(t, cfg.IsServerMode())

	cfg.Mode = ModeServer
	assert.True(t, cfg.IsServerMode())
	assert.False(t, cfg.IsStdioMode())
}

func TestConfig_IsDebug(t *testing.T) {
	for level, want := range map[string]bool{"debug": true, "info": false, "warn": false, "error": false} {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, want, cfg.IsDebug(), level)
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Mode:              ModeServer,
		Host:              "localhost",
		Port:              8080,
		DocumentDirectory: "/scans",
		TemplateDirectory: "/templates",
		LogLevel:          "debug",
		MaxFileSize:       1024,
		AcceptThreshold:   0.5,
		Workers:           4,
		ExtractorTimeout:  time.Second,
	}

	s := cfg.String()
	for _, want := range []string{"Mode: server", "Port: 8080", "/scans", "/templates", "Threshold: 0.5", "Workers: 4"} {
		assert.Contains(t, s, want)
	}
}
