package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort             = 8080
	DefaultHost             = "127.0.0.1"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultMaxFileSize      = 100 * 1024 * 1024 // 100MB
	DefaultAcceptThreshold  = 0.5
	DefaultWorkers          = 4
	DefaultExtractorTimeout = 10 * time.Second
	DefaultOCRLanguage      = "eng"
	DefaultOCRBurst         = 1

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix prefixes every environment variable, e.g. FORMCHECK_PORT.
	EnvPrefix = "FORMCHECK"
)

// ErrVersionRequested is returned by Load when --version was passed.
var ErrVersionRequested = errors.New("version requested")

// Config holds all configuration for the formcheck binaries.
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Documents and templates
	DocumentDirectory string
	TemplateDirectory string
	MaxFileSize       int64 // Maximum document size in bytes

	// Engine tuning
	AcceptThreshold  float64
	Workers          int
	ExtractorTimeout time.Duration

	// OCR text provider; an empty URL relies on the PDF text layer only
	OCRURL      string
	OCRLanguage string
	OCRRate     float64 // requests per second, 0 disables throttling
	OCRBurst    int

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
	LogFormat  string
	ConfigFile string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:              ModeStdio,
		Host:              DefaultHost,
		Port:              DefaultPort,
		DocumentDirectory: currentDir,
		TemplateDirectory: filepath.Join(currentDir, "templates"),
		MaxFileSize:       DefaultMaxFileSize,
		AcceptThreshold:   DefaultAcceptThreshold,
		Workers:           DefaultWorkers,
		ExtractorTimeout:  DefaultExtractorTimeout,
		OCRLanguage:       DefaultOCRLanguage,
		OCRBurst:          DefaultOCRBurst,
		Version:           "1.0.0",
		ServerName:        "formcheck",
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
	}
}

// LoadFromFlags loads the configuration from the process arguments.
func LoadFromFlags() (*Config, error) {
	return Load(os.Args[1:], os.Stderr)
}

// Load resolves the configuration from args, FORMCHECK_* environment
// variables and an optional YAML file named by --config, in that order of
// precedence. Usage text goes to usage.
func Load(args []string, usage io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	if versionRequested(args) {
		return nil, ErrVersionRequested
	}

	v := newViper(cfg)
	flags := defineFlags(cfg, usage)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("cannot bind flags: %w", err)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", file, err)
		}
	}

	populate(cfg, v)

	if cfg.DocumentDirectory != "" {
		if abs, err := filepath.Abs(cfg.DocumentDirectory); err == nil {
			cfg.DocumentDirectory = abs
		}
	}
	if cfg.TemplateDirectory != "" {
		if abs, err := filepath.Abs(cfg.TemplateDirectory); err == nil {
			cfg.TemplateDirectory = abs
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newViper returns a viper instance seeded with defaults and environment binding.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("dir", cfg.DocumentDirectory)
	v.SetDefault("templates", cfg.TemplateDirectory)
	v.SetDefault("maxfilesize", cfg.MaxFileSize)
	v.SetDefault("threshold", cfg.AcceptThreshold)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("extractor-timeout", cfg.ExtractorTimeout)
	v.SetDefault("ocr-url", cfg.OCRURL)
	v.SetDefault("ocr-language", cfg.OCRLanguage)
	v.SetDefault("ocr-rate", cfg.OCRRate)
	v.SetDefault("ocr-burst", cfg.OCRBurst)
	v.SetDefault("loglevel", cfg.LogLevel)
	v.SetDefault("logformat", cfg.LogFormat)
	return v
}

// defineFlags sets up all command line flags on a fresh flag set.
func defineFlags(cfg *Config, usage io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("formcheck", pflag.ContinueOnError)
	fs.SetOutput(usage)

	fs.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	fs.String("host", cfg.Host, "Server host address (server mode only)")
	fs.Int("port", cfg.Port, "Server port (server mode only)")
	fs.String("dir", cfg.DocumentDirectory, "Directory containing form documents")
	fs.String("templates", cfg.TemplateDirectory, "Directory containing template documents (.json, .yaml)")
	fs.Int64("maxfilesize", cfg.MaxFileSize, "Maximum document size in bytes")
	fs.Float64("threshold", cfg.AcceptThreshold, "Confidence a template must exceed to be matched")
	fs.Int("workers", cfg.Workers, "Concurrent section workers per document")
	fs.Duration("extractor-timeout", cfg.ExtractorTimeout, "Timeout for each text or feature extraction")
	fs.String("ocr-url", cfg.OCRURL, "Apache Tika base URL for OCR (empty uses the PDF text layer only)")
	fs.String("ocr-language", cfg.OCRLanguage, "OCR language passed to Tika")
	fs.Float64("ocr-rate", cfg.OCRRate, "Maximum OCR requests per second (0 for unlimited)")
	fs.Int("ocr-burst", cfg.OCRBurst, "OCR request burst size")
	fs.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("logformat", cfg.LogFormat, "Log format (text, json)")
	fs.String("config", "", "Optional YAML configuration file")

	fs.Usage = func() {
		fmt.Fprintf(usage, "Usage of formcheck:\n")
		fmt.Fprintf(usage, "\nformcheck - classify scanned application forms and check their sections\n\n")
		fmt.Fprintf(usage, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(usage, "\nExamples:\n")
		fmt.Fprintf(usage, "  formcheck                                          # stdio mode, current directory (default)\n")
		fmt.Fprintf(usage, "  formcheck --dir=/scans --templates=/templates     # stdio mode with custom directories\n")
		fmt.Fprintf(usage, "  formcheck --mode=server --port=8081                # HTTP server\n")
		fmt.Fprintf(usage, "  formcheck --ocr-url=http://localhost:9998          # OCR through Apache Tika\n")
		fmt.Fprintf(usage, "\nEnvironment Variables:\n")
		fmt.Fprintf(usage, "  %s_MODE, %s_PORT, %s_DIR, %s_TEMPLATES, %s_OCR_URL, ...\n",
			EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix, EnvPrefix)
	}
	return fs
}

func versionRequested(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

// populate fills the config struct with the resolved values.
func populate(cfg *Config, v *viper.Viper) {
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.DocumentDirectory = v.GetString("dir")
	cfg.TemplateDirectory = v.GetString("templates")
	cfg.MaxFileSize = v.GetInt64("maxfilesize")
	cfg.AcceptThreshold = v.GetFloat64("threshold")
	cfg.Workers = v.GetInt("workers")
	cfg.ExtractorTimeout = v.GetDuration("extractor-timeout")
	cfg.OCRURL = v.GetString("ocr-url")
	cfg.OCRLanguage = v.GetString("ocr-language")
	cfg.OCRRate = v.GetFloat64("ocr-rate")
	cfg.OCRBurst = v.GetInt("ocr-burst")
	cfg.LogLevel = v.GetString("loglevel")
	cfg.LogFormat = v.GetString("logformat")
	cfg.ConfigFile = v.GetString("config")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.DocumentDirectory == "" {
		return errors.New("document directory cannot be empty")
	}
	if _, err := os.Stat(c.DocumentDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.DocumentDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create document directory %s: %w", c.DocumentDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access document directory %s: %w", c.DocumentDirectory, err)
	}

	if c.TemplateDirectory == "" {
		return errors.New("template directory cannot be empty")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.AcceptThreshold < 0 || c.AcceptThreshold >= 1 {
		return fmt.Errorf("threshold must be in [0, 1), got %v", c.AcceptThreshold)
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.ExtractorTimeout <= 0 {
		return errors.New("extractor timeout must be positive")
	}

	if c.OCRURL != "" {
		u, err := url.Parse(c.OCRURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid OCR URL: %s", c.OCRURL)
		}
	}
	if c.OCRRate < 0 {
		return errors.New("OCR rate cannot be negative")
	}
	if c.OCRRate > 0 && c.OCRBurst < 1 {
		return errors.New("OCR burst must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// HasOCR reports whether an OCR endpoint is configured.
func (c *Config) HasOCR() bool {
	return c.OCRURL != ""
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, DocumentDirectory: %s, TemplateDirectory: %s, "+
		"LogLevel: %s, MaxFileSize: %d, Threshold: %v, Workers: %d}",
		c.Mode, c.Host, c.Port, c.DocumentDirectory, c.TemplateDirectory,
		c.LogLevel, c.MaxFileSize, c.AcceptThreshold, c.Workers)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
