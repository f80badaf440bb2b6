// Package config provides configuration management for the concierge server.
// It covers the HTTP listener, the completion service, the assistant workflow,
// prompt templates and runtime behavior.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server" toml:"server"`
	Completion     CompletionConfig     `yaml:"completion" toml:"completion"`
	Assistant      AssistantConfig      `yaml:"assistant" toml:"assistant"`
	Assets         AssetsConfig         `yaml:"assets" toml:"assets"`
	Prompts        PromptConfig         `yaml:"prompts" toml:"prompts"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
	Logging        LoggingConfig        `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8080)
	Port int `yaml:"port" toml:"port" env:"CONCIERGE_PORT"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout" toml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// It must cover two completion calls (default: 150s)
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" toml:"max_header_bytes"`

	// MaxBodyBytes caps inquiry bodies, which may carry inline images (default: 20MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`

	// MaxConcurrent caps inquiries running at once; 0 disables the cap (default: 32)
	MaxConcurrent int `yaml:"max_concurrent" toml:"max_concurrent" env:"CONCIERGE_MAX_CONCURRENT"`

	// MaxQueued is how many inquiries may wait for a slot before new ones
	// are refused with 503 (default: 64)
	MaxQueued int `yaml:"max_queued" toml:"max_queued" env:"CONCIERGE_MAX_QUEUED"`

	// RequestTimeout bounds a whole inquiry, tool round trip included (default: 140s)
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`

	// ShutdownTimeout specifies how long to wait for the server to shutdown
	// gracefully before forcing termination (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// CompletionConfig configures the OpenAI-compatible chat completion client.
type CompletionConfig struct {
	// APIKey authenticates against the completion service.
	// Use ${OPENAI_API_KEY} in the file or set the variable directly.
	APIKey string `yaml:"api_key" toml:"api_key" env:"OPENAI_API_KEY"`

	// BaseURL overrides the API endpoint, e.g. for a proxy or a compatible server
	BaseURL string `yaml:"base_url" toml:"base_url" env:"OPENAI_BASE_URL"`

	// Organization is sent as the OpenAI-Organization header when set
	Organization string `yaml:"organization" toml:"organization" env:"OPENAI_ORG_ID"`

	// Timeout bounds each completion call (default: 60s)
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// AssistantConfig controls the inquiry workflow.
type AssistantConfig struct {
	// ChatModel answers text-only inquiries and may request tools
	ChatModel string `yaml:"chat_model" toml:"chat_model" env:"CONCIERGE_CHAT_MODEL"`

	// VisionModel answers inquiries with images and runs image analysis
	VisionModel string `yaml:"vision_model" toml:"vision_model" env:"CONCIERGE_VISION_MODEL"`

	// HistoryLimit is how many previous turns are kept (default: 20)
	HistoryLimit int `yaml:"history_limit" toml:"history_limit"`

	// ReofferTools re-sends tool declarations on the follow-up call after a
	// tool round trip (default: false)
	ReofferTools bool `yaml:"reoffer_tools" toml:"reoffer_tools"`

	// CountTokens enables prompt token accounting with tiktoken
	CountTokens bool `yaml:"count_tokens" toml:"count_tokens"`
}

// AssetsConfig locates image files referenced by tool calls.
type AssetsConfig struct {
	// PublicDir is the root relative image paths are resolved against (default: public)
	PublicDir string `yaml:"public_dir" toml:"public_dir" env:"CONCIERGE_PUBLIC_DIR"`
}

// CircuitBreakerConfig configures the breaker in front of the completion service.
type CircuitBreakerConfig struct {
	// MaxRequests is maximum number of requests allowed to pass through when in half-open state
	MaxRequests uint32 `yaml:"max_requests" toml:"max_requests"`

	// Interval is the cyclic period of the closed state for the circuit breaker
	Interval time.Duration `yaml:"interval" toml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// FailureThreshold is the number of consecutive failures needed to trip the circuit
	FailureThreshold uint32 `yaml:"failure_threshold" toml:"failure_threshold"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level" toml:"level" env:"CONCIERGE_LOG_LEVEL"`

	// Format specifies log output format: json or text
	Format string `yaml:"format" toml:"format" env:"CONCIERGE_LOG_FORMAT"`
}

// DefaultConfig returns the configuration used when no file overrides a value.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    150 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxBodyBytes:    20 << 20,
			MaxConcurrent:   32,
			MaxQueued:       64,
			RequestTimeout:  140 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Completion: CompletionConfig{
			Timeout: 60 * time.Second,
		},
		Assistant: AssistantConfig{
			ChatModel:    "gpt-4o-mini",
			VisionModel:  "gpt-4o",
			HistoryLimit: 20,
		},
		Assets: AssetsConfig{
			PublicDir: "public",
		},
		Prompts: DefaultPrompts(),
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFile loads configuration from a YAML or TOML file. The format is
// chosen by extension; anything but .toml is read as YAML.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		return LoadTOML(f)
	}
	return Load(f)
}

var envRef = regexp.MustCompile(`\$\{([^{}]+)\}`)

// expandEnvVars resolves ${VAR} and ${VAR:-default} references in s.
// Bare $VAR is left alone so prompt templates can mention prices.
// Nested references are resolved until the string stops changing.
//
// Example Transformations:
// - "${OPENAI_API_KEY}" → "sk-..."
// - "${PORT:-8080}" → "8080" (if PORT is unset)
func expandEnvVars(s string) (string, error) {
	if strings.Count(s, "${") > len(envRef.FindAllString(s, -1)) {
		return "", fmt.Errorf("invalid syntax: unterminated variable reference")
	}

	resolve := func(ref string) string {
		key := envRef.FindStringSubmatch(ref)[1]
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	}

	result := s
	for i := 0; i < 8; i++ {
		next := envRef.ReplaceAllStringFunc(result, resolve)
		if next == result {
			break
		}
		result = next
	}

	return result, nil
}

// Load loads YAML configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	return load(r, func(data string, cfg *Config) error {
		dec := yaml.NewDecoder(strings.NewReader(data))
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return err
		}
		return nil
	})
}

// LoadTOML loads TOML configuration from an io.Reader
func LoadTOML(r io.Reader) (*Config, error) {
	return load(r, func(data string, cfg *Config) error {
		_, err := toml.Decode(data, cfg)
		return err
	})
}

func load(r io.Reader, decode func(string, *Config) error) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	// Start with defaults
	config := DefaultConfig()

	if err := decode(expanded, config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Environment variables win over file contents
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	// Server validation
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		add("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		add("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		add("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.MaxBodyBytes < 0 {
		add("negative max body bytes: %d", c.Server.MaxBodyBytes)
	}
	if c.Server.MaxConcurrent < 0 {
		add("negative max concurrent inquiries: %d", c.Server.MaxConcurrent)
	}
	if c.Server.MaxQueued < 0 {
		add("negative max queued inquiries: %d", c.Server.MaxQueued)
	}
	if c.Server.RequestTimeout < 0 {
		add("negative request timeout: %v", c.Server.RequestTimeout)
	}
	if c.Server.ShutdownTimeout < 0 {
		add("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}

	// Completion validation
	if c.Completion.Timeout <= 0 {
		add("completion timeout must be positive: %v", c.Completion.Timeout)
	}

	// Assistant validation
	if c.Assistant.ChatModel == "" {
		add("empty chat model")
	}
	if c.Assistant.VisionModel == "" {
		add("empty vision model")
	}
	if c.Assistant.HistoryLimit < 0 {
		add("negative history limit: %d", c.Assistant.HistoryLimit)
	}

	if c.Assets.PublicDir == "" {
		add("empty public asset directory")
	}

	if c.CircuitBreaker.FailureThreshold == 0 {
		add("circuit breaker failure threshold must be positive")
	}

	// Prompt templates must compile
	for name, src := range c.Prompts.sources() {
		if strings.TrimSpace(src) == "" && name != "vision" {
			add("empty %s prompt", name)
			continue
		}
		if _, err := template.New(name).Parse(src); err != nil {
			add("invalid %s prompt template: %v", name, err)
		}
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		add("invalid log format: %s", c.Logging.Format)
	}

	return result.ErrorOrNil()
}
