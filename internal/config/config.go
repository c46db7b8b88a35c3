// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-agent/internal/conversation"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
	"github.com/jeranaias/rigrun-agent/internal/util"
)

// Conversation manager names.
const (
	ManagerSlidingWindow = "sliding_window"
	ManagerNone          = "none"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agent configuration.
type Config struct {
	Model        ModelConfig        `toml:"model" json:"model" yaml:"model"`
	Conversation ConversationConfig `toml:"conversation" json:"conversation" yaml:"conversation"`
	Agent        AgentConfig        `toml:"agent" json:"agent" yaml:"agent"`
	Transcript   TranscriptConfig   `toml:"transcript" json:"transcript" yaml:"transcript"`
	Metrics      MetricsConfig      `toml:"metrics" json:"metrics" yaml:"metrics"`
	Output       OutputConfig       `toml:"output" json:"output" yaml:"output"`
	Log          LogConfig          `toml:"log" json:"log" yaml:"log"`
}

// ModelConfig contains the Ollama endpoint and request settings.
type ModelConfig struct {
	// Host is the Ollama base URL
	Host string `toml:"host" json:"host" yaml:"host"`

	// ModelID is the model to run (e.g. "llama3")
	ModelID string `toml:"model_id" json:"model_id" yaml:"model_id"`

	// TimeoutSecs bounds each request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" yaml:"timeout_secs"`

	// MaxRetries for connection and timeout failures (0 disables retry)
	MaxRetries int `toml:"max_retries" json:"max_retries" yaml:"max_retries"`

	// RetryDelayMs is the initial backoff between retries
	RetryDelayMs int `toml:"retry_delay_ms" json:"retry_delay_ms" yaml:"retry_delay_ms"`

	// RequestsPerSecond limits outgoing requests (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`

	// KeepAlive is how long Ollama keeps the model loaded (e.g. "5m"); empty
	// leaves the server default
	KeepAlive string `toml:"keep_alive" json:"keep_alive" yaml:"keep_alive"`

	// Options are sampling parameters; zero values are not sent
	Options ModelOptions `toml:"options" json:"options" yaml:"options"`
}

// ModelOptions are the inference parameters passed through to Ollama.
type ModelOptions struct {
	Temperature float64 `toml:"temperature" json:"temperature" yaml:"temperature"`
	TopK        int     `toml:"top_k" json:"top_k" yaml:"top_k"`
	TopP        float64 `toml:"top_p" json:"top_p" yaml:"top_p"`
	NumCtx      int     `toml:"num_ctx" json:"num_ctx" yaml:"num_ctx"`
	NumPredict  int     `toml:"num_predict" json:"num_predict" yaml:"num_predict"`
	Seed        int     `toml:"seed" json:"seed" yaml:"seed"`
}

// ConversationConfig selects and sizes the conversation history manager.
type ConversationConfig struct {
	// Manager is "sliding_window" or "none"
	Manager string `toml:"manager" json:"manager" yaml:"manager"`

	// WindowSize is the maximum number of retained turns
	WindowSize int `toml:"window_size" json:"window_size" yaml:"window_size"`

	// ShouldTruncateResults shortens long assistant turns before evicting
	// when the backend reports a context overflow
	ShouldTruncateResults bool `toml:"should_truncate_results" json:"should_truncate_results" yaml:"should_truncate_results"`

	// TruncateThreshold is the rune length above which a turn is truncatable
	TruncateThreshold int `toml:"truncate_threshold" json:"truncate_threshold" yaml:"truncate_threshold"`

	// TruncatedLength is the rune length a truncated turn keeps
	TruncatedLength int `toml:"truncated_length" json:"truncated_length" yaml:"truncated_length"`
}

// AgentConfig contains agent behaviour settings.
type AgentConfig struct {
	// SystemPrompt is sent first in every request of the chat program
	SystemPrompt string `toml:"system_prompt" json:"system_prompt" yaml:"system_prompt"`
}

// TranscriptConfig controls the SQLite transcript.
type TranscriptConfig struct {
	// Path to the SQLite database; empty disables recording
	Path string `toml:"path" json:"path" yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen address for /metrics; empty disables the endpoint
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// OutputConfig controls how replies are written.
type OutputConfig struct {
	// Markdown renders each complete reply with glamour on a color terminal
	// instead of streaming tokens as they arrive
	Markdown bool `toml:"markdown" json:"markdown" yaml:"markdown"`
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level" yaml:"level"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with all default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Host:         ollama.DefaultBaseURL,
			ModelID:      ollama.DefaultModel,
			TimeoutSecs:  int(ollama.DefaultTimeout / time.Second),
			MaxRetries:   ollama.DefaultMaxRetries,
			RetryDelayMs: int(ollama.DefaultRetryDelay / time.Millisecond),
		},
		Conversation: ConversationConfig{
			Manager:               ManagerSlidingWindow,
			WindowSize:            conversation.DefaultWindowSize,
			ShouldTruncateResults: true,
			TruncateThreshold:     conversation.DefaultTruncateThreshold,
			TruncatedLength:       conversation.DefaultTruncatedLength,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the per-user configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-agent"), nil
}

// ConfigPathTOML returns the path to the per-user TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ResolvePath returns the configuration file to load, or "" when none
// exists. A path named by $AGENT_CONFIG must exist.
func ResolvePath() (string, error) {
	if path := os.Getenv("AGENT_CONFIG"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("AGENT_CONFIG: %w", err)
		}
		return path, nil
	}

	if _, err := os.Stat("agent.toml"); err == nil {
		return "agent.toml", nil
	}

	userPath, err := ConfigPathTOML()
	if err != nil {
		return "", nil
	}
	if _, err := os.Stat(userPath); err == nil {
		return userPath, nil
	}
	return "", nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ./.env, resolves the configuration file and loads it.
// Without a file the defaults are used. Environment overrides are applied
// last and the result is validated.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path, err := ResolvePath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		return LoadFromPath(path)
	}

	cfg := Default()
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The format follows the extension: .json, .yaml/.yml, else TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadYAML decodes a YAML file over cfg.
func LoadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

func (c *Config) finalize() error {
	if err := c.ApplyEnvOverrides(); err != nil {
		return err
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration to a TOML file atomically with 0600
// permissions, creating parent directories as needed.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigrun-agent configuration file\n")
	buf.WriteString("# Environment variables (AGENT_*) override these values.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Model
	if u, err := url.Parse(c.Model.Host); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("model.host", "must be an http(s) URL, got %q", c.Model.Host)
	}
	if strings.TrimSpace(c.Model.ModelID) == "" {
		add("model.model_id", "must not be empty")
	}
	if c.Model.TimeoutSecs <= 0 || c.Model.TimeoutSecs > 3600 {
		add("model.timeout_secs", "must be between 1 and 3600, got %d", c.Model.TimeoutSecs)
	}
	if c.Model.MaxRetries < 0 || c.Model.MaxRetries > 10 {
		add("model.max_retries", "must be between 0 and 10, got %d", c.Model.MaxRetries)
	}
	if c.Model.RetryDelayMs < 0 {
		add("model.retry_delay_ms", "must not be negative, got %d", c.Model.RetryDelayMs)
	}
	if c.Model.RequestsPerSecond < 0 {
		add("model.requests_per_second", "must not be negative, got %g", c.Model.RequestsPerSecond)
	}
	if c.Model.KeepAlive != "" && c.Model.KeepAlive != "-1" {
		if _, err := time.ParseDuration(c.Model.KeepAlive); err != nil {
			add("model.keep_alive", "must be a duration such as \"5m\" or -1, got %q", c.Model.KeepAlive)
		}
	}
	if o := c.Model.Options; o.Temperature < 0 || o.Temperature > 2 {
		add("model.options.temperature", "must be between 0 and 2, got %g", o.Temperature)
	}
	if o := c.Model.Options; o.TopP < 0 || o.TopP > 1 {
		add("model.options.top_p", "must be between 0 and 1, got %g", o.TopP)
	}
	if o := c.Model.Options; o.TopK < 0 || o.NumCtx < 0 || o.NumPredict < -1 {
		add("model.options", "top_k and num_ctx must not be negative and num_predict must be -1 or more")
	}

	// Conversation
	switch c.Conversation.Manager {
	case ManagerSlidingWindow, ManagerNone:
	default:
		add("conversation.manager", "must be %q or %q, got %q", ManagerSlidingWindow, ManagerNone, c.Conversation.Manager)
	}
	if c.Conversation.WindowSize <= 0 {
		add("conversation.window_size", "must be positive, got %d", c.Conversation.WindowSize)
	}
	if c.Conversation.TruncateThreshold <= 0 {
		add("conversation.truncate_threshold", "must be positive, got %d", c.Conversation.TruncateThreshold)
	}
	if c.Conversation.TruncatedLength <= 0 || c.Conversation.TruncatedLength >= c.Conversation.TruncateThreshold {
		add("conversation.truncated_length", "must be positive and below truncate_threshold, got %d", c.Conversation.TruncatedLength)
	}

	// Metrics
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			add("metrics.listen", "must be host:port, got %q", c.Metrics.Listen)
		}
	}

	// Log
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have no meaning of their own.
// MaxRetries and RequestsPerSecond are left alone since zero is meaningful,
// and WindowSize since an explicit zero must fail validation.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Model.Host == "" {
		c.Model.Host = defaults.Model.Host
	}
	if c.Model.ModelID == "" {
		c.Model.ModelID = defaults.Model.ModelID
	}
	if c.Model.TimeoutSecs == 0 {
		c.Model.TimeoutSecs = defaults.Model.TimeoutSecs
	}
	if c.Model.RetryDelayMs == 0 {
		c.Model.RetryDelayMs = defaults.Model.RetryDelayMs
	}

	if c.Conversation.Manager == "" {
		c.Conversation.Manager = defaults.Conversation.Manager
	}
	if c.Conversation.TruncateThreshold == 0 {
		c.Conversation.TruncateThreshold = defaults.Conversation.TruncateThreshold
	}
	if c.Conversation.TruncatedLength == 0 {
		c.Conversation.TruncatedLength = defaults.Conversation.TruncatedLength
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - AGENT_OLLAMA_HOST: overrides model.host
//   - AGENT_MODEL_ID: overrides model.model_id
//   - AGENT_WINDOW_SIZE: overrides conversation.window_size
//   - AGENT_SYSTEM_PROMPT: overrides agent.system_prompt
//   - AGENT_TRANSCRIPT_PATH: overrides transcript.path
//   - AGENT_METRICS_LISTEN: overrides metrics.listen
//   - AGENT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() error {
	if host := os.Getenv("AGENT_OLLAMA_HOST"); host != "" {
		c.Model.Host = host
	}
	if model := os.Getenv("AGENT_MODEL_ID"); model != "" {
		c.Model.ModelID = model
	}
	if size := os.Getenv("AGENT_WINDOW_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return ValidationError{Field: "AGENT_WINDOW_SIZE", Message: fmt.Sprintf("invalid integer %q", size)}
		}
		c.Conversation.WindowSize = n
	}
	if prompt := os.Getenv("AGENT_SYSTEM_PROMPT"); prompt != "" {
		c.Agent.SystemPrompt = prompt
	}
	if path := os.Getenv("AGENT_TRANSCRIPT_PATH"); path != "" {
		c.Transcript.Path = path
	}
	if listen := os.Getenv("AGENT_METRICS_LISTEN"); listen != "" {
		c.Metrics.Listen = listen
	}
	if level := os.Getenv("AGENT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	return nil
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// ClientConfig converts the model section into an Ollama client config.
func (c *Config) ClientConfig() *ollama.ClientConfig {
	return &ollama.ClientConfig{
		BaseURL:           c.Model.Host,
		Model:             c.Model.ModelID,
		Timeout:           time.Duration(c.Model.TimeoutSecs) * time.Second,
		MaxRetries:        c.Model.MaxRetries,
		RetryDelay:        time.Duration(c.Model.RetryDelayMs) * time.Millisecond,
		RequestsPerSecond: c.Model.RequestsPerSecond,
		KeepAlive:         c.Model.KeepAlive,
		Options:           c.Model.Options.wire(),
	}
}

// wire returns the options in request form, or nil when none are set.
func (o ModelOptions) wire() *ollama.Options {
	if o == (ModelOptions{}) {
		return nil
	}
	return &ollama.Options{
		Temperature: o.Temperature,
		TopK:        o.TopK,
		TopP:        o.TopP,
		NumCtx:      o.NumCtx,
		NumPredict:  o.NumPredict,
		Seed:        o.Seed,
	}
}

// WindowConfig converts the conversation section into a window config.
func (c *Config) WindowConfig() conversation.WindowConfig {
	return conversation.WindowConfig{
		WindowSize:            c.Conversation.WindowSize,
		ShouldTruncateResults: c.Conversation.ShouldTruncateResults,
		TruncateThreshold:     c.Conversation.TruncateThreshold,
		TruncatedLength:       c.Conversation.TruncatedLength,
	}
}

// LogLevel returns the configured slog level, defaulting to warn.
func (c *Config) LogLevel() slog.Level {
	level, err := ParseLogLevel(c.Log.Level)
	if err != nil {
		return slog.LevelWarn
	}
	return level
}

// ParseLogLevel parses debug, info, warn or error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("unknown level %q (want debug, info, warn or error)", s)
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "model.model_id").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "conversation.window_size").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}

		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := parseBool(strVal)
			if err != nil {
				return err
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// parseBool accepts yes and no besides the strconv.ParseBool forms.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid boolean value %q (want true or false)", s)
	}
	return b, nil
}

// String returns the configuration as indented JSON for display.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
