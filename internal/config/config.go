package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/toolchat/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// Provider transport types.
const (
	ProviderStdio   = "stdio"
	ProviderSSE     = "sse"
	ProviderHTTP    = "http"
	ProviderBuiltin = "builtin"
)

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	API       string `yaml:"api" env:"API" validate:"required"`
	BaseURL   string `yaml:"base-url" env:"BASE_URL" validate:"omitempty,url"`
	APIKey    string `yaml:"api-key" env:"API_KEY"`
	APIKeyEnv string `yaml:"api-key-env" env:"API_KEY_ENV"`
	APIKeyCmd string `yaml:"api-key-cmd" env:"API_KEY_CMD"`
	HTTPProxy string `yaml:"http-proxy" env:"HTTP_PROXY" validate:"omitempty,url"`

	Model         string  `yaml:"model" env:"MODEL" validate:"required"`
	Temperature   float64 `yaml:"temperature" env:"TEMPERATURE" validate:"gte=0,lte=1"`
	MaxTokens     int64   `yaml:"max-tokens" env:"MAX_TOKENS" validate:"gt=0"`
	System        string  `yaml:"system" env:"SYSTEM"`
	MaxIterations int     `yaml:"max-iterations" env:"MAX_ITERATIONS" validate:"gt=0"`

	Listen       string        `yaml:"listen" env:"LISTEN" validate:"required"`
	CORSOrigins  []string      `yaml:"cors-origins" env:"CORS_ORIGINS"`
	StreamPacing time.Duration `yaml:"stream-pacing" env:"STREAM_PACING" validate:"gte=0"`

	LogLevel     string `yaml:"log-level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogFormat    string `yaml:"log-format" env:"LOG_FORMAT" validate:"omitempty,oneof=text json"`
	OTLPEndpoint string `yaml:"otlp-endpoint" env:"OTLP_ENDPOINT" validate:"omitempty,url"`

	Providers       map[string]ProviderConfig `yaml:"providers" validate:"dive"`
	ProviderDisable []string                  `yaml:"provider-disable" env:"PROVIDER_DISABLE"`
	StartTimeout    time.Duration             `yaml:"start-timeout" env:"START_TIMEOUT" validate:"gte=0"`
	CallTimeout     time.Duration             `yaml:"call-timeout" env:"CALL_TIMEOUT" validate:"gte=0"`
	ShutdownGrace   time.Duration             `yaml:"shutdown-grace" env:"SHUTDOWN_GRACE" validate:"gte=0"`
}

// Runtime holds CLI/runtime-only options that should not be loaded from the
// settings file.
type Runtime struct {
	SettingsPath string
	NoTools      bool
	Raw          bool
}

// Config is the application configuration (settings + runtime-only options).
//
// Settings fields are promoted for ergonomic access, but runtime fields are
// explicitly excluded from YAML/env parsing.
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// ProviderConfig holds configuration for one tool provider.
type ProviderConfig struct {
	Type    string   `yaml:"type" validate:"omitempty,oneof=stdio sse http builtin"`
	Command string   `yaml:"command" validate:"required_if=Type stdio"`
	Env     []string `yaml:"env"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url" validate:"required_if=Type http,required_if=Type sse,omitempty,url"`
	Tools   []string `yaml:"tools"`
}

// Kind returns the transport type, defaulting to stdio.
func (p ProviderConfig) Kind() string {
	if p.Type == "" {
		return ProviderStdio
	}
	return p.Type
}

// IsEnabled reports whether the named provider is enabled.
func (c *Config) IsEnabled(name string) bool {
	return !slices.Contains(c.ProviderDisable, "*") &&
		!slices.Contains(c.ProviderDisable, name)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks settings invariants.
func (c *Config) Validate() error {
	if err := validate.Struct(c.Settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return errs.Error{
				Err:    errs.UserErrorf("%s", strings.Join(msgs, "; ")),
				Reason: "Invalid settings.",
			}
		}
		return errs.Error{Err: err, Reason: "Invalid settings."}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Settings.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s (got %v)", field, fe.Tag(), fe.Value())
}

// SettingsPath returns the default settings file location.
func SettingsPath() (string, error) {
	if p := os.Getenv("TOOLCHAT_SETTINGS"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errs.Error{Err: err, Reason: "Could not determine home directory."}
	}
	return filepath.Join(home, ".config", "toolchat", "toolchat.yml"), nil
}

// Ensure loads settings from disk and environment and applies defaults.
//
// It also creates the default settings file if it does not exist.
func Ensure() (Config, error) {
	sp, err := SettingsPath()
	if err != nil {
		return Default(), err
	}
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return Default(), errs.Error{Err: err, Reason: "Could not create settings directory."}
	}
	if err := WriteConfigFile(sp); err != nil {
		return Default(), err
	}
	return Load(sp)
}

// Load reads the settings file at path, overlays the environment and fills
// defaults for anything left unset.
func Load(path string) (Config, error) {
	c := Default()
	c.Providers = nil
	c.SettingsPath = path

	content, err := os.ReadFile(path)
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, &c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: "TOOLCHAT_"}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings file."}
	}

	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.API == "" {
		c.API = d.API
	}
	if c.APIKeyEnv == "" && c.APIKey == "" && c.APIKeyCmd == "" {
		c.APIKeyEnv = d.APIKeyEnv
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Providers == nil {
		c.Providers = d.Providers
	}
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			API:           "groq",
			BaseURL:       "https://api.groq.com/openai/v1",
			APIKeyEnv:     "GROQ_API_KEY",
			Model:         "llama3-8b-8192",
			Temperature:   0.7,
			MaxTokens:     1024,
			MaxIterations: 5,
			Listen:        "127.0.0.1:8000",
			CORSOrigins:   []string{"*"},
			StreamPacing:  10 * time.Millisecond,
			LogLevel:      "info",
			LogFormat:     "text",
			Providers: map[string]ProviderConfig{
				"math": {
					Type:    ProviderStdio,
					Command: "toolchat",
					Args:    []string{"math-server"},
				},
				"search": {
					Type:    ProviderStdio,
					Command: "toolchat",
					Args:    []string{"search-server"},
				},
			},
			StartTimeout:  15 * time.Second,
			CallTimeout:   30 * time.Second,
			ShutdownGrace: 5 * time.Second,
		},
	}
}
