package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/memohai/relay/internal/media"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultPlaceholderText = "🤔 _Thinking..._"
	DefaultTimeoutSeconds  = 30
	DefaultJWTExpiresIn    = "24h"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	Discord  DiscordConfig  `toml:"discord"`
	Agents   AgentsConfig   `toml:"agents"`
	Auth     AuthConfig     `toml:"auth"`
	Limits   LimitsConfig   `toml:"limits"`
	MIME     MIMEConfig     `toml:"mime"`
	Access   AccessConfig   `toml:"access"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `toml:"format" env:"LOG_FORMAT" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" env:"SERVER_ADDR" validate:"required"`
}

type TelegramConfig struct {
	BotToken              string `toml:"bot_token" env:"TELEGRAM_BOT_TOKEN" validate:"required"`
	WebhookSecret         string `toml:"webhook_secret" env:"TELEGRAM_SECRET"`
	APIEndpoint           string `toml:"api_endpoint" env:"TELEGRAM_API_ENDPOINT"`
	PlaceholderText       string `toml:"placeholder_text" env:"TELEGRAM_PLACEHOLDER_TEXT"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" validate:"gte=0"`
}

// RequestTimeout returns the Bot API request timeout.
func (c TelegramConfig) RequestTimeout() time.Duration {
	return seconds(c.RequestTimeoutSeconds)
}

type DiscordConfig struct {
	BotToken string `toml:"bot_token" env:"DISCORD_BOT_TOKEN"`
}

// Enabled reports whether the Discord sender should be registered.
func (c DiscordConfig) Enabled() bool {
	return strings.TrimSpace(c.BotToken) != ""
}

type AgentsConfig struct {
	EventsURL      string `toml:"events_url" env:"AGENTS_EVENTS_URL" validate:"required,url"`
	APIKey         string `toml:"api_key" env:"AGENTS_API_KEY"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=0"`
}

// Timeout returns the forwarding request timeout.
func (c AgentsConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

type AuthConfig struct {
	APIKey       string `toml:"api_key" env:"API_KEY"`
	JWTSecret    string `toml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// TokenTTL parses JWTExpiresIn.
func (c AuthConfig) TokenTTL() (time.Duration, error) {
	raw := strings.TrimSpace(c.JWTExpiresIn)
	if raw == "" {
		raw = DefaultJWTExpiresIn
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid jwt_expires_in: %w", err)
	}
	return d, nil
}

type LimitsConfig struct {
	MaxImageBytes int64 `toml:"max_image_bytes" env:"MAX_IMAGE_BYTES" validate:"gt=0,lte=209715200"`
	MaxAudioBytes int64 `toml:"max_audio_bytes" env:"MAX_AUDIO_BYTES" validate:"gt=0,lte=209715200"`
}

type MIMEConfig struct {
	Image []string `toml:"image" env:"MIME_IMAGE" envSeparator:"," validate:"required,min=1,dive,required"`
	Audio []string `toml:"audio" env:"MIME_AUDIO" envSeparator:"," validate:"required,min=1,dive,required"`
}

type AccessConfig struct {
	Enforce       bool              `toml:"enforce" env:"WHITELIST_ENFORCE"`
	WhitelistFile string            `toml:"whitelist_file" env:"WHITELIST_FILE"`
	Whitelist     map[string]string `toml:"whitelist"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Telegram: TelegramConfig{
			PlaceholderText:       DefaultPlaceholderText,
			RequestTimeoutSeconds: DefaultTimeoutSeconds,
		},
		Agents: AgentsConfig{
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Limits: LimitsConfig{
			MaxImageBytes: media.DefaultMaxImageBytes,
			MaxAudioBytes: media.DefaultMaxAudioBytes,
		},
		MIME: MIMEConfig{
			Image: append([]string(nil), media.DefaultImageMIMEs...),
			Audio: append([]string(nil), media.DefaultAudioMIMEs...),
		},
		Access: AccessConfig{
			Enforce:   true,
			Whitelist: map[string]string{},
		},
	}
}

// Load reads the TOML file at path, then applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	return load(path, nil)
}

// load is Load with an explicit environment; nil means the process environment.
func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	port := os.Getenv("PORT")
	if environ != nil {
		port = environ["PORT"]
	}
	if port = strings.TrimSpace(port); port != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	return cfg, nil
}

// LoadDotEnv loads .env into the process environment in development.
// It is enabled by APP_ENV=development or RELAY_DOTENV=1; a missing file is ignored.
func LoadDotEnv(files ...string) error {
	if os.Getenv("APP_ENV") != "development" && os.Getenv("RELAY_DOTENV") != "1" {
		return nil
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the fields required to serve traffic.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func seconds(n int) time.Duration {
	if n <= 0 {
		n = DefaultTimeoutSeconds
	}
	return time.Duration(n) * time.Second
}
