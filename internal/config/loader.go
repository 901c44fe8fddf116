package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when CONFIG_FILE is not set
const DefaultConfigFile = "config.yaml"

// Config is shared by the api and connector processes.
// Each process validates only the sections it needs.
type Config struct {
	Log     LogConfig     `yaml:"log" envconfig:"LOG"`
	Redis   RedisConfig   `yaml:"redis" envconfig:"REDIS"`
	Discord DiscordConfig `yaml:"discord" envconfig:"DISCORD"`
	HTTP    HTTPConfig    `yaml:"http" envconfig:"HTTP"`
	Bridge  BridgeConfig  `yaml:"bridge" envconfig:"BRIDGE"`
	Auth    AuthConfig    `yaml:"auth" envconfig:"AUTH"`
}

// LogConfig configures the zerolog logger
type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL"`
	Format     string `yaml:"format" envconfig:"FORMAT"` // json or console
	Output     string `yaml:"output" envconfig:"OUTPUT"` // stdout, stderr or file
	TimeFormat string `yaml:"time_format" envconfig:"TIME_FORMAT"`
	FilePath   string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// RedisConfig holds the bus and durable store connection
type RedisConfig struct {
	URL string `yaml:"url" envconfig:"URL"`
}

// DiscordConfig holds bot and OAuth2 application credentials
type DiscordConfig struct {
	BotToken     string   `yaml:"bot_token" envconfig:"BOT_TOKEN"`
	ClientID     string   `yaml:"client_id" envconfig:"CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" envconfig:"CLIENT_SECRET"`
	RedirectURL  string   `yaml:"redirect_url" envconfig:"CLIENT_REDIRECT"`
	Scopes       []string `yaml:"scopes" envconfig:"CLIENT_SCOPES"`
	APIBaseURL   string   `yaml:"api_base_url" envconfig:"API_BASE_URL"`
}

// HTTPConfig configures the api process listener
type HTTPConfig struct {
	Port         int           `yaml:"port" envconfig:"PORT"`
	StaticDir    string        `yaml:"static_dir" envconfig:"STATIC_DIR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
}

// BridgeConfig tunes the request/response bridge on both sides
type BridgeConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout" envconfig:"LOOKUP_TIMEOUT"`
	MaxInFlight    int           `yaml:"max_in_flight" envconfig:"MAX_IN_FLIGHT"`
}

// AuthConfig tunes the login flow and sessions
type AuthConfig struct {
	StateTTL     time.Duration `yaml:"state_ttl" envconfig:"STATE_TTL"`
	SessionTTL   time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`
	CookieName   string        `yaml:"cookie_name" envconfig:"COOKIE_NAME"`
	CookieSecure bool          `yaml:"cookie_secure" envconfig:"COOKIE_SECURE"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: "rfc3339",
			FilePath:   "logs/app.log",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Discord: DiscordConfig{
			RedirectURL: "http://localhost:8000/api/oauth2/code",
			Scopes:      []string{"identify"},
			APIBaseURL:  "https://discord.com/api/v10",
		},
		HTTP: HTTPConfig{
			Port:         8000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Bridge: BridgeConfig{
			RequestTimeout: time.Second,
			LookupTimeout:  5 * time.Second,
			MaxInFlight:    64,
		},
		Auth: AuthConfig{
			StateTTL:   10 * time.Minute,
			SessionTTL: 7 * 24 * time.Hour,
			CookieName: "user",
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// filepath (skipped when it does not exist), then environment variables.
func LoadConfig(filepath string) (*Config, error) {
	config := Default()

	if filepath != "" {
		data, err := os.ReadFile(filepath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("error parsing YAML: %w", err)
			}
		}
	}

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	return &config, nil
}

// FromEnv loads the configuration using CONFIG_FILE or DefaultConfigFile
func FromEnv() (*Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadConfig(path)
}

// ValidateAPI checks what the api process needs to start
func (c *Config) ValidateAPI() error {
	var missing []string
	if c.Redis.URL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.Discord.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.Discord.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.Discord.RedirectURL == "" {
		missing = append(missing, "CLIENT_REDIRECT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.HTTP.Port)
	}
	return nil
}

// ValidateConnector checks what the connector process needs to start
func (c *Config) ValidateConnector() error {
	var missing []string
	if c.Redis.URL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.Discord.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
