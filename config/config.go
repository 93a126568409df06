package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	Server        ServerConfig
	LibraryAPI    LibraryAPIConfig
	Kiosk         KioskConfig
	MQTT          MQTTConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AppEnv         string
	AllowedOrigins []string
}

type LibraryAPIConfig struct {
	BaseURL   string
	TimeoutMS int
}

type KioskConfig struct {
	ID                          string
	ConnectionCheckIntervalMS   int
	ActivityTTLSeconds          int
	DiagnosticsStudentID        string
	DiagnosticsEndpointsEnabled bool
}

type MQTTConfig struct {
	BrokerURL   string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type ObservabilityConfig struct {
	ExporterEndpoint  string
	ServiceName       string
	ServiceNamespace  string
	ServiceVersion    string
	ServiceInstanceID string
}

type ProfilingConfig struct {
	Enabled               bool
	Endpoint              string
	AppName               string
	UploadIntervalSeconds int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("PORT", "8090")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("ALLOWED_CORS_ORIGINS", "http://localhost:8081")
	v.SetDefault("LIBRARY_API_TIMEOUT_MS", 10000)
	v.SetDefault("KIOSK_ID", "library-kiosk")
	v.SetDefault("CONNECTION_CHECK_INTERVAL_MS", 30000)
	v.SetDefault("ACTIVITY_TTL_SECONDS", 900) // 15 minutes
	v.SetDefault("DIAGNOSTICS_STUDENT_ID", "99999")
	v.SetDefault("MQTT_TOPIC_PREFIX", "library/kiosks")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "/var/log/kiosk-agent")
	v.SetDefault("O11Y_EXPORTER_ENDPOINT", "") // tracing off unless a collector is set
	v.SetDefault("O11Y_SERVICE_NAME", "kiosk-agent")
	v.SetDefault("O11Y_SERVICE_NAMESPACE", "library")
	v.SetDefault("O11Y_SERVICE_VERSION", "1.0.0")
	v.SetDefault("O11Y_PROFILING_ENABLED", false)
	v.SetDefault("O11Y_PROFILING_APP_NAME", "kiosk-agent")
	v.SetDefault("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS", 60)

	// Automatically read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	kioskID := v.GetString("KIOSK_ID")
	mqttClientID := v.GetString("MQTT_CLIENT_ID")
	if mqttClientID == "" {
		mqttClientID = "kiosk-agent-" + kioskID
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AppEnv:         v.GetString("APP_ENV"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_CORS_ORIGINS")),
		},
		LibraryAPI: LibraryAPIConfig{
			BaseURL:   strings.TrimRight(strings.TrimSpace(v.GetString("LIBRARY_API_BASE_URL")), "/"),
			TimeoutMS: v.GetInt("LIBRARY_API_TIMEOUT_MS"),
		},
		Kiosk: KioskConfig{
			ID:                          kioskID,
			ConnectionCheckIntervalMS:   v.GetInt("CONNECTION_CHECK_INTERVAL_MS"),
			ActivityTTLSeconds:          v.GetInt("ACTIVITY_TTL_SECONDS"),
			DiagnosticsStudentID:        v.GetString("DIAGNOSTICS_STUDENT_ID"),
			DiagnosticsEndpointsEnabled: v.GetBool("DIAGNOSTICS_ENDPOINTS_ENABLED"),
		},
		MQTT: MQTTConfig{
			BrokerURL:   v.GetString("MQTT_BROKER_URL"),
			TopicPrefix: strings.Trim(v.GetString("MQTT_TOPIC_PREFIX"), "/"),
			ClientID:    mqttClientID,
			Username:    v.GetString("MQTT_USERNAME"),
			Password:    v.GetString("MQTT_PASSWORD"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Observability: ObservabilityConfig{
			ExporterEndpoint:  v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:       v.GetString("O11Y_SERVICE_NAME"),
			ServiceNamespace:  v.GetString("O11Y_SERVICE_NAMESPACE"),
			ServiceVersion:    v.GetString("O11Y_SERVICE_VERSION"),
			ServiceInstanceID: kioskID,
		},
		Profiling: ProfilingConfig{
			Enabled:               v.GetBool("O11Y_PROFILING_ENABLED"),
			Endpoint:              v.GetString("O11Y_PROFILING_ENDPOINT"),
			AppName:               v.GetString("O11Y_PROFILING_APP_NAME"),
			UploadIntervalSeconds: v.GetInt("O11Y_PROFILING_UPLOAD_INTERVAL_SECONDS"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	// Library API
	if c.LibraryAPI.BaseURL == "" {
		return fmt.Errorf("LIBRARY_API_BASE_URL is required")
	}
	u, err := url.Parse(c.LibraryAPI.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("LIBRARY_API_BASE_URL must be an absolute http(s) URL")
	}
	if c.LibraryAPI.TimeoutMS <= 0 {
		return fmt.Errorf("LIBRARY_API_TIMEOUT_MS must be positive")
	}

	// Kiosk
	if c.Kiosk.ID == "" {
		return fmt.Errorf("KIOSK_ID is required")
	}
	if c.Kiosk.ConnectionCheckIntervalMS <= 0 {
		return fmt.Errorf("CONNECTION_CHECK_INTERVAL_MS must be positive")
	}
	if c.Kiosk.ActivityTTLSeconds <= 0 {
		return fmt.Errorf("ACTIVITY_TTL_SECONDS must be positive")
	}

	// Server configuration
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		return fmt.Errorf("O11Y_PROFILING_ENDPOINT is required when profiling is enabled")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.GinMode == "debug"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}

// DiagnosticsEnabled reports whether the debug endpoints should be mounted
func (c *Config) DiagnosticsEnabled() bool {
	return c.IsDevelopment() || c.Kiosk.DiagnosticsEndpointsEnabled
}

// LibraryAPITimeout returns the per-call deadline for library API requests
func (c *Config) LibraryAPITimeout() time.Duration {
	return time.Duration(c.LibraryAPI.TimeoutMS) * time.Millisecond
}

// ConnectionCheckInterval returns the cadence of the background health check
func (c *Config) ConnectionCheckInterval() time.Duration {
	return time.Duration(c.Kiosk.ConnectionCheckIntervalMS) * time.Millisecond
}

// ActivityTTL returns how long successful toggles stay in the activity feed
func (c *Config) ActivityTTL() time.Duration {
	return time.Duration(c.Kiosk.ActivityTTLSeconds) * time.Second
}

func splitList(raw string) []string {
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
