package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dataroomhq/dataroom/pkg/filestore"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Files         FilesConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Definitions   DefinitionsConfig
	Observability ObservabilityConfig
	LogLevel      string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	// Type is "memory" or "postgres".
	Type        string
	PostgresURL string
	MaxConns    int
}

// FilesConfig selects and configures the file store backend.
type FilesConfig struct {
	// Type is "local" or "s3".
	Type      string
	LocalRoot string
	S3        filestore.S3Config
}

// RedisConfig configures the cross-instance notification bridge. The bridge
// is disabled when URL is empty.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// AuthConfig selects the token resolver.
type AuthConfig struct {
	// Type is "oidc" or "static".
	Type string
	OIDC identity.OIDCConfig

	// StaticTokens maps bearer tokens to subject ids, as
	// "token1:subject1,token2:subject2". Development only.
	StaticTokens string
}

// DefinitionsConfig locates the declarative resource definitions.
type DefinitionsConfig struct {
	Dir        string
	SchemasDir string
	Watch      bool
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("DATAROOM_HOST", "0.0.0.0"),
			Port:            getEnv("DATAROOM_PORT", "8080"),
			ReadTimeout:     getEnvDuration("DATAROOM_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("DATAROOM_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("DATAROOM_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("DATAROOM_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("DATAROOM_HEALTH_PORT", "9090"),
		},
		Store: StoreConfig{
			Type:        getEnv("DATAROOM_STORE_TYPE", "memory"),
			PostgresURL: getEnv("DATAROOM_POSTGRES_URL", ""),
			MaxConns:    getEnvInt("DATAROOM_POSTGRES_MAX_CONNS", 10),
		},
		Files: FilesConfig{
			Type:      getEnv("DATAROOM_FILES_TYPE", "local"),
			LocalRoot: getEnv("DATAROOM_FILES_ROOT", "./data/files"),
			S3: filestore.S3Config{
				Bucket:       getEnv("DATAROOM_S3_BUCKET", ""),
				Region:       getEnv("DATAROOM_S3_REGION", "us-east-1"),
				Endpoint:     getEnv("DATAROOM_S3_ENDPOINT", ""),
				AccessKey:    getEnv("DATAROOM_S3_ACCESS_KEY", ""),
				SecretKey:    getEnv("DATAROOM_S3_SECRET_KEY", ""),
				UsePathStyle: getEnvBool("DATAROOM_S3_USE_PATH_STYLE", false),
			},
		},
		Redis: RedisConfig{
			URL:      getEnv("DATAROOM_REDIS_URL", ""),
			Password: getEnv("DATAROOM_REDIS_PASSWORD", ""),
			DB:       getEnvInt("DATAROOM_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Type: getEnv("DATAROOM_AUTH_TYPE", "static"),
			OIDC: identity.OIDCConfig{
				IssuerURL:    getEnv("DATAROOM_OIDC_ISSUER", ""),
				ClientID:     getEnv("DATAROOM_OIDC_CLIENT_ID", ""),
				ClientSecret: getEnv("DATAROOM_OIDC_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("DATAROOM_OIDC_REDIRECT_URL", ""),
				GroupsClaim:  getEnv("DATAROOM_OIDC_GROUPS_CLAIM", "groups"),
			},
			StaticTokens: getEnv("DATAROOM_STATIC_TOKENS", ""),
		},
		Definitions: DefinitionsConfig{
			Dir:        getEnv("DATAROOM_DEFINITIONS_DIR", "./definitions"),
			SchemasDir: getEnv("DATAROOM_SCHEMAS_DIR", "./schemas"),
			Watch:      getEnvBool("DATAROOM_DEFINITIONS_WATCH", true),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled:     getEnvBool("DATAROOM_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("DATAROOM_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("DATAROOM_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("DATAROOM_OTEL_SERVICE_NAME", "dataroom"),
			OTelServiceVersion: getEnv("DATAROOM_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("DATAROOM_OTEL_INSECURE", true),
		},
		LogLevel: getEnv("DATAROOM_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Store.Type {
	case "memory":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory or postgres)", c.Store.Type)
	}

	switch c.Files.Type {
	case "local":
		if c.Files.LocalRoot == "" {
			return fmt.Errorf("local root is required for local file storage")
		}
	case "s3":
		if c.Files.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 file storage")
		}
	default:
		return fmt.Errorf("invalid file storage type: %s (must be local or s3)", c.Files.Type)
	}

	switch c.Auth.Type {
	case "static":
	case "oidc":
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC issuer URL is required for oidc auth")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC client id is required for oidc auth")
		}
	default:
		return fmt.Errorf("invalid auth type: %s (must be static or oidc)", c.Auth.Type)
	}

	if c.Definitions.Dir == "" {
		return fmt.Errorf("definitions directory is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// ParseStaticTokens expands the "token:subject" pairs of StaticTokens.
func (c *AuthConfig) ParseStaticTokens() (map[string]string, error) {
	tokens := map[string]string{}
	if c.StaticTokens == "" {
		return tokens, nil
	}
	for _, pair := range strings.Split(c.StaticTokens, ",") {
		token, subject, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || subject == "" {
			return nil, fmt.Errorf("invalid static token entry %q", pair)
		}
		tokens[token] = subject
	}
	return tokens, nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
