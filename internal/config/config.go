package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	App           AppConfig           `mapstructure:"app"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	RateLimit       int           `mapstructure:"rate_limit"` // issuance requests per IP per minute, 0 disables
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// DatabaseConfig selects the backend and sizes the shared pool.
type DatabaseConfig struct {
	Driver            string        `mapstructure:"driver"` // mysql | mssql
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Name              string        `mapstructure:"name"`
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
	MaxIdleConns      int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectRetries    uint          `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	// Encrypt is SQL Server's encrypt mode (strict, true, false, disable);
	// empty leaves the driver default. Ignored for MySQL.
	Encrypt                string `mapstructure:"encrypt"`
	TrustServerCertificate bool   `mapstructure:"trust_server_certificate"`
}

// GatewayConfig holds the payment gateway credentials and client settings.
type GatewayConfig struct {
	Provider                string        `mapstructure:"provider"` // hyperpay | mock
	APIKey                  string        `mapstructure:"api_key"`
	APIBase                 string        `mapstructure:"api_base"`
	RegionCode              string        `mapstructure:"region_code"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// AppConfig describes this service to the gateway.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"` // public base URL, the notify callback is derived from it
	Version string `mapstructure:"version"`
}

// NotifyURL is the settlement callback the gateway is told to call.
func (a AppConfig) NotifyURL() string {
	return strings.TrimRight(a.URL, "/") + "/api/notify"
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// PAYBRIDGE_DATABASE_HOST overrides database.host
	v.SetEnvPrefix("PAYBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paybridge")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields have valid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	switch strings.ToLower(c.Database.Driver) {
	case "mysql", "mssql", "sqlserver":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be mysql or mssql, got %q", c.Database.Driver))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Database.Name == "" {
		errs = append(errs, fmt.Errorf("database.name is required"))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("database.max_open_conns must be positive"))
	}
	switch strings.ToLower(c.Database.Encrypt) {
	case "", "strict", "true", "false", "disable":
	default:
		errs = append(errs, fmt.Errorf("database.encrypt must be strict, true, false or disable, got %q", c.Database.Encrypt))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout must be positive"))
	}
	if c.Gateway.Provider != "mock" && c.Gateway.APIBase == "" {
		errs = append(errs, fmt.Errorf("gateway.api_base is required"))
	}
	if c.App.URL == "" {
		errs = append(errs, fmt.Errorf("app.url is required"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Gateway.APIKey == "" {
			errs = append(errs, fmt.Errorf("gateway.api_key required in production"))
		}
		if c.Gateway.Provider == "mock" {
			errs = append(errs, fmt.Errorf("gateway.provider mock is not allowed in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.rate_limit", 60)

	// Database defaults
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "paybridge")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paybridge")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.connect_retry_delay", "1s")
	v.SetDefault("database.encrypt", "")
	v.SetDefault("database.trust_server_certificate", false)

	// Gateway defaults
	v.SetDefault("gateway.provider", "hyperpay")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.api_base", "")
	v.SetDefault("gateway.region_code", "TR")
	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("gateway.circuit_breaker_threshold", 5)
	v.SetDefault("gateway.circuit_breaker_timeout", "30s")

	// App defaults
	v.SetDefault("app.name", "PayBridge")
	v.SetDefault("app.url", "http://localhost:3000")
	v.SetDefault("app.version", "1.0.0")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)
}
