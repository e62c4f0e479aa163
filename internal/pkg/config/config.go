package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Descent   DescentConfig   `mapstructure:"descent"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type TilesConfig struct {
	URLTemplate    string `mapstructure:"url_template"`
	Sentinel       string `mapstructure:"sentinel"`
	FetchRetries   int    `mapstructure:"fetch_retries"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-attempt fetch timeout.
func (t TilesConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

type DescentConfig struct {
	Zoom              int     `mapstructure:"zoom"`
	Epsilon           float64 `mapstructure:"epsilon"`
	MaxSteps          int     `mapstructure:"max_steps"`
	StepLimit         int     `mapstructure:"step_limit"`
	GradientThreshold float64 `mapstructure:"gradient_threshold"`
	CacheCapacity     int     `mapstructure:"cache_capacity"`
	SharedCache       bool    `mapstructure:"shared_cache"`
	Concurrency       int     `mapstructure:"concurrency"`
	MaxBatch          int     `mapstructure:"max_batch"`
	ResultTTL         int     `mapstructure:"result_ttl"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	Enabled   bool   `mapstructure:"enabled"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: GDMAP_DESCENT_ZOOM → descent.zoom
	v.SetEnvPrefix("GDMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 120)
	v.SetDefault("tiles.url_template", "https://cyberjapandata.gsi.go.jp/xyz/dem/{z}/{x}/{y}.txt")
	v.SetDefault("tiles.sentinel", "e")
	v.SetDefault("tiles.fetch_retries", 1)
	v.SetDefault("tiles.timeout_seconds", 10)
	v.SetDefault("descent.zoom", 13)
	v.SetDefault("descent.epsilon", 1.0)
	v.SetDefault("descent.max_steps", 100)
	v.SetDefault("descent.step_limit", 10000)
	v.SetDefault("descent.gradient_threshold", 0.0)
	v.SetDefault("descent.cache_capacity", 1000)
	v.SetDefault("descent.shared_cache", false)
	v.SetDefault("descent.concurrency", 4)
	v.SetDefault("descent.max_batch", 64)
	v.SetDefault("descent.result_ttl", 3600)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gdmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "gdmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.prefix", "gdmap:")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "descent-queue")
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if !strings.Contains(c.Tiles.URLTemplate, "{z}") ||
		!strings.Contains(c.Tiles.URLTemplate, "{x}") ||
		!strings.Contains(c.Tiles.URLTemplate, "{y}") {
		errs = append(errs, "tiles.url_template must contain {z}, {x} and {y}")
	}
	if c.Tiles.FetchRetries < 0 {
		errs = append(errs, "tiles.fetch_retries must not be negative")
	}
	if c.Tiles.TimeoutSeconds <= 0 {
		errs = append(errs, "tiles.timeout_seconds must be positive")
	}
	if c.Descent.Zoom < 1 || c.Descent.Zoom > 15 {
		errs = append(errs, fmt.Sprintf("descent.zoom must be 1-15, got %d", c.Descent.Zoom))
	}
	if c.Descent.Epsilon <= 0 {
		errs = append(errs, "descent.epsilon must be positive")
	}
	if c.Descent.MaxSteps < 0 {
		errs = append(errs, "descent.max_steps must not be negative")
	}
	if c.Descent.StepLimit < c.Descent.MaxSteps {
		errs = append(errs, fmt.Sprintf("descent.step_limit (%d) must be >= descent.max_steps (%d)",
			c.Descent.StepLimit, c.Descent.MaxSteps))
	}
	if c.Descent.GradientThreshold < 0 {
		errs = append(errs, "descent.gradient_threshold must not be negative")
	}
	if c.Descent.CacheCapacity <= 0 {
		errs = append(errs, "descent.cache_capacity must be positive")
	}
	if c.Descent.Concurrency <= 0 {
		errs = append(errs, "descent.concurrency must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required when temporal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
