package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool      `mapstructure:"debug"`
	SentryDSN string    `mapstructure:"sentry_dsn"`
	Log       LogConfig `mapstructure:"log"`
}

// LogConfig holds optional rotated log file configuration
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
	ReadReplicas    []string      `mapstructure:"read_replicas"`      // Replica hosts sharing the primary's credentials, used for read-only queries
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	ConsumerName   string        `mapstructure:"consumer_name"`
	SubjectFilter  string        `mapstructure:"subject_filter"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
	AckWait        time.Duration `mapstructure:"ack_wait"`
	MaxDeliver     int           `mapstructure:"max_deliver"`
	Workers        int           `mapstructure:"workers"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
	// AllowedOrigins restricts CORS, every origin is allowed when empty
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds authentication configuration.
// APIKeys maps an API key to the operator identity recorded on tag locks.
type AuthConfig struct {
	JWTPublicKey string            `mapstructure:"jwt_public_key"`
	APIKeys      map[string]string `mapstructure:"api_keys"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// RateLimiterConfig holds per-host rate limiting configuration for storefront probes
type RateLimiterConfig struct {
	RequestsPerSecond       int           `mapstructure:"requests_per_second"`
	Burst                   int           `mapstructure:"burst"`
	MaxQueueTime            time.Duration `mapstructure:"max_queue_time"`
	MaxWorkers              int           `mapstructure:"max_workers"`
	MaxQueueSize            int           `mapstructure:"max_queue_size"`
	RedisAddr               string        `mapstructure:"redis_addr"`
	RedisPassword           string        `mapstructure:"redis_password"`
	RedisDB                 int           `mapstructure:"redis_db"`
	RedisKeyPrefix          string        `mapstructure:"redis_key_prefix"`
	LocalFallbackMultiplier float64       `mapstructure:"local_fallback_multiplier"`
}

// ProbeConfig holds storefront probe configuration
type ProbeConfig struct {
	UserAgent       string            `mapstructure:"user_agent"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	MaxBodyBytes    int64             `mapstructure:"max_body_bytes"`
	MaxCatalogPages int               `mapstructure:"max_catalog_pages"`
	RateLimiter     RateLimiterConfig `mapstructure:"rate_limiter"`
}

// RegistryConfig holds paths to the platform and taxonomy registries
type RegistryConfig struct {
	PlatformFile string `mapstructure:"platform_file"`
	TaxonomyFile string `mapstructure:"taxonomy_file"`
}

// BreakerConfig holds the store circuit breaker configuration
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// PhaseConfig holds the sweep configuration for a single phase
type PhaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Schedule       string        `mapstructure:"schedule"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
	BatchSize      int           `mapstructure:"batch_size"`
	SweepBudget    time.Duration `mapstructure:"sweep_budget"`
	RecheckAfter   time.Duration `mapstructure:"recheck_after"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
	RetryCap       time.Duration `mapstructure:"retry_cap"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
}

// BridgeConfig holds configuration for the discovery bridge
type BridgeConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
}

// SweeperConfig holds configuration for the sweeper program
type SweeperConfig struct {
	BaseConfig     `mapstructure:",squash"`
	Database       DatabaseConfig `mapstructure:"database"`
	Probe          ProbeConfig    `mapstructure:"probe"`
	Registry       RegistryConfig `mapstructure:"registry"`
	Breaker        BreakerConfig  `mapstructure:"breaker"`
	Metrics        MetricsConfig  `mapstructure:"metrics"`
	Verification   PhaseConfig    `mapstructure:"verification"`
	Health         PhaseConfig    `mapstructure:"health"`
	Classification PhaseConfig    `mapstructure:"classification"`
}

// Phase returns the sweep configuration for the given phase
func (c *SweeperConfig) Phase(phase domain.Phase) PhaseConfig {
	switch phase {
	case domain.PhaseVerification:
		return c.Verification
	case domain.PhaseHealth:
		return c.Health
	default:
		return c.Classification
	}
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg APIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadBridgeConfig loads configuration for the discovery bridge
func LoadBridgeConfig(configFile string, envPath string) (*BridgeConfig, error) {
	v := configureViper("discovery-bridge", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream_name", "STOREFRONT_CANDIDATES")
	v.SetDefault("nats.consumer_name", "discovery-bridge")
	v.SetDefault("nats.subject_filter", "storefront.candidates.>")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", "discovery-bridge")
	v.SetDefault("nats.ack_wait", "30s")
	v.SetDefault("nats.max_deliver", 5)
	v.SetDefault("nats.workers", 8)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9091")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg BridgeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		return nil, err
	}
	if cfg.NATS.URL == "" {
		return nil, errors.New("nats.url is required")
	}

	return &cfg, nil
}

// LoadSweeperConfig loads configuration for the sweeper program
func LoadSweeperConfig(configFile string, envPath string) (*SweeperConfig, error) {
	v := configureViper("sweeper", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	v.SetDefault("probe.user_agent", domain.DEFAULT_USER_AGENT)
	v.SetDefault("probe.timeout", domain.DEFAULT_PROBE_TIMEOUT)
	v.SetDefault("probe.max_body_bytes", domain.DEFAULT_MAX_BODY_BYTES)
	v.SetDefault("probe.max_catalog_pages", 20)
	v.SetDefault("probe.rate_limiter.requests_per_second", 2)
	v.SetDefault("probe.rate_limiter.burst", 2)
	v.SetDefault("probe.rate_limiter.max_queue_time", "30s")
	v.SetDefault("probe.rate_limiter.max_queue_size", 10000)
	v.SetDefault("probe.rate_limiter.redis_key_prefix", "storefront:limiter:")
	v.SetDefault("probe.rate_limiter.local_fallback_multiplier", 1.0)
	v.SetDefault("breaker.max_failures", 3)
	v.SetDefault("breaker.open_timeout", "30s")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9091")
	setPhaseDefaults(v, domain.PhaseVerification, "@every 1m", 8, "50s", "168h")
	setPhaseDefaults(v, domain.PhaseHealth, "@every 5m", 4, "4m", "24h")
	setPhaseDefaults(v, domain.PhaseClassification, "@every 10m", 4, "9m", "168h")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg SweeperConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := validateDatabase(cfg.Database); err != nil {
		return nil, err
	}
	for _, phase := range domain.AllPhases {
		pc := cfg.Phase(phase)
		if pc.WorkerPoolSize <= 0 {
			return nil, fmt.Errorf("%s.worker_pool_size must be positive", phase)
		}
		if pc.RetryBase <= 0 || pc.RetryCap < pc.RetryBase {
			return nil, fmt.Errorf("%s.retry_cap must be greater than or equal to %s.retry_base", phase, phase)
		}
	}

	return &cfg, nil
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
}

func setPhaseDefaults(v *viper.Viper, phase domain.Phase, schedule string, poolSize int, budget string, recheckAfter string) {
	prefix := phase.String() + "."
	v.SetDefault(prefix+"enabled", true)
	v.SetDefault(prefix+"schedule", schedule)
	v.SetDefault(prefix+"worker_pool_size", poolSize)
	v.SetDefault(prefix+"batch_size", 500)
	v.SetDefault(prefix+"sweep_budget", budget)
	v.SetDefault(prefix+"recheck_after", recheckAfter)
	v.SetDefault(prefix+"retry_base", "1m")
	v.SetDefault(prefix+"retry_cap", "24h")
	v.SetDefault(prefix+"max_attempts", 10)
}

func validateDatabase(db DatabaseConfig) error {
	if db.Host == "" {
		return errors.New("database.host is required")
	}
	if db.DBName == "" {
		return errors.New("database.dbname is required")
	}
	return nil
}

// readConfig reads the config file, falling back to environment variables when no file exists
func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/sweeper/, cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)

	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		"log.file",
		"log.max_size_mb",
		"log.max_backups",
		"log.max_age_days",
		"log.compress",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		"database.read_replicas",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.consumer_name",
		"nats.subject_filter",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.ack_wait",
		"nats.max_deliver",
		"nats.workers",
		// Server
		"server.host",
		"server.port",
		"server.allowed_origins",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.jwt_public_key",
		// Metrics
		"metrics.enabled",
		"metrics.address",
		// Probe
		"probe.user_agent",
		"probe.timeout",
		"probe.max_body_bytes",
		"probe.max_catalog_pages",
		"probe.rate_limiter.requests_per_second",
		"probe.rate_limiter.burst",
		"probe.rate_limiter.max_queue_time",
		"probe.rate_limiter.max_workers",
		"probe.rate_limiter.max_queue_size",
		"probe.rate_limiter.redis_addr",
		"probe.rate_limiter.redis_password",
		"probe.rate_limiter.redis_db",
		"probe.rate_limiter.redis_key_prefix",
		"probe.rate_limiter.local_fallback_multiplier",
		// Registry
		"registry.platform_file",
		"registry.taxonomy_file",
		// Breaker
		"breaker.max_failures",
		"breaker.open_timeout",
	}

	for _, phase := range domain.AllPhases {
		for _, key := range []string{
			"enabled",
			"schedule",
			"worker_pool_size",
			"batch_size",
			"sweep_budget",
			"recheck_after",
			"retry_base",
			"retry_cap",
			"max_attempts",
		} {
			keys = append(keys, phase.String()+"."+key)
		}
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return c.dsnForHost(c.Host)
}

// ReplicaDSNs returns the connection strings of the configured read replicas
func (c *DatabaseConfig) ReplicaDSNs() []string {
	dsns := make([]string, 0, len(c.ReadReplicas))
	for _, host := range c.ReadReplicas {
		dsns = append(dsns, c.dsnForHost(host))
	}
	return dsns
}

func (c *DatabaseConfig) dsnForHost(host string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
