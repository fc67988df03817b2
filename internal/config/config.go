package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// MinJWTSecretLength guards against trivially guessable HMAC keys
	MinJWTSecretLength = 32
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	CronAuth  CronAuthConfig  `yaml:"cron_auth"`
	Auth      AuthConfig      `yaml:"auth"`
	Vault     VaultConfig     `yaml:"vault"`
	Mailer    MailerConfig    `yaml:"mailer"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name               string `yaml:"name"`
	Durable            bool   `yaml:"durable"`
	AutoDelete         bool   `yaml:"auto_delete"`
	Exclusive          bool   `yaml:"exclusive"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the optional Redis used for the invocation lock and rate limiting
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	EnrollTimeout   time.Duration `yaml:"enroll_timeout"`
	ReclaimInterval time.Duration `yaml:"reclaim_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MetricsPort serves /metrics from the worker; 0 disables it
	MetricsPort int `yaml:"metrics_port"`
}

// SchedulerConfig holds the budget and batching of one scheduler invocation
type SchedulerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Cadence            string        `yaml:"cadence"`
	Budget             time.Duration `yaml:"budget"`
	BatchSize          int           `yaml:"batch_size"`
	LeaseDuration      time.Duration `yaml:"lease_duration"`
	MaxCampaignsPerRun int           `yaml:"max_campaigns_per_run"`
}

// CronAuthConfig is the Basic credential pair guarding the cron endpoint
type CronAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AuthConfig holds tenant bearer token settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// VaultConfig holds the base64 key sealing tenant credentials
type VaultConfig struct {
	Key string `yaml:"key"`
}

// MailerConfig holds the email provider endpoint
type MailerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig holds per-tenant ingestion limits
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Scheduler.Cadence == "" {
		c.Scheduler.Cadence = "@every 1m"
	}
	if c.Scheduler.MaxCampaignsPerRun <= 0 {
		c.Scheduler.MaxCampaignsPerRun = 1
	}
	if c.Mailer.Timeout <= 0 {
		c.Mailer.Timeout = 10 * time.Second
	}
	if c.Worker.ReclaimInterval <= 0 {
		c.Worker.ReclaimInterval = time.Minute
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

func validPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}

// Validate checks the sections every service needs
func (c *Config) Validate() error {
	if !validPort(c.Server.Port) {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if !validPort(c.RabbitMQ.Port) {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return errors.New("rabbitmq queue name is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis addr is required when redis is enabled")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if !validPort(c.Database.Port) {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	return nil
}

// validateEngine checks what running the scheduler loop needs
func (c *Config) validateEngine() error {
	if c.Scheduler.Budget <= 0 {
		return errors.New("scheduler budget must be greater than 0")
	}

	if c.Scheduler.BatchSize <= 0 {
		return errors.New("scheduler batch_size must be greater than 0")
	}

	// a lease shorter than the budget could be reclaimed mid-invocation
	if c.Scheduler.LeaseDuration <= c.Scheduler.Budget {
		return fmt.Errorf("scheduler lease_duration (%s) must exceed budget (%s)", c.Scheduler.LeaseDuration, c.Scheduler.Budget)
	}

	if c.Vault.Key == "" {
		return errors.New("vault key is required")
	}

	if c.Mailer.BaseURL == "" {
		return errors.New("mailer base_url is required")
	}

	return nil
}

// ValidateAPIConfig checks the API service configuration
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.CronAuth.Username == "" || c.CronAuth.Password == "" {
		return errors.New("cron_auth username and password are required")
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth jwt_secret must be at least %d characters", MinJWTSecretLength)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("ratelimit requests_per_second and burst must be greater than 0")
	}

	return c.validateEngine()
}

// ValidateWorkerConfig checks the worker service configuration
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be greater than 0")
	}

	if c.Worker.EnrollTimeout <= 0 {
		return errors.New("worker enroll_timeout must be greater than 0")
	}

	if c.Worker.MetricsPort != 0 && !validPort(c.Worker.MetricsPort) {
		return fmt.Errorf("invalid worker metrics_port: %d", c.Worker.MetricsPort)
	}

	if c.Scheduler.Enabled {
		return c.validateEngine()
	}
	return nil
}

// ValidateSchedulerConfig checks the one-shot scheduler, which needs no
// broker or HTTP server
func (c *Config) ValidateSchedulerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateEngine()
}
