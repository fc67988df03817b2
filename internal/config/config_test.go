package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "mailflow", cfg.Database.Database)
			assert.Equal(t, "mailflow.triggers", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "mailflow.triggers.dlx", cfg.RabbitMQ.Queue.DeadLetterExchange)
			assert.Equal(t, 50*time.Second, cfg.Scheduler.Budget)
			assert.Equal(t, 50, cfg.Scheduler.BatchSize)
			assert.Equal(t, 5*time.Minute, cfg.Scheduler.LeaseDuration)
			assert.Equal(t, "mailflow-engine", cfg.App.Name)
			assert.Equal(t, 9091, cfg.Worker.MetricsPort)
		})
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("MAILFLOW_TEST_DB_PASSWORD", "from-env")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "@every 1m", cfg.Scheduler.Cadence)
	assert.Equal(t, 1, cfg.Scheduler.MaxCampaignsPerRun)
	assert.Equal(t, 10*time.Second, cfg.Mailer.Timeout)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "mailflow",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "mailflow.triggers"},
			Queue:    QueueConfig{Name: "mailflow.triggers.enroll"},
		},
		Worker: WorkerConfig{Concurrency: 2, EnrollTimeout: time.Second},
		Scheduler: SchedulerConfig{
			Budget:        50 * time.Second,
			BatchSize:     50,
			LeaseDuration: 5 * time.Minute,
		},
		CronAuth:  CronAuthConfig{Username: "cron", Password: "pw"},
		Auth:      AuthConfig{JWTSecret: "0123456789abcdef0123456789abcdef"},
		Vault:     VaultConfig{Key: "key"},
		Mailer:    MailerConfig{BaseURL: "https://mail.example.com"},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 5, Burst: 10},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "server port too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "server port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "empty database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "invalid database port", mutate: func(c *Config) { c.Database.Port = -1 }, errString: "invalid database port"},
		{name: "empty database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "empty rabbitmq host", mutate: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "empty exchange", mutate: func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, errString: "rabbitmq exchange name is required"},
		{name: "empty queue", mutate: func(c *Config) { c.RabbitMQ.Queue.Name = "" }, errString: "rabbitmq queue name is required"},
		{name: "redis enabled without addr", mutate: func(c *Config) { c.Redis.Enabled = true }, errString: "redis addr is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing cron password", mutate: func(c *Config) { c.CronAuth.Password = "" }, errString: "cron_auth"},
		{name: "short jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, errString: "jwt_secret"},
		{name: "zero burst", mutate: func(c *Config) { c.RateLimit.Burst = 0 }, errString: "ratelimit"},
		{name: "lease not above budget", mutate: func(c *Config) { c.Scheduler.LeaseDuration = c.Scheduler.Budget }, errString: "must exceed budget"},
		{name: "missing vault key", mutate: func(c *Config) { c.Vault.Key = "" }, errString: "vault key is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateWorkerConfig())

	cfg.Worker.Concurrency = 0
	assert.ErrorContains(t, cfg.ValidateWorkerConfig(), "worker concurrency")

	cfg = validConfig()
	cfg.Worker.MetricsPort = 70000
	assert.ErrorContains(t, cfg.ValidateWorkerConfig(), "metrics_port")
	cfg.Worker.MetricsPort = 9091
	require.NoError(t, cfg.ValidateWorkerConfig())

	// engine settings only matter when the in-process scheduler runs
	cfg = validConfig()
	cfg.Mailer.BaseURL = ""
	require.NoError(t, cfg.ValidateWorkerConfig())
	cfg.Scheduler.Enabled = true
	assert.ErrorContains(t, cfg.ValidateWorkerConfig(), "mailer base_url")
}

func TestConfig_ValidateSchedulerConfig(t *testing.T) {
	cfg := validConfig()
	cfg.RabbitMQ = RabbitMQConfig{}
	cfg.Server = ServerConfig{}
	require.NoError(t, cfg.ValidateSchedulerConfig())

	cfg.Scheduler.BatchSize = 0
	assert.ErrorContains(t, cfg.ValidateSchedulerConfig(), "batch_size")
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}
