package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Client      ClientConfig      `yaml:"client"`
	Relay       RelayConfig       `yaml:"relay"`
	Policy      PolicyConfig      `yaml:"policy"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	GRPCHealthPort   int           `yaml:"grpc_health_port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, max(d.MaxOpenConns, 1))
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// ClientConfig tunes the shared outbound HTTP transport of the gateway client.
type ClientConfig struct {
	DefaultTimeout      time.Duration `yaml:"default_timeout"`
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
	UserAgent           string        `yaml:"user_agent"`
}

type RelayConfig struct {
	MaxBodyBytes   int64                `yaml:"max_body_bytes"`
	DefaultRPM     int                  `yaml:"default_rpm"`
	DailyCallQuota int64                `yaml:"daily_call_quota"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	AuditEnabled   bool                 `yaml:"audit_enabled"`
	AuditTimeout   time.Duration        `yaml:"audit_timeout"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

// CredentialsConfig lists where the embedding process resolves provider secrets from.
// Sources are merged in the order env, file, keyring, secrets manager, oauth2.
type CredentialsConfig struct {
	EnvFile        string                  `yaml:"env_file"`
	EnvPrefix      string                  `yaml:"env_prefix"`
	File           string                  `yaml:"file"`
	Keyring        KeyringConfig           `yaml:"keyring"`
	SecretsManager SecretsManagerConfig    `yaml:"secrets_manager"`
	OAuth2         map[string]OAuth2Config `yaml:"oauth2"`
}

type KeyringConfig struct {
	Service string   `yaml:"service"`
	Keys    []string `yaml:"keys"`
}

type SecretsManagerConfig struct {
	SecretID string `yaml:"secret_id"`
	Region   string `yaml:"region"`
}

// OAuth2Config describes a client-credentials grant. ClientIDKey and
// ClientSecretKey name credential slots, not the secrets themselves.
type OAuth2Config struct {
	TokenURL        string   `yaml:"token_url"`
	ClientIDKey     string   `yaml:"client_id_key"`
	ClientSecretKey string   `yaml:"client_secret_key"`
	Scopes          []string `yaml:"scopes"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			GRPCHealthPort:   8081,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     90 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "universe",
			User:            "universe",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			PoolSize:  20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Client: ClientConfig{
			DefaultTimeout:      30 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			UserAgent:           "universe-gateway/1.0",
		},
		Relay: RelayConfig{
			MaxBodyBytes:   1 << 20,
			DefaultRPM:     120,
			DailyCallQuota: 10_000,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 30 * time.Second,
			},
			AuditEnabled: true,
			AuditTimeout: 2 * time.Second,
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "/etc/universe/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Credentials: CredentialsConfig{
			EnvPrefix: "UNIVERSE_CRED_",
		},
	}
}

// Validate reports every setting the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCHealthPort < 0 || c.Server.GRPCHealthPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_health_port %d out of range", c.Server.GRPCHealthPort))
	}
	if c.Relay.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("relay.max_body_bytes must not be negative"))
	}
	if c.Relay.DefaultRPM < 0 || c.Relay.DailyCallQuota < 0 {
		errs = append(errs, errors.New("relay limits must not be negative"))
	}
	if c.Relay.CircuitBreaker.FailureThreshold < 1 {
		errs = append(errs, errors.New("relay.circuit_breaker.failure_threshold must be at least 1"))
	}
	if c.Policy.Enabled && c.Policy.BundlePath == "" {
		errs = append(errs, errors.New("policy.bundle_path is required when policy is enabled"))
	}
	for provider, o := range c.Credentials.OAuth2 {
		if o.TokenURL == "" {
			errs = append(errs, fmt.Errorf("credentials.oauth2.%s.token_url is required", provider))
		}
	}
	return errors.Join(errs...)
}
