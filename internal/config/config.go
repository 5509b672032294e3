package config

import (
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
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Storage   StorageConfig   `yaml:"storage"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
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
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
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

// StorageConfig holds MinIO object storage configuration
type StorageConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	UseSSL        bool          `yaml:"use_ssl"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// SynthesisConfig holds the model backend configuration
type SynthesisConfig struct {
	Image ImageBackendConfig `yaml:"image"`
	Voice VoiceBackendConfig `yaml:"voice"`
	Retry RetryConfig        `yaml:"retry"`
}

// ImageBackendConfig holds the image synthesis backend settings
type ImageBackendConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Steps  int    `yaml:"steps"`
}

// VoiceBackendConfig holds the voice synthesis backend settings
type VoiceBackendConfig struct {
	APIURL          string   `yaml:"api_url"`
	APIKey          string   `yaml:"api_key"`
	Language        string   `yaml:"language"`
	Speed           float64  `yaml:"speed"`
	AvailableVoices []string `yaml:"available_voices"`
}

// RetryConfig bounds retries of transient synthesis failures
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// PipelineConfig holds generation pipeline policy
type PipelineConfig struct {
	// MinSuccessRatio is the minimum fraction of segments that must succeed
	// for a partially failed job to still be composed.
	MinSuccessRatio float64 `yaml:"min_success_ratio"`
	// GPUSlots bounds concurrent synthesis and composition work across jobs.
	GPUSlots int    `yaml:"gpu_slots"`
	WorkDir  string `yaml:"work_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata and API auth
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	APIKey      string `yaml:"api_key"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	PrefetchCount     int           `yaml:"prefetch_count"`
	SegmentTimeout    time.Duration `yaml:"segment_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// MaxSegmentAttempts bounds redeliveries of one segment task; once
	// exceeded the segment is recorded failed instead of requeued.
	MaxSegmentAttempts int           `yaml:"max_segment_attempts"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the fields the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.App.APIKey == "" {
		return fmt.Errorf("app api_key is required")
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	return nil
}

// ValidateWorkerConfig checks the fields the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.PrefetchCount <= 0 {
		return fmt.Errorf("worker prefetch_count must be greater than 0")
	}

	if c.Worker.SegmentTimeout <= 0 {
		return fmt.Errorf("worker segment_timeout must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.MaxSegmentAttempts <= 0 {
		return fmt.Errorf("worker max_segment_attempts must be greater than 0")
	}

	if c.Pipeline.GPUSlots <= 0 {
		return fmt.Errorf("pipeline gpu_slots must be greater than 0")
	}

	if c.Synthesis.Image.APIURL == "" {
		return fmt.Errorf("synthesis image api_url is required")
	}

	if c.Synthesis.Voice.APIURL == "" {
		return fmt.Errorf("synthesis voice api_url is required")
	}

	if c.Synthesis.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("synthesis retry max_attempts must be greater than 0")
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	return nil
}

// validateShared checks fields both services depend on
func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage endpoint is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	if c.Pipeline.MinSuccessRatio < 0 || c.Pipeline.MinSuccessRatio > 1 {
		return fmt.Errorf("pipeline min_success_ratio must be between 0 and 1, got %v", c.Pipeline.MinSuccessRatio)
	}

	return nil
}
