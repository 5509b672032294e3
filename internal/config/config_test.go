package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("valid config file", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "videopipeline", cfg.Database.Database)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)

		assert.Equal(t, "video.jobs", cfg.RabbitMQ.Exchange.Name)
		assert.True(t, cfg.RabbitMQ.Exchange.Durable)
		assert.Equal(t, "segment.tasks", cfg.RabbitMQ.Queue.Name)
		assert.Equal(t, "segment.generate", cfg.RabbitMQ.RoutingKey)
		assert.Equal(t, 2.0, cfg.RabbitMQ.Publish.BackoffMultiplier)

		assert.Equal(t, "localhost:9000", cfg.Storage.Endpoint)
		assert.Equal(t, "video-pipeline", cfg.Storage.Bucket)
		assert.Equal(t, time.Hour, cfg.Storage.PresignExpiry)

		assert.Equal(t, 1280, cfg.Synthesis.Image.Width)
		assert.Equal(t, 720, cfg.Synthesis.Image.Height)
		assert.Equal(t, []string{"narrator_male", "narrator_female"}, cfg.Synthesis.Voice.AvailableVoices)
		assert.Equal(t, 3, cfg.Synthesis.Retry.MaxAttempts)
		assert.Equal(t, 500*time.Millisecond, cfg.Synthesis.Retry.InitialDelay)

		assert.Equal(t, 0.8, cfg.Pipeline.MinSuccessRatio)
		assert.Equal(t, 2, cfg.Pipeline.GPUSlots)

		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "test-api-key", cfg.App.APIKey)

		assert.Equal(t, 4, cfg.Worker.Concurrency)
		assert.Equal(t, 8, cfg.Worker.PrefetchCount)
		assert.Equal(t, 5*time.Minute, cfg.Worker.SegmentTimeout)
		assert.Equal(t, 5, cfg.Worker.MaxSegmentAttempts)
	})

	t.Run("missing config file", func(t *testing.T) {
		cfg, err := Load("testdata/does_not_exist.yaml")
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("malformed config file", func(t *testing.T) {
		cfg, err := Load("testdata/malformed.yaml")
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	return cfg
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid server port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.App.APIKey = "" },
			wantErr: "api_key is required",
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database host is required",
		},
		{
			name:    "missing exchange name",
			mutate:  func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr: "exchange name is required",
		},
		{
			name:    "missing storage bucket",
			mutate:  func(c *Config) { c.Storage.Bucket = "" },
			wantErr: "storage bucket is required",
		},
		{
			name:    "success ratio above one",
			mutate:  func(c *Config) { c.Pipeline.MinSuccessRatio = 1.5 },
			wantErr: "min_success_ratio must be between 0 and 1",
		},
		{
			name:    "negative success ratio",
			mutate:  func(c *Config) { c.Pipeline.MinSuccessRatio = -0.1 },
			wantErr: "min_success_ratio must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr: "concurrency must be greater than 0",
		},
		{
			name:    "zero prefetch",
			mutate:  func(c *Config) { c.Worker.PrefetchCount = 0 },
			wantErr: "prefetch_count must be greater than 0",
		},
		{
			name:    "zero segment timeout",
			mutate:  func(c *Config) { c.Worker.SegmentTimeout = 0 },
			wantErr: "segment_timeout must be greater than 0",
		},
		{
			name:    "zero segment attempts",
			mutate:  func(c *Config) { c.Worker.MaxSegmentAttempts = 0 },
			wantErr: "max_segment_attempts must be greater than 0",
		},
		{
			name:    "zero gpu slots",
			mutate:  func(c *Config) { c.Pipeline.GPUSlots = 0 },
			wantErr: "gpu_slots must be greater than 0",
		},
		{
			name:    "missing image backend url",
			mutate:  func(c *Config) { c.Synthesis.Image.APIURL = "" },
			wantErr: "image api_url is required",
		},
		{
			name:    "missing voice backend url",
			mutate:  func(c *Config) { c.Synthesis.Voice.APIURL = "" },
			wantErr: "voice api_url is required",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Synthesis.Retry.MaxAttempts = 0 },
			wantErr: "max_attempts must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
