package config

import (
	"fmt"
	"runtime"
	"time"
)

const (
	// DefaultBufferSize is the compress-and-upload chunk size in bytes.
	DefaultBufferSize = 64 * 1024 * 1024

	// DefaultMaxAttempts is the per-chunk upload attempt ceiling.
	DefaultMaxAttempts = 3

	// DefaultRetryInterval is the fixed delay between chunk upload attempts.
	DefaultRetryInterval = 2 * time.Second

	// DefaultPartTimeout bounds a single part upload call.
	DefaultPartTimeout = 10 * time.Minute

	// DefaultCodec is the compression codec applied to uploaded files.
	DefaultCodec = "lzop"
)

// UploadConfig contains settings for the put command.
type UploadConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region,omitempty"`
	EndpointURL     string `yaml:"endpoint_url,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty"`

	BasePath string `yaml:"base_path,omitempty"`
	Encrypt  bool   `yaml:"encrypt,omitempty"`
	Manifest string `yaml:"manifest"`
	Codec    string `yaml:"codec,omitempty"`

	BufferSize  int64 `yaml:"buffer_size,omitempty"`
	Concurrency int   `yaml:"concurrency,omitempty"`
	Bandwidth   int64 `yaml:"bandwidth,omitempty"`
	Incremental bool  `yaml:"incremental,omitempty"`

	MaxAttempts   int           `yaml:"max_attempts,omitempty"`
	RetryInterval time.Duration `yaml:"retry_interval,omitempty"`
	PartTimeout   time.Duration `yaml:"part_timeout,omitempty"`
}

// ApplyDefaults sets default values for unspecified options.
func (c *UploadConfig) ApplyDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}

	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency()
	}

	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.RetryInterval == 0 {
		c.RetryInterval = DefaultRetryInterval
	}

	if c.PartTimeout == 0 {
		c.PartTimeout = DefaultPartTimeout
	}

	if c.Codec == "" {
		c.Codec = DefaultCodec
	}
}

// Validate checks the configuration for errors.
func (c *UploadConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	if c.Manifest == "" {
		return fmt.Errorf("manifest path is required")
	}

	if c.BufferSize < 1 {
		return fmt.Errorf("buffer size must be at least 1 byte, got %d", c.BufferSize)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}

	if c.Bandwidth < 0 {
		return fmt.Errorf("bandwidth must not be negative, got %d", c.Bandwidth)
	}

	return nil
}

// ManifestConfig contains settings for the create-upload-manifest command.
type ManifestConfig struct {
	SnapshotName string `yaml:"snapshot_name"`
	ConfPath     string `yaml:"conf_path"`
	ManifestPath string `yaml:"manifest_path"`
	Keyspaces    string `yaml:"keyspaces,omitempty"`
	Table        string `yaml:"table,omitempty"`
	Incremental  bool   `yaml:"incremental,omitempty"`
}

// Validate checks the configuration for errors.
func (c *ManifestConfig) Validate() error {
	if !c.Incremental && c.SnapshotName == "" {
		return fmt.Errorf("snapshot name is required unless incremental mode is set")
	}

	if c.ConfPath == "" {
		return fmt.Errorf("conf path is required")
	}

	if c.ManifestPath == "" {
		return fmt.Errorf("manifest path is required")
	}

	return nil
}

// DefaultConcurrency returns the default worker count: available
// parallelism minus one, with a floor of one.
func DefaultConcurrency() int {
	c := runtime.NumCPU() - 1
	if c < 1 {
		c = 1
	}

	return c
}
