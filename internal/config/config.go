package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// StorageConfig describes the object storage backend and the limits the
// gateway enforces in front of it.
type StorageConfig struct {
	Driver          string `mapstructure:"driver"` // "s3", "minio" or "memory"
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	// PublicURL is the base that public object URLs are built from, e.g.
	// https://<project>.supabase.co/storage/v1
	PublicURL         string   `mapstructure:"public_url"`
	Buckets           []string `mapstructure:"buckets"`
	DefaultBucket     string   `mapstructure:"default_bucket"`
	MaxFileSize       int64    `mapstructure:"max_file_size"`
	MaxFiles          int      `mapstructure:"max_files"`
	UploadConcurrency int      `mapstructure:"upload_concurrency"`
}

const (
	DriverS3     = "s3"
	DriverMinio  = "minio"
	DriverMemory = "memory"
)

var (
	ErrMissingEndpoint    = errors.New("storage endpoint is required")
	ErrMissingCredentials = errors.New("storage access key id and secret access key are required")
	ErrNoBuckets          = errors.New("at least one storage bucket must be configured")
)

// keys lists every setting so AutomaticEnv can resolve it during Unmarshal
// even when neither a default nor a config file entry exists.
var keys = []string{
	"server.address", "server.read_timeout", "server.write_timeout", "server.cors_origins",
	"log.level", "log.format",
	"storage.driver", "storage.endpoint", "storage.region",
	"storage.access_key_id", "storage.secret_access_key", "storage.use_ssl",
	"storage.public_url", "storage.buckets", "storage.default_bucket",
	"storage.max_file_size", "storage.max_files", "storage.upload_concurrency",
}

// LoadConfig reads configuration from an optional .env file, an optional
// config.yaml in path, and environment variables (STORAGE_ENDPOINT,
// STORAGE_BUCKETS, ...). Later sources win.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// storage.max_file_size -> STORAGE_MAX_FILE_SIZE
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	v.AutomaticEnv()
	for _, key := range keys {
		if err = v.BindEnv(key); err != nil {
			return config, err
		}
	}

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("storage.driver", DriverS3)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.max_file_size", 10*1024*1024)
	v.SetDefault("storage.max_files", 10)
	v.SetDefault("storage.upload_concurrency", 4)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return config, fmt.Errorf("read config file: %w", err)
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}

	config.normalize()
	if err = config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Storage.Buckets = splitList(c.Storage.Buckets)
	c.Server.CORSOrigins = splitList(c.Server.CORSOrigins)

	if c.Storage.DefaultBucket == "" && len(c.Storage.Buckets) > 0 {
		c.Storage.DefaultBucket = c.Storage.Buckets[0]
	}
	if c.Storage.PublicURL == "" {
		// Supabase serves its S3 protocol under /storage/v1/s3 and public
		// objects under /storage/v1/object/public.
		c.Storage.PublicURL = strings.TrimSuffix(strings.TrimRight(c.Storage.Endpoint, "/"), "/s3")
	}
	c.Storage.PublicURL = strings.TrimRight(c.Storage.PublicURL, "/")
}

// Validate reports settings the process cannot start without.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverS3, DriverMinio:
		if c.Storage.Endpoint == "" {
			return ErrMissingEndpoint
		}
		if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
			return ErrMissingCredentials
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if len(c.Storage.Buckets) == 0 {
		return ErrNoBuckets
	}
	if c.Storage.MaxFileSize <= 0 {
		return fmt.Errorf("storage.max_file_size must be positive, got %d", c.Storage.MaxFileSize)
	}
	if c.Storage.MaxFiles <= 0 {
		return fmt.Errorf("storage.max_files must be positive, got %d", c.Storage.MaxFiles)
	}
	return nil
}

// splitList trims entries, drops empty ones and expands comma separated
// values, so "a, b" from the environment and [a, b] from YAML both work.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
