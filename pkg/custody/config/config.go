package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/recordsdesk/custody/pkg/custody"
	memoryrepo "github.com/recordsdesk/custody/pkg/custody/repo/memory"
	postgresrepo "github.com/recordsdesk/custody/pkg/custody/repo/postgres"
	fsstorage "github.com/recordsdesk/custody/pkg/custody/storage/fs"
	memorystorage "github.com/recordsdesk/custody/pkg/custody/storage/memory"
	s3storage "github.com/recordsdesk/custody/pkg/custody/storage/s3"
)

// ServerConfig represents server configuration for the custody service
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// Database configuration
	DatabaseType string `env:"DATABASE_TYPE" env-default:"memory"` // "memory", "postgres"
	DatabaseURL  string `env:"DATABASE_URL" env-default:""`

	// Guard configuration
	GuardWait time.Duration `env:"GUARD_WAIT" env-default:"5s"`

	// Attachment storage configuration
	StorageType string `env:"STORAGE_TYPE" env-default:"memory"` // "memory", "fs", "s3"
	FSBaseDir   string `env:"STORAGE_FS_DIR" env-default:"./data/attachments"`

	S3 S3Config

	// JWT actor-token verification key for the HTTP layer
	JWTSecret string `env:"JWT_SECRET" env-default:""`
}

// S3Config represents configuration for the S3 attachment store
type S3Config struct {
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	Bucket          string `env:"AWS_S3_BUCKET" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
}

// Load reads configuration from the environment on top of defaults.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	switch c.StorageType {
	case "memory", "fs":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required when using s3 storage")
		}
	default:
		return errors.New("storage_type must be 'memory', 'fs' or 's3'")
	}
	return nil
}

// BuildService creates a Service instance from the server configuration.
// Extra options (access gate, actor directory, event sink) are appended
// after the configured ones so callers can override defaults.
func (c *ServerConfig) BuildService(ctx context.Context, reg prometheus.Registerer, extra ...custody.Option) (custody.Service, error) {
	var options []custody.Option

	switch c.DatabaseType {
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := postgresrepo.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		options = append(options, custody.WithRepository(postgresrepo.NewWithPool(pool)))
	default:
		options = append(options, custody.WithRepository(memoryrepo.New()))
	}

	switch c.StorageType {
	case "fs":
		store, err := fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
		if err != nil {
			return nil, err
		}
		options = append(options, custody.WithBlobStore("fs", store))
	case "s3":
		store, err := s3storage.New(s3storage.Config{
			Region:          c.S3.Region,
			Bucket:          c.S3.Bucket,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		options = append(options, custody.WithBlobStore("s3", store))
	default:
		options = append(options, custody.WithBlobStore("memory", memorystorage.New()))
	}

	options = append(options, custody.WithGuardWait(c.GuardWait))
	if reg != nil {
		options = append(options, custody.WithMetrics(custody.NewMetrics(reg)))
	}
	options = append(options, extra...)

	return custody.New(options...)
}
