package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordsdesk/custody/pkg/custody/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, 5*time.Second, cfg.GuardWait)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GUARD_WAIT", "250ms")
	t.Setenv("STORAGE_TYPE", "fs")
	t.Setenv("STORAGE_FS_DIR", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.GuardWait)
	assert.Equal(t, "fs", cfg.StorageType)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.ServerConfig)
		expectErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *config.ServerConfig) {},
		},
		{
			name:      "empty port",
			mutate:    func(c *config.ServerConfig) { c.Port = "" },
			expectErr: true,
		},
		{
			name:      "unknown database type",
			mutate:    func(c *config.ServerConfig) { c.DatabaseType = "oracle" },
			expectErr: true,
		},
		{
			name:      "postgres without url",
			mutate:    func(c *config.ServerConfig) { c.DatabaseType = "postgres" },
			expectErr: true,
		},
		{
			name: "postgres with url",
			mutate: func(c *config.ServerConfig) {
				c.DatabaseType = "postgres"
				c.DatabaseURL = "postgres://localhost/custody"
			},
		},
		{
			name:      "s3 without bucket",
			mutate:    func(c *config.ServerConfig) { c.StorageType = "s3" },
			expectErr: true,
		},
		{
			name: "s3 with bucket",
			mutate: func(c *config.ServerConfig) {
				c.StorageType = "s3"
				c.S3.Bucket = "custody-attachments"
			},
		},
		{
			name:      "unknown storage type",
			mutate:    func(c *config.ServerConfig) { c.StorageType = "tape" },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.ServerConfig{
				Port:         "8080",
				DatabaseType: "memory",
				StorageType:  "memory",
			}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildServiceMemory(t *testing.T) {
	cfg := config.ServerConfig{
		Port:         "8080",
		DatabaseType: "memory",
		StorageType:  "memory",
		GuardWait:    time.Second,
	}

	svc, err := cfg.BuildService(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, svc)

	codes, err := svc.ListObjectCodes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, codes)
}
