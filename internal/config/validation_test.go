package config_test

import (
	"errors"
	"testing"
	"time"

	"docflow/apps/ingestion/internal/config"

	"github.com/stretchr/testify/assert"
)

func validConfig() config.Config {
	return config.Config{
		DBHost:                "localhost",
		DBUser:                "user",
		DBName:                "db",
		NSQDHost:              "localhost:4150",
		NSQLookupd:            "localhost:4161",
		NSQMsgTimeout:         time.Minute,
		WorkerConcurrency:     2,
		MaxAttempts:           3,
		JobTimeout:            time.Minute,
		ExtractionTimeout:     time.Minute,
		MaxFileSizeMB:         10,
		MaxDecompressedSizeMB: 50,
		MaxArchiveDepth:       2,
		EnableFailureStore:    true,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
		errIs   error
	}{
		{
			name:    "Valid Config",
			mutate:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name:    "Missing DBHost",
			mutate:  func(c *config.Config) { c.DBHost = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name: "Missing DBHost without failure store",
			mutate: func(c *config.Config) {
				c.DBHost = ""
				c.EnableFailureStore = false
			},
			wantErr: false,
		},
		{
			name:    "Missing DBName",
			mutate:  func(c *config.Config) { c.DBName = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Missing NSQD",
			mutate:  func(c *config.Config) { c.NSQDHost = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Zero concurrency",
			mutate:  func(c *config.Config) { c.WorkerConcurrency = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Zero attempts",
			mutate:  func(c *config.Config) { c.MaxAttempts = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Decompression budget below file cap",
			mutate:  func(c *config.Config) { c.MaxDecompressedSizeMB = 5 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Sub-second message timeout",
			mutate:  func(c *config.Config) { c.NSQMsgTimeout = 500 * time.Millisecond },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Non-positive timeout",
			mutate:  func(c *config.Config) { c.ExtractionTimeout = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errIs != nil {
					assert.True(t, errors.Is(err, tt.errIs))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
