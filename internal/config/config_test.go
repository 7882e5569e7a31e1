package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Port:                "8082",
		DataBackend:         "rest",
		BackendBaseURL:      "http://localhost:8000",
		BackendTimeout:      15 * time.Second,
		JobPollInterval:     1500 * time.Millisecond,
		SummaryCacheSize:    24,
		SummaryCacheTTL:     5 * time.Minute,
		TransactionPageSize: 200,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errorString string
	}{
		{
			name:   "valid rest backend config",
			mutate: func(c *Config) {},
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "invalid data backend",
			mutate:      func(c *Config) { c.DataBackend = "postgres" },
			wantErr:     true,
			errorString: "invalid data backend 'postgres'",
		},
		{
			name:        "rest backend missing base URL",
			mutate:      func(c *Config) { c.BackendBaseURL = "" },
			wantErr:     true,
			errorString: "backend base URL cannot be empty",
		},
		{
			name:        "rest backend bad URL scheme",
			mutate:      func(c *Config) { c.BackendBaseURL = "ftp://localhost" },
			wantErr:     true,
			errorString: "must be 'http' or 'https'",
		},
		{
			name: "sqlite backend missing database path",
			mutate: func(c *Config) {
				c.DataBackend = "sqlite"
				c.SQLiteDBPath = ""
			},
			wantErr:     true,
			errorString: "SQLite database path cannot be empty",
		},
		{
			name:        "invalid AMQP URL scheme",
			mutate:      func(c *Config) { c.AMQPURL = "http://localhost:5672/" },
			wantErr:     true,
			errorString: "invalid AMQP URL scheme 'http'",
		},
		{
			name: "AMQP URL without exchange",
			mutate: func(c *Config) {
				c.AMQPURL = "amqp://localhost:5672/"
				c.AMQPExchange = ""
				c.AMQPQueue = "budget_events"
			},
			wantErr:     true,
			errorString: "AMQP exchange name cannot be empty",
		},
		{
			name:        "poll interval too short",
			mutate:      func(c *Config) { c.JobPollInterval = 10 * time.Millisecond },
			wantErr:     true,
			errorString: "invalid job poll interval",
		},
		{
			name:        "poll interval too long",
			mutate:      func(c *Config) { c.JobPollInterval = 2 * time.Minute },
			wantErr:     true,
			errorString: "invalid job poll interval",
		},
		{
			name:        "summary cache size too small",
			mutate:      func(c *Config) { c.SummaryCacheSize = 0 },
			wantErr:     true,
			errorString: "invalid summary cache size 0",
		},
		{
			name:        "transaction page size too large",
			mutate:      func(c *Config) { c.TransactionPageSize = 5000 },
			wantErr:     true,
			errorString: "invalid transaction page size 5000",
		},
		{
			name: "export spreadsheet without credentials",
			mutate: func(c *Config) {
				c.GoogleSpreadsheetID = "sheet-123"
				c.GoogleSheetName = "Reports"
			},
			wantErr:     true,
			errorString: "GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() error = nil, want error containing %q", tt.errorString)
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Fatalf("Validate() error = %v, want error containing %q", err, tt.errorString)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "DATA_BACKEND", "BACKEND_BASE_URL", "JOB_POLL_INTERVAL",
		"SUMMARY_CACHE_SIZE", "TRANSACTION_PAGE_SIZE",
	}
	original := map[string]string{}
	for _, key := range keys {
		original[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	defer func() {
		for key, value := range original {
			if value != "" {
				os.Setenv(key, value)
			} else {
				os.Unsetenv(key)
			}
		}
	}()

	t.Run("default values", func(t *testing.T) {
		cfg := Load()

		if cfg.Port != "8082" {
			t.Errorf("Load() Port = %v, want 8082", cfg.Port)
		}
		if cfg.DataBackend != "memory" {
			t.Errorf("Load() DataBackend = %v, want memory", cfg.DataBackend)
		}
		if cfg.JobPollInterval != 1500*time.Millisecond {
			t.Errorf("Load() JobPollInterval = %v, want 1.5s", cfg.JobPollInterval)
		}
		if cfg.SummaryCacheSize != 24 {
			t.Errorf("Load() SummaryCacheSize = %v, want 24", cfg.SummaryCacheSize)
		}
		if cfg.TransactionPageSize != 200 {
			t.Errorf("Load() TransactionPageSize = %v, want 200", cfg.TransactionPageSize)
		}
	})

	t.Run("environment variables", func(t *testing.T) {
		os.Setenv("PORT", "9090")
		os.Setenv("DATA_BACKEND", "rest")
		os.Setenv("BACKEND_BASE_URL", "https://api.example.com")
		os.Setenv("JOB_POLL_INTERVAL", "3s")
		os.Setenv("TRANSACTION_PAGE_SIZE", "50")

		cfg := Load()

		if cfg.Port != "9090" {
			t.Errorf("Load() Port = %v, want 9090", cfg.Port)
		}
		if cfg.DataBackend != "rest" {
			t.Errorf("Load() DataBackend = %v, want rest", cfg.DataBackend)
		}
		if cfg.BackendBaseURL != "https://api.example.com" {
			t.Errorf("Load() BackendBaseURL = %v", cfg.BackendBaseURL)
		}
		if cfg.JobPollInterval != 3*time.Second {
			t.Errorf("Load() JobPollInterval = %v, want 3s", cfg.JobPollInterval)
		}
		if cfg.TransactionPageSize != 50 {
			t.Errorf("Load() TransactionPageSize = %v, want 50", cfg.TransactionPageSize)
		}
	})

	t.Run("invalid environment variables use defaults", func(t *testing.T) {
		os.Setenv("JOB_POLL_INTERVAL", "invalid")
		os.Setenv("SUMMARY_CACHE_SIZE", "invalid")

		cfg := Load()

		if cfg.JobPollInterval != 1500*time.Millisecond {
			t.Errorf("Load() JobPollInterval = %v, want 1.5s (default for invalid input)", cfg.JobPollInterval)
		}
		if cfg.SummaryCacheSize != 24 {
			t.Errorf("Load() SummaryCacheSize = %v, want 24 (default for invalid input)", cfg.SummaryCacheSize)
		}
	})
}
