// Package factory builds a backend.Backend from the application
// configuration. It lives outside the ports package so the port definitions
// stay a leaf that every implementation can import.
package factory

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/backend"
	"bilancio/internal/backend/memory"
	"bilancio/internal/backend/rest"
	"bilancio/internal/config"
	"bilancio/internal/storage"
)

const (
	RESTBackend   BackendType = "rest"
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// BackendType selects which Backend implementation the factory builds.
type BackendType string

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case RESTBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result contains the backend instance and optional cleanup function.
type Result struct {
	Backend backend.Backend
	Cleanup CleanupFunc
}

// Create builds a Backend from the application configuration.
func Create(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backendType := BackendType(cfg.DataBackend)
	if !backendType.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	switch backendType {
	case RESTBackend:
		client, err := rest.NewClient(rest.Config{
			BaseURL: cfg.BackendBaseURL,
			Token:   cfg.BackendToken,
			Timeout: cfg.BackendTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize rest backend: %w", err)
		}
		logger.Info("Initialized rest backend", "base_url", cfg.BackendBaseURL)
		return &Result{Backend: client, Cleanup: nil}, nil

	case SQLiteBackend:
		repo, err := storage.NewSQLiteMirror(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite mirror: %w", err)
		}
		logger.Info("Initialized sqlite mirror backend", "db_path", cfg.SQLiteDBPath)
		return &Result{Backend: repo, Cleanup: repo.Close}, nil

	case MemoryBackend:
		store := memory.NewSeeded()
		logger.Info("Initialized memory backend")
		return &Result{Backend: store, Cleanup: nil}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", backendType)
	}
}
