// File: cmd/store.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/observability"
	"github.com/xkilldash9x/authprobe/internal/reporting"
	"github.com/xkilldash9x/authprobe/internal/store"
)

// runStore is the slice of *store.Store the commands use.
type runStore interface {
	SaveRun(ctx context.Context, r *reporting.Report) error
	LoadRun(ctx context.Context, runID string) (*reporting.Report, error)
}

var _ runStore = (*store.Store)(nil)

// storeProvider creates the run history store. Tests inject a mock store
// instead of a live database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (runStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider connecting to PostgreSQL.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to database.url and makes sure the schema exists.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, errors.New("database URL is not configured (AUTHPROBE_DATABASE_URL)")
	}

	s, pool, err := store.Connect(ctx, cfg.Database().URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}
