package dbpool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskdesk/domain-service/internal/platform/config"
)

// New builds a pgx pool for databaseURL with tuning read from the
// environment.
func New(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	var tuning config.Pool
	if err := config.Load(&tuning); err != nil {
		return nil, err
	}
	if tuning.MinConns < 0 {
		tuning.MinConns = 0
	}
	if tuning.MaxConns <= 0 {
		tuning.MaxConns = 20
	}
	if tuning.MinConns > tuning.MaxConns {
		tuning.MinConns = tuning.MaxConns
	}

	cfg.MinConns = int32(tuning.MinConns)
	cfg.MaxConns = int32(tuning.MaxConns)
	cfg.MaxConnLifetime = tuning.MaxConnLifetime
	cfg.MaxConnIdleTime = tuning.MaxConnIdleTime
	cfg.HealthCheckPeriod = tuning.HealthCheckPeriod

	return pgxpool.NewWithConfig(ctx, cfg)
}
