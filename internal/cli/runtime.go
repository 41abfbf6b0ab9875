// Package cli implements the portalctl operator commands.
package cli

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/pkg/config"
	"github.com/noah-isme/edu-portal-api/pkg/database"
	"github.com/noah-isme/edu-portal-api/pkg/logger"
)

type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

// openRuntime loads configuration from the environment and connects to Postgres.
func openRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &runtime{cfg: cfg, logger: logr, db: db}, nil
}

func (r *runtime) Close() {
	_ = r.db.Close()
	_ = r.logger.Sync()
}
