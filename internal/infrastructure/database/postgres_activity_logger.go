package database

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/infrastructure/config"
	"address-intelligence/internal/infrastructure/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed activity_schema.sql
var activitySchemaSQL string

// PostgresActivityLogger writes audit events to the activity_log table
type PostgresActivityLogger struct {
	pool   *pgxpool.Pool
	config *config.PostgresConfig
	logger *logger.Logger
}

// NewPostgresActivityLogger creates an unconnected logger
func NewPostgresActivityLogger(cfg *config.PostgresConfig, logger *logger.Logger) *PostgresActivityLogger {
	return &PostgresActivityLogger{
		config: cfg,
		logger: logger.WithComponent("postgres-activity-log"),
	}
}

// Connect opens the pool and applies the schema
func (p *PostgresActivityLogger) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, p.config.DSN)
	if err != nil {
		return fmt.Errorf("unable to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, activitySchemaSQL); err != nil {
		pool.Close()
		return fmt.Errorf("failed to apply activity schema: %w", err)
	}

	p.pool = pool
	p.logger.Info("Connected to PostgreSQL activity log")
	return nil
}

// Close releases the pool
func (p *PostgresActivityLogger) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Log inserts one activity row
func (p *PostgresActivityLogger) Log(ctx context.Context, event entity.ActivityEvent) error {
	if p.pool == nil {
		return fmt.Errorf("activity log not connected")
	}
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("encode activity details: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO activity_log (user_id, action, details, session_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.UserID, event.Action, details, event.SessionID, ts)
	if err != nil {
		p.logger.Warn("Failed to write activity", zap.String("action", event.Action), zap.Error(err))
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}
