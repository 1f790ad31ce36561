package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beerpi/beerpi/internal/config"
	"github.com/beerpi/beerpi/internal/retry"
	"github.com/beerpi/beerpi/internal/sensor"
)

// schema is the readings table consumed by the dashboard. recorded_at
// defaults to insert time on purpose: the dashboard charts arrival
// order, while acquisition time lives in the time-series store.
const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id          BIGSERIAL PRIMARY KEY,
	temperature NUMERIC(6,3),
	relay_state VARCHAR(8) NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertReading = `INSERT INTO readings (temperature, relay_state) VALUES ($1, $2)`

// execer abstracts the pgx pool for tests.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Relational inserts one row per tick into the readings table.
type Relational struct {
	pool   *pgxpool.Pool
	db     execer
	logger *slog.Logger
}

// NewRelational connects to the database, verifying reachability with
// the shared retry schedule, and ensures the readings table exists.
// A database that stays unreachable through the retry budget is a
// startup failure; unlike the bus, the durable store is required.
func NewRelational(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Relational, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	err = retry.Do(ctx, retry.DefaultConfig(), logger, "database connect", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure readings table: %w", err)
	}

	return &Relational{pool: pool, db: pool, logger: logger}, nil
}

// Name implements Sink.
func (r *Relational) Name() string { return "relational" }

// Write implements Sink. A nil temperature inserts NULL; the relay
// state string is stored verbatim.
func (r *Relational) Write(ctx context.Context, s sensor.Sample) error {
	if _, err := r.db.Exec(ctx, insertReading, s.Temperature, string(s.Relay)); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Relational) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
