package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type PostgresStoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *PostgresStoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("pool is required")
	}
	return nil
}

// PostgresStore keeps a history of reports in a stake_reports table, one
// row per run with the full report as JSONB.
type PostgresStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg PostgresStoreConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PostgresStore{log: cfg.Logger, pool: cfg.Pool}, nil
}

// Migrate runs the embedded goose migrations against the given DSN.
func Migrate(log *slog.Logger, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	log.Info("snapshot: running PostgreSQL migrations")
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, report *analysis.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO stake_reports (run_id, epoch, generated_at, report) VALUES ($1, $2, $3, $4)`,
		report.RunID, int64(report.Epoch.Epoch), report.GeneratedAt, data)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	s.log.Debug("snapshot: inserted report row", "run_id", report.RunID, "epoch", report.Epoch.Epoch)
	return nil
}

// Latest returns the most recent stored report, or nil when the table is
// empty.
func (s *PostgresStore) Latest(ctx context.Context) (*analysis.Report, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM stake_reports ORDER BY generated_at DESC, id DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest report: %w", err)
	}

	var report analysis.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}
