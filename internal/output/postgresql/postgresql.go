package postgresql

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/manifest-network/trampoline/internal/models"
)

//go:embed migrations/*
var migrationsFS embed.FS

// PostgresOutputHandler indexes blocks, transactions and cells into the
// api schema.
type PostgresOutputHandler struct {
	pool *pgxpool.Pool
}

func (h *PostgresOutputHandler) GetPool() *pgxpool.Pool {
	return h.pool
}

// NewPostgresOutputHandler connects with config and migrates the api schema.
func NewPostgresOutputHandler(ctx context.Context, config *pgxpool.Config) (*PostgresOutputHandler, error) {
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	handler := &PostgresOutputHandler{
		pool: pool,
	}

	// Run migrations. This is idempotent.
	if err = handler.runMigrations(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return handler, nil
}

func (h *PostgresOutputHandler) GetLatestBlock(ctx context.Context) (*models.Block, error) {
	var block models.Block
	err := h.pool.QueryRow(ctx, `
		SELECT id, hash
		FROM api.blocks_raw
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&block.ID, &block.Hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No rows found
		}
		return nil, fmt.Errorf("failed to get the latest block: %w", err)
	}
	return &block, nil
}

func (h *PostgresOutputHandler) GetMissingBlockIds(ctx context.Context) ([]uint64, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT s.id
		FROM generate_series(
				 (SELECT MIN(id) FROM api.blocks_raw),
				 (SELECT MAX(id) FROM api.blocks_raw)
			 ) AS s(id)
		LEFT JOIN api.blocks_raw t ON t.id = s.id
		WHERE t.id IS NULL;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get missing block IDs: %w", err)
	}
	defer rows.Close()

	var missing []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan missing block ID: %w", err)
		}
		missing = append(missing, id)
	}

	return missing, rows.Err()
}

func (h *PostgresOutputHandler) WriteBlockWithTransactions(ctx context.Context, block *models.Block, transactions []*models.Transaction) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Ensure rollback if commit is not reached

	// Write block
	_, err = tx.Exec(ctx, `
		INSERT INTO api.blocks_raw (id, hash, data) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET hash = EXCLUDED.hash, data = EXCLUDED.data;
	`, block.ID, block.Hash, block.Data)
	if err != nil {
		return fmt.Errorf("failed to write blockchain block: %w", err)
	}

	// Write transactions
	for _, txData := range transactions {
		_, err = tx.Exec(ctx, `
			INSERT INTO api.transactions_raw (id, block_id, data) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET block_id = EXCLUDED.block_id, data = EXCLUDED.data;
		`, txData.Hash, txData.BlockID, txData.Data)
		if err != nil {
			return fmt.Errorf("failed to write blockchain transaction: %w", err)
		}
		if err := writeCells(ctx, tx, txData); err != nil {
			return err
		}
	}

	// Commit transaction
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func writeCells(ctx context.Context, tx pgx.Tx, txData *models.Transaction) error {
	for _, c := range txData.Outputs {
		var typeHash *string
		if c.TypeHash != "" {
			typeHash = &c.TypeHash
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO api.cells (tx_hash, idx, capacity, lock_hash, type_hash) VALUES ($1, $2, $3::numeric, $4, $5)
			ON CONFLICT (tx_hash, idx) DO NOTHING;
		`, txData.Hash, c.Index, strconv.FormatUint(c.Capacity, 10), c.LockHash, typeHash)
		if err != nil {
			return fmt.Errorf("failed to write cell %s#%d: %w", txData.Hash, c.Index, err)
		}
	}
	for _, op := range txData.Spent {
		_, err := tx.Exec(ctx, `
			INSERT INTO api.cell_inputs (tx_hash, idx, consumed_by) VALUES ($1, $2, $3)
			ON CONFLICT (tx_hash, idx) DO UPDATE SET consumed_by = EXCLUDED.consumed_by;
		`, op.TxHash.Hex(), op.Index, txData.Hash)
		if err != nil {
			return fmt.Errorf("failed to write input %s: %w", op, err)
		}
	}
	return nil
}

func (h *PostgresOutputHandler) runMigrations() error {
	// Create tables if they don't exist
	slog.Info("Running PostgreSQL migrations...")

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratepgx.WithInstance(stdlib.OpenDBFromPool(h.pool), &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	// Run migrations
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (h *PostgresOutputHandler) Close() error {
	slog.Info("Closing PostgreSQL connection pool")
	h.pool.Close()
	slog.Info("PostgreSQL connection pool closed")
	return nil
}
